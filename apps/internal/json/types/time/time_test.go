// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package time

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnixMarshal(t *testing.T) {
	tests := []struct {
		desc string
		in   Unix
		want string
	}{
		{desc: "zero", in: Unix{}, want: `null`},
		{desc: "epoch seconds", in: Unix{T: time.Unix(1592049600, 0)}, want: `"1592049600"`},
		{desc: "sub-second dropped", in: Unix{T: time.Unix(100, 999)}, want: `"100"`},
	}

	for _, test := range tests {
		got, err := json.Marshal(test.in)
		if err != nil {
			t.Errorf("TestUnixMarshal(%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		if string(got) != test.want {
			t.Errorf("TestUnixMarshal(%s): got %s, want %s", test.desc, got, test.want)
		}
	}
}

func TestUnixUnmarshal(t *testing.T) {
	tests := []struct {
		desc string
		in   string
		want time.Time
		err  bool
	}{
		{desc: "quoted", in: `"1592049600"`, want: time.Unix(1592049600, 0)},
		{desc: "number", in: `1592049600`, want: time.Unix(1592049600, 0)},
		{desc: "null", in: `null`},
		{desc: "empty string", in: `""`},
		{desc: "not a number", in: `"tomorrow"`, err: true},
	}

	for _, test := range tests {
		got := Unix{}
		err := json.Unmarshal([]byte(test.in), &got)
		switch {
		case err == nil && test.err:
			t.Errorf("TestUnixUnmarshal(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestUnixUnmarshal(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if !got.T.Equal(test.want) {
			t.Errorf("TestUnixUnmarshal(%s): got %v, want %v", test.desc, got.T, test.want)
		}
	}
}
