// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package time provides for custom types to translate time from JSON and other formats
// into time.Time objects.
package time

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Unix provides a type that can marshal and unmarshal a string representation
// of the unix epoch into a time.Time object. This is the representation every
// MSAL library uses for cached_at, expires_on and extended_expires_on.
type Unix struct {
	T time.Time
}

// IsZero reports whether u holds the zero time.
func (u Unix) IsZero() bool {
	return u.T.IsZero()
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON(). Both the quoted form
// written by MSAL and a bare JSON number are accepted.
func (u *Unix) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		u.T = time.Time{}
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		u.T = time.Time{}
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unix time(%s) could not be converted from string to int: %w", string(b), err)
	}
	u.T = time.Unix(i, 0).UTC()
	return nil
}
