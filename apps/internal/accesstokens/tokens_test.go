// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package accesstokens

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kylelemons/godebug/pretty"
)

func signedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-a-real-key"))
	if err != nil {
		t.Fatalf("could not sign test id token: %s", err)
	}
	return s
}

func TestParseClientInfo(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte(`{"uid":"uid","utid":"utid"}`))
	padded := base64.URLEncoding.EncodeToString([]byte(`{"uid":"uid","utid":"utid"}`))

	tests := []struct {
		desc string
		in   string
		want string
		err  bool
	}{
		{desc: "raw url encoding", in: raw, want: "uid.utid"},
		{desc: "padded encoding", in: padded, want: "uid.utid"},
		{desc: "empty", in: "", want: ""},
		{desc: "not base64", in: "!!!", err: true},
		{desc: "not json", in: base64.RawURLEncoding.EncodeToString([]byte("nope")), err: true},
	}

	for _, test := range tests {
		ci, err := ParseClientInfo(test.in)
		switch {
		case err == nil && test.err:
			t.Errorf("TestParseClientInfo(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestParseClientInfo(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if got := ci.HomeAccountID(); got != test.want {
			t.Errorf("TestParseClientInfo(%s): got %q, want %q", test.desc, got, test.want)
		}
	}
}

func TestParseIDToken(t *testing.T) {
	raw := signedIDToken(t, jwt.MapClaims{
		"preferred_username": "user@contoso.com",
		"name":               "A User",
		"oid":                "object1234",
		"tid":                "contoso",
		"sub":                "sub",
		"iss":                "https://login.microsoftonline.com/contoso/v2.0",
	})

	got, err := ParseIDToken(raw)
	if err != nil {
		t.Fatalf("TestParseIDToken: got err == %s, want err == nil", err)
	}
	want := IDToken{
		PreferredUsername: "user@contoso.com",
		Name:              "A User",
		Oid:               "object1234",
		TenantID:          "contoso",
		Subject:           "sub",
		Issuer:            "https://login.microsoftonline.com/contoso/v2.0",
		RawToken:          raw,
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestParseIDToken: -want/+got:\n%s", diff)
	}
	if got.LocalAccountID() != "object1234" {
		t.Errorf("TestParseIDToken: LocalAccountID() == %q, want %q", got.LocalAccountID(), "object1234")
	}

	if _, err := ParseIDToken("not.a.jwt"); err == nil {
		t.Errorf("TestParseIDToken(garbage): got err == nil, want err != nil")
	}
}

func TestIDTokenFallbacks(t *testing.T) {
	id := IDToken{Subject: "sub", UPN: "upn@contoso.com"}
	if id.LocalAccountID() != "sub" {
		t.Errorf("LocalAccountID() == %q, want sub", id.LocalAccountID())
	}
	if id.Username() != "upn@contoso.com" {
		t.Errorf("Username() == %q, want upn@contoso.com", id.Username())
	}
	if !(IDToken{}).IsZero() {
		t.Errorf("IsZero() == false for zero value")
	}
}

func TestNewTokenResponse(t *testing.T) {
	receivedAt := time.Unix(1700000000, 0).UTC()
	clientInfo := base64.RawURLEncoding.EncodeToString([]byte(`{"uid":"uid","utid":"utid"}`))

	tests := []struct {
		desc   string
		body   string
		scopes []string
		want   TokenResponse
		err    bool
	}{
		{
			desc: "error response",
			body: `{"error":"invalid_grant","error_description":"expired"}`,
			err:  true,
		},
		{
			desc: "missing access token",
			body: `{"token_type":"Bearer"}`,
			err:  true,
		},
		{
			desc:   "scope omitted means all requested scopes were granted",
			body:   `{"access_token":"at","expires_in":3600,"token_type":"Bearer"}`,
			scopes: []string{"User.Read"},
			want: TokenResponse{
				AccessToken:   "at",
				TokenType:     "Bearer",
				GrantedScopes: []string{"User.Read"},
				ExpiresOn:     receivedAt.Add(time.Hour),
				ExtExpiresOn:  receivedAt.Add(time.Hour),
			},
		},
		{
			desc: "full response",
			body: fmt.Sprintf(`{"access_token":"at","refresh_token":"rt","expires_in":60,"ext_expires_in":120,"scope":"User.Read openid","foci":"1","client_info":%q}`, clientInfo),
			want: TokenResponse{
				AccessToken:   "at",
				RefreshToken:  "rt",
				ClientInfo:    ClientInfo{UID: "uid", UTID: "utid"},
				RawClientInfo: clientInfo,
				FamilyID:      "1",
				GrantedScopes: []string{"User.Read", "openid"},
				ExpiresOn:     receivedAt.Add(time.Minute),
				ExtExpiresOn:  receivedAt.Add(2 * time.Minute),
			},
		},
	}

	for _, test := range tests {
		got, err := NewTokenResponse([]byte(test.body), test.scopes, receivedAt)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNewTokenResponse(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestNewTokenResponse(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestNewTokenResponse(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}
