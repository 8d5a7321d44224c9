// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	stdJSON "encoding/json"
	"errors"
	"testing"
	"time"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/json"
	internalTime "github.com/AzureAD/msal-go-token-cache/apps/internal/json/types/time"
	"github.com/kylelemons/godebug/pretty"
)

func TestNewAccessToken(t *testing.T) {
	// Sub-second precision is dropped, as a serialized cache would drop it.
	got, err := NewAccessToken(testHID, env, realm, clientID, cachedAt.Add(300*time.Millisecond), expiresOn, extExpiresOn, scopes, secret, "")
	if err != nil {
		t.Fatalf("TestNewAccessToken: got err == %s, want err == nil", err)
	}
	want := AccessToken{
		HomeAccountID:     testHID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    CredentialTypeAccessToken,
		ClientID:          clientID,
		Secret:            secret,
		Scopes:            scopes,
		CachedAt:          internalTime.Unix{T: cachedAt},
		ExpiresOn:         internalTime.Unix{T: expiresOn},
		ExtendedExpiresOn: internalTime.Unix{T: extExpiresOn},
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestNewAccessToken: -want/+got:\n%s", diff)
	}
}

func TestConstructorsRejectMissingFields(t *testing.T) {
	tests := []struct {
		desc  string
		err   error
		field string
	}{
		{
			desc:  "access token without client id",
			err:   func() error { _, err := NewAccessToken(testHID, env, realm, "", cachedAt, expiresOn, extExpiresOn, scopes, secret, ""); return err }(),
			field: "client_id",
		},
		{
			desc:  "access token without environment",
			err:   func() error { _, err := NewAccessToken(testHID, "", realm, clientID, cachedAt, expiresOn, extExpiresOn, scopes, secret, ""); return err }(),
			field: "environment",
		},
		{
			desc:  "refresh token without secret",
			err:   func() error { _, err := NewRefreshToken(testHID, env, clientID, "", ""); return err }(),
			field: "secret",
		},
		{
			desc:  "id token without client id",
			err:   func() error { _, err := NewIDToken(testHID, env, realm, "", "jwt"); return err }(),
			field: "client_id",
		},
		{
			desc:  "account without home account id",
			err:   func() error { _, err := NewAccount("", env, realm, "oid", "MSSTS", "user"); return err }(),
			field: "home_account_id",
		},
		{
			desc:  "app metadata without environment",
			err:   func() error { _, err := NewAppMetaData("", clientID, ""); return err }(),
			field: "environment",
		},
	}

	for _, test := range tests {
		if !errors.Is(test.err, errs.ErrInvalidEntity) {
			t.Errorf("TestConstructorsRejectMissingFields(%s): got err == %v, want ErrInvalidEntity", test.desc, test.err)
			continue
		}
		var iee errs.InvalidEntityError
		if !errors.As(test.err, &iee) || iee.Field != test.field {
			t.Errorf("TestConstructorsRejectMissingFields(%s): got %v, want missing field %q", test.desc, test.err, test.field)
		}
	}
}

func TestAccessTokenUnmarshal(t *testing.T) {
	jsonMap := map[string]interface{}{
		"home_account_id": "testHID",
		"environment":     "env",
		"extra":           "this_is_extra",
		"cached_at":       "100",
	}
	jsonData, err := stdJSON.Marshal(jsonMap)
	if err != nil {
		panic(err)
	}

	want := AccessToken{
		HomeAccountID: testHID,
		Environment:   env,
		CachedAt:      internalTime.Unix{T: time.Unix(100, 0).UTC()},
		AdditionalFields: map[string]interface{}{
			"extra": json.MarshalRaw("this_is_extra"),
		},
	}
	got := AccessToken{}
	if err := json.Unmarshal(jsonData, &got); err != nil {
		t.Errorf("Error is supposed to be nil, but it is %v", err)
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestAccessTokenUnmarshal(access tokens): -want/+got:\n %s", diff)
	}
}

func TestAccessTokenMarshal(t *testing.T) {
	accessToken := AccessToken{
		HomeAccountID:  testHID,
		CachedAt:       internalTime.Unix{T: time.Unix(100, 0).UTC()},
		CredentialType: CredentialTypeAccessToken,
		TokenType:      "pop",
		AdditionalFields: map[string]interface{}{
			"extra": json.MarshalRaw("this_is_extra"),
		},
	}
	b, err := json.Marshal(accessToken)
	if err != nil {
		t.Fatalf("TestAccessTokenMarshal: unable to marshal: %s", err)
	}

	wantFields := map[string]interface{}{
		"home_account_id": testHID,
		"cached_at":       "100",
		"credential_type": "AccessToken",
		"token_type":      "pop",
		"extra":           "this_is_extra",
	}
	gotFields := map[string]interface{}{}
	if err := stdJSON.Unmarshal(b, &gotFields); err != nil {
		t.Fatalf("TestAccessTokenMarshal: output is not JSON: %s", err)
	}
	if diff := pretty.Compare(wantFields, gotFields); diff != "" {
		t.Errorf("TestAccessTokenMarshal(fields): -want/+got:\n%s", diff)
	}

	got := AccessToken{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("TestAccessTokenMarshal: unable to take JSON byte output and unmarshal: %s", err)
	}
	if diff := pretty.Compare(accessToken, got); diff != "" {
		t.Errorf("TestAccessTokenMarshal(round trip): -want/+got:\n%s", diff)
	}
}

func TestAppMetaDataUnmarshal(t *testing.T) {
	jsonMap := map[string]interface{}{
		"environment": "env",
		"extra":       "this_is_extra",
		"cached_at":   "100",
		"client_id":   "cid",
		"family_id":   nil,
	}
	want := AppMetaData{
		ClientID:    "cid",
		Environment: "env",
		AdditionalFields: map[string]interface{}{
			"extra":     json.MarshalRaw("this_is_extra"),
			"cached_at": json.MarshalRaw("100"),
		},
	}

	b, err := stdJSON.Marshal(jsonMap)
	if err != nil {
		panic(err)
	}
	got := AppMetaData{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("TestAppMetaDataUnmarshal(unmarshal): got err == %s, want err == nil", err)
	}

	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("TestAppMetaDataUnmarshal: -want/+got:\n%s", diff)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	at := AccessToken{ExpiresOn: internalTime.Unix{T: expiresOn}}

	if at.Expired(expiresOn.Add(-10*time.Minute), 5*time.Minute) {
		t.Errorf("TestAccessTokenExpired: token expiring in 10m reported expired with 5m skew")
	}
	if !at.Expired(expiresOn.Add(-time.Minute), 5*time.Minute) {
		t.Errorf("TestAccessTokenExpired: token expiring in 1m not reported expired with 5m skew")
	}
}

func TestValueDereferences(t *testing.T) {
	at := &AccessToken{Environment: env, ClientID: clientID, Secret: secret}
	if _, ok := value(at).(AccessToken); !ok {
		t.Errorf("TestValueDereferences: value(*AccessToken) is %T, want AccessToken", value(at))
	}
	var nilAT *AccessToken
	if value(nilAT) != nil {
		t.Errorf("TestValueDereferences: value(nil pointer) is not nil")
	}
}
