// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	stdJSON "encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/json"
	"github.com/kylelemons/godebug/pretty"
)

func populated(t *testing.T, n int) *Accessor {
	t.Helper()
	a := NewAccessor(nil)
	for i := 0; i < n; i++ {
		hid := fmt.Sprintf("uid%d.utid", i)
		entities := []Entity{
			AccessToken{
				HomeAccountID:  hid,
				Environment:    env,
				Realm:          realm,
				CredentialType: CredentialTypeAccessToken,
				ClientID:       clientID,
				Secret:         fmt.Sprintf("at%d", i),
				Scopes:         scopes,
				CachedAt:       unix(cachedAt),
				ExpiresOn:      unix(expiresOn),
			},
			// Only the required fields.
			AccessToken{Environment: env, ClientID: clientID, Secret: fmt.Sprintf("app%d", i), Scopes: fmt.Sprintf("s%d/.default", i)},
			RefreshToken{HomeAccountID: hid, Environment: env, CredentialType: CredentialTypeRefreshToken, ClientID: clientID, Secret: fmt.Sprintf("rt%d", i)},
			IDToken{HomeAccountID: hid, Environment: env, Realm: realm, CredentialType: CredentialTypeIDToken, ClientID: clientID, Secret: fmt.Sprintf("id%d", i)},
			Account{
				HomeAccountID:     hid,
				Environment:       env,
				Realm:             realm,
				PreferredUsername: fmt.Sprintf("user%d", i),
				AdditionalFields:  map[string]interface{}{"future_field": json.MarshalRaw(i)},
			},
			AppMetaData{Environment: env, ClientID: fmt.Sprintf("client%d", i), FamilyID: "1"},
		}
		for _, e := range entities {
			if err := a.Insert(e); err != nil {
				t.Fatalf("Insert(%v): %s", e, err)
			}
		}
	}
	return a
}

func contents(a *Accessor) map[string][]Entity {
	m := map[string][]Entity{}
	for _, k := range Kinds {
		m[k.String()] = a.All(k)
	}
	return m
}

func TestSerializeRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		want := populated(t, n)
		b, err := Serialize(want)
		if err != nil {
			t.Fatalf("TestSerializeRoundTrip(%d): Serialize() err == %s", n, err)
		}

		got := NewAccessor(nil)
		report, err := Deserialize(b, got)
		if err != nil {
			t.Fatalf("TestSerializeRoundTrip(%d): Deserialize() err == %s", n, err)
		}
		if !report.Empty() {
			t.Errorf("TestSerializeRoundTrip(%d): got report %+v, want empty", n, report)
		}
		if diff := pretty.Compare(contents(want), contents(got)); diff != "" {
			t.Errorf("TestSerializeRoundTrip(%d): -want/+got:\n%s", n, diff)
		}

		again, err := Serialize(got)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(b) {
			t.Errorf("TestSerializeRoundTrip(%d): second serialization differs:\n%s\n%s", n, b, again)
		}
	}
}

func TestSerializeLayout(t *testing.T) {
	a := NewAccessor(nil)
	at, err := NewAccessToken("uid.utid", "login.microsoftonline.com", "t1", "abc", cachedAt, expiresOn, expiresOn, "User.Read", "tok1", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Insert(at); err != nil {
		t.Fatal(err)
	}
	b, err := Serialize(a)
	if err != nil {
		t.Fatal(err)
	}

	doc := map[string]map[string]map[string]interface{}{}
	if err := stdJSON.Unmarshal(b, &doc); err != nil {
		t.Fatalf("TestSerializeLayout: output is not a document of sections: %s", err)
	}
	for _, section := range []string{"AccessToken", "RefreshToken", "IdToken", "Account", "AppMetadata"} {
		if _, ok := doc[section]; !ok {
			t.Errorf("TestSerializeLayout: section %s missing", section)
		}
	}
	want := map[string]interface{}{
		"home_account_id":     "uid.utid",
		"environment":         "login.microsoftonline.com",
		"realm":               "t1",
		"credential_type":     "AccessToken",
		"client_id":           "abc",
		"secret":              "tok1",
		"target":              "User.Read",
		"cached_at":           fmt.Sprint(cachedAt.Unix()),
		"expires_on":          fmt.Sprint(expiresOn.Unix()),
		"extended_expires_on": fmt.Sprint(expiresOn.Unix()),
	}
	got := doc["AccessToken"]["uid.utid-login.microsoftonline.com-AccessToken-abc-t1-User.Read"]
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestSerializeLayout: -want/+got:\n%s", diff)
	}
}

func TestDeserializeIsolatesMalformedEntities(t *testing.T) {
	doc := `{
		"AccessToken": {
			"k1": {"environment": "env", "client_id": "cid", "secret": "one", "target": "a"},
			"k2": {"environment": "env", "client_id": 42, "secret": "two", "target": "b"},
			"k3": {"environment": "env", "client_id": "cid", "secret": "three", "target": "c"},
			"k4": "not an entity",
			"k5": {"environment": "env", "secret": "no client id"}
		},
		"RefreshToken": [1, 2, 3],
		"Account": {
			"uid.utid-env": {"home_account_id": "uid.utid", "environment": "env"}
		}
	}`

	a := NewAccessor(nil)
	report, err := Deserialize([]byte(doc), a)
	if err != nil {
		t.Fatalf("TestDeserializeIsolatesMalformedEntities: got err == %s, want err == nil", err)
	}

	var secrets []string
	for _, at := range a.AccessTokens() {
		secrets = append(secrets, at.Secret)
	}
	if diff := pretty.Compare([]string{"one", "three"}, secrets); diff != "" {
		t.Errorf("TestDeserializeIsolatesMalformedEntities(secrets): -want/+got:\n%s", diff)
	}
	if _, ok := a.FindAccount("uid.utid", "env"); !ok {
		t.Errorf("TestDeserializeIsolatesMalformedEntities: account was lost")
	}

	var skippedKeys []string
	for _, s := range report.Skipped {
		skippedKeys = append(skippedKeys, s.Key)
	}
	if diff := pretty.Compare([]string{"k2", "k4", "k5"}, skippedKeys); diff != "" {
		t.Errorf("TestDeserializeIsolatesMalformedEntities(skipped): -want/+got:\n%s", diff)
	}
	if !errors.Is(report.Skipped[2].Err, errs.ErrInvalidEntity) {
		t.Errorf("TestDeserializeIsolatesMalformedEntities: k5 err == %v, want ErrInvalidEntity", report.Skipped[2].Err)
	}
	if diff := pretty.Compare([]string{"RefreshToken"}, report.SkippedSections); diff != "" {
		t.Errorf("TestDeserializeIsolatesMalformedEntities(sections): -want/+got:\n%s", diff)
	}
}

func TestDeserializeEdgeCases(t *testing.T) {
	tests := []struct {
		desc    string
		in      string
		corrupt bool
	}{
		{desc: "empty", in: ""},
		{desc: "whitespace", in: "  \n"},
		{desc: "null", in: "null"},
		{desc: "array", in: `[{"AccessToken": {}}]`},
		{desc: "string", in: `"cache"`},
		{desc: "truncated", in: `{"AccessToken": {"k": {"secret": "x"`, corrupt: true},
		{desc: "binary", in: "\x00\x01garbage", corrupt: true},
	}

	for _, test := range tests {
		a := populated(t, 1)
		a.OnChange(func() { t.Errorf("TestDeserializeEdgeCases(%s): OnChange called", test.desc) })

		_, err := Deserialize([]byte(test.in), a)
		switch {
		case test.corrupt && !errors.Is(err, errs.ErrCorruptCache):
			t.Errorf("TestDeserializeEdgeCases(%s): got err == %v, want ErrCorruptCache", test.desc, err)
		case !test.corrupt && err != nil:
			t.Errorf("TestDeserializeEdgeCases(%s): got err == %s, want err == nil", test.desc, err)
		}
		if test.corrupt {
			var cce *errs.CorruptCacheError
			if !errors.As(err, &cce) || cce.Format != FormatCurrent || cce.Size != len(test.in) {
				t.Errorf("TestDeserializeEdgeCases(%s): got %#v, want CorruptCacheError for current format", test.desc, err)
			}
		}
		for _, k := range Kinds {
			if n := a.Len(k); n != 0 {
				t.Errorf("TestDeserializeEdgeCases(%s): %d %s entities remain, want an empty cache", test.desc, n, k)
			}
		}
	}
}

func TestDeserializeRekeysAndPreservesUnknownSections(t *testing.T) {
	doc := `{
		"AccessToken": {
			"whatever": {"home_account_id": "hid", "environment": "env", "client_id": "cid", "realm": "r", "target": "a b", "secret": "s", "token_type": "pop"}
		},
		"FutureSection": {"x": {"y": 1}},
		"Version": 3
	}`
	a := NewAccessor(nil)
	if _, err := Deserialize([]byte(doc), a); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.AccessToken("hid-env-AccessToken-cid-r-a b-pop"); !ok {
		t.Errorf("TestDeserializeRekeysAndPreservesUnknownSections: entity not stored under its canonical key")
	}

	b, err := Serialize(a)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"FutureSection":{"x":{"y":1}}`, `"Version":3`, `"hid-env-AccessToken-cid-r-a b-pop"`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("TestDeserializeRekeysAndPreservesUnknownSections: output %s does not contain %s", b, want)
		}
	}
}
