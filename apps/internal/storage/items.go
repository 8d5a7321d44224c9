// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"fmt"
	"time"

	errs "github.com/AzureAD/msal-go-token-cache/apps/errors"
	internalTime "github.com/AzureAD/msal-go-token-cache/apps/internal/json/types/time"
)

// Kind names the kind of a cache entity.
type Kind int

const (
	KindAccessToken Kind = iota + 1
	KindRefreshToken
	KindIDToken
	KindAccount
	KindAppMetaData
)

// Kinds lists every entity kind in the order sections are written.
var Kinds = []Kind{KindAccessToken, KindRefreshToken, KindIDToken, KindAccount, KindAppMetaData}

// String returns the name of the kind, which is also its section name in the serialized cache.
func (k Kind) String() string {
	switch k {
	case KindAccessToken:
		return "AccessToken"
	case KindRefreshToken:
		return "RefreshToken"
	case KindIDToken:
		return "IdToken"
	case KindAccount:
		return "Account"
	case KindAppMetaData:
		return "AppMetadata"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Entity is one record of the cache. It is implemented only by the types in this package.
type Entity interface {
	// Key returns the canonical key of the entity.
	Key() CacheKey
	// Kind returns the kind of the entity.
	Kind() Kind
	// Validate returns an error wrapping errors.ErrInvalidEntity if a required field is missing.
	Validate() error

	entity()
}

func required(kind Kind, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return errs.InvalidEntityError{Kind: kind.String(), Field: pairs[i]}
		}
	}
	return nil
}

// unix truncates t to whole seconds in UTC, the precision every MSAL cache stores.
func unix(t time.Time) internalTime.Unix {
	if t.IsZero() {
		return internalTime.Unix{}
	}
	return internalTime.Unix{T: time.Unix(t.Unix(), 0).UTC()}
}

// AccessToken is the JSON representation of a MSAL access token for encoding to storage.
type AccessToken struct {
	HomeAccountID     string            `json:"home_account_id,omitempty"`
	Environment       string            `json:"environment,omitempty"`
	Realm             string            `json:"realm,omitempty"`
	CredentialType    string            `json:"credential_type,omitempty"`
	ClientID          string            `json:"client_id,omitempty"`
	Secret            string            `json:"secret,omitempty"`
	Scopes            string            `json:"target,omitempty"`
	TokenType         string            `json:"token_type,omitempty"`
	CachedAt          internalTime.Unix `json:"cached_at,omitempty"`
	ExpiresOn         internalTime.Unix `json:"expires_on,omitempty"`
	ExtendedExpiresOn internalTime.Unix `json:"extended_expires_on,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAccessToken is the constructor for AccessToken. scopes is the space separated target in
// the order it was requested.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, token, tokenType string) (AccessToken, error) {
	at := AccessToken{
		HomeAccountID:     homeID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    CredentialTypeAccessToken,
		ClientID:          clientID,
		Secret:            token,
		Scopes:            scopes,
		TokenType:         tokenType,
		CachedAt:          unix(cachedAt),
		ExpiresOn:         unix(expiresOn),
		ExtendedExpiresOn: unix(extendedExpiresOn),
	}
	if err := at.Validate(); err != nil {
		return AccessToken{}, err
	}
	return at, nil
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AccessToken) Key() CacheKey {
	return CacheKey{
		HomeAccountID:  a.HomeAccountID,
		Environment:    a.Environment,
		CredentialType: CredentialTypeAccessToken,
		ClientID:       a.ClientID,
		Realm:          a.Realm,
		Target:         a.Scopes,
		Scheme:         accessTokenScheme(a.TokenType),
	}
}

// Kind implements Entity.
func (AccessToken) Kind() Kind { return KindAccessToken }

// Validate implements Entity.
func (a AccessToken) Validate() error {
	return required(KindAccessToken, "environment", a.Environment, "client_id", a.ClientID, "secret", a.Secret)
}

// Expired reports whether the token expires within skew of now. The cache never deletes
// expired tokens; callers decide what to do with them.
func (a AccessToken) Expired(now time.Time, skew time.Duration) bool {
	return !a.ExpiresOn.T.After(now.Add(skew))
}

func (AccessToken) entity() {}

// RefreshToken is the JSON representation of a MSAL refresh token for encoding to storage.
type RefreshToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	FamilyID       string `json:"family_id,omitempty"`
	Secret         string `json:"secret,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewRefreshToken is the constructor for RefreshToken.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) (RefreshToken, error) {
	rt := RefreshToken{
		HomeAccountID:  homeID,
		Environment:    env,
		CredentialType: CredentialTypeRefreshToken,
		ClientID:       clientID,
		FamilyID:       familyID,
		Secret:         refreshToken,
	}
	if err := rt.Validate(); err != nil {
		return RefreshToken{}, err
	}
	return rt, nil
}

// Key outputs the key that can be used to uniquely look up this entry in a map. Refresh
// tokens shared by a family are keyed by the family id instead of the client id.
func (rt RefreshToken) Key() CacheKey {
	clientID := rt.ClientID
	if rt.FamilyID != "" {
		clientID = rt.FamilyID
	}
	return CacheKey{
		HomeAccountID:  rt.HomeAccountID,
		Environment:    rt.Environment,
		CredentialType: CredentialTypeRefreshToken,
		ClientID:       clientID,
	}
}

// Kind implements Entity.
func (RefreshToken) Kind() Kind { return KindRefreshToken }

// Validate implements Entity.
func (rt RefreshToken) Validate() error {
	return required(KindRefreshToken, "environment", rt.Environment, "client_id", rt.ClientID, "secret", rt.Secret)
}

func (RefreshToken) entity() {}

// IDToken is the JSON representation of an MSAL id token for encoding to storage.
type IDToken struct {
	HomeAccountID  string `json:"home_account_id,omitempty"`
	Environment    string `json:"environment,omitempty"`
	Realm          string `json:"realm,omitempty"`
	CredentialType string `json:"credential_type,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	Secret         string `json:"secret,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) (IDToken, error) {
	id := IDToken{
		HomeAccountID:  homeID,
		Environment:    env,
		Realm:          realm,
		CredentialType: CredentialTypeIDToken,
		ClientID:       clientID,
		Secret:         idToken,
	}
	if err := id.Validate(); err != nil {
		return IDToken{}, err
	}
	return id, nil
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (id IDToken) Key() CacheKey {
	return CacheKey{
		HomeAccountID:  id.HomeAccountID,
		Environment:    id.Environment,
		CredentialType: CredentialTypeIDToken,
		ClientID:       id.ClientID,
		Realm:          id.Realm,
	}
}

// Kind implements Entity.
func (IDToken) Kind() Kind { return KindIDToken }

// Validate implements Entity.
func (id IDToken) Validate() error {
	return required(KindIDToken, "environment", id.Environment, "client_id", id.ClientID, "secret", id.Secret)
}

func (IDToken) entity() {}

// Account is the JSON representation of a signed in identity. One account record serves
// every client and tenant.
type Account struct {
	HomeAccountID     string `json:"home_account_id,omitempty"`
	Environment       string `json:"environment,omitempty"`
	Realm             string `json:"realm,omitempty"`
	LocalAccountID    string `json:"local_account_id,omitempty"`
	PreferredUsername string `json:"username,omitempty"`
	AuthorityType     string `json:"authority_type,omitempty"`
	Name              string `json:"name,omitempty"`
	RawClientInfo     string `json:"client_info,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAccount creates an account.
func NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username string) (Account, error) {
	acc := Account{
		HomeAccountID:     homeAccountID,
		Environment:       env,
		Realm:             realm,
		LocalAccountID:    localAccountID,
		AuthorityType:     authorityType,
		PreferredUsername: username,
	}
	if err := acc.Validate(); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (acc Account) Key() CacheKey {
	return CacheKey{HomeAccountID: acc.HomeAccountID, Environment: acc.Environment}
}

// Kind implements Entity.
func (Account) Kind() Kind { return KindAccount }

// Validate implements Entity.
func (acc Account) Validate() error {
	return required(KindAccount, "home_account_id", acc.HomeAccountID, "environment", acc.Environment)
}

// IsZero checks the zero value of account.
func (acc Account) IsZero() bool {
	return acc.HomeAccountID == "" && acc.Environment == "" && acc.Realm == "" &&
		acc.LocalAccountID == "" && acc.PreferredUsername == "" && acc.AuthorityType == "" &&
		acc.Name == "" && acc.RawClientInfo == "" && acc.AdditionalFields == nil
}

func (Account) entity() {}

// AppMetaData is the JSON representation of application metadata for encoding to storage.
// It records whether a client belongs to a family that shares refresh tokens.
type AppMetaData struct {
	FamilyID    string `json:"family_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Environment string `json:"environment,omitempty"`

	AdditionalFields map[string]interface{}
}

// NewAppMetaData is the constructor for AppMetaData.
func NewAppMetaData(familyID, clientID, environment string) (AppMetaData, error) {
	a := AppMetaData{
		FamilyID:    familyID,
		ClientID:    clientID,
		Environment: environment,
	}
	if err := a.Validate(); err != nil {
		return AppMetaData{}, err
	}
	return a, nil
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AppMetaData) Key() CacheKey {
	return CacheKey{
		Environment:    a.Environment,
		CredentialType: credentialTypeAppMetaData,
		ClientID:       a.ClientID,
	}
}

// Kind implements Entity.
func (AppMetaData) Kind() Kind { return KindAppMetaData }

// Validate implements Entity.
func (a AppMetaData) Validate() error {
	return required(KindAppMetaData, "environment", a.Environment, "client_id", a.ClientID)
}

func (AppMetaData) entity() {}

// value returns e as a value type so entities stored through a pointer compare and
// type assert the same as those stored by value. It returns nil for a nil pointer and for
// any type this package does not define, including types that embed an entity.
func value(e Entity) Entity {
	switch v := e.(type) {
	case AccessToken, RefreshToken, IDToken, Account, AppMetaData:
		return v
	case *AccessToken:
		if v != nil {
			return *v
		}
	case *RefreshToken:
		if v != nil {
			return *v
		}
	case *IDToken:
		if v != nil {
			return *v
		}
	case *Account:
		if v != nil {
			return *v
		}
	case *AppMetaData:
		if v != nil {
			return *v
		}
	}
	return nil
}
