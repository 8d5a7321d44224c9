// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package legacy

import (
	"time"

	internalTime "github.com/AzureAD/msal-go-token-cache/apps/internal/json/types/time"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/storage"
)

// Section names of the legacy document.
const (
	SectionAccessTokens  = "access_tokens"
	SectionRefreshTokens = "refresh_tokens"
	SectionIDTokens      = "id_tokens"
	SectionAccounts      = "accounts"
)

var sections = []string{SectionAccessTokens, SectionRefreshTokens, SectionIDTokens, SectionAccounts}

var sectionKinds = map[string]storage.Kind{
	SectionAccessTokens:  storage.KindAccessToken,
	SectionRefreshTokens: storage.KindRefreshToken,
	SectionIDTokens:      storage.KindIDToken,
	SectionAccounts:      storage.KindAccount,
}

// AccessTokenRecord is an access token as older clients store it.
type AccessTokenRecord struct {
	HomeAccountID     string `json:"homeAccountId,omitempty"`
	Environment       string `json:"environment,omitempty"`
	ClientID          string `json:"clientId,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
	Scopes            string `json:"scopes,omitempty"`
	AccessToken       string `json:"accessToken,omitempty"`
	TokenType         string `json:"tokenType,omitempty"`
	CachedAt          int64  `json:"cachedAt,omitempty"`
	ExpiresOn         int64  `json:"expiresOn,omitempty"`
	ExtendedExpiresOn int64  `json:"extendedExpiresOn,omitempty"`

	AdditionalFields map[string]interface{}
}

// RefreshTokenRecord is a refresh token as older clients store it.
type RefreshTokenRecord struct {
	HomeAccountID string `json:"homeAccountId,omitempty"`
	Environment   string `json:"environment,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	FamilyID      string `json:"familyId,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`

	AdditionalFields map[string]interface{}
}

// IDTokenRecord is an id token as older clients store it.
type IDTokenRecord struct {
	HomeAccountID string `json:"homeAccountId,omitempty"`
	Environment   string `json:"environment,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	IDToken       string `json:"idToken,omitempty"`

	AdditionalFields map[string]interface{}
}

// AccountRecord is an account as older clients store it.
type AccountRecord struct {
	HomeAccountID  string `json:"homeAccountId,omitempty"`
	Environment    string `json:"environment,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
	LocalAccountID string `json:"localAccountId,omitempty"`
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
	AuthorityType  string `json:"authorityType,omitempty"`

	AdditionalFields map[string]interface{}
}

func epoch(u internalTime.Unix) int64 {
	if u.T.IsZero() {
		return 0
	}
	return u.T.Unix()
}

func fromEpoch(s int64) internalTime.Unix {
	if s == 0 {
		return internalTime.Unix{}
	}
	return internalTime.Unix{T: time.Unix(s, 0).UTC()}
}

func (r AccessTokenRecord) entity() storage.Entity {
	return storage.AccessToken{
		HomeAccountID:     r.HomeAccountID,
		Environment:       r.Environment,
		Realm:             r.TenantID,
		CredentialType:    storage.CredentialTypeAccessToken,
		ClientID:          r.ClientID,
		Secret:            r.AccessToken,
		Scopes:            r.Scopes,
		TokenType:         r.TokenType,
		CachedAt:          fromEpoch(r.CachedAt),
		ExpiresOn:         fromEpoch(r.ExpiresOn),
		ExtendedExpiresOn: fromEpoch(r.ExtendedExpiresOn),
	}
}

func (r RefreshTokenRecord) entity() storage.Entity {
	return storage.RefreshToken{
		HomeAccountID:  r.HomeAccountID,
		Environment:    r.Environment,
		CredentialType: storage.CredentialTypeRefreshToken,
		ClientID:       r.ClientID,
		FamilyID:       r.FamilyID,
		Secret:         r.RefreshToken,
	}
}

func (r IDTokenRecord) entity() storage.Entity {
	return storage.IDToken{
		HomeAccountID:  r.HomeAccountID,
		Environment:    r.Environment,
		Realm:          r.TenantID,
		CredentialType: storage.CredentialTypeIDToken,
		ClientID:       r.ClientID,
		Secret:         r.IDToken,
	}
}

func (r AccountRecord) entity() storage.Entity {
	return storage.Account{
		HomeAccountID:     r.HomeAccountID,
		Environment:       r.Environment,
		Realm:             r.TenantID,
		LocalAccountID:    r.LocalAccountID,
		PreferredUsername: r.Username,
		AuthorityType:     r.AuthorityType,
		Name:              r.Name,
	}
}

// record converts e to its legacy record. Kinds without a legacy form return nil.
func record(e storage.Entity) interface{} {
	switch v := e.(type) {
	case storage.AccessToken:
		return AccessTokenRecord{
			HomeAccountID:     v.HomeAccountID,
			Environment:       v.Environment,
			ClientID:          v.ClientID,
			TenantID:          v.Realm,
			Scopes:            v.Scopes,
			AccessToken:       v.Secret,
			TokenType:         v.TokenType,
			CachedAt:          epoch(v.CachedAt),
			ExpiresOn:         epoch(v.ExpiresOn),
			ExtendedExpiresOn: epoch(v.ExtendedExpiresOn),
		}
	case storage.RefreshToken:
		return RefreshTokenRecord{
			HomeAccountID: v.HomeAccountID,
			Environment:   v.Environment,
			ClientID:      v.ClientID,
			FamilyID:      v.FamilyID,
			RefreshToken:  v.Secret,
		}
	case storage.IDToken:
		return IDTokenRecord{
			HomeAccountID: v.HomeAccountID,
			Environment:   v.Environment,
			ClientID:      v.ClientID,
			TenantID:      v.Realm,
			IDToken:       v.Secret,
		}
	case storage.Account:
		return AccountRecord{
			HomeAccountID:  v.HomeAccountID,
			Environment:    v.Environment,
			TenantID:       v.Realm,
			LocalAccountID: v.LocalAccountID,
			Username:       v.PreferredUsername,
			Name:           v.Name,
			AuthorityType:  v.AuthorityType,
		}
	}
	return nil
}

// withoutExtras returns r with AdditionalFields cleared, for comparing records by the
// fields this package understands.
func withoutExtras(r interface{}) interface{} {
	switch v := r.(type) {
	case AccessTokenRecord:
		v.AdditionalFields = nil
		return v
	case RefreshTokenRecord:
		v.AdditionalFields = nil
		return v
	case IDTokenRecord:
		v.AdditionalFields = nil
		return v
	case AccountRecord:
		v.AdditionalFields = nil
		return v
	}
	return r
}

// withExtras returns r carrying extras as its AdditionalFields.
func withExtras(r interface{}, extras map[string]interface{}) interface{} {
	switch v := r.(type) {
	case AccessTokenRecord:
		v.AdditionalFields = extras
		return v
	case RefreshTokenRecord:
		v.AdditionalFields = extras
		return v
	case IDTokenRecord:
		v.AdditionalFields = extras
		return v
	case AccountRecord:
		v.AdditionalFields = extras
		return v
	}
	return r
}

func extrasOf(r interface{}) map[string]interface{} {
	switch v := r.(type) {
	case AccessTokenRecord:
		return v.AdditionalFields
	case RefreshTokenRecord:
		return v.AdditionalFields
	case IDTokenRecord:
		return v.AdditionalFields
	case AccountRecord:
		return v.AdditionalFields
	}
	return nil
}
