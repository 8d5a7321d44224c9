// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"time"

	"github.com/AzureAD/msal-go-token-cache/apps/internal/accesstokens"
	"github.com/AzureAD/msal-go-token-cache/apps/internal/storage"
)

// Entity is one record of the cache: an AccessToken, RefreshToken, IDToken, Account or
// AppMetaData.
type Entity = storage.Entity

// Kind names the kind of an Entity.
type Kind = storage.Kind

// Entity kinds.
const (
	KindAccessToken  = storage.KindAccessToken
	KindRefreshToken = storage.KindRefreshToken
	KindIDToken      = storage.KindIDToken
	KindAccount      = storage.KindAccount
	KindAppMetaData  = storage.KindAppMetaData
)

type (
	// AccessToken is a cached access token.
	AccessToken = storage.AccessToken
	// RefreshToken is a cached refresh token.
	RefreshToken = storage.RefreshToken
	// IDToken is a cached OpenID Connect id token.
	IDToken = storage.IDToken
	// Account is a signed in identity.
	Account = storage.Account
	// AppMetaData records a client's membership of a refresh token family.
	AppMetaData = storage.AppMetaData
	// CacheKey is the ordered tuple that identifies an Entity.
	CacheKey = storage.CacheKey
	// AuthParams identifies where a token response came from.
	AuthParams = storage.AuthParams
	// TokenResponse is a token endpoint response in the form the cache stores.
	TokenResponse = accesstokens.TokenResponse
	// ClientInfo is the decoded client_info of a token response.
	ClientInfo = accesstokens.ClientInfo
	// IDTokenClaims are the claims of a token response's id token the cache uses.
	IDTokenClaims = accesstokens.IDToken
)

// NewAccessToken creates an access token. It returns an error wrapping errors.ErrInvalidEntity
// if env, clientID or token is empty.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, token, tokenType string) (AccessToken, error) {
	return storage.NewAccessToken(homeID, env, realm, clientID, cachedAt, expiresOn, extendedExpiresOn, scopes, token, tokenType)
}

// NewRefreshToken creates a refresh token.
func NewRefreshToken(homeID, env, clientID, refreshToken, familyID string) (RefreshToken, error) {
	return storage.NewRefreshToken(homeID, env, clientID, refreshToken, familyID)
}

// NewIDToken creates an id token.
func NewIDToken(homeID, env, realm, clientID, idToken string) (IDToken, error) {
	return storage.NewIDToken(homeID, env, realm, clientID, idToken)
}

// NewAccount creates an account.
func NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username string) (Account, error) {
	return storage.NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username)
}

// NewAppMetaData creates app metadata.
func NewAppMetaData(familyID, clientID, environment string) (AppMetaData, error) {
	return storage.NewAppMetaData(familyID, clientID, environment)
}

// NewTokenResponse decodes the body of a successful token endpoint response received at
// receivedAt. requestedScopes stand in for the granted scopes when the server omits them.
func NewTokenResponse(body []byte, requestedScopes []string, receivedAt time.Time) (TokenResponse, error) {
	return accesstokens.NewTokenResponse(body, requestedScopes, receivedAt)
}
