// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"strings"
)

// KeySeparator joins the segments of a cache key. Every MSAL implementation that shares a
// cache uses the same separator, so it cannot change.
const KeySeparator = "-"

// Credential types as they appear in the credential_type field and in cache keys.
const (
	CredentialTypeAccessToken  = "AccessToken"
	CredentialTypeRefreshToken = "RefreshToken"
	CredentialTypeIDToken      = "IdToken"
	credentialTypeAppMetaData  = "AppMetaData"
)

// CacheKey is the ordered tuple that identifies a cache entity. The segment order is fixed:
// homeAccountId, environment, credentialType, clientId, realm, target and, for access tokens
// of some token types, scheme. Changing the order orphans every persisted cache.
//
// Segments are not escaped, so distinct tuples can render the same key when a segment
// contains KeySeparator. For example a Bearer token for target "a-pop" and a pop token for
// target "a" share a key, and the later insert replaces the earlier one. Other MSAL
// libraries read and write these keys, so the format keeps this ambiguity.
type CacheKey struct {
	HomeAccountID  string
	Environment    string
	CredentialType string
	ClientID       string
	Realm          string
	Target         string
	Scheme         string
}

// IsAccount reports whether k identifies an Account, which carries no credential segments.
func (k CacheKey) IsAccount() bool {
	return k.CredentialType == ""
}

// Split renders the key for stores that keep an "account" and a "service" attribute
// separately. Account keys have an empty service.
func (k CacheKey) Split() (account, service string) {
	if k.CredentialType == credentialTypeAppMetaData {
		return k.CredentialType + KeySeparator + k.Environment, k.ClientID
	}

	account = k.HomeAccountID + KeySeparator + k.Environment
	if k.IsAccount() {
		return account, ""
	}

	segments := []string{k.CredentialType, k.ClientID, k.Realm, k.Target}
	if k.Scheme != "" {
		segments = append(segments, k.Scheme)
	}
	return account, strings.Join(segments, KeySeparator)
}

// String renders the generic key. It is always the split key's account and service joined
// by KeySeparator.
func (k CacheKey) String() string {
	account, service := k.Split()
	if service == "" {
		return account
	}
	return account + KeySeparator + service
}

// accessTokenScheme returns the scheme segment for an access token of tokenType. Bearer and
// SSH certificate tokens have none, as they did before token types were keyed.
func accessTokenScheme(tokenType string) string {
	switch t := strings.ToLower(tokenType); t {
	case "", "bearer", "ssh-cert":
		return ""
	default:
		return t
	}
}
