// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"strings"
)

const scopeSeparator = " "

// isMatchingScopes reports whether every scope in want is in the space separated target.
// Scopes compare case insensitively.
func isMatchingScopes(want []string, target string) bool {
	have := strings.Split(target, scopeSeparator)
	for _, scope := range want {
		found := false
		for _, other := range have {
			if strings.EqualFold(scope, other) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FindAccessToken returns an access token for the account, client and tenant whose target
// contains every scope in scopes and whose token type matches tokenType.
func (a *Accessor) FindAccessToken(homeID, env, realm, clientID string, scopes []string, tokenType string) (AccessToken, bool) {
	scheme := accessTokenScheme(tokenType)
	// Linear search; a cache is scoped to one client and rarely holds more than a few tokens.
	for _, at := range a.AccessTokens() {
		if at.HomeAccountID == homeID && at.Environment == env && at.Realm == realm && at.ClientID == clientID &&
			accessTokenScheme(at.TokenType) == scheme && isMatchingScopes(scopes, at.Scopes) {
			return at, true
		}
	}
	return AccessToken{}, false
}

// FindRefreshToken returns a refresh token the client can redeem for the account. If the
// client's app metadata says it belongs to a family, family refresh tokens are preferred
// over the client's own; otherwise the client's own come first.
func (a *Accessor) FindRefreshToken(homeID, env, clientID string) (RefreshToken, bool) {
	familyID := ""
	if amd, ok := a.AppMetaData(AppMetaData{Environment: env, ClientID: clientID}.Key().String()); ok {
		familyID = amd.FamilyID
	}

	byFamily := func(rt RefreshToken) bool {
		return rt.HomeAccountID == homeID && rt.Environment == env && rt.FamilyID != ""
	}
	byClient := func(rt RefreshToken) bool {
		return rt.HomeAccountID == homeID && rt.Environment == env && rt.ClientID == clientID
	}

	matchers := []func(RefreshToken) bool{byClient, byFamily}
	if familyID != "" {
		matchers = []func(RefreshToken) bool{byFamily, byClient}
	}

	rts := a.RefreshTokens()
	for _, matcher := range matchers {
		for _, rt := range rts {
			if matcher(rt) {
				return rt, true
			}
		}
	}
	return RefreshToken{}, false
}

// FindIDToken returns the id token for the account, client and tenant.
func (a *Accessor) FindIDToken(homeID, env, realm, clientID string) (IDToken, bool) {
	return a.IDToken(IDToken{HomeAccountID: homeID, Environment: env, Realm: realm, ClientID: clientID}.Key().String())
}

// FindAccount returns the account with the home account id in env.
func (a *Accessor) FindAccount(homeID, env string) (Account, bool) {
	return a.Account(Account{HomeAccountID: homeID, Environment: env}.Key().String())
}

// RemoveAccountData signs the account out of the client: its access tokens, id tokens and
// refresh tokens for clientID are removed, as are family refresh tokens of the client's
// family. The account record itself is removed once no credential of any client refers to
// it. It returns the number of entities removed.
func (a *Accessor) RemoveAccountData(homeID, env, clientID string) int {
	familyID := ""
	if amd, ok := a.AppMetaData(AppMetaData{Environment: env, ClientID: clientID}.Key().String()); ok {
		familyID = amd.FamilyID
	}
	owned := func(hid, e string) bool { return hid == homeID && e == env }

	removed := 0
	for _, at := range a.AccessTokens() {
		if owned(at.HomeAccountID, at.Environment) && at.ClientID == clientID {
			if a.Remove(KindAccessToken, at.Key().String()) {
				removed++
			}
		}
	}
	for _, id := range a.IDTokens() {
		if owned(id.HomeAccountID, id.Environment) && id.ClientID == clientID {
			if a.Remove(KindIDToken, id.Key().String()) {
				removed++
			}
		}
	}
	for _, rt := range a.RefreshTokens() {
		if !owned(rt.HomeAccountID, rt.Environment) {
			continue
		}
		if rt.ClientID == clientID || (familyID != "" && rt.FamilyID == familyID) {
			if a.Remove(KindRefreshToken, rt.Key().String()) {
				removed++
			}
		}
	}

	if !a.hasCredentials(homeID, env) {
		if a.Remove(KindAccount, Account{HomeAccountID: homeID, Environment: env}.Key().String()) {
			removed++
		}
	}
	return removed
}

func (a *Accessor) hasCredentials(homeID, env string) bool {
	for _, kind := range []Kind{KindAccessToken, KindRefreshToken, KindIDToken} {
		for _, e := range a.All(kind) {
			k := e.Key()
			if k.HomeAccountID == homeID && k.Environment == env {
				return true
			}
		}
	}
	return false
}
