// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package legacy

import (
	stdJSON "encoding/json"
	"strings"
)

// Cache is a legacy document as an older client sees it. It answers the lookups such a
// client makes.
type Cache struct {
	AccessTokens  []AccessTokenRecord
	RefreshTokens []RefreshTokenRecord
	IDTokens      []IDTokenRecord
	Accounts      []AccountRecord
}

// Decode parses a legacy document. Records that cannot be parsed are left out.
func Decode(data []byte) (*Cache, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	c := &Cache{}
	for _, section := range sections {
		var elems []stdJSON.RawMessage
		if err := stdJSON.Unmarshal(doc[section], &elems); err != nil {
			continue
		}
		for _, elem := range elems {
			rec, _, err := decodeRecord(section, elem)
			if err != nil {
				continue
			}
			switch r := rec.(type) {
			case AccessTokenRecord:
				c.AccessTokens = append(c.AccessTokens, r)
			case RefreshTokenRecord:
				c.RefreshTokens = append(c.RefreshTokens, r)
			case IDTokenRecord:
				c.IDTokens = append(c.IDTokens, r)
			case AccountRecord:
				c.Accounts = append(c.Accounts, r)
			}
		}
	}
	return c, nil
}

// hasScopes reports whether the space separated have holds every scope in want.
func hasScopes(want []string, have string) bool {
	fields := strings.Fields(have)
	for _, w := range want {
		found := false
		for _, h := range fields {
			if strings.EqualFold(w, h) {
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

// FindAccessToken returns an access token for the account, client and tenant that covers scopes.
func (c *Cache) FindAccessToken(homeAccountID, env, clientID, tenantID string, scopes []string) (AccessTokenRecord, bool) {
	for _, r := range c.AccessTokens {
		if r.HomeAccountID == homeAccountID && r.Environment == env && r.ClientID == clientID &&
			r.TenantID == tenantID && hasScopes(scopes, r.Scopes) {
			return r, true
		}
	}
	return AccessTokenRecord{}, false
}

// FindRefreshToken returns the client's refresh token for the account.
func (c *Cache) FindRefreshToken(homeAccountID, env, clientID string) (RefreshTokenRecord, bool) {
	for _, r := range c.RefreshTokens {
		if r.HomeAccountID == homeAccountID && r.Environment == env && r.ClientID == clientID {
			return r, true
		}
	}
	return RefreshTokenRecord{}, false
}

// FindIDToken returns the client's id token for the account and tenant.
func (c *Cache) FindIDToken(homeAccountID, env, clientID, tenantID string) (IDTokenRecord, bool) {
	for _, r := range c.IDTokens {
		if r.HomeAccountID == homeAccountID && r.Environment == env && r.ClientID == clientID && r.TenantID == tenantID {
			return r, true
		}
	}
	return IDTokenRecord{}, false
}

// FindAccount returns the account.
func (c *Cache) FindAccount(homeAccountID, env string) (AccountRecord, bool) {
	for _, r := range c.Accounts {
		if r.HomeAccountID == homeAccountID && r.Environment == env {
			return r, true
		}
	}
	return AccountRecord{}, false
}
