// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"

	"github.com/AzureAD/msal-go-token-cache/apps/internal/logger"
)

// TokenQuery selects an access token.
type TokenQuery struct {
	// HomeAccountID is empty for tokens the application acquired for itself.
	HomeAccountID string
	Environment   string
	Realm         string
	// Scopes must all be granted by the token. Matching ignores case.
	Scopes []string
	// TokenType is empty or "Bearer" for bearer tokens.
	TokenType string
}

// Add inserts e, replacing the entity with the same key.
func (c *TokenCache) Add(ctx context.Context, e Entity) error {
	return c.do(ctx, operation{name: "Add", write: true}, func() error {
		return c.accessor.Insert(e)
	})
}

// Get returns the entity of kind with key. A missing key is not an error.
func (c *TokenCache) Get(ctx context.Context, kind Kind, key string) (Entity, bool, error) {
	var (
		e  Entity
		ok bool
	)
	err := c.do(ctx, operation{name: "Get"}, func() error {
		e, ok = c.accessor.Get(kind, key)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return e, ok, nil
}

// Remove deletes the entity of kind with key. Removing a missing key is not an error.
func (c *TokenCache) Remove(ctx context.Context, kind Kind, key string) error {
	return c.do(ctx, operation{name: "Remove", write: true}, func() error {
		c.accessor.Remove(kind, key)
		return nil
	})
}

// Entities returns a snapshot of every entity of kind, ordered by key.
func (c *TokenCache) Entities(ctx context.Context, kind Kind) ([]Entity, error) {
	var entities []Entity
	err := c.do(ctx, operation{name: "Entities"}, func() error {
		entities = c.accessor.All(kind)
		return nil
	})
	return entities, err
}

// SaveTokenResponse writes the tokens of a token response for this client and returns the
// account they are stored with, which is the zero value for responses without an id token.
// params.ClientID defaults to the cache's client id.
func (c *TokenCache) SaveTokenResponse(ctx context.Context, params AuthParams, tr TokenResponse) (Account, error) {
	if params.ClientID == "" {
		params.ClientID = c.clientID
	}
	op := operation{
		name:    "SaveTokenResponse",
		write:   true,
		account: Account{HomeAccountID: tr.ClientInfo.HomeAccountID(), Environment: params.Environment},
	}
	var account Account
	err := c.do(ctx, op, func() error {
		var err error
		account, err = c.accessor.WriteTokenResponse(params, tr, c.now())
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// orphaned reports whether a user token has no account. Such tokens are kept, but lookups
// do not return them. Must be called with c.mu held.
func (c *TokenCache) orphaned(homeAccountID, env string) bool {
	if homeAccountID == "" {
		return false
	}
	if _, ok := c.accessor.FindAccount(homeAccountID, env); ok {
		return false
	}
	c.log.Debug("ignoring token without an account", logger.Field("environment", env))
	return true
}

// AccessToken returns an access token of this client matching q. Expired tokens are
// returned too; check AccessToken.ExpiresOn.
func (c *TokenCache) AccessToken(ctx context.Context, q TokenQuery) (AccessToken, bool, error) {
	var (
		at AccessToken
		ok bool
	)
	op := operation{name: "AccessToken", account: Account{HomeAccountID: q.HomeAccountID, Environment: q.Environment}}
	err := c.do(ctx, op, func() error {
		if c.orphaned(q.HomeAccountID, q.Environment) {
			return nil
		}
		at, ok = c.accessor.FindAccessToken(q.HomeAccountID, q.Environment, q.Realm, c.clientID, q.Scopes, q.TokenType)
		return nil
	})
	if err != nil {
		return AccessToken{}, false, err
	}
	return at, ok, nil
}

// RefreshToken returns a refresh token this client can redeem for account. A family
// refresh token is returned when the client is known to belong to the family.
func (c *TokenCache) RefreshToken(ctx context.Context, account Account) (RefreshToken, bool, error) {
	var (
		rt RefreshToken
		ok bool
	)
	err := c.do(ctx, operation{name: "RefreshToken", account: account}, func() error {
		if c.orphaned(account.HomeAccountID, account.Environment) {
			return nil
		}
		rt, ok = c.accessor.FindRefreshToken(account.HomeAccountID, account.Environment, c.clientID)
		return nil
	})
	if err != nil {
		return RefreshToken{}, false, err
	}
	return rt, ok, nil
}

// IDToken returns this client's id token for account in realm.
func (c *TokenCache) IDToken(ctx context.Context, account Account, realm string) (IDToken, bool, error) {
	var (
		id IDToken
		ok bool
	)
	err := c.do(ctx, operation{name: "IDToken", account: account}, func() error {
		if c.orphaned(account.HomeAccountID, account.Environment) {
			return nil
		}
		id, ok = c.accessor.FindIDToken(account.HomeAccountID, account.Environment, realm, c.clientID)
		return nil
	})
	if err != nil {
		return IDToken{}, false, err
	}
	return id, ok, nil
}

// Account returns the account with homeAccountID in env.
func (c *TokenCache) Account(ctx context.Context, homeAccountID, env string) (Account, bool, error) {
	var (
		acc Account
		ok  bool
	)
	op := operation{name: "Account", account: Account{HomeAccountID: homeAccountID, Environment: env}}
	err := c.do(ctx, op, func() error {
		acc, ok = c.accessor.FindAccount(homeAccountID, env)
		return nil
	})
	if err != nil {
		return Account{}, false, err
	}
	return acc, ok, nil
}

// Accounts returns every account in the cache.
func (c *TokenCache) Accounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := c.do(ctx, operation{name: "Accounts"}, func() error {
		accounts = c.accessor.Accounts()
		return nil
	})
	return accounts, err
}

// RemoveAccount signs account out of this client. Its tokens for this client and the
// client's family refresh tokens are removed; the account itself is removed once no
// client has tokens for it.
func (c *TokenCache) RemoveAccount(ctx context.Context, account Account) error {
	return c.do(ctx, operation{name: "RemoveAccount", write: true, account: account}, func() error {
		n := c.accessor.RemoveAccountData(account.HomeAccountID, account.Environment, c.clientID)
		c.log.Debug("removed account data", logger.Field("entities", n))
		return nil
	})
}
