// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/AzureAD/msal-go-token-cache/apps/internal/accesstokens"
)

// AuthParams identifies where a token response came from.
type AuthParams struct {
	ClientID string
	// Environment is the authority host, for example login.microsoftonline.com.
	Environment string
	// Realm is the tenant the tokens were issued for.
	Realm         string
	AuthorityType string
}

// WriteTokenResponse writes the entities of a token response received at cachedAt: refresh
// token, access token, id token and account, then the client's app metadata. It returns the
// account the tokens are stored with, which is the zero value when the response had no id token.
func (a *Accessor) WriteTokenResponse(params AuthParams, tr accesstokens.TokenResponse, cachedAt time.Time) (Account, error) {
	homeAccountID := tr.ClientInfo.HomeAccountID()
	target := strings.Join(tr.GrantedScopes, scopeSeparator)

	if tr.HasRefreshToken() {
		rt, err := NewRefreshToken(homeAccountID, params.Environment, params.ClientID, tr.RefreshToken, tr.FamilyID)
		if err != nil {
			return Account{}, fmt.Errorf("refresh token: %w", err)
		}
		if err := a.Insert(rt); err != nil {
			return Account{}, err
		}
	}

	if tr.HasAccessToken() {
		at, err := NewAccessToken(
			homeAccountID,
			params.Environment,
			params.Realm,
			params.ClientID,
			cachedAt,
			tr.ExpiresOn,
			tr.ExtExpiresOn,
			target,
			tr.AccessToken,
			tr.TokenType,
		)
		if err != nil {
			return Account{}, fmt.Errorf("access token: %w", err)
		}
		if err := a.Insert(at); err != nil {
			return Account{}, err
		}
	}

	var account Account
	if !tr.IDToken.IsZero() {
		idToken, err := NewIDToken(homeAccountID, params.Environment, params.Realm, params.ClientID, tr.IDToken.RawToken)
		if err != nil {
			return Account{}, fmt.Errorf("id token: %w", err)
		}
		if err := a.Insert(idToken); err != nil {
			return Account{}, err
		}

		if homeAccountID != "" {
			account, err = NewAccount(
				homeAccountID,
				params.Environment,
				params.Realm,
				tr.IDToken.LocalAccountID(),
				params.AuthorityType,
				tr.IDToken.Username(),
			)
			if err != nil {
				return Account{}, fmt.Errorf("account: %w", err)
			}
			account.Name = tr.IDToken.Name
			account.RawClientInfo = tr.RawClientInfo
			if err := a.Insert(account); err != nil {
				return Account{}, err
			}
		}
	}

	amd, err := NewAppMetaData(tr.FamilyID, params.ClientID, params.Environment)
	if err != nil {
		return Account{}, fmt.Errorf("app metadata: %w", err)
	}
	if err := a.Insert(amd); err != nil {
		return Account{}, err
	}
	return account, nil
}
