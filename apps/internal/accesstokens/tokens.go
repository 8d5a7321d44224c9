// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package accesstokens describes the token endpoint response that the cache consumes. The
// cache does not talk to the token endpoint; the OAuth flows that do hand their result to
// the cache in this shape.
package accesstokens

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AzureAD/msal-go-token-cache/apps/internal/json"
)

// TokenResponseJSONPayload is the JSON body returned by an AAD token endpoint.
type TokenResponseJSONPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`

	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExtExpiresIn int64  `json:"ext_expires_in"`
	Foci         string `json:"foci"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	ClientInfo   string `json:"client_info"`

	AdditionalFields map[string]interface{}
}

// ClientInfo is used to create a Home Account ID for an account.
type ClientInfo struct {
	UID  string `json:"uid"`
	UTID string `json:"utid"`

	AdditionalFields map[string]interface{}
}

// HomeAccountID creates the home account ID "<uid>.<utid>". It is empty unless both
// parts are known.
func (c ClientInfo) HomeAccountID() string {
	if c.UID == "" || c.UTID == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s", c.UID, c.UTID)
}

// ParseClientInfo decodes the base64url client_info value returned by AAD.
func ParseClientInfo(raw string) (ClientInfo, error) {
	ci := ClientInfo{}
	if raw == "" {
		return ci, nil
	}
	b, err := decodeSegment(raw)
	if err != nil {
		return ClientInfo{}, fmt.Errorf("client_info is not base64: %w", err)
	}
	if err := json.Unmarshal(b, &ci); err != nil {
		return ClientInfo{}, fmt.Errorf("client_info is not JSON: %w", err)
	}
	return ci, nil
}

// IDToken holds the claims of an OpenID Connect id token that the cache records on the
// Account entity. https://docs.microsoft.com/azure/active-directory/develop/id-tokens .
type IDToken struct {
	PreferredUsername string
	Name              string
	Oid               string
	TenantID          string
	Subject           string
	UPN               string
	Email             string
	Issuer            string
	RawToken          string
}

type idTokenClaims struct {
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username,omitempty"`
	Name              string `json:"name,omitempty"`
	Oid               string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Email             string `json:"email,omitempty"`
}

// ParseIDToken reads the claims of a JWT id token. The signature is not verified: the
// token came straight from the token endpoint over TLS and the cache only stores it.
func ParseIDToken(raw string) (IDToken, error) {
	if raw == "" {
		return IDToken{}, nil
	}
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return IDToken{}, fmt.Errorf("id token could not be parsed: %w", err)
	}
	return IDToken{
		PreferredUsername: claims.PreferredUsername,
		Name:              claims.Name,
		Oid:               claims.Oid,
		TenantID:          claims.TenantID,
		Subject:           claims.Subject,
		UPN:               claims.UPN,
		Email:             claims.Email,
		Issuer:            claims.Issuer,
		RawToken:          raw,
	}, nil
}

// IsZero indicates if the IDToken is the zero value.
func (i IDToken) IsZero() bool {
	return i == IDToken{}
}

// LocalAccountID extracts an account's local account ID from an ID token.
func (i IDToken) LocalAccountID() string {
	if i.Oid != "" {
		return i.Oid
	}
	return i.Subject
}

// Username is the best human readable identifier in the token.
func (i IDToken) Username() string {
	switch {
	case i.PreferredUsername != "":
		return i.PreferredUsername
	case i.UPN != "":
		return i.UPN
	}
	return i.Email
}

// TokenResponse is the information that is returned from a token endpoint during a token
// acquisition flow, in the form the cache writes it.
type TokenResponse struct {
	AccessToken   string
	TokenType     string
	RefreshToken  string
	IDToken       IDToken
	ClientInfo    ClientInfo
	RawClientInfo string
	FamilyID      string
	GrantedScopes []string
	ExpiresOn     time.Time
	ExtExpiresOn  time.Time
}

// HasAccessToken checks if the TokenResponse has an access token.
func (tr TokenResponse) HasAccessToken() bool {
	return len(tr.AccessToken) > 0
}

// HasRefreshToken checks if the TokenResponse has an refresh token.
func (tr TokenResponse) HasRefreshToken() bool {
	return len(tr.RefreshToken) > 0
}

// NewTokenResponse decodes a token endpoint body received at receivedAt. requestedScopes
// are used when the server omits the scope parameter.
func NewTokenResponse(body []byte, requestedScopes []string, receivedAt time.Time) (TokenResponse, error) {
	payload := TokenResponseJSONPayload{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return TokenResponse{}, err
	}
	if payload.Error != "" {
		return TokenResponse{}, fmt.Errorf("%s: %s", payload.Error, payload.ErrorDescription)
	}
	if payload.AccessToken == "" {
		return TokenResponse{}, errors.New("response is missing access_token")
	}

	clientInfo, err := ParseClientInfo(payload.ClientInfo)
	if err != nil {
		return TokenResponse{}, err
	}

	// ID tokens aren't always returned, which is not a reportable error condition.
	idToken, _ := ParseIDToken(payload.IDToken)

	var granted []string
	if payload.Scope == "" {
		// RFC 6749 section 3.3: no scope in the response means all requested scopes were granted
		granted = requestedScopes
	} else {
		granted = strings.Fields(payload.Scope)
	}

	extExpiresIn := payload.ExtExpiresIn
	if extExpiresIn == 0 {
		extExpiresIn = payload.ExpiresIn
	}

	return TokenResponse{
		AccessToken:   payload.AccessToken,
		TokenType:     payload.TokenType,
		RefreshToken:  payload.RefreshToken,
		IDToken:       idToken,
		ClientInfo:    clientInfo,
		RawClientInfo: payload.ClientInfo,
		FamilyID:      payload.Foci,
		GrantedScopes: granted,
		ExpiresOn:     receivedAt.Add(time.Duration(payload.ExpiresIn) * time.Second),
		ExtExpiresOn:  receivedAt.Add(time.Duration(extExpiresIn) * time.Second),
	}, nil
}

// decodeSegment decodes base64 with or without padding and with either alphabet.
// Adapted from MSAL Python and https://stackoverflow.com/a/31971780 .
func decodeSegment(data string) ([]byte, error) {
	data = strings.TrimRight(data, "=")
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(data)
}
