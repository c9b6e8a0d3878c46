package oidc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Client is the single relying party the provider accepts.
type Client struct {
	ClientID         string
	ClientSecretHash string
	RedirectURIs     []string
}

// AuthorizeRequest carries the query of an authorization request.
type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	State       string
	// Username overrides the placeholder subject (Gov.br login form).
	Username string
}

// AuthCode represents an authorization code exchange record.
type AuthCode struct {
	CodeHash    string    `json:"code_hash"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	State       string    `json:"state,omitempty"`
	Subject     string    `json:"subject"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// ExpiresAt is zero for codes that never expire.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its deadline at now.
func (c *AuthCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// TokenRequest is the body of a token endpoint call, after form or JSON
// decoding.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
}

// TokenResponse represents an OAuth token response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// IDTokenClaims are the claims of an issued identity token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// UserInfo is the userinfo endpoint payload.
type UserInfo struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
}

// Endpoints are the paths a server variant mounts, relative to the issuer.
type Endpoints struct {
	Authorize string
	Token     string
	JWKS      string
	UserInfo  string
}

// Discovery represents the OIDC discovery document
type Discovery struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	UserInfoEndpoint                 string   `json:"userinfo_endpoint,omitempty"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is a symmetric ("oct") JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	K   string `json:"k"`
}
