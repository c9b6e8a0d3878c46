package oidc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is the kid advertised when none is configured.
const DefaultKeyID = "simulated-key"

func init() {
	// Tableau test setups expect "aud" as a plain string, not a one-element array.
	jwt.MarshalSingleStringAsArray = false
}

// SigningKey holds the shared HS256 secret and its JWKS representation.
type SigningKey struct {
	secret []byte
	kid    string
}

// NewSigningKey wraps secret. An empty kid becomes DefaultKeyID.
func NewSigningKey(secret, kid string) (*SigningKey, error) {
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	if kid == "" {
		kid = DefaultKeyID
	}
	return &SigningKey{secret: []byte(secret), kid: kid}, nil
}

func (k *SigningKey) KID() string {
	return k.kid
}

// JWKS publishes the secret as an "oct" key. Standard base64 matches what
// existing Tableau test setups were configured against.
func (k *SigningKey) JWKS() JWKS {
	return JWKS{Keys: []JWK{{
		Kty: "oct",
		Alg: jwt.SigningMethodHS256.Alg(),
		Kid: k.kid,
		Use: "sig",
		K:   base64.StdEncoding.EncodeToString(k.secret),
	}}}
}

// Sign produces a compact HS256 JWT with the kid header set.
func (k *SigningKey) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = k.kid
	return token.SignedString(k.secret)
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (k *SigningKey) Verify(tokenString string) (*IDTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IDTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return k.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}
