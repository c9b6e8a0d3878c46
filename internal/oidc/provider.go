package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/providentiaww/govbr-oidc-mock/internal/events"
)

// DefaultSubject is the placeholder user every default login resolves to.
const DefaultSubject = "user123"

// codeAttempts bounds retries when a fresh code collides with a live one.
const codeAttempts = 5

// Provider implements the authorization-code flow on top of a CodeStore.
type Provider struct {
	cfg    Config
	key    *SigningKey
	client Client
	store  CodeStore
	events events.Publisher
	log    *zap.SugaredLogger
	now    func() time.Time
}

// Option customizes a Provider.
type Option func(*Provider)

// WithPublisher sets the audit event sink.
func WithPublisher(p events.Publisher) Option {
	return func(pr *Provider) { pr.events = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(pr *Provider) { pr.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(pr *Provider) { pr.now = now }
}

// NewProvider validates cfg and builds a provider around store.
func NewProvider(cfg Config, store CodeStore, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("code store is required")
	}

	if cfg.User.Subject == "" {
		cfg.User.Subject = DefaultSubject
	}

	key, err := NewSigningKey(cfg.SigningSecret, cfg.KeyID)
	if err != nil {
		return nil, err
	}

	// bcrypt reads at most 72 bytes; the fixed-size digest keeps the whole
	// secret significant.
	hash, err := bcrypt.GenerateFromPassword([]byte(HashToken(cfg.ClientSecret)), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client_secret: %w", err)
	}

	p := &Provider{
		cfg: cfg,
		key: key,
		client: Client{
			ClientID:         cfg.ClientID,
			ClientSecretHash: string(hash),
		},
		store:  store,
		events: events.Nop{},
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
	}
	if cfg.RedirectURI != "" {
		p.client.RedirectURIs = []string{cfg.RedirectURI}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the settings the provider was built with, defaults applied.
func (p *Provider) Config() Config { return p.cfg }

// Key returns the ID token signing key.
func (p *Provider) Key() *SigningKey { return p.key }

// Authorize validates the client and issues a new code bound to the
// request. The plain code is returned; only its hash is stored.
func (p *Provider) Authorize(ctx context.Context, req AuthorizeRequest) (string, *AuthCode, error) {
	if req.ClientID != p.client.ClientID {
		return "", nil, ErrInvalidRequest.WithDescription("Client ID inválido")
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}
	if redirectURI == "" {
		return "", nil, ErrInvalidRequest.WithDescription("redirect_uri required")
	}

	now := p.now()
	record := &AuthCode{
		ClientID:    req.ClientID,
		RedirectURI: redirectURI,
		State:       req.State,
		Subject:     p.cfg.User.Subject,
		Name:        p.cfg.User.Name,
		Email:       p.cfg.User.Email,
		CreatedAt:   now,
	}
	if req.Username != "" {
		record.Subject = req.Username
		record.Name = req.Username
		record.Email = ""
	}
	if p.cfg.AuthCodeTTL > 0 {
		record.ExpiresAt = now.Add(p.cfg.AuthCodeTTL)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := RandomCode(CodeLength)
		if err != nil {
			return "", nil, fmt.Errorf("generate code: %w", err)
		}
		record.CodeHash = HashToken(code)

		err = p.store.SaveAuthCode(ctx, record)
		if errors.Is(err, ErrCodeExists) {
			p.log.Debugw("authorization code collision, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("store code: %w", err)
		}

		p.log.Infow("authorization code issued",
			"client_id", record.ClientID,
			"redirect_uri", record.RedirectURI,
			"subject", record.Subject,
		)
		p.publish(ctx, events.Event{
			Type:     events.TypeCodeIssued,
			ClientID: record.ClientID,
			Subject:  record.Subject,
			At:       now,
		})
		return code, record, nil
	}
	return "", nil, fmt.Errorf("store code: %w", ErrCodeExists)
}

// Exchange authenticates the client and trades a code for tokens. The code
// is consumed only after the client credentials check out, so a request
// with a bad secret leaves it usable.
func (p *Provider) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "" && req.GrantType != "authorization_code" {
		return nil, ErrUnsupportedGrantType
	}
	if err := p.authenticateClient(req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, ErrInvalidOrExpiredCode
	}

	authCode, err := p.store.ConsumeAuthCode(ctx, HashToken(req.Code))
	if errors.Is(err, ErrCodeNotFound) {
		return nil, ErrInvalidOrExpiredCode
	}
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}

	now := p.now()
	if authCode.Expired(now) {
		return nil, ErrInvalidOrExpiredCode
	}
	if authCode.ClientID != req.ClientID {
		return nil, ErrInvalidOrExpiredCode.WithDescription("code was issued to another client")
	}
	if p.cfg.StrictRedirectURI && req.RedirectURI != authCode.RedirectURI {
		return nil, ErrInvalidOrExpiredCode.WithDescription("redirect_uri mismatch")
	}

	idToken, jti, err := p.issueIDToken(authCode, now)
	if err != nil {
		return nil, fmt.Errorf("sign id_token: %w", err)
	}

	accessToken := p.cfg.AccessToken
	if accessToken == "" {
		accessToken = idToken
	}

	p.log.Infow("tokens issued", "client_id", authCode.ClientID, "subject", authCode.Subject, "jti", jti)
	p.publish(ctx, events.Event{
		Type:     events.TypeTokenIssued,
		ClientID: authCode.ClientID,
		Subject:  authCode.Subject,
		TokenID:  jti,
		At:       now,
	})

	return &TokenResponse{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(p.cfg.TokenTTL.Seconds()),
	}, nil
}

// UserInfo verifies a bearer token and returns its identity claims.
func (p *Provider) UserInfo(token string) (*UserInfo, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := p.key.Verify(token)
	if err != nil {
		p.log.Debugw("userinfo token rejected", "error", err)
		return nil, ErrInvalidToken
	}
	return &UserInfo{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
	}, nil
}

// Discovery builds the discovery document for the given endpoint paths.
func (p *Provider) Discovery(ep Endpoints) Discovery {
	issuer := p.cfg.Issuer
	doc := Discovery{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + ep.Authorize,
		TokenEndpoint:                    issuer + ep.Token,
		JWKSURI:                          issuer + ep.JWKS,
		ResponseTypesSupported:           []string{"code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{jwt.SigningMethodHS256.Alg()},
	}
	if ep.UserInfo != "" {
		doc.UserInfoEndpoint = issuer + ep.UserInfo
	}
	return doc
}

// JWKS returns the key set relying parties verify ID tokens with.
func (p *Provider) JWKS() JWKS {
	return p.key.JWKS()
}

// Ping checks the code store.
func (p *Provider) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func (p *Provider) authenticateClient(clientID, secret string) error {
	if subtle.ConstantTimeCompare([]byte(clientID), []byte(p.client.ClientID)) != 1 {
		return ErrInvalidClient
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.client.ClientSecretHash), []byte(HashToken(secret))); err != nil {
		return ErrInvalidClient
	}
	return nil
}

func (p *Provider) issueIDToken(code *AuthCode, now time.Time) (string, string, error) {
	jti := uuid.New().String()
	claims := IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.cfg.Issuer,
			Subject:   code.Subject,
			Audience:  jwt.ClaimStrings{code.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenTTL)),
			ID:        jti,
		},
		Email: code.Email,
		Name:  code.Name,
	}
	signed, err := p.key.Sign(claims)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func (p *Provider) publish(ctx context.Context, ev events.Event) {
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.Warnw("failed to publish event", "type", ev.Type, "error", err)
	}
}
