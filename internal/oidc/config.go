package oidc

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the provider settings shared by both server variants.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	// SigningSecret is the HS256 key. The EAS variant signs with the client
	// secret itself.
	SigningSecret string
	KeyID         string
	// RedirectURI is used when an authorize request omits redirect_uri.
	RedirectURI string
	// AccessToken, when set, is returned verbatim as access_token instead of
	// the signed identity token.
	AccessToken       string
	TokenTTL          time.Duration
	AuthCodeTTL       time.Duration
	StrictRedirectURI bool
	User              Profile
}

// Profile is the placeholder identity every login resolves to.
type Profile struct {
	Subject string
	Email   string
	Name    string
}

// LoadConfigFromEnv overlays environment variables on top of defaults.
func LoadConfigFromEnv(defaults Config) (Config, error) {
	cfg := defaults

	if issuer := firstEnv("ISSUER", "EAS_BASE_URL"); issuer != "" {
		cfg.Issuer = issuer
	}
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")

	cfg.ClientID = envOr("CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = envOr("CLIENT_SECRET", cfg.ClientSecret)
	cfg.SigningSecret = envOr("SIGNING_SECRET", cfg.SigningSecret)
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = cfg.ClientSecret
	}
	cfg.KeyID = envOr("SIGNING_KEY_ID", cfg.KeyID)
	cfg.RedirectURI = envOr("REDIRECT_URI", cfg.RedirectURI)
	cfg.TokenTTL = parseDurationEnv("TOKEN_TTL", cfg.TokenTTL)
	cfg.AuthCodeTTL = parseDurationEnv("AUTH_CODE_TTL", cfg.AuthCodeTTL)
	if v := strings.TrimSpace(os.Getenv("STRICT_REDIRECT_URI")); v != "" {
		cfg.StrictRedirectURI = strings.EqualFold(v, "true") || v == "1"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("ISSUER is required")
	case c.ClientID == "":
		return fmt.Errorf("CLIENT_ID is required")
	case c.ClientSecret == "":
		return fmt.Errorf("CLIENT_SECRET is required")
	case c.SigningSecret == "":
		return fmt.Errorf("SIGNING_SECRET is required")
	case c.TokenTTL <= 0:
		return fmt.Errorf("TOKEN_TTL must be positive")
	case c.AuthCodeTTL < 0:
		return fmt.Errorf("AUTH_CODE_TTL must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return ""
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}
