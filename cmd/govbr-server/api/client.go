package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Credentials identify the simulated Tableau site to the token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// ExchangeResult is the raw answer of the token endpoint.
type ExchangeResult struct {
	StatusCode int
	Body       json.RawMessage
}

// Client calls the provider's token endpoint the way a relying party would.
type Client struct {
	tokenURL   string
	creds      Credentials
	httpClient *http.Client
}

// Shared HTTP client with connection pooling
var sharedHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// NewClient creates a token client for tokenURL. A non-zero timeout that
// differs from the shared client's gets a dedicated http.Client.
func NewClient(tokenURL string, creds Credentials, timeout time.Duration) *Client {
	client := sharedHTTPClient
	if timeout > 0 && timeout != sharedHTTPClient.Timeout {
		client = &http.Client{
			Timeout:   timeout,
			Transport: sharedHTTPClient.Transport,
		}
	}

	return &Client{
		tokenURL:   tokenURL,
		creds:      creds,
		httpClient: client,
	}
}

// ExchangeCode posts code as a JSON token request. Non-2xx answers are
// returned as results, not errors, so callers can show them.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*ExchangeResult, error) {
	payload, err := json.Marshal(map[string]string{
		"code":          code,
		"client_id":     c.creds.ClientID,
		"client_secret": c.creds.ClientSecret,
		"redirect_uri":  c.creds.RedirectURI,
		"grant_type":    "authorization_code",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("token endpoint returned non-JSON body (status %d): %s", resp.StatusCode, string(body))
	}

	return &ExchangeResult{StatusCode: resp.StatusCode, Body: body}, nil
}
