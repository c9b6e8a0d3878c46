package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/govbr-oidc-mock/internal/logger"
	"github.com/providentiaww/govbr-oidc-mock/internal/oidc"
)

const redirectURI = "http://localhost:8080/callback"

var codeField = regexp.MustCompile(`name="code" value="([^"]+)"`)

func newProvider(t *testing.T, cfg oidc.Config, store oidc.CodeStore) *oidc.Provider {
	t.Helper()
	p, err := oidc.NewProvider(cfg, store)
	require.NoError(t, err)
	return p
}

func easConfig(issuer string) oidc.Config {
	return oidc.Config{
		Issuer:        issuer,
		ClientID:      "tableau-client",
		ClientSecret:  "supersecret",
		SigningSecret: "supersecret",
		KeyID:         oidc.DefaultKeyID,
		AccessToken:   "fake_access_token",
		TokenTTL:      time.Hour,
		User: oidc.Profile{
			Subject: "user123",
			Email:   "usuario@gov.br",
			Name:    "Usuário Gov.br Simulado",
		},
	}
}

func govbrConfig(issuer string) oidc.Config {
	cfg := easConfig(issuer)
	cfg.ClientSecret = "secret123"
	cfg.SigningSecret = "mock_secret"
	cfg.AccessToken = ""
	cfg.RedirectURI = issuer + "/auth/callback"
	return cfg
}

// startServer serves variant on an httptest server whose issuer matches its
// own URL.
func startServer(t *testing.T, variant Variant, cfgFor func(string) oidc.Config) (*httptest.Server, *oidc.Provider) {
	t.Helper()
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := newProvider(t, cfgFor(ts.URL), oidc.NewMemoryStore())
	New(p, variant, logger.Nop()).Register(mux)
	return ts, p
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func authorizeEAS(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(ts.URL + "/authorize?" + url.Values{
		"client_id":    {"tableau-client"},
		"redirect_uri": {redirectURI},
		"state":        {"xyz"},
	}.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m := codeField.FindStringSubmatch(string(body))
	require.Len(t, m, 2, "no code in %s", body)
	return m[1]
}

func postToken(t *testing.T, ts *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.URL+path, form)
	require.NoError(t, err)
	return resp
}

func tokenForm(code, secret string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {"tableau-client"},
		"client_secret": {secret},
		"redirect_uri":  {redirectURI},
	}
}

func TestEAS_Discovery(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	resp, err := http.Get(ts.URL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	decodeJSON(t, resp, &doc)
	assert.Equal(t, ts.URL, doc["issuer"])
	assert.Equal(t, ts.URL+"/authorize", doc["authorization_endpoint"])
	assert.Equal(t, ts.URL+"/token", doc["token_endpoint"])
	assert.Equal(t, ts.URL+"/.well-known/jwks.json", doc["jwks_uri"])
	assert.NotContains(t, doc, "userinfo_endpoint")
	assert.Equal(t, []interface{}{"HS256"}, doc["id_token_signing_alg_values_supported"])
}

func TestEAS_JWKS(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	resp, err := http.Get(ts.URL + "/.well-known/jwks.json")
	require.NoError(t, err)

	var set oidc.JWKS
	decodeJSON(t, resp, &set)
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "simulated-key", set.Keys[0].Kid)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("supersecret")), set.Keys[0].K)
}

func TestEAS_AuthorizeRendersForm(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	resp, err := http.Get(ts.URL + "/authorize?client_id=tableau-client&redirect_uri=" +
		url.QueryEscape(redirectURI) + "&state=xyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `action="`+redirectURI+`"`)
	assert.Contains(t, string(body), `name="state" value="xyz"`)
	assert.Regexp(t, codeField, string(body))
}

func TestEAS_AuthorizeRejectsUnknownClient(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	resp, err := http.Get(ts.URL + "/authorize?client_id=other&redirect_uri=" + url.QueryEscape(redirectURI))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Client ID inválido", strings.TrimSpace(string(body)))
}

func TestEAS_TokenFlow(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)
	code := authorizeEAS(t, ts)

	resp := postToken(t, ts, "/token", tokenForm(code, "supersecret"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var tok oidc.TokenResponse
	decodeJSON(t, resp, &tok)
	assert.Equal(t, "fake_access_token", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)

	key, err := oidc.NewSigningKey("supersecret", "")
	require.NoError(t, err)
	claims, err := key.Verify(tok.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.Subject)
	assert.Equal(t, ts.URL, claims.Issuer)

	// second use of the same code
	resp = postToken(t, ts, "/token", tokenForm(code, "supersecret"))
	var errBody map[string]string
	decodeJSON(t, resp, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_grant", errBody["error"])
	assert.Equal(t, "invalid or expired code", errBody["error_description"])
}

func TestEAS_TokenInvalidClientKeepsCode(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)
	code := authorizeEAS(t, ts)

	resp := postToken(t, ts, "/token", tokenForm(code, "wrong"))
	var errBody map[string]string
	decodeJSON(t, resp, &errBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_client", errBody["error"])

	resp = postToken(t, ts, "/token", tokenForm(code, "supersecret"))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEAS_TokenJSONAndBasicAuth(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	body, _ := json.Marshal(map[string]string{
		"grant_type": "authorization_code",
		"code":       authorizeEAS(t, ts),
	})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/token", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("tableau-client", "supersecret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEAS_TokenErrors(t *testing.T) {
	ts, _ := startServer(t, EAS, easConfig)

	form := tokenForm(authorizeEAS(t, ts), "supersecret")
	form.Set("grant_type", "password")
	resp := postToken(t, ts, "/token", form)
	var errBody map[string]string
	decodeJSON(t, resp, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_grant_type", errBody["error"])

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/token", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/token")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGovBR_EndToEnd(t *testing.T) {
	ts, _ := startServer(t, GovBR, govbrConfig)
	client := noRedirectClient()

	resp, err := client.Get(ts.URL + "/govbr/authorize?client_id=tableau-client&redirect_uri=" +
		url.QueryEscape(redirectURI) + "&state=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", loc.Host)
	assert.Equal(t, "abc", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.Len(t, code, oidc.CodeLength)

	form := tokenForm(code, "secret123")
	resp = postToken(t, ts, "/govbr/token", form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok oidc.TokenResponse
	decodeJSON(t, resp, &tok)
	assert.Equal(t, tok.IDToken, tok.AccessToken)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/govbr/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]string
	decodeJSON(t, resp, &info)
	assert.Equal(t, "user123", info["sub"])
	assert.Equal(t, "Usuário Gov.br Simulado", info["name"])
}

func TestGovBR_AuthorizeDefaultsRedirect(t *testing.T) {
	ts, _ := startServer(t, GovBR, govbrConfig)

	resp, err := noRedirectClient().Get(ts.URL + "/govbr/authorize?client_id=tableau-client")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), ts.URL+"/auth/callback?code="))
}

func TestGovBR_LoginPageAndLogin(t *testing.T) {
	ts, _ := startServer(t, GovBR, govbrConfig)
	client := noRedirectClient()

	resp, err := client.Get(ts.URL + "/govbr/authorize?prompt=login&client_id=tableau-client&state=s1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `action="/govbr/login"`)
	assert.Contains(t, string(body), `name="state" value="s1"`)

	resp, err = client.PostForm(ts.URL+"/govbr/login", url.Values{
		"username":  {"maria"},
		"client_id": {"tableau-client"},
		"state":     {"s1"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", loc.Path)

	resp = postToken(t, ts, "/govbr/token", tokenForm(loc.Query().Get("code"), "secret123"))
	var tok oidc.TokenResponse
	decodeJSON(t, resp, &tok)

	key, err := oidc.NewSigningKey("mock_secret", "")
	require.NoError(t, err)
	claims, err := key.Verify(tok.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "maria", claims.Subject)
	assert.Equal(t, "maria", claims.Name)

	resp, err = client.PostForm(ts.URL+"/govbr/login", url.Values{"username": {" "}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGovBR_UserInfoErrors(t *testing.T) {
	ts, _ := startServer(t, GovBR, govbrConfig)

	other, err := oidc.NewSigningKey("another-secret", "")
	require.NoError(t, err)
	forged, err := other.Sign(oidc.IDTokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "missing_token"},
		{"wrong scheme", "Basic abc", "invalid_token"},
		{"garbage", "Bearer not-a-jwt", "invalid_token"},
		{"other secret", "Bearer " + forged, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/govbr/userinfo", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)

			var body map[string]string
			decodeJSON(t, resp, &body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestGovBR_DiscoveryIncludesUserInfo(t *testing.T) {
	ts, _ := startServer(t, GovBR, govbrConfig)

	resp, err := http.Get(ts.URL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	var doc oidc.Discovery
	decodeJSON(t, resp, &doc)
	assert.Equal(t, ts.URL+"/govbr/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, ts.URL+"/govbr/token", doc.TokenEndpoint)
	assert.Equal(t, ts.URL+"/govbr/userinfo", doc.UserInfoEndpoint)
}

type brokenStore struct {
	*oidc.MemoryStore
}

func (brokenStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	p := newProvider(t, easConfig("http://localhost:3000"), oidc.NewMemoryStore())
	srv := New(p, EAS, logger.Nop())
	srv.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2025-01-02T03:04:05Z", body["timestamp"])
	assert.NotEmpty(t, body["message"])

	p = newProvider(t, easConfig("http://localhost:3000"), brokenStore{oidc.NewMemoryStore()})
	rr = httptest.NewRecorder()
	New(p, EAS, logger.Nop()).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	p := newProvider(t, easConfig("http://localhost:3000"), oidc.NewMemoryStore())
	h := New(p, EAS, logger.Nop()).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/token", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearerToken("bearer abc"))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken("Bearer"))
}

func TestBuildRedirect(t *testing.T) {
	assert.Equal(t, "http://x/cb?code=c1&state=s1", buildRedirect("http://x/cb", "c1", "s1"))
	assert.Equal(t, "http://x/cb?a=1&code=c1", buildRedirect("http://x/cb?a=1", "c1", ""))
}
