package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/providentiaww/govbr-oidc-mock/internal/oidc"
)

// maxBodyBytes caps token and login request bodies.
const maxBodyBytes = 1 << 20

// Server exposes a Provider over HTTP using the paths of one Variant.
type Server struct {
	provider *oidc.Provider
	variant  Variant
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New creates a server for provider. It warns once that the JWKS document
// carries the shared signing secret.
func New(provider *oidc.Provider, variant Variant, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log.Warnw("JWKS publishes the HS256 signing secret; point only test relying parties at this server",
		"jwks_uri", provider.Config().Issuer+variant.Endpoints.JWKS,
		"kid", provider.Key().KID(),
	)
	return &Server{
		provider: provider,
		variant:  variant,
		log:      log,
		now:      time.Now,
	}
}

// Register mounts every provider endpoint of the variant on mux.
func (s *Server) Register(mux *http.ServeMux) {
	ep := s.variant.Endpoints
	mux.HandleFunc(healthPath, s.HandleHealth)
	mux.HandleFunc(discoveryPath, s.HandleWellKnown)
	mux.HandleFunc(ep.JWKS, s.HandleJWKS)
	mux.HandleFunc(ep.Authorize, s.HandleAuthorize)
	mux.HandleFunc(ep.Token, s.HandleToken)
	if ep.UserInfo != "" {
		mux.HandleFunc(ep.UserInfo, s.HandleUserInfo)
	}
	if s.variant.LoginPath != "" {
		mux.HandleFunc(s.variant.LoginPath, s.HandleLogin)
	}
}

// Handler returns a mux with the provider endpoints behind the standard
// middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return Chain(mux, s.log)
}

// HandleHealth reports liveness and code store connectivity.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	message := "API rodando com sucesso 🚀"
	if err := s.provider.Ping(ctx); err != nil {
		s.log.Errorw("code store ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
		message = "code store unavailable"
	}

	writeJSON(w, code, map[string]string{
		"status":    status,
		"message":   message,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// HandleWellKnown serves the OIDC discovery document.
func (s *Server) HandleWellKnown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.provider.Discovery(s.variant.Endpoints))
}

// HandleJWKS serves the symmetric key set.
func (s *Server) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.log.Debugw("serving JWKS", "kid", s.provider.Key().KID())
	writeJSON(w, http.StatusOK, s.provider.JWKS())
}

// HandleAuthorize issues a code for the configured client. The Gov.br
// variant shows its login page first when prompt=login.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	req := oidc.AuthorizeRequest{
		ClientID:    query.Get("client_id"),
		RedirectURI: query.Get("redirect_uri"),
		State:       query.Get("state"),
	}
	s.log.Infow("authorize request",
		"client_id", req.ClientID,
		"redirect_uri", req.RedirectURI,
		"state", req.State,
	)

	if s.variant.LoginPath != "" && query.Get("prompt") == "login" {
		s.renderLoginPage(w, req)
		return
	}

	s.issueCode(w, r, req)
}

// HandleLogin accepts the simulated login form and issues a code whose
// subject is the submitted username.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	clientID := r.PostFormValue("client_id")
	if clientID == "" {
		clientID = s.provider.Config().ClientID
	}

	s.issueCode(w, r, oidc.AuthorizeRequest{
		ClientID:    clientID,
		RedirectURI: r.PostFormValue("redirect_uri"),
		State:       r.PostFormValue("state"),
		Username:    username,
	})
}

// HandleToken exchanges an authorization code for tokens.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseTokenRequest(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp, err := s.provider.Exchange(r.Context(), req)
	if err != nil {
		s.log.Warnw("token request rejected", "client_id", req.ClientID, "error", err)
		s.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// HandleUserInfo returns the identity carried by a bearer token.
func (s *Server) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		s.writeError(w, oidc.ErrMissingToken)
		return
	}
	token := ExtractBearerToken(header)
	if token == "" {
		s.writeError(w, oidc.ErrInvalidToken)
		return
	}

	info, err := s.provider.UserInfo(token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) issueCode(w http.ResponseWriter, r *http.Request, req oidc.AuthorizeRequest) {
	code, record, err := s.provider.Authorize(r.Context(), req)
	if err != nil {
		oe := oidc.AsError(err)
		if oe.Status >= http.StatusInternalServerError {
			s.log.Errorw("failed to issue authorization code", "error", err)
			http.Error(w, "Failed to issue authorization code", oe.Status)
			return
		}
		s.log.Warnw("authorize rejected", "client_id", req.ClientID, "error", err)
		http.Error(w, oe.Description, oe.Status)
		return
	}

	switch s.variant.Mode {
	case ResponseRedirect:
		http.Redirect(w, r, buildRedirect(record.RedirectURI, code, record.State), http.StatusFound)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := authorizeFormTemplate.Execute(w, authorizeFormData{
			Code:        code,
			State:       record.State,
			RedirectURI: record.RedirectURI,
		}); err != nil {
			s.log.Errorw("failed to render authorize form", "error", err)
		}
	}
}

func (s *Server) renderLoginPage(w http.ResponseWriter, req oidc.AuthorizeRequest) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPageTemplate.Execute(w, loginPageData{
		Action:      s.variant.LoginPath,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}); err != nil {
		s.log.Errorw("failed to render login page", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	oe := oidc.AsError(err)
	if oe.Status >= http.StatusInternalServerError {
		s.log.Errorw("internal error", "error", err)
	}
	body := map[string]string{"error": oe.Code}
	if oe.Description != "" {
		body["error_description"] = oe.Description
	}
	if oe.Status == http.StatusUnauthorized && oe.Code == oidc.ErrInvalidToken.Code {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeJSON(w, oe.Status, body)
}

// parseTokenRequest reads a token request from a JSON or form body. Client
// credentials may also come from HTTP Basic auth.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (oidc.TokenRequest, error) {
	var req oidc.TokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, oidc.ErrInvalidRequest.WithDescription("invalid JSON body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, oidc.ErrInvalidRequest.WithDescription("invalid form body")
		}
		req = oidc.TokenRequest{
			GrantType:    r.FormValue("grant_type"),
			Code:         r.FormValue("code"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			RedirectURI:  r.FormValue("redirect_uri"),
		}
	}

	if id, secret, ok := r.BasicAuth(); ok {
		if req.ClientID == "" {
			req.ClientID = unescapeCredential(id)
		}
		if req.ClientSecret == "" {
			req.ClientSecret = unescapeCredential(secret)
		}
	}
	return req, nil
}

// unescapeCredential undoes the form encoding clients apply to Basic auth
// credentials.
func unescapeCredential(v string) string {
	if out, err := url.QueryUnescape(v); err == nil {
		return out
	}
	return v
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
func ExtractBearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func buildRedirect(base, code, state string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

