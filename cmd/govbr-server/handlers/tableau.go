package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/providentiaww/govbr-oidc-mock/cmd/govbr-server/api"
)

// TokenExchanger trades an authorization code for tokens.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*api.ExchangeResult, error)
}

// TableauConfig locates the provider the simulated Tableau site logs into.
type TableauConfig struct {
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
}

// Tableau plays the relying party: a landing page, the login redirect, the
// callback and a manual code exchange.
type Tableau struct {
	cfg    TableauConfig
	tokens TokenExchanger
	log    *zap.SugaredLogger
}

// NewTableau creates the relying party handlers.
func NewTableau(cfg TableauConfig, tokens TokenExchanger, log *zap.SugaredLogger) *Tableau {
	return &Tableau{cfg: cfg, tokens: tokens, log: log}
}

// Register mounts the Tableau pages on mux.
func (t *Tableau) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", t.HandleHome)
	mux.HandleFunc("/auth/openid/login", t.HandleLogin)
	mux.HandleFunc("/auth/callback", t.HandleCallback)
	mux.HandleFunc("/exchange-token", t.HandleExchange)
}

func (t *Tableau) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	render(w, t.log, homeTemplate, nil)
}

// HandleLogin starts the OpenID login by redirecting to the provider.
func (t *Tableau) HandleLogin(w http.ResponseWriter, r *http.Request) {
	u, err := url.Parse(t.cfg.AuthorizeURL)
	if err != nil {
		http.Error(w, "invalid authorize URL", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	q.Set("client_id", t.cfg.ClientID)
	q.Set("redirect_uri", t.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "openid profile")
	q.Set("state", uuid.New().String())
	u.RawQuery = q.Encode()

	t.log.Infow("redirecting to provider", "authorize_url", t.cfg.AuthorizeURL)
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// HandleCallback shows the received code with a button to exchange it.
func (t *Tableau) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	t.log.Infow("authorization code received", "state", r.URL.Query().Get("state"))
	render(w, t.log, callbackTemplate, map[string]string{"Code": code})
}

// HandleExchange trades the posted code at the token endpoint and shows the
// JSON answer.
func (t *Tableau) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	res, err := t.tokens.ExchangeCode(r.Context(), code)
	if err != nil {
		t.log.Errorw("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, res.Body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(res.Body)
	}

	t.log.Infow("token exchange completed", "status", res.StatusCode)
	render(w, t.log, tokenTemplate, map[string]interface{}{
		"OK":     res.StatusCode == http.StatusOK,
		"Status": res.StatusCode,
		"JSON":   pretty.String(),
	})
}

func render(w http.ResponseWriter, log *zap.SugaredLogger, tmpl *template.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		log.Errorw("failed to render page", "template", tmpl.Name(), "error", err)
	}
}

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8" /><title>Tableau (simulado)</title></head>
<body>
  <h1>Tableau Server (simulado)</h1>
  <p>Acesse o painel usando sua conta gov.br.</p>
  <a href="/auth/openid/login">Entrar com gov.br</a>
</body>
</html>
`))

var callbackTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8" /><title>Tableau (simulado)</title></head>
<body>
  <h2>Login bem-sucedido via GOV.BR (simulado)</h2>
  <p>Código de autorização recebido: <b>{{.Code}}</b></p>
  <form action="/exchange-token" method="POST">
    <input type="hidden" name="code" value="{{.Code}}" />
    <button type="submit">Trocar por Token</button>
  </form>
</body>
</html>
`))

var tokenTemplate = template.Must(template.New("token").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="UTF-8" /><title>Tableau (simulado)</title></head>
<body>
  {{if .OK}}<h3>Token obtido com sucesso!</h3>{{else}}<h3>Falha ao obter token (HTTP {{.Status}})</h3>{{end}}
  <pre>{{.JSON}}</pre>
</body>
</html>
`))
