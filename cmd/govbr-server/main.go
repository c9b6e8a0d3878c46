package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/providentiaww/govbr-oidc-mock/cmd/govbr-server/api"
	"github.com/providentiaww/govbr-oidc-mock/cmd/govbr-server/handlers"
	"github.com/providentiaww/govbr-oidc-mock/internal/app"
	"github.com/providentiaww/govbr-oidc-mock/internal/oidc"
	"github.com/providentiaww/govbr-oidc-mock/internal/server"
)

const ServiceVersion = "v1.0.0"

func defaults(issuer string) oidc.Config {
	return oidc.Config{
		Issuer:        issuer,
		ClientID:      "tableau-client",
		ClientSecret:  "secret123",
		SigningSecret: "mock_secret",
		KeyID:         oidc.DefaultKeyID,
		TokenTTL:      time.Hour,
		User: oidc.Profile{
			Subject: oidc.DefaultSubject,
			Email:   "usuario@gov.br",
			Name:    "Usuário Gov.br Simulado",
		},
	}
}

// mountTableau serves the simulated Tableau site from the same process. It
// exchanges codes over HTTP against this server's own token endpoint.
func mountTableau(mux *http.ServeMux, cfg oidc.Config, log *zap.SugaredLogger) {
	ep := server.GovBR.Endpoints
	tokens := api.NewClient(cfg.Issuer+ep.Token, api.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
	}, 0)
	handlers.NewTableau(handlers.TableauConfig{
		AuthorizeURL: cfg.Issuer + ep.Authorize,
		ClientID:     cfg.ClientID,
		RedirectURI:  cfg.RedirectURI,
	}, tokens, log).Register(mux)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.NewCommand(app.Service{
		Use:          "govbr-server",
		Short:        "Mock Gov.br identity provider with a simulated Tableau relying party",
		Version:      ServiceVersion,
		Variant:      server.GovBR,
		Defaults:     defaults,
		CallbackPath: "/auth/callback",
		Mount:        mountTableau,
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "govbr-server: %v\n", err)
		os.Exit(1)
	}
}
