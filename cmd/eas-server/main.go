package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/providentiaww/govbr-oidc-mock/internal/app"
	"github.com/providentiaww/govbr-oidc-mock/internal/oidc"
	"github.com/providentiaww/govbr-oidc-mock/internal/server"
)

const ServiceVersion = "v1.0.0"

// defaults mirror the external authentication service Tableau was first
// configured against: the id token is signed with the client secret and the
// access token is a fixed placeholder.
func defaults(issuer string) oidc.Config {
	return oidc.Config{
		Issuer:       issuer,
		ClientID:     "tableau-client",
		ClientSecret: "supersecret",
		KeyID:        oidc.DefaultKeyID,
		AccessToken:  "fake_access_token",
		TokenTTL:     time.Hour,
		User: oidc.Profile{
			Subject: oidc.DefaultSubject,
			Email:   "usuario@gov.br",
			Name:    "Usuário Gov.br Simulado",
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.NewCommand(app.Service{
		Use:      "eas-server",
		Short:    "Mock Gov.br identity provider (EAS form-post flavour) for Tableau",
		Version:  ServiceVersion,
		Variant:  server.EAS,
		Defaults: defaults,
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "eas-server: %v\n", err)
		os.Exit(1)
	}
}
