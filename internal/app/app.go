// Package app wires configuration, storage, events and HTTP handlers into a
// runnable mock provider process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/providentiaww/govbr-oidc-mock/internal/config"
	"github.com/providentiaww/govbr-oidc-mock/internal/events"
	"github.com/providentiaww/govbr-oidc-mock/internal/logger"
	"github.com/providentiaww/govbr-oidc-mock/internal/oidc"
	"github.com/providentiaww/govbr-oidc-mock/internal/server"
)

const defaultPort = 3000

// Service describes one binary: its endpoint variant, its provider defaults
// and any extra pages it serves.
type Service struct {
	Use     string
	Short   string
	Version string
	Variant server.Variant
	// Defaults returns the provider settings before env overrides.
	Defaults func(issuer string) oidc.Config
	// CallbackPath, when set, makes an empty REDIRECT_URI default to
	// issuer+CallbackPath.
	CallbackPath string
	// Mount registers additional handlers next to the provider endpoints.
	Mount func(mux *http.ServeMux, cfg oidc.Config, log *zap.SugaredLogger)
}

// Flags are the command line overrides.
type Flags struct {
	Port       int
	EnvFile    string
	ConfigFile string
}

// NewCommand builds the cobra root command for svc.
func NewCommand(svc Service) *cobra.Command {
	var flags Flags
	cmd := &cobra.Command{
		Use:           svc.Use,
		Short:         svc.Short,
		Version:       svc.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), svc, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "listen port (default $PORT or 3000)")
	cmd.Flags().StringVar(&flags.EnvFile, "env-file", ".env", "dotenv file to load")
	cmd.Flags().StringVarP(&flags.ConfigFile, "config", "c", "config.yaml", "optional YAML settings file")
	return cmd
}

// Instance is a configured, not yet listening, provider process.
type Instance struct {
	Server   *http.Server
	Provider *oidc.Provider
	Log      *zap.SugaredLogger

	shutdownTimeout time.Duration
	closers         []func() error
}

// Close releases the code store and event publisher.
func (i *Instance) Close() error {
	var errs []error
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		if err := i.closers[idx](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup loads configuration and builds everything Run serves.
func Setup(ctx context.Context, svc Service, flags Flags) (*Instance, error) {
	logCfg := logger.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")}
	boot, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	config.LoadEnv(ctx, boot, flags.EnvFile)

	// .env may have changed the log settings
	log, err := logger.New(logger.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	appCfg, err := config.LoadFile(flags.ConfigFile)
	if err != nil {
		return nil, err
	}

	port := resolvePort(flags.Port)
	defaults := svc.Defaults(fmt.Sprintf("http://localhost:%d", port))
	applyProfile(&defaults.User, appCfg)

	cfg, err := oidc.LoadConfigFromEnv(defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.RedirectURI == "" && svc.CallbackPath != "" {
		cfg.RedirectURI = cfg.Issuer + svc.CallbackPath
	}

	inst := &Instance{
		Log:             log,
		shutdownTimeout: config.Duration(appCfg.Server.ShutdownTimeout, 10*time.Second),
	}

	store, err := oidc.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize code store: %w", err)
	}
	inst.closers = append(inst.closers, store.Close)

	publisher, err := events.NewPublisherFromEnv()
	if err != nil {
		log.Warnw("audit events disabled", "error", err)
		publisher = events.Nop{}
	}
	inst.closers = append(inst.closers, publisher.Close)

	provider, err := oidc.NewProvider(cfg, store,
		oidc.WithPublisher(publisher),
		oidc.WithLogger(log.With("component", "provider")),
	)
	if err != nil {
		_ = inst.Close()
		return nil, err
	}
	inst.Provider = provider

	mux := http.NewServeMux()
	server.New(provider, svc.Variant, log.With("component", "http")).Register(mux)
	if svc.Mount != nil {
		svc.Mount(mux, cfg, log.With("component", "tableau"))
	}

	inst.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Chain(mux, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.Duration(appCfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:      config.Duration(appCfg.Server.WriteTimeout, 15*time.Second),
	}

	log.Infow("configuration loaded",
		"variant", svc.Variant.Name,
		"issuer", cfg.Issuer,
		"client_id", cfg.ClientID,
		"code_store", storeName(),
		"auth_code_ttl", cfg.AuthCodeTTL,
		"strict_redirect_uri", cfg.StrictRedirectURI,
	)
	return inst, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, svc Service, flags Flags) error {
	inst, err := Setup(ctx, svc, flags)
	if err != nil {
		return err
	}
	defer inst.Close()

	issuer := inst.Provider.Config().Issuer
	inst.Log.Infow("mock provider listening",
		"addr", inst.Server.Addr,
		"discovery", issuer+"/.well-known/openid-configuration",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- inst.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	inst.Log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), inst.shutdownTimeout)
	defer cancel()
	return inst.Server.Shutdown(shutdownCtx)
}

func resolvePort(flag int) int {
	if flag > 0 {
		return flag
	}
	if p, err := strconv.Atoi(strings.TrimSpace(os.Getenv("PORT"))); err == nil && p > 0 {
		return p
	}
	return defaultPort
}

func applyProfile(p *oidc.Profile, cfg config.AppConfig) {
	if cfg.User.Subject != "" {
		p.Subject = cfg.User.Subject
	}
	if cfg.User.Email != "" {
		p.Email = cfg.User.Email
	}
	if cfg.User.Name != "" {
		p.Name = cfg.User.Name
	}
}

func storeName() string {
	if name := strings.TrimSpace(os.Getenv("CODE_STORE")); name != "" {
		return name
	}
	return "memory"
}
