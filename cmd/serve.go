package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/time/rate"

	"github.com/s0up4200/movieflix/config"
	"github.com/s0up4200/movieflix/identity"
	"github.com/s0up4200/movieflix/web"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end",
	Long: `Serve the MovieFlix web front end.

Every browser gets its own session, so several users can browse and sign in
independently. Accounts are kept by the configured identity provider.`,
	PreRunE: initializeApp,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides server.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Server.Address = listenAddr
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	auth, err := newIdentityFactory(cfg.Identity)
	if err != nil {
		return err
	}

	server, err := web.NewServer(web.Options{
		Media:          tmdbClient,
		ImageURL:       tmdbClient.ImageURL,
		Auth:           auth,
		Filters:        filters,
		Google:         googleConfig(cfg.Identity.Google),
		SessionTTL:     cfg.Server.SessionTTL,
		MaxSessions:    cfg.Server.MaxSessions,
		AuthRateLimit:  rate.Limit(cfg.Server.AuthRateLimit),
		AuthRateBurst:  cfg.Server.AuthRateBurst,
		SecureCookies:  cfg.Server.SecureCookies,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address).
			Str("identity_provider", cfg.Identity.Provider).
			Bool("google", cfg.Identity.Google.Enabled()).
			Msg("Web server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

// newIdentityFactory creates the configured account backend
func newIdentityFactory(c config.IdentityConfig) (identity.Factory, error) {
	switch c.Provider {
	case config.ProviderFirebase:
		opts := []identity.FirebaseOption{}
		if c.Firebase.BaseURL != "" {
			opts = append(opts, identity.WithFirebaseBaseURL(c.Firebase.BaseURL))
		}
		if c.Google.Enabled() {
			opts = append(opts, identity.WithRequestURI(c.Google.RedirectURL))
		}
		client, err := identity.NewFirebaseClient(c.Firebase.APIKey, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firebase client: %w", err)
		}
		return client, nil

	default:
		dir, err := identity.NewDirectory([]byte(c.Local.SigningKey), logger,
			identity.WithStorePath(c.Local.StorePath),
			identity.WithTokenTTL(c.Local.TokenTTL),
			identity.WithMinPasswordLength(c.Local.MinPasswordLength),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open account store: %w", err)
		}
		logger.Info().Str("store", c.Local.StorePath).Int("accounts", dir.Len()).Msg("Account store loaded")
		return dir, nil
	}
}

// googleConfig returns the OAuth client for Google sign-in, or nil when disabled
func googleConfig(c config.GoogleConfig) *oauth2.Config {
	if !c.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
	}
}
