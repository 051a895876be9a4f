package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/go-login-broker/auth"
	"github.com/jrsteele09/go-login-broker/identity"
	"github.com/jrsteele09/go-login-broker/internal/config"
	"github.com/jrsteele09/go-login-broker/metrics"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/server"
	"github.com/jrsteele09/go-login-broker/sweeper"
	"github.com/jrsteele09/go-login-broker/token"
	"github.com/jrsteele09/go-login-broker/token/keys"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() error {
	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, jwks, err := newSigner(c)
	if err != nil {
		return err
	}
	codec := token.NewCodec(signer,
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithIssuer(c.GetIssuer()),
	)

	stores, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer stores.close()

	providers, err := newProviders(ctx, c)
	if err != nil {
		return err
	}

	m := metrics.New()
	service, err := auth.NewService(stores.repos, codec,
		auth.WithMetrics(m),
		auth.WithProviders(providers),
		auth.WithSessionTTL(c.GetLoginSessionExpiry()),
		auth.WithCodeTTL(c.GetShortCodeExpiry()),
		auth.WithStoreTimeout(c.GetStoreTimeout()),
	)
	if err != nil {
		return fmt.Errorf("auth.NewService: %w", err)
	}
	bootstrapAdmins(ctx, service, c.GetAdminEmails())

	sw, err := sweeper.New(service.SweepTargets(),
		sweeper.WithInterval(c.GetSweepInterval()),
		sweeper.WithTargetTimeout(c.GetStoreTimeout()),
		sweeper.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("sweeper.New: %w", err)
	}

	serverOptions := []server.ServerOption{
		server.WithEnv(c.GetEnv()),
		server.WithMetrics(m),
	}
	if jwks != nil {
		serverOptions = append(serverOptions, server.WithJWKS(jwks))
	}
	for name, check := range stores.health {
		serverOptions = append(serverOptions, server.WithHealthCheck(name, check))
	}
	handler, err := server.New(c, service, serverOptions...)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		if err := sw.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return sw.Stop(stopCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpServer)
	})
	return g.Wait()
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

// newSigner builds the token signer. RS256 signers also publish a JWKS.
func newSigner(c config.SecurityConfig) (token.Signer, func() (*keys.JWKS, error), error) {
	if c.GetJWTAlgorithm() == config.AlgorithmRS256 {
		var kp *keys.KeyPair
		var err error
		if path := c.GetJWTPrivateKeyFile(); path != "" {
			kp, err = keys.LoadKeyPairFromFile(c.GetJWTKeyID(), path)
		} else {
			log.Warn().Msg("JWT_PRIVATE_KEY_FILE not set, generating an ephemeral RSA key")
			kp, err = keys.GenerateRSAKeyPair(c.GetJWTKeyID(), 2048)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("newSigner: %w", err)
		}
		signer := keys.NewKeyPairSigner(kp)
		return signer, signer.GetJWKS, nil
	}

	secret := c.GetJWTSecret()
	if secret == "" {
		log.Warn().Msg("JWT_SECRET not set, tokens will not survive a restart")
		generated, err := token.GenerateSecret()
		if err != nil {
			return nil, nil, err
		}
		secret = generated
	}
	signer, err := token.NewHMACSigner(secret)
	if err != nil {
		return nil, nil, err
	}
	return signer, nil, nil
}

// newProviders registers every provider that has client credentials.
func newProviders(ctx context.Context, c config.ProviderConfig) (*identity.Registry, error) {
	opts := []identity.Option{identity.WithTimeout(c.GetProviderTimeout())}

	var providers []identity.Provider
	if gh := c.GetGitHub(); gh.Configured() {
		providers = append(providers, identity.NewGitHub(gh, opts...))
	}
	if ya := c.GetYandex(); ya.Configured() {
		providers = append(providers, identity.NewYandex(ya, opts...))
	}
	if oc := c.GetOIDC(); oc.Configured() {
		discoverCtx, cancel := context.WithTimeout(ctx, c.GetProviderTimeout())
		defer cancel()
		p, err := identity.NewOIDC(discoverCtx, oc, opts...)
		if err != nil {
			return nil, fmt.Errorf("newProviders: %w", err)
		}
		providers = append(providers, p)
	}

	registry := identity.NewRegistry(providers...)
	if len(providers) == 0 {
		log.Warn().Msg("no identity providers configured, only short-code logins are available")
	} else {
		log.Info().Strs("providers", registry.Names()).Msg("identity providers configured")
	}
	return registry, nil
}

func bootstrapAdmins(ctx context.Context, service *auth.Service, emails []string) {
	for _, email := range emails {
		if err := service.GrantRole(ctx, email, permissions.RoleAdmin); err != nil {
			log.Error().Err(err).Str("email", email).Msg("failed to bootstrap admin")
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
