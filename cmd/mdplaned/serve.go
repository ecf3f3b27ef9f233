package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/albri/mdplane-sub004/internal/admission"
	"github.com/albri/mdplane-sub004/internal/appconfig"
	"github.com/albri/mdplane-sub004/internal/clientip"
	"github.com/albri/mdplane-sub004/internal/db"
	"github.com/albri/mdplane-sub004/internal/eventbus"
	"github.com/albri/mdplane-sub004/internal/httpapi"
	"github.com/albri/mdplane-sub004/internal/ratelimit"
	"github.com/albri/mdplane-sub004/internal/scheduler"
	"github.com/albri/mdplane-sub004/internal/ssrf"
	"github.com/albri/mdplane-sub004/internal/store/pgstore"
	"github.com/albri/mdplane-sub004/internal/webhook"
	"github.com/albri/mdplane-sub004/internal/wstoken"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP admission and distribution server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appconfig.Load()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "mdplaned").Logger()
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("MP_JWT_SECRET is required outside dev mode")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	capabilityKeys := pgstore.NewCapabilityKeyStore(pool)
	webhooks := pgstore.NewWebhookStore(pool)
	deliveries := pgstore.NewWebhookDeliveryStore(pool)
	appends := pgstore.NewAppendStore(pool)
	files := pgstore.NewFileStore(pool)
	rateLimits := pgstore.NewRateLimitStore(pool)

	rateLimitEngine := ratelimit.New(rateLimits, cfg.RateLimit)

	admissionCfg := admission.Config{
		IPPolicy: clientip.Policy{
			TrustProxyHeaders:              cfg.TrustProxyHeaders,
			TrustSingleXForwardedFor:       cfg.TrustSingleXForwardedFor,
			TrustedProxySharedSecret:       cfg.TrustedProxySharedSecret,
			TrustedProxySharedSecretHeader: cfg.TrustedProxySharedSecretHeader,
		},
		RequireTrustedIPForAnonymousOps: cfg.RequireTrustedIPForAnonymousOps,
	}

	ssrfCfg := ssrf.Config{
		AllowHTTP:           cfg.AllowHTTPWebhooks,
		IntegrationTestMode: cfg.IntegrationTestMode,
		TestAllowHosts:      cfg.WebhookTestAllowHosts,
	}

	bus := eventbus.New()
	trigger := webhook.New(webhooks, deliveries, ssrfCfg)
	bus.Subscribe(trigger.Handle)

	sched := scheduler.New(scheduler.Config{
		RateLimitMaxWindow: cfg.RateLimitMaxWindow(),
	}, appends, rateLimits, files, deliveries, bus)
	if !cfg.DisableBackgroundJobs {
		sched.Start()
	}

	srv := &httpapi.Server{
		CapabilityKeys:    capabilityKeys,
		Webhooks:          webhooks,
		WebhookDeliveries: deliveries,
		Appends:           appends,
		Files:             files,
		RateLimitEngine:   rateLimitEngine,
		AdmissionConfig:   admissionCfg,
		WSTokens:          wstoken.NewService([]byte(cfg.JWTSecret)),
		EventBus:          bus,
		SSRFConfig:        ssrfCfg,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	if !cfg.DisableBackgroundJobs {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}
