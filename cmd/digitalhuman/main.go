// Command digitalhuman runs the conversational event service: the
// router, connection gateway, persona, live-platform ingestion, and the
// HTTP status API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"digitalhuman/internal/api"
	"digitalhuman/internal/audit"
	"digitalhuman/internal/bus"
	"digitalhuman/internal/config"
	"digitalhuman/internal/gateway"
	"digitalhuman/internal/live"
	"digitalhuman/internal/observability"
	"digitalhuman/internal/persona"
	"digitalhuman/internal/validate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "digitalhuman",
		Short:        "Conversational persona event service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (yaml or json)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

func run(parent context.Context, configPath, logLevel string) error {
	logger := newLogger(logLevel)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.FromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting digital human service", slog.String("persona", cfg.Persona.Name))

	auditStore, err := newAuditStore(cfg.Audit)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	metrics := observability.NewMetricsRecorder()
	spans := observability.NewSpanManager()

	validator := validate.New(
		validate.RulesFromConfig(cfg.Validation.Rules),
		validate.WithLogger(logger),
	)

	router := bus.New(bus.Config{
		MailboxSize: cfg.Bus.MailboxSize,
		Validator:   validator,
		Audit:       auditStore,
		Logger:      logger,
		Metrics:     metrics,
		Spans:       spans,
	})
	defer router.Close()

	gw := gateway.New(gateway.Config{
		MailboxSize:       cfg.Gateway.MailboxSize,
		OutboundQueueSize: cfg.Gateway.OutboundQueueSize,
		Publisher:         router,
		Logger:            logger,
		Metrics:           metrics,
	})
	defer gw.Close()

	p := persona.New(persona.Config{
		Name:         cfg.Persona.Name,
		Personality:  cfg.Persona.Personality,
		ReplyTimeout: parseReplyTimeout(cfg.Persona.ReplyTimeout),
		Publisher:    router,
		Logger:       logger,
		Metrics:      metrics,
		Spans:        spans,
	})
	defer p.Close()

	router.RegisterConversation(p)
	router.RegisterGateway(gw)

	streams := live.NewManager(router, logger)
	defer streams.Close()
	for _, sc := range live.StreamsFromConfig(cfg.Platforms) {
		if err := streams.AddStream(sc); err != nil {
			logger.Warn("stream not started",
				slog.String("platform", string(sc.Platform)),
				slog.String("error", err.Error()),
			)
		}
	}

	statusAPI := api.New(p, gw, auditStore, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: statusAPI.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status api listening", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newAuditStore(cfg config.AuditConfig) (audit.Store, error) {
	if cfg.Path == "" {
		return audit.NewMemoryStore(), nil
	}
	store, err := audit.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return store, nil
}

func parseReplyTimeout(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
