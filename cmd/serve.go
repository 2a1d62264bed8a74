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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/brightlane/crm-intake/pkg/crm"
	"github.com/brightlane/crm-intake/pkg/db"
	"github.com/brightlane/crm-intake/pkg/httpapi"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/intake/ai"
	"github.com/brightlane/crm-intake/pkg/intake/events"
	"github.com/brightlane/crm-intake/pkg/intake/observability"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// ServeCmd runs the intake HTTP service.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intake HTTP service",
	Long: `Run the intake HTTP service.

The service exposes the intake API under /api/v1/email-intakes, inbound
webhook endpoints under /webhooks/{provider}, and operational endpoints
(/healthz, /metrics, /version). It requires PostgreSQL; Redis is optional
and enables the event bus.`,
	RunE: runServe,
}

func runServe(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "crm-intake")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.ConnectWithRetry(ctx, &cfg.DB, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	logger.Info("database ready", logging.F("host", cfg.DB.Host), logging.F("database", cfg.DB.Database))

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	prometheus.MustRegister(db.NewPoolStatsCollector(pool, "crm_intake"))

	var publisher intake.EventPublisher
	if cfg.Events.Enabled() {
		redisPublisher, err := events.NewRedisPublisherFromConfig(cfg.Events.Redis(), logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisPublisher.Close()
		publisher = redisPublisher
		logger.Info("event bus enabled", logging.F("addr", cfg.Events.Redis().Addr()))
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("event bus not configured, logging events instead")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()
	logger.Info("llm provider configured",
		logging.F("provider", provider.Name()),
		logging.F("model", cfg.AI.Model))

	engine := ai.NewEngine(provider, logger)

	pipeline := intake.NewPipeline(intake.PipelineDeps{
		Lookup:     crm.NewPostgresLookup(pool, logger),
		Analyzer:   engine,
		Policy:     intake.Policy{AutoApproveThreshold: cfg.Policy.AutoApproveThreshold},
		Repository: intake.NewPostgresRepository(pool, logger),
		Publisher:  publisher,
		Metrics:    metrics,
		Logger:     logger,
	})
	workflow := intake.NewDecisionWorkflow(
		intake.NewPostgresRepository(pool, logger),
		intake.NewStubTaskService(logger),
		intake.NewStubDealService(logger),
		publisher,
		metrics,
		logger,
	)

	api := httpapi.NewServer(httpapi.ServerConfig{
		Processor:  pipeline,
		Decider:    workflow,
		Repository: intake.NewPostgresRepository(pool, logger),
		Health: func(ctx context.Context) error {
			return db.Ping(ctx, pool)
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logging.F("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
