package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scry-reports/internal/api"
	"github.com/phrazzld/scry-reports/internal/artifact"
	"github.com/phrazzld/scry-reports/internal/config"
	"github.com/phrazzld/scry-reports/internal/events"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/narrative"
	"github.com/phrazzld/scry-reports/internal/pipeline"
	"github.com/phrazzld/scry-reports/internal/platform/gemini"
	"github.com/phrazzld/scry-reports/internal/platform/kafka"
	"github.com/phrazzld/scry-reports/internal/platform/postgres"
	"github.com/phrazzld/scry-reports/internal/platform/redis"
	"github.com/phrazzld/scry-reports/internal/scoring"
	"github.com/phrazzld/scry-reports/internal/service/auth"
	"github.com/phrazzld/scry-reports/internal/store"
	"github.com/phrazzld/scry-reports/internal/task"
	"github.com/phrazzld/scry-reports/internal/telemetry"
	"github.com/phrazzld/scry-reports/internal/unit"
	"github.com/prometheus/client_golang/prometheus"
)

// generators are the model-backed collaborators of the pipelines.
type generators struct {
	recognizer generation.Recognizer
	narrator   generation.NarrativeGenerator
}

// application holds every long-lived component of a running server.
type application struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *unit.Registry
	dispatcher *task.Dispatcher
	sweeper    *task.Sweeper
	bridge     *events.Bridge
	handler    http.Handler

	// closers run in reverse order during shutdown.
	closers []func() error
}

// newApplication wires the server against Gemini.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	client, err := gemini.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return buildApplication(ctx, cfg, logger, generators{
		recognizer: gemini.NewRecognizer(client),
		narrator:   gemini.NewNarrator(client),
	})
}

func buildApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	gen generators,
) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err == nil {
			return
		}
		if app.bridge != nil {
			_ = app.bridge.Close(context.Background())
		}
		_ = app.close()
	}()

	app.registry, err = newRegistry(cfg.Units)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New(prometheus.NewRegistry())
	allocator := unit.NewAllocator(app.registry,
		unit.WithRetries(cfg.Scheduler.AcquireRetries),
		unit.WithInterval(cfg.Scheduler.AcquireInterval),
		unit.WithObserver(metrics.UnitAcquired),
		unit.WithLogger(logger),
	)

	pipelines, err := buildPipelines(cfg, gen)
	if err != nil {
		return nil, err
	}

	reports, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	emitter := events.NewInMemoryEmitter(logger)
	emitter.RegisterHandler(events.LogHandler(logger))
	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher, perr := kafka.NewPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logger)
		if perr != nil {
			return nil, perr
		}
		emitter.RegisterHandler(publisher)
		app.closers = append(app.closers, publisher.Close)
	}
	app.bridge = events.NewBridge(emitter, events.DefaultBridgeBuffer, logger)

	app.dispatcher, err = task.NewDispatcher(pipelines, app.registry, allocator, reports,
		task.WithRetention(cfg.Scheduler.Retention),
		task.WithMetrics(metrics),
		task.WithObserver(app.bridge),
		task.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app.sweeper, err = task.NewSweeper(app.dispatcher, cfg.Scheduler.SweepSchedule, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	app.handler = api.NewRouter(api.RouterDeps{
		Scheduler: app.dispatcher,
		Units:     app.registry,
		Tokens:    tokens,
		Metrics:   metrics.Handler(),
		Logger:    logger,
	})
	return app, nil
}

func newRegistry(units []config.UnitConfig) (*unit.Registry, error) {
	registry := unit.NewRegistry()
	for _, u := range units {
		if _, err := registry.Register(u.Capability, u.Instance); err != nil {
			return nil, fmt.Errorf("failed to register unit %s/%s: %w", u.Capability, u.Instance, err)
		}
	}
	return registry, nil
}

// buildPipelines assembles the artifact and questionnaire pipelines.
func buildPipelines(cfg *config.Config, gen generators) ([]*pipeline.Pipeline, error) {
	rules, err := loadRules(cfg.Scoring.RulesPath)
	if err != nil {
		return nil, err
	}
	evaluator := scoring.NewEvaluator(rules)

	prompts, err := narrative.NewPromptBuilder(cfg.LLM.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt template: %w", err)
	}

	source, err := newArtifactRouter(cfg.Storage)
	if err != nil {
		return nil, err
	}

	collaborators := pipeline.Collaborators{
		Source:     source,
		Recognizer: gen.recognizer,
		Evaluator:  evaluator,
		Scorer:     evaluator,
		Narrator:   gen.narrator,
		Prompts:    prompts,
	}

	artifactPipeline, err := pipeline.NewArtifactPipeline(collaborators)
	if err != nil {
		return nil, err
	}
	questionnairePipeline, err := pipeline.NewQuestionnairePipeline(collaborators)
	if err != nil {
		return nil, err
	}
	return []*pipeline.Pipeline{artifactPipeline, questionnairePipeline}, nil
}

func loadRules(path string) (*scoring.RuleSet, error) {
	if path == "" {
		return scoring.DefaultRuleSet()
	}
	rules, err := scoring.LoadRuleSet(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring rules: %w", err)
	}
	return rules, nil
}

// newArtifactRouter serves file:// and bare paths from the artifact root and
// s3:// references from MinIO when an endpoint is configured.
func newArtifactRouter(cfg config.StorageConfig) (*artifact.Router, error) {
	maxBytes := cfg.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = artifact.DefaultMaxBytes
	}
	root := cfg.ArtifactRoot
	if root == "" {
		root = "."
	}

	router := artifact.NewRouter()
	local, err := artifact.NewLocalSource(root, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact root: %w", err)
	}
	router.Handle("file", local)

	if cfg.MinIO.Endpoint != "" {
		remote, err := artifact.NewMinIOSource(artifact.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
		}, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio source: %w", err)
		}
		router.Handle("s3", remote)
	}
	return router, nil
}

// openStore returns the report store for the configured backend. The memory
// backend keeps finished reports in the dispatcher cache only.
func (a *application) openStore(ctx context.Context) (store.ReportStore, error) {
	switch a.config.Storage.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, a.config.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if a.config.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db, "up", a.logger); err != nil {
				return nil, err
			}
		}
		return postgres.NewReportStore(db, a.logger), nil
	case "redis":
		client := redis.NewClient(a.config.Storage.RedisAddr)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redis.NewReportStore(client, a.config.Storage.RedisTTL, a.logger), nil
	case "memory", "":
		a.logger.Warn("report persistence disabled, finished reports live only in memory")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.config.Storage.Backend)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (a *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.sweeper.Start()
	a.logger.Info("starting server",
		"port", a.config.Server.Port,
		"units", len(a.registry.List()),
		"storage", a.config.Storage.Backend)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("server failed", "error", err)
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", "error", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.logger.Info("server stopped")
	return runErr
}

// Shutdown stops the sweeper, drains the dispatcher and flushes events
// before closing the stores.
func (a *application) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.sweeper.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop sweeper: %w", err))
	}
	if err := a.dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain dispatcher: %w", err))
	}
	if err := a.bridge.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush events: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *application) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", "error", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
