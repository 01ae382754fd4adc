package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DocketWatch/internal/config"
	"DocketWatch/internal/detection"
	"DocketWatch/internal/enrichment"
	"DocketWatch/internal/infrastructure/archive"
	"DocketWatch/internal/infrastructure/extractor"
	"DocketWatch/internal/infrastructure/httpapi"
	"DocketWatch/internal/infrastructure/llm"
	"DocketWatch/internal/infrastructure/lock"
	"DocketWatch/internal/infrastructure/mailer"
	"DocketWatch/internal/infrastructure/scheduler"
	"DocketWatch/internal/infrastructure/source"
	"DocketWatch/internal/infrastructure/storage"
	"DocketWatch/internal/logging"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/notify"
	"DocketWatch/internal/ports"
	"DocketWatch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	repository *storage.SQLRepository
	pipeline   *usecase.Pipeline
	closers    []func() error
}

// New opens storage, builds every adapter and returns a ready application.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a := &Application{cfg: cfg, logger: baseLogger, db: db}
	a.closers = append(a.closers, db.Close)

	repo := storage.NewSQLRepository(db, cfg.Database.Driver)
	a.repository = repo

	summarizer, err := a.summarizer(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var textArchive ports.Archive
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCSArchive(ctx, cfg.Archive.Bucket)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, gcs.Close)
		textArchive = gcs
	}

	mail, err := mailer.New(cfg.Notifications.Email)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registry := enrichment.NewRegistry()
	extractor.NewClient(cfg.Extraction).Register(registry)
	chain, err := enrichment.NewChain(registry, extractor.Order(), cfg.Extraction.MinTextLength)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build extraction chain: %w", err)
	}

	breaker := enrichment.NewBreaker(summarizer.Name(), cfg.Summarizer.BreakerThreshold, cfg.Summarizer.BreakerCooldown, time.Now)
	analyzer := enrichment.NewAnalyzer(summarizer, breaker, cfg.Summarizer.TextBudget, baseLogger.With("component", "analyzer"))
	enricher := enrichment.NewEnricher(enrichment.EnricherDeps{
		Chain:         chain,
		Analyzer:      analyzer,
		Archive:       textArchive,
		Workers:       cfg.Summarizer.Workers,
		DispatchDelay: cfg.Summarizer.DispatchDelay,
		Logger:        baseLogger.With("component", "enricher"),
	})

	filingSource := source.NewClient(cfg.Source, baseLogger.With("component", "source"))
	n := cfg.Notifications
	renderer := notify.NewRenderer(n.UpgradeURL, n.FreeSummaryChars)
	notice := notify.NewHighActivityNotice(repo, mail, renderer, baseLogger.With("component", "notice"))

	guard := detection.NewGuard(repo, notice, baseLogger.With("component", "guard"))
	detector := detection.NewDetector(
		filingSource, repo, guard,
		detection.NewDeduplicator(repo, baseLogger.With("component", "dedup")),
		detection.Settings{
			QuickCheckLimit: cfg.Detection.QuickCheckLimit,
			TargetedFetch:   cfg.Detection.TargetedFetch,
			FallbackBatch:   cfg.Detection.FallbackBatch,
			ErrorThreshold:  cfg.Detection.ErrorThreshold,
		},
		baseLogger.With("component", "detector"),
	)

	schedule := notify.Schedule{
		Location:   cfg.Scheduler.Location(),
		DailyHour:  n.DailyHour,
		WeeklyDay:  n.Weekday(),
		WeeklyHour: n.WeeklyHour,
	}
	limits := notify.Limits{
		MaxPerRun:                 n.MaxPerRun,
		MaxDocketsPerRecipient:    n.MaxDocketsPerRecipient,
		MaxFilingsPerNotification: n.MaxFilingsPerNotification,
	}
	queue := notify.NewQueue(repo, repo, schedule, limits, baseLogger.With("component", "queue"))

	drainer := notify.NewDrainer(notify.DrainerDeps{
		Items:      repo,
		Subs:       repo,
		Filings:    repo,
		Mailer:     mail,
		Locker:     a.locker(),
		Renderer:   renderer,
		PageSize:   n.DrainPageSize,
		StaleAfter: n.StaleClaimAfter,
		LockTTL:    cfg.Redis.LockTTL,
		Logger:     baseLogger.With("component", "drain"),
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Dockets:     repo,
		Filings:     repo,
		Detector:    detector,
		Guard:       guard,
		Enricher:    enricher,
		Queue:       queue,
		Seeder:      notify.NewSeeder(repo, repo, filingSource, queue, n.SeedBatch, n.SeedFilings, baseLogger.With("component", "seeder")),
		Drainer:     drainer,
		DocketDelay: cfg.Detection.DocketDelay,
		MaxOverride: cfg.Detection.MaxOverride,
		ResetHour:   cfg.Scheduler.ResetHour,
		ResetMinute: cfg.Scheduler.ResetMinute,
		Location:    cfg.Scheduler.Location(),
		Logger:      baseLogger.With("component", "pipeline"),
	})
	return a, nil
}

func (a *Application) summarizer(ctx context.Context) (ports.Summarizer, error) {
	s := a.cfg.Summarizer
	switch s.Provider {
	case "vertex":
		client, err := llm.NewVertexClient(ctx, s.Vertex, s.SystemPrompt)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	case "openai", "":
		return llm.NewChatGPTClient(s.ChatGPT, s.SystemPrompt, s.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", s.Provider)
	}
}

func (a *Application) locker() ports.Locker {
	if a.cfg.Redis.Addr == "" {
		return lock.NewLocalLocker()
	}
	client := lock.NewRedisClient(a.cfg.Redis)
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client)
}

// Pipeline exposes the use cases for one-shot CLI commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Repository exposes storage for administrative commands.
func (a *Application) Repository() *storage.SQLRepository {
	return a.repository
}

// Migrate creates the schema.
func (a *Application) Migrate(ctx context.Context) error {
	return a.repository.Migrate(ctx)
}

// Serve runs the recurring jobs and the admin API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	sc := a.cfg.Scheduler
	jobs := usecase.NewScheduler(usecase.SchedulerDrivers{
		Cycle: scheduler.NewIntervalScheduler(sc.CheckInterval),
		Drain: scheduler.NewIntervalScheduler(sc.DrainInterval),
		Reset: scheduler.NewDailyScheduler(sc.ResetHour, sc.ResetMinute, sc.Location()),
	}, a.pipeline, a.logger.With("component", "scheduler"))
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := &http.Server{
		Addr:              a.cfg.Admin.Addr,
		Handler:           httpapi.NewRouter(a.pipeline, a.cfg.Admin.Token, a.logger.With("component", "admin")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("admin API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(runErr, server.Shutdown(shutdownCtx), jobs.Stop(shutdownCtx))
}

// Close releases every client opened by New, in reverse order.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
