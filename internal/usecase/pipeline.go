package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"DocketWatch/internal/detection"
	"DocketWatch/internal/domain"
	"DocketWatch/internal/enrichment"
	"DocketWatch/internal/notify"
	"DocketWatch/internal/ports"
)

var tracer = otel.Tracer("DocketWatch/internal/usecase")

// PipelineDeps wires the detection, enrichment and notification components.
type PipelineDeps struct {
	Dockets     ports.DocketRepository
	Filings     ports.FilingRepository
	Detector    *detection.Detector
	Guard       *detection.Guard
	Enricher    *enrichment.Enricher
	Queue       *notify.Queue
	Seeder      *notify.Seeder
	Drainer     *notify.Drainer
	DocketDelay time.Duration
	MaxOverride int
	ResetHour   int
	ResetMinute int
	Location    *time.Location
	Logger      *slog.Logger
}

// Pipeline implements the docket monitoring workflow.
type Pipeline struct {
	dockets     ports.DocketRepository
	filings     ports.FilingRepository
	detector    *detection.Detector
	guard       *detection.Guard
	enricher    *enrichment.Enricher
	queue       *notify.Queue
	seeder      *notify.Seeder
	drainer     *notify.Drainer
	delay       time.Duration
	maxOverride int
	resetHour   int
	resetMinute int
	loc         *time.Location
	logger      *slog.Logger
}

// CycleReport summarizes one pass over the monitored dockets.
type CycleReport struct {
	Checked  int
	Outcomes map[detection.Outcome]int
	New      int
	Stored   int
	Queued   int
	Seeded   int
}

// CheckReport is the result of an on-demand docket check.
type CheckReport struct {
	Docket  string
	Outcome detection.Outcome
	Limit   int
	New     int
	Stored  int
	Queued  int
	Error   string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		dockets:     deps.Dockets,
		filings:     deps.Filings,
		detector:    deps.Detector,
		guard:       deps.Guard,
		enricher:    deps.Enricher,
		queue:       deps.Queue,
		seeder:      deps.Seeder,
		drainer:     deps.Drainer,
		delay:       deps.DocketDelay,
		maxOverride: deps.MaxOverride,
		resetHour:   deps.ResetHour,
		resetMinute: deps.ResetMinute,
		loc:         loc,
		logger:      logger,
	}
}

// RunCycle checks every monitored docket sequentially, stores and enriches the
// new filings, queues notifications and finally queues pending seed digests.
// Per-docket failures are recorded as outcomes and never abort the cycle.
func (p *Pipeline) RunCycle(ctx context.Context, trigger time.Time) (CycleReport, error) {
	ctx, span := tracer.Start(ctx, "pipeline.cycle")
	defer span.End()

	report := CycleReport{Outcomes: map[detection.Outcome]int{}}
	dockets, err := p.dockets.ListMonitored(ctx)
	if err != nil {
		return report, fmt.Errorf("list monitored dockets: %w", err)
	}

	var (
		fresh   []domain.Filing
		results []detection.Result
	)
	for i, docket := range dockets {
		if i > 0 && p.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.delay):
			}
		}
		if ctx.Err() != nil {
			p.logger.Warn("cycle interrupted", "checked", report.Checked, "remaining", len(dockets)-i)
			break
		}

		result := p.detector.Check(ctx, docket)
		report.Checked++
		report.Outcomes[result.Outcome]++
		results = append(results, result)
		fresh = append(fresh, result.Filings...)
	}
	report.New = len(fresh)

	stored, queued, unsaved := p.processNew(ctx, fresh)
	report.Stored, report.Queued = stored, queued
	p.commitLatest(ctx, results, unsaved)

	if p.seeder != nil {
		seeded, err := p.seeder.SeedPending(ctx)
		if err != nil {
			p.logger.Warn("seed pending subscriptions failed", "error", err)
		}
		report.Seeded = seeded
	}

	span.SetAttributes(
		attribute.Int("dockets", report.Checked),
		attribute.Int("new", report.New),
		attribute.Int("queued", report.Queued),
	)
	p.logger.Info("cycle finished", "trigger", trigger, "checked", report.Checked,
		"new", report.New, "stored", report.Stored, "queued", report.Queued, "seeded", report.Seeded)
	return report, nil
}

// CheckDocket runs detection for one docket with a clamped filing-count override.
// A limit of zero uses the configured targeted-fetch size.
func (p *Pipeline) CheckDocket(ctx context.Context, number string, limit int) (CheckReport, error) {
	docket, err := p.dockets.GetDocket(ctx, number)
	if err != nil {
		return CheckReport{}, fmt.Errorf("load docket %s: %w", number, err)
	}
	if limit != 0 {
		limit = detection.ClampLimit(limit, p.maxOverride)
	}

	result := p.detector.CheckWithLimit(ctx, docket, limit)
	report := CheckReport{Docket: number, Outcome: result.Outcome, Limit: limit, New: len(result.Filings)}
	if result.Err != nil {
		report.Error = result.Err.Error()
	}
	stored, queued, unsaved := p.processNew(ctx, result.Filings)
	report.Stored, report.Queued = stored, queued
	p.commitLatest(ctx, []detection.Result{result}, unsaved)
	return report, nil
}

// Drain delivers every due notification.
func (p *Pipeline) Drain(ctx context.Context) (notify.DrainStats, error) {
	if p.drainer == nil {
		return notify.DrainStats{}, errors.New("drainer not configured")
	}
	return p.drainer.Drain(ctx)
}

// DailyReset clears deluge flags set before the most recent reset boundary.
func (p *Pipeline) DailyReset(ctx context.Context, now time.Time) ([]string, error) {
	return p.guard.DailyReset(ctx, ResetBoundary(now, p.resetHour, p.resetMinute, p.loc))
}

// ResetBoundary returns the latest hour:minute in loc at or before now.
func ResetBoundary(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	boundary := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if boundary.After(local) {
		boundary = time.Date(local.Year(), local.Month(), local.Day()-1, hour, minute, 0, 0, loc)
	}
	return boundary
}

// processNew enriches, stores and queues the filings. unsaved holds the dockets
// with at least one filing that could not be stored.
func (p *Pipeline) processNew(ctx context.Context, filings []domain.Filing) (stored, queued int, unsaved map[string]bool) {
	unsaved = map[string]bool{}
	if len(filings) == 0 {
		return 0, 0, unsaved
	}

	if p.enricher != nil {
		filings = p.enricher.EnrichBatch(ctx, filings)
	}

	saved := make([]domain.Filing, 0, len(filings))
	for _, filing := range filings {
		if ctx.Err() != nil {
			unsaved[filing.DocketNumber] = true
			continue
		}
		err := p.filings.SaveFiling(ctx, filing)
		switch {
		case errors.Is(err, domain.ErrDuplicateFiling):
			p.logger.Debug("filing already stored", "docket", filing.DocketNumber, "filing", filing.ID)
		case err != nil:
			p.logger.Warn("persist filing failed", "docket", filing.DocketNumber, "filing", filing.ID, "error", err)
			unsaved[filing.DocketNumber] = true
		default:
			saved = append(saved, filing)
		}
	}

	if p.queue == nil || len(saved) == 0 {
		return len(saved), 0, unsaved
	}
	stats, err := p.queue.QueueForNewFilings(ctx, notify.GroupByDocket(saved))
	if err != nil {
		p.logger.Warn("queue notifications failed", "filings", len(saved), "error", err)
	}
	return len(saved), stats.Queued, unsaved
}

// commitLatest records the quick-check identifier for dockets whose new filings
// were all stored. The rest keep their old marker and are detected again.
func (p *Pipeline) commitLatest(ctx context.Context, results []detection.Result, unsaved map[string]bool) {
	for _, r := range results {
		if r.Latest == "" {
			continue
		}
		if unsaved[r.Docket] {
			p.logger.Warn("latest seen kept until filings are stored", "docket", r.Docket, "latest", r.Latest)
			continue
		}
		if err := p.dockets.UpdateLatestSeen(ctx, r.Docket, r.Latest); err != nil {
			p.logger.Warn("advance latest seen failed", "docket", r.Docket, "error", err)
		}
	}
}
