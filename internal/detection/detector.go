package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

// Outcome classifies a single docket check.
type Outcome string

const (
	OutcomeNoFilings    Outcome = "no_filings"
	OutcomeNoNew        Outcome = "no_new"
	OutcomeDelugeActive Outcome = "deluge_active"
	OutcomeDeluge       Outcome = "deluge"
	OutcomeNewFound     Outcome = "new_found"
	OutcomeFallback     Outcome = "fallback"
	OutcomeError        Outcome = "error"
)

// Result is the outcome of one docket check plus the new filings, most recent first.
// Latest is the quick-check identifier the caller records as latest seen once
// every filing in Filings is stored; it is empty when nothing is pending.
type Result struct {
	Docket  string
	Outcome Outcome
	Filings []domain.Filing
	Latest  string
	Err     error
}

// Settings holds the fetch bounds used by the detector.
type Settings struct {
	QuickCheckLimit int
	TargetedFetch   int
	FallbackBatch   int
	ErrorThreshold  int
}

// DefaultSettings returns the production fetch bounds.
func DefaultSettings() Settings {
	return Settings{QuickCheckLimit: 1, TargetedFetch: 7, FallbackBatch: 10, ErrorThreshold: 5}
}

// Detector runs the quick check / targeted fetch algorithm for one docket at a time.
type Detector struct {
	source   ports.FilingSource
	dockets  ports.DocketRepository
	guard    *Guard
	dedup    *Deduplicator
	settings Settings
	now      func() time.Time
	logger   *slog.Logger
}

// NewDetector wires the source client, docket state and the dedup/deluge collaborators.
// A nil guard is replaced by one without a high-activity notifier.
func NewDetector(source ports.FilingSource, dockets ports.DocketRepository, guard *Guard, dedup *Deduplicator, settings Settings, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = NewGuard(dockets, nil, logger)
	}
	def := DefaultSettings()
	if settings.QuickCheckLimit <= 0 {
		settings.QuickCheckLimit = def.QuickCheckLimit
	}
	if settings.TargetedFetch <= 0 {
		settings.TargetedFetch = def.TargetedFetch
	}
	if settings.FallbackBatch <= 0 {
		settings.FallbackBatch = def.FallbackBatch
	}
	if settings.ErrorThreshold <= 0 {
		settings.ErrorThreshold = def.ErrorThreshold
	}
	return &Detector{
		source:   source,
		dockets:  dockets,
		guard:    guard,
		dedup:    dedup,
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// Check runs detection with the configured targeted-fetch bound.
func (d *Detector) Check(ctx context.Context, docket domain.Docket) Result {
	return d.CheckWithLimit(ctx, docket, d.settings.TargetedFetch)
}

// CheckWithLimit runs detection with an explicit targeted-fetch bound. Failures never
// escape: they degrade to a fallback fetch and finally to an error outcome.
func (d *Detector) CheckWithLimit(ctx context.Context, docket domain.Docket, limit int) Result {
	if limit <= 0 {
		limit = d.settings.TargetedFetch
	}
	logger := d.logger.With("docket", docket.Number)

	if d.guard.IsSuspended(docket) {
		metrics.DetectionOutcomesTotal.WithLabelValues(string(OutcomeDelugeActive)).Inc()
		logger.Debug("docket suspended, skipping fetch")
		return Result{Docket: docket.Number, Outcome: OutcomeDelugeActive}
	}

	result, err := d.detect(ctx, docket, limit)
	if err != nil {
		logger.Warn("detection failed, using fallback fetch", "error", err)
		result = d.fallback(ctx, docket, err)
	}

	d.recordCheck(ctx, docket, result)
	metrics.DetectionOutcomesTotal.WithLabelValues(string(result.Outcome)).Inc()
	logger.Info("docket checked", "outcome", result.Outcome, "new", len(result.Filings))
	return result
}

func (d *Detector) detect(ctx context.Context, docket domain.Docket, limit int) (Result, error) {
	quick, err := d.source.RecentFilings(ctx, docket.Number, d.settings.QuickCheckLimit)
	if err != nil {
		return Result{}, fmt.Errorf("quick check: %w", err)
	}
	if len(quick) == 0 {
		return Result{Docket: docket.Number, Outcome: OutcomeNoFilings}, nil
	}

	latest := quick[0].ID
	if latest == "" {
		return Result{}, errors.New("quick check returned filing without identifier")
	}
	if latest == docket.LatestSeenFilingID {
		return Result{Docket: docket.Number, Outcome: OutcomeNoNew}, nil
	}

	if docket.LatestSeenFilingID == "" {
		// First observation: record a baseline instead of treating history as new.
		if err := d.dockets.UpdateLatestSeen(ctx, docket.Number, latest); err != nil {
			return Result{}, fmt.Errorf("store baseline: %w", err)
		}
		return Result{Docket: docket.Number, Outcome: OutcomeNoNew}, nil
	}

	candidates, err := d.source.RecentFilings(ctx, docket.Number, limit)
	if err != nil {
		return Result{}, fmt.Errorf("targeted fetch: %w", err)
	}

	fresh := d.dedup.Filter(ctx, candidates)
	if len(fresh) >= limit {
		if err := d.dockets.UpdateLatestSeen(ctx, docket.Number, latest); err != nil {
			return Result{}, fmt.Errorf("advance latest seen: %w", err)
		}
		if _, err := d.guard.Trip(ctx, docket.Number); err != nil {
			return Result{}, err
		}
		return Result{Docket: docket.Number, Outcome: OutcomeDeluge}, nil
	}

	if len(fresh) == 0 {
		// Everything up to latest is already stored.
		if err := d.dockets.UpdateLatestSeen(ctx, docket.Number, latest); err != nil {
			return Result{}, fmt.Errorf("advance latest seen: %w", err)
		}
		return Result{Docket: docket.Number, Outcome: OutcomeNoNew}, nil
	}
	return Result{Docket: docket.Number, Outcome: OutcomeNewFound, Filings: fresh, Latest: latest}, nil
}

func (d *Detector) fallback(ctx context.Context, docket domain.Docket, cause error) Result {
	candidates, err := d.source.RecentFilings(ctx, docket.Number, d.settings.FallbackBatch)
	if err != nil {
		return Result{Docket: docket.Number, Outcome: OutcomeError, Err: errors.Join(cause, err)}
	}
	return Result{
		Docket:  docket.Number,
		Outcome: OutcomeFallback,
		Filings: d.dedup.Filter(ctx, candidates),
		Err:     cause,
	}
}

func (d *Detector) recordCheck(ctx context.Context, docket domain.Docket, result Result) {
	failed := result.Outcome == OutcomeError
	if err := d.dockets.RecordCheck(ctx, docket.Number, failed, d.settings.ErrorThreshold, d.now().UTC()); err != nil {
		d.logger.Warn("record check failed", "docket", docket.Number, "error", err)
	}
}

// ClampLimit bounds an on-demand filing-count override to [1, max].
func ClampLimit(limit, max int) int {
	if max <= 0 {
		max = 50
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
