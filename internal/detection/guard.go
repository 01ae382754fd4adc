package detection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

// HighActivityNotifier tells a docket's subscribers that monitoring is suspended.
type HighActivityNotifier interface {
	NotifyHighActivity(ctx context.Context, docket string) error
}

// Guard owns the per-docket deluge state: normal -> deluged -> normal.
type Guard struct {
	dockets  ports.DocketRepository
	notifier HighActivityNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewGuard wires docket persistence and the optional high-activity notifier.
func NewGuard(dockets ports.DocketRepository, notifier HighActivityNotifier, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{dockets: dockets, notifier: notifier, now: time.Now, logger: logger}
}

// IsSuspended reports whether the docket is currently deluged.
func (g *Guard) IsSuspended(docket domain.Docket) bool {
	return docket.Suspended()
}

// Trip persists the deluged state. Only the call that performs the transition
// sends the high-activity notice, so concurrent or repeated trips notify once.
func (g *Guard) Trip(ctx context.Context, docket string) (bool, error) {
	changed, err := g.dockets.MarkDeluged(ctx, docket, g.now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark deluged %s: %w", docket, err)
	}
	if !changed {
		return false, nil
	}

	metrics.DelugeTripsTotal.Inc()
	g.logger.Warn("docket suspended after filing burst", "docket", docket)

	if g.notifier != nil {
		if err := g.notifier.NotifyHighActivity(ctx, docket); err != nil {
			g.logger.Warn("high activity notice failed", "docket", docket, "error", err)
		}
	}
	return true, nil
}

// DailyReset returns every docket deluged before boundary to active. Running it
// again for the same boundary finds nothing to clear.
func (g *Guard) DailyReset(ctx context.Context, boundary time.Time) ([]string, error) {
	cleared, err := g.dockets.ResetDeluged(ctx, boundary.UTC())
	if err != nil {
		return nil, fmt.Errorf("reset deluged: %w", err)
	}
	if len(cleared) > 0 {
		g.logger.Info("deluge flags cleared", "count", len(cleared), "boundary", boundary)
	}
	return cleared, nil
}
