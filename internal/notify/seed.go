package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

// Seeder queues the one-time welcome digest for new subscriptions.
type Seeder struct {
	subs    ports.SubscriptionRepository
	filings ports.FilingRepository
	source  ports.FilingSource
	queue   *Queue
	batch   int
	recent  int
	now     func() time.Time
	logger  *slog.Logger
}

// NewSeeder wires the collaborators; source may be nil to use stored filings only.
func NewSeeder(subs ports.SubscriptionRepository, filings ports.FilingRepository, source ports.FilingSource, queue *Queue, batch, recent int, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 50
	}
	if recent <= 0 {
		recent = 5
	}
	return &Seeder{subs: subs, filings: filings, source: source, queue: queue, batch: batch, recent: recent, now: time.Now, logger: logger}
}

// SeedPending queues a seed digest for each subscription that has never had one.
// The subscription is marked before the item is written, so a seed is sent at
// most once even when two runs overlap.
func (s *Seeder) SeedPending(ctx context.Context) (int, error) {
	subs, err := s.subs.PendingSeeds(ctx, s.batch)
	if err != nil {
		return 0, fmt.Errorf("load pending seeds: %w", err)
	}

	queued := 0
	for _, sub := range subs {
		logger := s.logger.With("subscription", sub.ID, "docket", sub.DocketNumber)

		filings, err := s.recentFilings(ctx, sub.DocketNumber)
		if err != nil {
			logger.Warn("load seed filings failed, retrying next run", "error", err)
			continue
		}

		marked, err := s.subs.MarkSeedQueued(ctx, sub.ID, s.now().UTC())
		if err != nil {
			logger.Warn("mark seed queued failed", "error", err)
			continue
		}
		if !marked {
			continue
		}
		if len(filings) == 0 {
			logger.Info("no filings to seed, welcome digest skipped")
			continue
		}

		ids := make([]string, len(filings))
		for i, f := range filings {
			ids[i] = f.ID
		}
		if _, err := s.queue.Enqueue(ctx, EnqueueRequest{
			RecipientID:  sub.RecipientID,
			DocketNumber: sub.DocketNumber,
			DigestType:   domain.DigestSeed,
			FilingIDs:    ids,
			Snapshot:     Snapshot(filings),
		}); err != nil {
			logger.Warn("enqueue seed failed", "error", err)
			continue
		}
		queued++
	}
	return queued, nil
}

func (s *Seeder) recentFilings(ctx context.Context, docket string) ([]domain.Filing, error) {
	var storeErr error
	if s.filings != nil {
		stored, err := s.filings.RecentFilings(ctx, docket, s.recent)
		if err == nil && len(stored) > 0 {
			return stored, nil
		}
		storeErr = err
	}
	if s.source == nil {
		return nil, storeErr
	}
	fetched, err := s.source.RecentFilings(ctx, docket, s.recent)
	if err != nil {
		return nil, fmt.Errorf("fetch recent filings: %w", err)
	}
	return fetched, nil
}
