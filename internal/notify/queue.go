package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

// Limits caps how many queue items one batch of new filings may generate.
type Limits struct {
	MaxPerRun                 int
	MaxDocketsPerRecipient    int
	MaxFilingsPerNotification int
}

// DefaultLimits returns 500 items per run, 25 dockets per recipient, 20 filings per item.
func DefaultLimits() Limits {
	return Limits{MaxPerRun: 500, MaxDocketsPerRecipient: 25, MaxFilingsPerNotification: 20}
}

// EnqueueRequest describes one delivery to schedule.
type EnqueueRequest struct {
	RecipientID  string
	DocketNumber string
	DigestType   domain.DigestType
	FilingIDs    []string
	Snapshot     []domain.Filing
}

// QueueStats summarizes one QueueForNewFilings call.
type QueueStats struct {
	Queued    int
	Truncated []string
}

// Queue creates pending notification items with computed send times.
type Queue struct {
	items    ports.QueueRepository
	subs     ports.SubscriptionRepository
	schedule Schedule
	limits   Limits
	now      func() time.Time
	logger   *slog.Logger
}

// NewQueue wires queue and subscription persistence.
func NewQueue(items ports.QueueRepository, subs ports.SubscriptionRepository, schedule Schedule, limits Limits, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultLimits()
	if limits.MaxPerRun <= 0 {
		limits.MaxPerRun = def.MaxPerRun
	}
	if limits.MaxDocketsPerRecipient <= 0 {
		limits.MaxDocketsPerRecipient = def.MaxDocketsPerRecipient
	}
	if limits.MaxFilingsPerNotification <= 0 {
		limits.MaxFilingsPerNotification = def.MaxFilingsPerNotification
	}
	return &Queue{items: items, subs: subs, schedule: schedule, limits: limits, now: time.Now, logger: logger}
}

// Enqueue persists one pending item scheduled according to its digest type.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (domain.QueueItem, error) {
	item := q.build(req, q.now())
	if err := q.items.Enqueue(ctx, []domain.QueueItem{item}); err != nil {
		return domain.QueueItem{}, fmt.Errorf("enqueue %s/%s: %w", req.RecipientID, req.DocketNumber, err)
	}
	metrics.NotificationsQueuedTotal.WithLabelValues(string(item.DigestType)).Inc()
	return item, nil
}

// QueueForNewFilings creates one item per (subscriber, docket) for freshly stored
// filings, in docket order. Fan-out limits truncate rather than fail.
func (q *Queue) QueueForNewFilings(ctx context.Context, byDocket []DocketFilings) (QueueStats, error) {
	var (
		stats   QueueStats
		pending []domain.QueueItem
		now     = q.now()
		perUser = map[string]int{}
		warned  = map[string]bool{}
	)

	truncate := func(limit string, args ...any) {
		stats.Truncated = append(stats.Truncated, limit)
		metrics.FanoutTruncationsTotal.WithLabelValues(limit).Inc()
		q.logger.Warn("fan-out limit reached, truncating", append([]any{"limit", limit}, args...)...)
	}

docketLoop:
	for _, group := range byDocket {
		if len(group.Filings) == 0 {
			continue
		}
		subs, err := q.subs.SubscriptionsForDocket(ctx, group.Docket)
		if err != nil {
			q.logger.Warn("load subscriptions failed", "docket", group.Docket, "error", err)
			continue
		}
		if len(subs) == 0 {
			continue
		}

		filings := group.Filings
		if len(filings) > q.limits.MaxFilingsPerNotification {
			truncate("filings_per_notification", "docket", group.Docket, "filings", len(filings), "max", q.limits.MaxFilingsPerNotification)
			filings = filings[:q.limits.MaxFilingsPerNotification]
		}
		ids := make([]string, len(filings))
		for i, f := range filings {
			ids[i] = f.ID
		}
		snapshot := Snapshot(filings)

		for _, sub := range subs {
			if len(pending) >= q.limits.MaxPerRun {
				truncate("per_run", "queued", len(pending), "max", q.limits.MaxPerRun)
				break docketLoop
			}
			if perUser[sub.RecipientID] >= q.limits.MaxDocketsPerRecipient {
				if !warned[sub.RecipientID] {
					warned[sub.RecipientID] = true
					truncate("dockets_per_recipient", "recipient", sub.RecipientID, "max", q.limits.MaxDocketsPerRecipient)
				}
				continue
			}
			perUser[sub.RecipientID]++

			digest := sub.DigestType
			if !digest.Valid() || digest == domain.DigestSeed {
				digest = domain.DigestDaily
			}
			pending = append(pending, q.build(EnqueueRequest{
				RecipientID:  sub.RecipientID,
				DocketNumber: group.Docket,
				DigestType:   digest,
				FilingIDs:    ids,
				Snapshot:     snapshot,
			}, now))
		}
	}

	if len(pending) == 0 {
		return stats, nil
	}
	if err := q.items.Enqueue(ctx, pending); err != nil {
		return stats, fmt.Errorf("enqueue batch: %w", err)
	}
	for _, item := range pending {
		metrics.NotificationsQueuedTotal.WithLabelValues(string(item.DigestType)).Inc()
	}
	stats.Queued = len(pending)
	return stats, nil
}

func (q *Queue) build(req EnqueueRequest, now time.Time) domain.QueueItem {
	return domain.QueueItem{
		ID:           uuid.NewString(),
		RecipientID:  req.RecipientID,
		DocketNumber: req.DocketNumber,
		FilingIDs:    req.FilingIDs,
		Snapshot:     req.Snapshot,
		DigestType:   req.DigestType,
		Status:       domain.QueuePending,
		ScheduledFor: NextSendTime(req.DigestType, now, q.schedule).UTC(),
		CreatedAt:    now.UTC(),
	}
}

// DocketFilings groups newly stored filings under their docket.
type DocketFilings struct {
	Docket  string
	Filings []domain.Filing
}

// GroupByDocket keeps first-appearance docket order.
func GroupByDocket(filings []domain.Filing) []DocketFilings {
	index := map[string]int{}
	var out []DocketFilings
	for _, f := range filings {
		i, ok := index[f.DocketNumber]
		if !ok {
			i = len(out)
			index[f.DocketNumber] = i
			out = append(out, DocketFilings{Docket: f.DocketNumber})
		}
		out[i].Filings = append(out[i].Filings, f)
	}
	return out
}

// Snapshot copies filing metadata and analysis without extracted text or raw payloads.
func Snapshot(filings []domain.Filing) []domain.Filing {
	out := make([]domain.Filing, len(filings))
	for i, f := range filings {
		f.Raw = nil
		atts := make([]domain.Attachment, len(f.Attachments))
		for j, att := range f.Attachments {
			att.Text = ""
			atts[j] = att
		}
		f.Attachments = atts
		out[i] = f
	}
	return out
}
