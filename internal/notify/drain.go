package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

const drainLockKey = "docketwatch:drain"

var tracer = otel.Tracer("DocketWatch/internal/notify")

// DrainerDeps wires the drain consumer.
type DrainerDeps struct {
	Items      ports.QueueRepository
	Subs       ports.SubscriptionRepository
	Filings    ports.FilingRepository
	Mailer     ports.Mailer
	Locker     ports.Locker
	Renderer   *Renderer
	PageSize   int
	StaleAfter time.Duration
	LockTTL    time.Duration
	Logger     *slog.Logger
}

// DrainStats reports what one drain run did.
type DrainStats struct {
	Skipped  bool
	Due      int
	Groups   int
	Sent     int
	Failed   int
	Released int
}

// Drainer delivers due queue items grouped by recipient and digest type.
type Drainer struct {
	items      ports.QueueRepository
	subs       ports.SubscriptionRepository
	filings    ports.FilingRepository
	mailer     ports.Mailer
	locker     ports.Locker
	renderer   *Renderer
	pageSize   int
	staleAfter time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewDrainer constructs the drain consumer.
func NewDrainer(deps DrainerDeps) *Drainer {
	d := &Drainer{
		items:      deps.Items,
		subs:       deps.Subs,
		filings:    deps.Filings,
		mailer:     deps.Mailer,
		locker:     deps.Locker,
		renderer:   deps.Renderer,
		pageSize:   deps.PageSize,
		staleAfter: deps.StaleAfter,
		lockTTL:    deps.LockTTL,
		now:        time.Now,
		logger:     deps.Logger,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.pageSize <= 0 {
		d.pageSize = 100
	}
	if d.staleAfter <= 0 {
		d.staleAfter = 30 * time.Minute
	}
	if d.lockTTL <= 0 {
		d.lockTTL = 10 * time.Minute
	}
	if d.renderer == nil {
		d.renderer = NewRenderer("", 0)
	}
	return d
}

type group struct {
	recipientID string
	digest      domain.DigestType
	items       []domain.QueueItem
}

// Drain runs one pass over due items. Only one drain may run at a time; a
// concurrent call returns with Skipped set. Group failures are recorded on the
// items and never stop the remaining groups.
func (d *Drainer) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats

	if d.locker != nil {
		release, ok, err := d.locker.Acquire(ctx, drainLockKey, d.lockTTL)
		if err != nil {
			return stats, fmt.Errorf("acquire drain lock: %w", err)
		}
		if !ok {
			d.logger.Info("drain already running, skipping")
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("release drain lock failed", "error", err)
			}
		}()
	}

	started := time.Now()
	defer func() { metrics.DrainDuration.Observe(time.Since(started).Seconds()) }()

	now := d.now().UTC()
	released, err := d.items.ReleaseStale(ctx, now.Add(-d.staleAfter))
	if err != nil {
		d.logger.Warn("release stale claims failed", "error", err)
	} else if released > 0 {
		d.logger.Warn("released stale claims", "count", released)
	}
	stats.Released = released

	due, err := d.items.ListDue(ctx, now, d.pageSize)
	if err != nil {
		return stats, fmt.Errorf("list due items: %w", err)
	}
	stats.Due = len(due)

	for _, g := range groupDue(due) {
		if ctx.Err() != nil {
			break
		}
		stats.Groups++
		sent, failed := d.deliver(ctx, g)
		stats.Sent += sent
		stats.Failed += failed
	}

	if stats.Due > 0 {
		d.logger.Info("drain finished", "due", stats.Due, "groups", stats.Groups, "sent", stats.Sent, "failed", stats.Failed)
	}
	return stats, nil
}

func (d *Drainer) deliver(ctx context.Context, g group) (sent, failed int) {
	ctx, span := tracer.Start(ctx, "notify.group")
	span.SetAttributes(
		attribute.String("recipient", g.recipientID),
		attribute.String("digest", string(g.digest)),
		attribute.Int("items", len(g.items)),
	)
	defer span.End()

	logger := d.logger.With("recipient", g.recipientID, "digest", g.digest)
	token := uuid.NewString()

	ids := make([]string, len(g.items))
	for i, item := range g.items {
		ids[i] = item.ID
	}
	claimed, err := d.items.Claim(ctx, ids, token, d.now().UTC())
	if err != nil {
		logger.Warn("claim failed", "error", err)
		return 0, 0
	}
	if len(claimed) == 0 {
		logger.Debug("group already claimed elsewhere")
		return 0, 0
	}
	items := onlyClaimed(g.items, claimed)

	msgID, err := d.send(ctx, g, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("delivery failed", "items", len(claimed), "error", err)
		if markErr := d.items.MarkFailed(ctx, claimed, token, err.Error(), d.now().UTC()); markErr != nil {
			logger.Error("mark failed", "error", markErr)
		}
		metrics.NotificationsDeliveredTotal.WithLabelValues(string(g.digest), string(domain.QueueFailed)).Add(float64(len(claimed)))
		return 0, len(claimed)
	}

	if err := d.items.MarkSent(ctx, claimed, token, d.now().UTC()); err != nil {
		logger.Error("mark sent failed, items will be released as stale", "error", err)
	}
	metrics.NotificationsDeliveredTotal.WithLabelValues(string(g.digest), string(domain.QueueSent)).Add(float64(len(claimed)))
	logger.Info("digest delivered", "items", len(claimed), "message_id", msgID)
	return len(claimed), 0
}

func (d *Drainer) send(ctx context.Context, g group, items []domain.QueueItem) (string, error) {
	if d.mailer == nil {
		return "", errors.New("no mailer configured")
	}
	recipient, err := d.subs.GetRecipient(ctx, g.recipientID)
	if err != nil {
		return "", fmt.Errorf("resolve recipient: %w", err)
	}

	sections := make([]Section, 0, len(items))
	for _, item := range items {
		sections = append(sections, Section{Docket: item.DocketNumber, Filings: d.freshFilings(ctx, item)})
	}

	email, err := d.renderer.Render(recipient, g.digest, sections)
	if err != nil {
		return "", err
	}
	msgID, err := d.mailer.Send(ctx, email)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return msgID, nil
}

// freshFilings prefers stored filings, which may carry enrichment finished after
// the item was queued, and falls back to the inline snapshot.
func (d *Drainer) freshFilings(ctx context.Context, item domain.QueueItem) []domain.Filing {
	if d.filings != nil && len(item.FilingIDs) > 0 {
		fresh, err := d.filings.GetFilings(ctx, item.FilingIDs)
		if err != nil {
			d.logger.Warn("load filings failed, using snapshot", "item", item.ID, "error", err)
		} else if len(fresh) > 0 {
			return fresh
		}
	}
	return item.Snapshot
}

func groupDue(items []domain.QueueItem) []group {
	type key struct {
		recipient string
		digest    domain.DigestType
	}
	var (
		recipients []string
		digests    = map[string][]domain.DigestType{}
		byKey      = map[key]*group{}
	)
	for _, item := range items {
		k := key{item.RecipientID, item.DigestType}
		g, ok := byKey[k]
		if !ok {
			if _, seen := digests[item.RecipientID]; !seen {
				recipients = append(recipients, item.RecipientID)
			}
			digests[item.RecipientID] = append(digests[item.RecipientID], item.DigestType)
			g = &group{recipientID: item.RecipientID, digest: item.DigestType}
			byKey[k] = g
		}
		g.items = append(g.items, item)
	}

	out := make([]group, 0, len(byKey))
	for _, r := range recipients {
		for _, dt := range digests[r] {
			out = append(out, *byKey[key{r, dt}])
		}
	}
	return out
}

func onlyClaimed(items []domain.QueueItem, claimed []string) []domain.QueueItem {
	set := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		set[id] = struct{}{}
	}
	out := make([]domain.QueueItem, 0, len(claimed))
	for _, item := range items {
		if _, ok := set[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}
