package ports

import (
	"context"
	"time"

	"DocketWatch/internal/domain"
)

// FilingSource queries the external filing API for one docket, most recent first.
type FilingSource interface {
	RecentFilings(ctx context.Context, docket string, limit int) ([]domain.Filing, error)
}

// DocketRepository persists docket monitoring state.
type DocketRepository interface {
	ListMonitored(ctx context.Context) ([]domain.Docket, error)
	GetDocket(ctx context.Context, number string) (domain.Docket, error)
	UpsertDocket(ctx context.Context, docket domain.Docket) error
	UpdateLatestSeen(ctx context.Context, number, filingID string) error
	RecordCheck(ctx context.Context, number string, failed bool, errorThreshold int, at time.Time) error
	MarkDeluged(ctx context.Context, number string, at time.Time) (bool, error)
	ResetDeluged(ctx context.Context, before time.Time) ([]string, error)
}

// FilingRepository persists filings and answers batched existence checks.
type FilingRepository interface {
	ExistingFilingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	SaveFiling(ctx context.Context, filing domain.Filing) error
	GetFilings(ctx context.Context, ids []string) ([]domain.Filing, error)
	RecentFilings(ctx context.Context, docket string, limit int) ([]domain.Filing, error)
}

// QueueRepository persists notification queue items.
type QueueRepository interface {
	Enqueue(ctx context.Context, items []domain.QueueItem) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error)
	Claim(ctx context.Context, ids []string, token string, at time.Time) ([]string, error)
	MarkSent(ctx context.Context, ids []string, token string, at time.Time) error
	MarkFailed(ctx context.Context, ids []string, token string, message string, at time.Time) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)
}

// SubscriptionRepository reads recipients and their docket subscriptions.
type SubscriptionRepository interface {
	SubscriptionsForDocket(ctx context.Context, docket string) ([]domain.Subscription, error)
	PendingSeeds(ctx context.Context, limit int) ([]domain.Subscription, error)
	MarkSeedQueued(ctx context.Context, subscriptionID string, at time.Time) (bool, error)
	GetRecipient(ctx context.Context, id string) (domain.Recipient, error)
}

// TextExtractor turns a document URL into plain text using one provider mode.
type TextExtractor interface {
	Extract(ctx context.Context, documentURL string) (string, error)
}

// Summarizer sends a prompt to an AI provider and returns its free-text answer.
type Summarizer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Mailer delivers one rendered email and returns the provider message id.
type Mailer interface {
	Send(ctx context.Context, msg domain.Email) (string, error)
}

// Locker provides mutual exclusion across drain runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Archive stores extracted document text for later inspection.
type Archive interface {
	Put(ctx context.Context, name, content string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
