package domain

import "time"

// DigestType is the delivery cadence of a queued notification.
type DigestType string

const (
	DigestImmediate DigestType = "immediate"
	DigestDaily     DigestType = "daily"
	DigestWeekly    DigestType = "weekly"
	DigestSeed      DigestType = "seed_digest"
)

// Valid reports whether the digest type is one of the known cadences.
func (d DigestType) Valid() bool {
	switch d {
	case DigestImmediate, DigestDaily, DigestWeekly, DigestSeed:
		return true
	}
	return false
}

// QueueStatus tracks a queue item through the drain.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueSent       QueueStatus = "sent"
	QueueFailed     QueueStatus = "failed"
)

// QueueItem is one pending delivery for a recipient about a docket.
type QueueItem struct {
	ID           string
	RecipientID  string
	DocketNumber string
	FilingIDs    []string
	Snapshot     []Filing
	DigestType   DigestType
	Status       QueueStatus
	ScheduledFor time.Time
	CreatedAt    time.Time
	SentAt       *time.Time
	Error        string
	ClaimToken   string
}

// Tier gates how much AI content a recipient sees.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Recipient is a subscriber that receives digests.
type Recipient struct {
	ID    string
	Email string
	Name  string
	Tier  Tier
}

// FullAccess reports whether the tier receives unredacted AI content.
func (r Recipient) FullAccess() bool {
	return r.Tier == TierPro
}

// Subscription binds a recipient to a docket with a cadence.
type Subscription struct {
	ID           string
	RecipientID  string
	DocketNumber string
	DigestType   DigestType
	SeedQueuedAt *time.Time
	CreatedAt    time.Time
}

// Email is a rendered message ready for the delivery provider.
type Email struct {
	To       string
	ToName   string
	Subject  string
	HTML     string
	Text     string
	Headers  map[string]string
	Category string
}
