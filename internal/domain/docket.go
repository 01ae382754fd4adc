package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateFiling signals a unique-key collision on the filing identifier.
	ErrDuplicateFiling = errors.New("duplicate filing")
)

// DocketStatus enumerates monitoring states of a tracked proceeding.
type DocketStatus string

const (
	DocketActive  DocketStatus = "active"
	DocketDeluged DocketStatus = "deluged"
	DocketPaused  DocketStatus = "paused"
	DocketError   DocketStatus = "error"
)

// Docket is a tracked proceeding whose filings are monitored as a unit.
type Docket struct {
	Number                string
	Status                DocketStatus
	LatestSeenFilingID    string
	ConsecutiveErrorCount int
	SubscriberCount       int
	DelugedAt             *time.Time
	LastCheckedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Suspended reports whether detection must skip the docket this cycle.
func (d Docket) Suspended() bool {
	return d.Status == DocketDeluged
}
