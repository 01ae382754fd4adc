package storage

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dockets (
		number TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'active',
		latest_seen_filing_id TEXT NOT NULL DEFAULT '',
		consecutive_error_count INTEGER NOT NULL DEFAULT 0,
		deluged_at TIMESTAMP NULL,
		last_checked_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS filings (
		id TEXT PRIMARY KEY,
		docket_number TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		filing_type TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMP NULL,
		url TEXT NOT NULL DEFAULT '',
		attachments TEXT,
		raw TEXT,
		status TEXT NOT NULL,
		analysis TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_filings_docket ON filings (docket_number, received_at)`,
	`CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'free'
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		docket_number TEXT NOT NULL,
		digest_type TEXT NOT NULL DEFAULT 'daily',
		seed_queued_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (recipient_id, docket_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_docket ON subscriptions (docket_number)`,
	`CREATE TABLE IF NOT EXISTS notification_queue (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		docket_number TEXT NOT NULL,
		filing_ids TEXT,
		snapshot TEXT,
		digest_type TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_for TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		sent_at TIMESTAMP NULL,
		claimed_at TIMESTAMP NULL,
		finished_at TIMESTAMP NULL,
		claim_token TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_due ON notification_queue (status, scheduled_for)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if r.driver != DriverSQLite {
			stmt = strings.ReplaceAll(stmt, "TIMESTAMP", "TIMESTAMPTZ")
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
