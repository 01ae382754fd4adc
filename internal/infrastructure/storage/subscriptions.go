package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"DocketWatch/internal/domain"
)

var subscriptionColumns = []string{"id", "recipient_id", "docket_number", "digest_type", "seed_queued_at", "created_at"}

// SubscriptionsForDocket lists the docket's subscriptions, oldest first.
func (r *SQLRepository) SubscriptionsForDocket(ctx context.Context, docket string) ([]domain.Subscription, error) {
	rows, err := r.query(ctx, r.builder.Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{"docket_number": docket}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	return scanSubscriptions(rows)
}

// PendingSeeds lists subscriptions that never had a seed digest queued.
func (r *SQLRepository) PendingSeeds(ctx context.Context, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.builder.Select(subscriptionColumns...).
		From("subscriptions").
		Where(sq.Eq{"seed_queued_at": nil}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("query pending seeds: %w", err)
	}
	return scanSubscriptions(rows)
}

// MarkSeedQueued stamps the subscription once; it reports false when another
// run got there first.
func (r *SQLRepository) MarkSeedQueued(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	res, err := r.exec(ctx, r.builder.Update("subscriptions").
		Set("seed_queued_at", ts(at)).
		Where(sq.Eq{"id": subscriptionID, "seed_queued_at": nil}))
	if err != nil {
		return false, fmt.Errorf("mark seed queued %s: %w", subscriptionID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetRecipient loads one recipient or returns domain.ErrNotFound.
func (r *SQLRepository) GetRecipient(ctx context.Context, id string) (domain.Recipient, error) {
	row, err := r.queryRow(ctx, r.builder.Select("id", "email", "name", "tier").
		From("recipients").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Recipient{}, err
	}
	var (
		rec  domain.Recipient
		tier string
	)
	err = row.Scan(&rec.ID, &rec.Email, &rec.Name, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recipient{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Recipient{}, fmt.Errorf("get recipient %s: %w", id, err)
	}
	rec.Tier = domain.Tier(tier)
	return rec, nil
}

// UpsertRecipient creates or updates a recipient.
func (r *SQLRepository) UpsertRecipient(ctx context.Context, rec domain.Recipient) error {
	tier := rec.Tier
	if tier == "" {
		tier = domain.TierFree
	}
	_, err := r.exec(ctx, r.builder.Insert("recipients").
		Columns("id", "email", "name", "tier").
		Values(rec.ID, rec.Email, rec.Name, string(tier)).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name, tier = excluded.tier"))
	if err != nil {
		return fmt.Errorf("upsert recipient %s: %w", rec.ID, err)
	}
	return nil
}

// Subscribe records a subscription and makes sure its docket is monitored.
// Subscribing twice to the same docket updates the digest type only.
func (r *SQLRepository) Subscribe(ctx context.Context, sub domain.Subscription) error {
	digest := sub.DigestType
	if !digest.Valid() || digest == domain.DigestSeed {
		digest = domain.DigestDaily
	}
	created := sub.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	if err := r.EnsureDocket(ctx, sub.DocketNumber); err != nil {
		return err
	}
	_, err := r.exec(ctx, r.builder.Insert("subscriptions").
		Columns("id", "recipient_id", "docket_number", "digest_type", "created_at").
		Values(sub.ID, sub.RecipientID, sub.DocketNumber, string(digest), ts(created)).
		Suffix("ON CONFLICT (recipient_id, docket_number) DO UPDATE SET digest_type = excluded.digest_type"))
	if err != nil {
		return fmt.Errorf("subscribe %s to %s: %w", sub.RecipientID, sub.DocketNumber, err)
	}
	return nil
}

func scanSubscriptions(rows *sql.Rows) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for rows.Next() {
		var (
			sub    domain.Subscription
			digest string
			seeded sql.NullTime
		)
		if err := rows.Scan(&sub.ID, &sub.RecipientID, &sub.DocketNumber, &digest, &seeded, &sub.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.DigestType = domain.DigestType(digest)
		sub.SeedQueuedAt = timePtr(seeded)
		sub.CreatedAt = sub.CreatedAt.UTC()
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	return out, nil
}
