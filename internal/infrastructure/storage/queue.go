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

const enqueueChunk = 100

var queueColumns = []string{
	"id", "recipient_id", "docket_number", "filing_ids", "snapshot", "digest_type", "status",
	"scheduled_for", "created_at", "sent_at", "claim_token", "error",
}

// Enqueue writes pending items in one transaction.
func (r *SQLRepository) Enqueue(ctx context.Context, items []domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(items); start += enqueueChunk {
		end := min(start+enqueueChunk, len(items))
		ins := r.builder.Insert("notification_queue").Columns(queueColumns...)
		for _, item := range items[start:end] {
			ids, err := encodeJSON(item.FilingIDs)
			if err != nil {
				return err
			}
			var snapshot sql.NullString
			if len(item.Snapshot) > 0 {
				encoded, err := encodeJSON(item.Snapshot)
				if err != nil {
					return err
				}
				snapshot = sql.NullString{String: encoded, Valid: true}
			}
			status := item.Status
			if status == "" {
				status = domain.QueuePending
			}
			ins = ins.Values(item.ID, item.RecipientID, item.DocketNumber, ids, snapshot,
				string(item.DigestType), string(status), ts(item.ScheduledFor), ts(item.CreatedAt),
				nullTime(item.SentAt), item.ClaimToken, item.Error)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build enqueue: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert queue items: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// ListDue returns pending items scheduled at or before now, oldest first.
func (r *SQLRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.builder.Select(queueColumns...).
		From("notification_queue").
		Where(sq.Eq{"status": string(domain.QueuePending)}).
		Where(sq.LtOrEq{"scheduled_for": ts(now)}).
		OrderBy("scheduled_for", "created_at", "id").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("query due items: %w", err)
	}

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, item)
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

// Claim moves still-pending items to processing under token and returns the ids
// this call claimed. Items claimed by someone else are left out.
func (r *SQLRepository) Claim(ctx context.Context, ids []string, token string, at time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.builder.Update("notification_queue").
		Set("status", string(domain.QueueProcessing)).
		Set("claim_token", token).
		Set("claimed_at", ts(at)).
		Where(sq.Eq{"id": ids, "status": string(domain.QueuePending)}).
		Suffix("RETURNING id"))
	if err != nil {
		return nil, fmt.Errorf("claim items: %w", err)
	}
	return collectStrings(rows)
}

// MarkSent finalizes claimed items as sent.
func (r *SQLRepository) MarkSent(ctx context.Context, ids []string, token string, at time.Time) error {
	return r.finish(ctx, ids, token, r.builder.Update("notification_queue").
		Set("status", string(domain.QueueSent)).
		Set("sent_at", ts(at)).
		Set("finished_at", ts(at)).
		Set("error", ""))
}

// MarkFailed finalizes claimed items as failed with the error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, ids []string, token, message string, at time.Time) error {
	return r.finish(ctx, ids, token, r.builder.Update("notification_queue").
		Set("status", string(domain.QueueFailed)).
		Set("finished_at", ts(at)).
		Set("error", message))
}

func (r *SQLRepository) finish(ctx context.Context, ids []string, token string, upd sq.UpdateBuilder) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.exec(ctx, upd.Where(sq.Eq{
		"id":          ids,
		"status":      string(domain.QueueProcessing),
		"claim_token": token,
	}))
	if err != nil {
		return fmt.Errorf("finish queue items: %w", err)
	}
	return nil
}

// ReleaseStale returns items stuck in processing since before olderThan to pending.
func (r *SQLRepository) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.exec(ctx, r.builder.Update("notification_queue").
		Set("status", string(domain.QueuePending)).
		Set("claim_token", "").
		Set("claimed_at", nil).
		Where(sq.Eq{"status": string(domain.QueueProcessing)}).
		Where(sq.Lt{"claimed_at": ts(olderThan)}))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// QueueItem loads one item by id.
func (r *SQLRepository) QueueItem(ctx context.Context, id string) (domain.QueueItem, error) {
	row, err := r.queryRow(ctx, r.builder.Select(queueColumns...).
		From("notification_queue").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.QueueItem{}, err
	}
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueueItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.QueueItem{}, fmt.Errorf("get queue item %s: %w", id, err)
	}
	return item, nil
}

func scanQueueItem(row rowScanner) (domain.QueueItem, error) {
	var (
		item          domain.QueueItem
		ids, snapshot sql.NullString
		digest        string
		status        string
		sent          sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.RecipientID, &item.DocketNumber, &ids, &snapshot, &digest, &status,
		&item.ScheduledFor, &item.CreatedAt, &sent, &item.ClaimToken, &item.Error); err != nil {
		return domain.QueueItem{}, err
	}
	item.DigestType = domain.DigestType(digest)
	item.Status = domain.QueueStatus(status)
	item.ScheduledFor = item.ScheduledFor.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	item.SentAt = timePtr(sent)
	if err := decodeJSON(ids, &item.FilingIDs); err != nil {
		return domain.QueueItem{}, err
	}
	if err := decodeJSON(snapshot, &item.Snapshot); err != nil {
		return domain.QueueItem{}, err
	}
	return item, nil
}
