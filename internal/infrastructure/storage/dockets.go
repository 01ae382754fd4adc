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

var docketColumns = []string{
	"d.number", "d.status", "d.latest_seen_filing_id", "d.consecutive_error_count",
	"d.deluged_at", "d.last_checked_at", "d.created_at", "d.updated_at",
	"(SELECT COUNT(*) FROM subscriptions s WHERE s.docket_number = d.number) AS subscriber_count",
}

func scanDocket(row rowScanner) (domain.Docket, error) {
	var (
		d                domain.Docket
		status           string
		deluged, checked sql.NullTime
	)
	if err := row.Scan(&d.Number, &status, &d.LatestSeenFilingID, &d.ConsecutiveErrorCount,
		&deluged, &checked, &d.CreatedAt, &d.UpdatedAt, &d.SubscriberCount); err != nil {
		return domain.Docket{}, err
	}
	d.Status = domain.DocketStatus(status)
	d.DelugedAt = timePtr(deluged)
	d.LastCheckedAt = timePtr(checked)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// ListMonitored returns every docket that is not paused, ordered by number.
func (r *SQLRepository) ListMonitored(ctx context.Context) ([]domain.Docket, error) {
	rows, err := r.query(ctx, r.builder.Select(docketColumns...).
		From("dockets d").
		Where(sq.NotEq{"d.status": string(domain.DocketPaused)}).
		OrderBy("d.number"))
	if err != nil {
		return nil, fmt.Errorf("query dockets: %w", err)
	}

	var out []domain.Docket
	for rows.Next() {
		d, err := scanDocket(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan docket: %w", err)
		}
		out = append(out, d)
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

// GetDocket loads one docket or returns domain.ErrNotFound.
func (r *SQLRepository) GetDocket(ctx context.Context, number string) (domain.Docket, error) {
	row, err := r.queryRow(ctx, r.builder.Select(docketColumns...).
		From("dockets d").
		Where(sq.Eq{"d.number": number}))
	if err != nil {
		return domain.Docket{}, err
	}
	d, err := scanDocket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Docket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Docket{}, fmt.Errorf("get docket %s: %w", number, err)
	}
	return d, nil
}

// UpsertDocket inserts the docket or overwrites its mutable state.
func (r *SQLRepository) UpsertDocket(ctx context.Context, d domain.Docket) error {
	now := ts(r.now())
	status := d.Status
	if status == "" {
		status = domain.DocketActive
	}
	_, err := r.exec(ctx, r.builder.Insert("dockets").
		Columns("number", "status", "latest_seen_filing_id", "consecutive_error_count",
			"deluged_at", "last_checked_at", "created_at", "updated_at").
		Values(d.Number, string(status), d.LatestSeenFilingID, d.ConsecutiveErrorCount,
			nullTime(d.DelugedAt), nullTime(d.LastCheckedAt), now, now).
		Suffix(`ON CONFLICT (number) DO UPDATE
			SET status = excluded.status,
			    latest_seen_filing_id = excluded.latest_seen_filing_id,
			    consecutive_error_count = excluded.consecutive_error_count,
			    deluged_at = excluded.deluged_at,
			    last_checked_at = excluded.last_checked_at,
			    updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("upsert docket %s: %w", d.Number, err)
	}
	return nil
}

// EnsureDocket creates an active docket row if none exists.
func (r *SQLRepository) EnsureDocket(ctx context.Context, number string) error {
	now := ts(r.now())
	_, err := r.exec(ctx, r.builder.Insert("dockets").
		Columns("number", "status", "created_at", "updated_at").
		Values(number, string(domain.DocketActive), now, now).
		Suffix("ON CONFLICT (number) DO NOTHING"))
	if err != nil {
		return fmt.Errorf("ensure docket %s: %w", number, err)
	}
	return nil
}

// UpdateLatestSeen stores the newest filing id observed by the quick check.
func (r *SQLRepository) UpdateLatestSeen(ctx context.Context, number, filingID string) error {
	res, err := r.exec(ctx, r.builder.Update("dockets").
		Set("latest_seen_filing_id", filingID).
		Set("updated_at", ts(r.now())).
		Where(sq.Eq{"number": number}))
	if err != nil {
		return fmt.Errorf("update latest seen %s: %w", number, err)
	}
	return requireRow(res)
}

// RecordCheck stamps the check time and maintains the consecutive error count.
// At the threshold an active docket moves to error; any successful check moves
// it back to active.
func (r *SQLRepository) RecordCheck(ctx context.Context, number string, failed bool, errorThreshold int, at time.Time) error {
	upd := r.builder.Update("dockets").
		Set("last_checked_at", ts(at)).
		Set("updated_at", ts(r.now())).
		Where(sq.Eq{"number": number})
	if failed {
		upd = upd.
			Set("consecutive_error_count", sq.Expr("consecutive_error_count + 1")).
			Set("status", sq.Expr("CASE WHEN status = ? AND consecutive_error_count + 1 >= ? THEN ? ELSE status END",
				string(domain.DocketActive), errorThreshold, string(domain.DocketError)))
	} else {
		upd = upd.
			Set("consecutive_error_count", 0).
			Set("status", sq.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				string(domain.DocketError), string(domain.DocketActive)))
	}
	res, err := r.exec(ctx, upd)
	if err != nil {
		return fmt.Errorf("record check %s: %w", number, err)
	}
	return requireRow(res)
}

// MarkDeluged suspends the docket; it reports true only for the caller that
// performed the transition.
func (r *SQLRepository) MarkDeluged(ctx context.Context, number string, at time.Time) (bool, error) {
	res, err := r.exec(ctx, r.builder.Update("dockets").
		Set("status", string(domain.DocketDeluged)).
		Set("deluged_at", ts(at)).
		Set("updated_at", ts(r.now())).
		Where(sq.Eq{"number": number}).
		Where(sq.NotEq{"status": string(domain.DocketDeluged)}))
	if err != nil {
		return false, fmt.Errorf("mark deluged %s: %w", number, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetDeluged reactivates dockets suspended before the boundary and returns their numbers.
func (r *SQLRepository) ResetDeluged(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.query(ctx, r.builder.Update("dockets").
		Set("status", string(domain.DocketActive)).
		Set("deluged_at", nil).
		Set("updated_at", ts(r.now())).
		Where(sq.Eq{"status": string(domain.DocketDeluged)}).
		Where(sq.Lt{"deluged_at": ts(before)}).
		Suffix("RETURNING number"))
	if err != nil {
		return nil, fmt.Errorf("reset deluged: %w", err)
	}
	return collectStrings(rows)
}

func requireRow(res sql.Result) error {
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
