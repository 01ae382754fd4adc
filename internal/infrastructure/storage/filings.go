package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"DocketWatch/internal/domain"
)

var filingColumns = []string{
	"id", "docket_number", "title", "author", "filing_type", "received_at", "url",
	"attachments", "raw", "status", "analysis", "created_at",
}

// ExistingFilingIDs returns the subset of ids already stored, in one query.
func (r *SQLRepository) ExistingFilingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	if r.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.query(ctx, r.builder.Select("id").From("filings").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, fmt.Errorf("query existing filings: %w", err)
	}
	found, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool, len(found))
	for _, id := range found {
		result[id] = true
	}
	return result, nil
}

// SaveFiling inserts a new filing. A filing id that already exists yields
// domain.ErrDuplicateFiling.
func (r *SQLRepository) SaveFiling(ctx context.Context, f domain.Filing) error {
	attachments, err := encodeJSON(f.Attachments)
	if err != nil {
		return err
	}
	var analysis sql.NullString
	if f.Analysis != nil {
		encoded, err := encodeJSON(f.Analysis)
		if err != nil {
			return err
		}
		analysis = sql.NullString{String: encoded, Valid: true}
	}
	var raw sql.NullString
	if len(f.Raw) > 0 {
		raw = sql.NullString{String: string(f.Raw), Valid: true}
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	status := f.Status
	if status == "" {
		status = domain.FilingPending
	}

	_, err = r.exec(ctx, r.builder.Insert("filings").
		Columns(filingColumns...).
		Values(f.ID, f.DocketNumber, f.Title, f.Author, f.FilingType, nullTime(&f.ReceivedAt), f.URL,
			attachments, raw, string(status), analysis, ts(created)))
	if isUniqueViolation(err) {
		return fmt.Errorf("save filing %s: %w", f.ID, domain.ErrDuplicateFiling)
	}
	if err != nil {
		return fmt.Errorf("save filing %s: %w", f.ID, err)
	}
	return nil
}

// GetFilings loads filings by id, preserving the requested order and skipping unknown ids.
func (r *SQLRepository) GetFilings(ctx context.Context, ids []string) ([]domain.Filing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.builder.Select(filingColumns...).From("filings").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}
	loaded, err := scanFilings(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Filing, len(loaded))
	for _, f := range loaded {
		byID[f.ID] = f
	}
	out := make([]domain.Filing, 0, len(loaded))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// RecentFilings returns the newest stored filings of a docket.
func (r *SQLRepository) RecentFilings(ctx context.Context, docket string, limit int) ([]domain.Filing, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.builder.Select(filingColumns...).
		From("filings").
		Where(sq.Eq{"docket_number": docket}).
		OrderBy("received_at DESC", "id DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("query recent filings: %w", err)
	}
	return scanFilings(rows)
}

func scanFilings(rows *sql.Rows) ([]domain.Filing, error) {
	var out []domain.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
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

func scanFiling(row rowScanner) (domain.Filing, error) {
	var (
		f                      domain.Filing
		received               sql.NullTime
		attachments, raw, anal sql.NullString
		status                 string
	)
	if err := row.Scan(&f.ID, &f.DocketNumber, &f.Title, &f.Author, &f.FilingType, &received, &f.URL,
		&attachments, &raw, &status, &anal, &f.CreatedAt); err != nil {
		return domain.Filing{}, err
	}
	if received.Valid {
		f.ReceivedAt = received.Time.UTC()
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.Status = domain.FilingStatus(status)
	if err := decodeJSON(attachments, &f.Attachments); err != nil {
		return domain.Filing{}, err
	}
	if raw.Valid && raw.String != "" {
		f.Raw = json.RawMessage(raw.String)
	}
	if anal.Valid && anal.String != "" && anal.String != "null" {
		f.Analysis = &domain.Analysis{}
		if err := decodeJSON(anal, f.Analysis); err != nil {
			return domain.Filing{}, err
		}
	}
	return f, nil
}
