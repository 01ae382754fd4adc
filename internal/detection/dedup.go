package detection

import (
	"context"
	"log/slog"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

// Deduplicator drops candidates whose identifiers are already stored.
type Deduplicator struct {
	filings ports.FilingRepository
	logger  *slog.Logger
}

// NewDeduplicator wires the filing repository used for existence checks.
func NewDeduplicator(filings ports.FilingRepository, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{filings: filings, logger: logger}
}

// Filter returns candidates not yet persisted, preserving order. Records without an
// identifier and repeated identifiers inside the batch are dropped. When the existence
// check fails every remaining candidate is treated as new; the unique key on write is
// the backstop.
func (d *Deduplicator) Filter(ctx context.Context, candidates []domain.Filing) []domain.Filing {
	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.Filing, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, filing := range candidates {
		if filing.ID == "" {
			d.logger.Warn("skipping filing without identifier", "docket", filing.DocketNumber, "title", filing.Title)
			continue
		}
		if _, dup := seen[filing.ID]; dup {
			continue
		}
		seen[filing.ID] = struct{}{}
		unique = append(unique, filing)
		ids = append(ids, filing.ID)
	}

	if d.filings == nil || len(ids) == 0 {
		return unique
	}

	existing, err := d.filings.ExistingFilingIDs(ctx, ids)
	if err != nil {
		d.logger.Warn("existence check failed, treating batch as new", "count", len(unique), "error", err)
		return unique
	}

	fresh := unique[:0]
	for _, filing := range unique {
		if existing[filing.ID] {
			continue
		}
		fresh = append(fresh, filing)
	}
	return fresh
}
