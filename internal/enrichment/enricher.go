package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

var tracer = otel.Tracer("DocketWatch/internal/enrichment")

// EnricherDeps wires the extraction chain, the analyzer and optional archive.
type EnricherDeps struct {
	Chain         *Chain
	Analyzer      *Analyzer
	Archive       ports.Archive
	Workers       int
	DispatchDelay time.Duration
	Logger        *slog.Logger
}

// Enricher attaches extracted text and AI analysis to new filings.
type Enricher struct {
	chain    *Chain
	analyzer *Analyzer
	archive  ports.Archive
	workers  int
	delay    time.Duration
	logger   *slog.Logger
}

// NewEnricher constructs the enrichment component.
func NewEnricher(deps EnricherDeps) *Enricher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Enricher{
		chain:    deps.Chain,
		analyzer: deps.Analyzer,
		archive:  deps.Archive,
		workers:  workers,
		delay:    deps.DispatchDelay,
		logger:   logger,
	}
}

// EnrichFiling runs extraction for every processable attachment, then summarization.
// The returned filing always carries a terminal status.
func (e *Enricher) EnrichFiling(ctx context.Context, filing domain.Filing) domain.Filing {
	ctx, span := tracer.Start(ctx, "enrichment.filing")
	span.SetAttributes(
		attribute.String("docket", filing.DocketNumber),
		attribute.String("filing", filing.ID),
		attribute.Int("attachments", len(filing.Attachments)),
	)
	defer span.End()

	logger := e.logger.With("docket", filing.DocketNumber, "filing", filing.ID)
	attachments := make([]domain.Attachment, len(filing.Attachments))
	copy(attachments, filing.Attachments)
	filing.Attachments = attachments

	var texts []string
	if !filing.Restricted() {
		for i := range filing.Attachments {
			if text := e.extractAttachment(ctx, filing, i, logger); text != "" {
				texts = append(texts, text)
			}
		}
	} else {
		for i := range filing.Attachments {
			filing.Attachments[i].Extraction = domain.ExtractionSkipped
		}
	}

	if ctx.Err() != nil {
		filing.Status = domain.FilingFailed
		logger.Warn("enrichment interrupted", "error", ctx.Err())
		return filing
	}

	if e.analyzer == nil {
		filing.Status = domain.FilingCompletedBasic
		return filing
	}
	res := e.analyzer.Analyze(ctx, filing, strings.Join(texts, "\n\n---\n\n"))
	analysis := res.Analysis
	filing.Analysis = &analysis
	filing.Status = res.Status
	span.SetAttributes(attribute.String("status", string(filing.Status)))
	return filing
}

func (e *Enricher) extractAttachment(ctx context.Context, filing domain.Filing, i int, logger *slog.Logger) string {
	att := &filing.Attachments[i]
	if att.FileType == "" {
		att.FileType = InferFileType(*att)
	}
	if !Processable(*att) || e.chain == nil {
		att.Extraction = domain.ExtractionSkipped
		return ""
	}

	extraction, err := e.chain.Run(ctx, att.URL)
	if err != nil {
		att.Extraction = domain.ExtractionFailed
		att.Error = err.Error()
		logger.Warn("attachment extraction failed", "attachment", att.Filename, "attempts", len(extraction.Attempts), "error", err)
		return ""
	}

	att.Extraction = domain.ExtractionCompleted
	att.Strategy = extraction.Strategy
	att.Text = extraction.Text
	att.Error = ""
	if len(extraction.Attempts) > 1 {
		logger.Info("extraction succeeded after fallback", "attachment", att.Filename, "strategy", extraction.Strategy, "attempts", len(extraction.Attempts))
	}

	if e.archive != nil {
		name := fmt.Sprintf("%s/%s/%d.txt", filing.DocketNumber, filing.ID, i)
		if err := e.archive.Put(ctx, name, extraction.Text); err != nil {
			logger.Warn("archive extracted text failed", "object", name, "error", err)
		}
	}
	return extraction.Text
}

// EnrichBatch enriches filings with a bounded worker pool, pausing between
// dispatches. The result has one entry per input, in input order; filings not
// dispatched before ctx ends are returned unchanged.
func (e *Enricher) EnrichBatch(ctx context.Context, filings []domain.Filing) []domain.Filing {
	results := make([]domain.Filing, len(filings))
	copy(results, filings)
	if len(filings) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

dispatch:
	for i := range filings {
		if i > 0 && e.delay > 0 {
			select {
			case <-ctx.Done():
				break dispatch
			case <-time.After(e.delay):
			}
		}
		i := i
		g.Go(func() error {
			results[i] = e.EnrichFiling(gctx, filings[i])
			return nil
		})
	}

	_ = g.Wait()
	return results
}
