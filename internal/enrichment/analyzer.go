package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

const (
	RestrictedSummary  = "Restricted: this filing is marked confidential by the source and is not publicly analyzable."
	UnavailableSummary = "AI summary temporarily unavailable. The filing details below are shown without analysis."

	defaultSummary     = "No summary provided."
	defaultKeyPoint    = "No key points identified."
	defaultStakeholder = "Not specified"
	defaultImpact      = "Regulatory impact not assessed."
	defaultConfidence  = "medium"
)

// SummaryResult is what the analyzer decided for one filing.
type SummaryResult struct {
	Analysis domain.Analysis
	Status   domain.FilingStatus
	Kind     ErrorKind
	Backoff  time.Duration
	Err      error
}

// Analyzer builds prompts, calls the summarization provider through the breaker
// and parses the labeled answer.
type Analyzer struct {
	summarizer ports.Summarizer
	breaker    *Breaker
	textBudget int
	now        func() time.Time
	logger     *slog.Logger
}

// NewAnalyzer wires the provider with its shared breaker.
func NewAnalyzer(summarizer ports.Summarizer, breaker *Breaker, textBudget int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if textBudget <= 0 {
		textBudget = 12000
	}
	return &Analyzer{summarizer: summarizer, breaker: breaker, textBudget: textBudget, now: time.Now, logger: logger}
}

// Analyze returns the AI analysis, or the restricted/degraded response. It never
// returns an error to the caller; failures are reported inside the result.
func (a *Analyzer) Analyze(ctx context.Context, filing domain.Filing, text string) SummaryResult {
	if filing.Restricted() {
		return SummaryResult{
			Analysis: domain.Analysis{Summary: RestrictedSummary, Confidence: "n/a", GeneratedAt: a.now().UTC()},
			Status:   domain.FilingCompletedRestricted,
		}
	}
	if a.summarizer == nil {
		return a.degraded("", errors.New("no summarization provider configured"))
	}

	provider := a.summarizer.Name()
	if a.breaker != nil && !a.breaker.Allow() {
		metrics.SummarizationsTotal.WithLabelValues(provider, "breaker_open").Inc()
		return a.degraded(provider, nil)
	}

	ctx, span := tracer.Start(ctx, "enrichment.summarize")
	span.SetAttributes(attribute.String("provider", provider), attribute.String("filing", filing.ID))
	defer span.End()

	started := time.Now()
	out, err := a.summarizer.Complete(ctx, BuildPrompt(filing, text, a.textBudget))
	metrics.SummarizationDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
	if err == nil && IsRefusal(out) {
		err = &ProviderError{Provider: provider, Message: "response indicates refusal"}
	}
	if err == nil && strings.TrimSpace(out) == "" {
		err = &ProviderError{Provider: provider, Message: "empty response"}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(ctx.Err(), context.Canceled) && a.breaker != nil {
			if a.breaker.RecordFailure() {
				a.logger.Warn("summarization breaker opened", "provider", provider)
			}
		}
		res := a.degraded(provider, err)
		metrics.SummarizationsTotal.WithLabelValues(provider, string(res.Kind)).Inc()
		a.logger.Warn("summarization failed", "provider", provider, "filing", filing.ID,
			"kind", res.Kind, "backoff", res.Backoff, "error", err)
		return res
	}

	if a.breaker != nil {
		a.breaker.RecordSuccess()
	}
	metrics.SummarizationsTotal.WithLabelValues(provider, "ok").Inc()

	analysis := ParseSections(out)
	analysis.Provider = provider
	analysis.GeneratedAt = a.now().UTC()
	return SummaryResult{Analysis: analysis, Status: domain.FilingCompletedEnhanced}
}

func (a *Analyzer) degraded(provider string, err error) SummaryResult {
	res := SummaryResult{
		Analysis: domain.Analysis{
			Summary:     UnavailableSummary,
			Confidence:  "n/a",
			Provider:    provider,
			Degraded:    true,
			GeneratedAt: a.now().UTC(),
		},
		Status: domain.FilingCompletedBasic,
		Err:    err,
	}
	if err != nil {
		res.Kind = Classify(err)
		res.Backoff = BackoffHint(res.Kind)
	}
	return res
}

// BuildPrompt renders filing metadata plus extracted text cut to budget characters.
func BuildPrompt(filing domain.Filing, text string, budget int) string {
	var b strings.Builder
	b.WriteString("Analyze the following regulatory filing.\n\n")
	fmt.Fprintf(&b, "Docket: %s\n", filing.DocketNumber)
	fmt.Fprintf(&b, "Title: %s\n", filing.Title)
	fmt.Fprintf(&b, "Filer: %s\n", filing.Author)
	fmt.Fprintf(&b, "Type: %s\n", filing.FilingType)
	if !filing.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", filing.ReceivedAt.Format("2006-01-02"))
	}
	if len(filing.Attachments) > 0 {
		names := make([]string, 0, len(filing.Attachments))
		for _, att := range filing.Attachments {
			names = append(names, att.Filename)
		}
		fmt.Fprintf(&b, "Documents: %s\n", strings.Join(names, ", "))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		b.WriteString("\nNo document text could be extracted; base the analysis on the metadata only.\n")
	} else {
		if utf8.RuneCountInString(text) > budget {
			text = string([]rune(text)[:budget]) + "\n[truncated]"
		}
		b.WriteString("\nDocument text:\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	b.WriteString(`
Respond using exactly these labeled sections:
SUMMARY: two or three sentences.
KEY POINTS: a bulleted list.
STAKEHOLDERS: a bulleted list of affected parties.
REGULATORY IMPACT: one short paragraph.
CONFIDENCE: high, medium, or low.
`)
	return b.String()
}

var bulletExpr = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionKeyPoints
	sectionStakeholders
	sectionImpact
	sectionConfidence
)

var sectionMarkers = []struct {
	marker string
	kind   section
}{
	{"SUMMARY:", sectionSummary},
	{"KEY POINTS:", sectionKeyPoints},
	{"STAKEHOLDERS:", sectionStakeholders},
	{"REGULATORY IMPACT:", sectionImpact},
	{"CONFIDENCE:", sectionConfidence},
}

// ParseSections splits a labeled model answer into analysis fields. Missing
// sections get defaults; an answer with no markers at all becomes the summary.
func ParseSections(text string) domain.Analysis {
	bodies := map[section][]string{}
	current := sectionNone
	found := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		label := strings.TrimLeft(trimmed, "#* ")
		label = strings.Replace(label, "**", "", 1)
		matched := false
		for _, m := range sectionMarkers {
			if len(label) >= len(m.marker) && strings.EqualFold(label[:len(m.marker)], m.marker) {
				current = m.kind
				found = true
				matched = true
				if rest := strings.TrimSpace(strings.Trim(label[len(m.marker):], "* ")); rest != "" {
					bodies[current] = append(bodies[current], rest)
				}
				break
			}
		}
		if matched || trimmed == "" {
			continue
		}
		bodies[current] = append(bodies[current], trimmed)
	}

	if !found {
		summary := strings.TrimSpace(text)
		if summary == "" {
			summary = defaultSummary
		}
		return domain.Analysis{
			Summary:          summary,
			KeyPoints:        []string{defaultKeyPoint},
			Stakeholders:     []string{defaultStakeholder},
			RegulatoryImpact: defaultImpact,
			Confidence:       defaultConfidence,
		}
	}

	analysis := domain.Analysis{
		Summary:          joinParagraph(bodies[sectionSummary], defaultSummary),
		KeyPoints:        listItems(bodies[sectionKeyPoints], defaultKeyPoint),
		Stakeholders:     listItems(bodies[sectionStakeholders], defaultStakeholder),
		RegulatoryImpact: joinParagraph(bodies[sectionImpact], defaultImpact),
		Confidence:       normalizeConfidence(joinParagraph(bodies[sectionConfidence], defaultConfidence)),
	}
	return analysis
}

func joinParagraph(lines []string, fallback string) string {
	out := strings.TrimSpace(strings.Join(lines, " "))
	if out == "" {
		return fallback
	}
	return out
}

func listItems(lines []string, fallback string) []string {
	items := make([]string, 0, len(lines))
	for _, line := range lines {
		item := strings.TrimSpace(bulletExpr.ReplaceAllString(line, ""))
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return []string{fallback}
	}
	return items
}

func normalizeConfidence(value string) string {
	lower := strings.ToLower(value)
	for _, level := range []string{"high", "medium", "low"} {
		if strings.Contains(lower, level) {
			return level
		}
	}
	return defaultConfidence
}
