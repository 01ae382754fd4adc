package enrichment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/logging"
)

func TestParseSections(t *testing.T) {
	t.Parallel()

	answer := `**SUMMARY:** The carrier requests a waiver
of the 2026 deadline.

KEY POINTS:
- Seeks 12-month extension
2. Cites supply chain delays

Stakeholders:
* Rural carriers
REGULATORY IMPACT: Low; narrow relief.
CONFIDENCE: High`

	got := ParseSections(answer)
	if got.Summary != "The carrier requests a waiver of the 2026 deadline." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if len(got.KeyPoints) != 2 || got.KeyPoints[0] != "Seeks 12-month extension" || got.KeyPoints[1] != "Cites supply chain delays" {
		t.Fatalf("unexpected key points: %#v", got.KeyPoints)
	}
	if len(got.Stakeholders) != 1 || got.Stakeholders[0] != "Rural carriers" {
		t.Fatalf("unexpected stakeholders: %#v", got.Stakeholders)
	}
	if got.RegulatoryImpact != "Low; narrow relief." {
		t.Fatalf("unexpected impact: %q", got.RegulatoryImpact)
	}
	if got.Confidence != "high" {
		t.Fatalf("unexpected confidence: %q", got.Confidence)
	}
}

func TestParseSectionsDefaults(t *testing.T) {
	t.Parallel()

	got := ParseSections("SUMMARY: Only a summary.")
	if got.Summary != "Only a summary." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if got.KeyPoints[0] != defaultKeyPoint || got.Stakeholders[0] != defaultStakeholder {
		t.Fatalf("defaults missing: %#v %#v", got.KeyPoints, got.Stakeholders)
	}
	if got.RegulatoryImpact != defaultImpact || got.Confidence != defaultConfidence {
		t.Fatalf("defaults missing: %q %q", got.RegulatoryImpact, got.Confidence)
	}

	plain := ParseSections("Free text answer without labels.")
	if plain.Summary != "Free text answer without labels." {
		t.Fatalf("unlabeled answer should become summary, got %q", plain.Summary)
	}
}

func TestBuildPromptTruncatesText(t *testing.T) {
	t.Parallel()

	filing := domain.Filing{ID: "1", DocketNumber: "11-42", Title: "Comments"}
	prompt := BuildPrompt(filing, strings.Repeat("x", 50), 10)
	if !strings.Contains(prompt, "xxxxxxxxxx\n[truncated]") || strings.Contains(prompt, strings.Repeat("x", 11)) {
		t.Fatalf("text not truncated to budget: %s", prompt)
	}
	if !strings.Contains(prompt, "Docket: 11-42") {
		t.Fatalf("metadata missing: %s", prompt)
	}
}

func TestAnalyzeRestrictedSkipsProvider(t *testing.T) {
	t.Parallel()

	summarizer := &mockSummarizer{}
	analyzer := NewAnalyzer(summarizer, NewBreaker("mock", 5, time.Minute, nil), 0, logging.Discard())
	filing := domain.Filing{ID: "1", Attachments: []domain.Attachment{{Filename: "a.pdf", Confidential: true}}}

	res := analyzer.Analyze(context.Background(), filing, "")
	if res.Status != domain.FilingCompletedRestricted || res.Analysis.Summary != RestrictedSummary {
		t.Fatalf("unexpected restricted result: %+v", res)
	}
	if summarizer.CallCount() != 0 {
		t.Fatalf("restricted filing must not reach the provider")
	}
}

func TestAnalyzeDegradesAndOpensBreaker(t *testing.T) {
	t.Parallel()

	summarizer := &mockSummarizer{CompleteFunc: func(context.Context, string) (string, error) {
		return "", &ProviderError{Provider: "mock", StatusCode: 429, Message: "slow down"}
	}}
	breaker := NewBreaker("mock", 3, time.Hour, nil)
	analyzer := NewAnalyzer(summarizer, breaker, 0, logging.Discard())
	filing := domain.Filing{ID: "9", DocketNumber: "11-42"}

	for i := 0; i < 6; i++ {
		res := analyzer.Analyze(context.Background(), filing, "text")
		if res.Status != domain.FilingCompletedBasic || !res.Analysis.Degraded {
			t.Fatalf("call %d: expected degraded result, got %+v", i, res)
		}
		if i < 3 && (res.Kind != KindRateLimit || res.Backoff != time.Minute) {
			t.Fatalf("call %d: unexpected classification %s %s", i, res.Kind, res.Backoff)
		}
	}
	if summarizer.CallCount() != 3 {
		t.Fatalf("provider should see exactly threshold calls, got %d", summarizer.CallCount())
	}
}

func TestAnalyzeSuccessResetsBreaker(t *testing.T) {
	t.Parallel()

	fail := true
	summarizer := &mockSummarizer{}
	summarizer.CompleteFunc = func(context.Context, string) (string, error) {
		if fail {
			return "", errors.New("connection reset by peer")
		}
		return "SUMMARY: fine\nCONFIDENCE: low", nil
	}
	breaker := NewBreaker("mock", 5, time.Minute, nil)
	analyzer := NewAnalyzer(summarizer, breaker, 0, logging.Discard())

	analyzer.Analyze(context.Background(), domain.Filing{ID: "1"}, "")
	analyzer.Analyze(context.Background(), domain.Filing{ID: "2"}, "")
	fail = false
	res := analyzer.Analyze(context.Background(), domain.Filing{ID: "3"}, "")

	if res.Status != domain.FilingCompletedEnhanced || res.Analysis.Summary != "fine" || res.Analysis.Provider != "mock" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if breaker.Snapshot().Failures != 0 {
		t.Fatalf("success should reset failures")
	}
}

func TestAnalyzeCancelledCallDoesNotCountFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	summarizer := &mockSummarizer{CompleteFunc: func(ctx context.Context, _ string) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	breaker := NewBreaker("mock", 1, time.Minute, nil)
	analyzer := NewAnalyzer(summarizer, breaker, 0, logging.Discard())

	analyzer.Analyze(ctx, domain.Filing{ID: "1"}, "")
	if state := breaker.Snapshot(); state.Failures != 0 || state.Open {
		t.Fatalf("cancellation must not touch the breaker: %+v", state)
	}
}

func TestAnalyzeRefusalIsContentPolicy(t *testing.T) {
	t.Parallel()

	summarizer := &mockSummarizer{CompleteFunc: func(context.Context, string) (string, error) {
		return "I'm sorry, I cannot help with that request.", nil
	}}
	analyzer := NewAnalyzer(summarizer, NewBreaker("mock", 5, time.Minute, nil), 0, logging.Discard())

	res := analyzer.Analyze(context.Background(), domain.Filing{ID: "1"}, "")
	if res.Kind != KindContentPolicy || res.Backoff != 0 || !res.Analysis.Degraded {
		t.Fatalf("unexpected refusal handling: %+v", res)
	}
}
