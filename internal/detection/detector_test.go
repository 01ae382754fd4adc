package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/logging"
)

func newTestDetector(source *mockSource, dockets *mockDockets, filings *mockFilings, notifier HighActivityNotifier) *Detector {
	logger := logging.Discard()
	guard := NewGuard(dockets, notifier, logger)
	dedup := NewDeduplicator(filings, logger)
	return NewDetector(source, dockets, guard, dedup, DefaultSettings(), logger)
}

func TestCheckNoNewSkipsTargetedFetch(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("11-42", "A", "Z")}
	dockets := newMockDockets(domain.Docket{Number: "11-42", LatestSeenFilingID: "A"})
	det := newTestDetector(source, dockets, &mockFilings{}, nil)

	res := det.Check(context.Background(), dockets.get("11-42"))
	if res.Outcome != OutcomeNoNew {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if source.CallCount() != 1 {
		t.Fatalf("expected only the quick check, got %d calls", source.CallCount())
	}
	if source.calls[0].Limit != 1 {
		t.Fatalf("quick check must fetch one filing, got %d", source.calls[0].Limit)
	}
}

func TestCheckNoFilings(t *testing.T) {
	t.Parallel()

	source := &mockSource{}
	dockets := newMockDockets(domain.Docket{Number: "24-7", LatestSeenFilingID: "A"})
	det := newTestDetector(source, dockets, &mockFilings{}, nil)

	res := det.Check(context.Background(), dockets.get("24-7"))
	if res.Outcome != OutcomeNoFilings || len(res.Filings) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckNewFoundDefersLatestSeen(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("11-42", "B", "C", "A", "D", "E", "F", "G", "H")}
	dockets := newMockDockets(domain.Docket{Number: "11-42", LatestSeenFilingID: "A"})
	filings := &mockFilings{stored: map[string]bool{"A": true, "D": true, "E": true, "F": true, "G": true}}
	notifier := &mockNotifier{}
	det := newTestDetector(source, dockets, filings, notifier)

	res := det.Check(context.Background(), dockets.get("11-42"))
	if res.Outcome != OutcomeNewFound {
		t.Fatalf("unexpected outcome: %s (%v)", res.Outcome, res.Err)
	}
	if len(res.Filings) != 2 || res.Filings[0].ID != "B" || res.Filings[1].ID != "C" {
		t.Fatalf("unexpected filings: %+v", res.Filings)
	}
	if res.Latest != "B" {
		t.Fatalf("expected B as pending latest seen, got %q", res.Latest)
	}
	if got := dockets.get("11-42").LatestSeenFilingID; got != "A" {
		t.Fatalf("latest seen must wait for the filings to be stored, got %s", got)
	}
	if source.calls[1].Limit != 7 {
		t.Fatalf("targeted fetch should request 7, got %d", source.calls[1].Limit)
	}
	if filings.lookups != 1 {
		t.Fatalf("existence check must be batched, got %d lookups", filings.lookups)
	}
	if notifier.count() != 0 {
		t.Fatalf("no high activity notice expected")
	}
}

func TestCheckDelugeSuspendsUntilDailyReset(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("19-1", "N1", "N2", "N3", "N4", "N5", "N6", "N7", "N8")}
	dockets := newMockDockets(domain.Docket{Number: "19-1", LatestSeenFilingID: "OLD"})
	notifier := &mockNotifier{}
	det := newTestDetector(source, dockets, &mockFilings{}, notifier)
	tripAt := time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC)
	det.guard.now = func() time.Time { return tripAt }

	ctx := context.Background()
	res := det.Check(ctx, dockets.get("19-1"))
	if res.Outcome != OutcomeDeluge || len(res.Filings) != 0 {
		t.Fatalf("expected deluge with no filings, got %+v", res)
	}
	if dockets.get("19-1").Status != domain.DocketDeluged {
		t.Fatalf("docket not deluged")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one high activity notice, got %d", notifier.count())
	}

	calls := source.CallCount()
	for i := 0; i < 3; i++ {
		again := det.Check(ctx, dockets.get("19-1"))
		if again.Outcome != OutcomeDelugeActive {
			t.Fatalf("check %d: expected deluge_active, got %s", i, again.Outcome)
		}
	}
	if source.CallCount() != calls {
		t.Fatalf("suspended docket must not hit the source")
	}

	if _, err := det.guard.Trip(ctx, "19-1"); err != nil {
		t.Fatalf("repeat trip: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("repeat trip must not notify again")
	}

	boundary := time.Date(2026, time.March, 4, 5, 5, 0, 0, time.UTC)
	cleared, err := det.guard.DailyReset(ctx, boundary)
	if err != nil {
		t.Fatalf("daily reset: %v", err)
	}
	if len(cleared) != 1 || cleared[0] != "19-1" {
		t.Fatalf("unexpected cleared dockets: %v", cleared)
	}
	cleared, err = det.guard.DailyReset(ctx, boundary)
	if err != nil || len(cleared) != 0 {
		t.Fatalf("second reset should be a no-op, got %v %v", cleared, err)
	}
	if dockets.get("19-1").Status != domain.DocketActive {
		t.Fatalf("docket not restored")
	}
}

func TestCheckFallsBackWhenQuickCheckFails(t *testing.T) {
	t.Parallel()

	source := &mockSource{
		filings: filingsWithIDs("11-42", "B", "C", "A"),
		failOn:  map[int]error{1: errors.New("503 service unavailable")},
	}
	dockets := newMockDockets(domain.Docket{Number: "11-42", LatestSeenFilingID: "A"})
	filings := &mockFilings{stored: map[string]bool{"A": true}}
	det := newTestDetector(source, dockets, filings, nil)

	res := det.Check(context.Background(), dockets.get("11-42"))
	if res.Outcome != OutcomeFallback {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if len(res.Filings) != 2 {
		t.Fatalf("unexpected fallback filings: %+v", res.Filings)
	}
	if source.calls[1].Limit != 10 {
		t.Fatalf("fallback should fetch 10, got %d", source.calls[1].Limit)
	}
	if got := dockets.get("11-42").LatestSeenFilingID; got != "A" {
		t.Fatalf("fallback must not move latest seen, got %s", got)
	}
}

func TestCheckErrorCountsTowardThreshold(t *testing.T) {
	t.Parallel()

	source := &mockSource{FetchFunc: func(string, int) ([]domain.Filing, error) {
		return nil, errors.New("dial tcp: timeout")
	}}
	dockets := newMockDockets(domain.Docket{Number: "11-42", LatestSeenFilingID: "A"})
	det := newTestDetector(source, dockets, &mockFilings{}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		res := det.Check(ctx, dockets.get("11-42"))
		if res.Outcome != OutcomeError || res.Err == nil {
			t.Fatalf("run %d: expected error outcome, got %+v", i, res)
		}
	}
	d := dockets.get("11-42")
	if d.ConsecutiveErrorCount != 5 || d.Status != domain.DocketError {
		t.Fatalf("unexpected docket state: %+v", d)
	}

	source.FetchFunc = func(string, int) ([]domain.Filing, error) { return filingsWithIDs("11-42", "A"), nil }
	if res := det.Check(ctx, dockets.get("11-42")); res.Outcome != OutcomeNoNew {
		t.Fatalf("unexpected recovery outcome: %s", res.Outcome)
	}
	d = dockets.get("11-42")
	if d.ConsecutiveErrorCount != 0 || d.Status != domain.DocketActive {
		t.Fatalf("docket not recovered: %+v", d)
	}
}

func TestCheckBaselineOnFirstObservation(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("23-9", "X1", "X2", "X3", "X4", "X5", "X6", "X7")}
	dockets := newMockDockets(domain.Docket{Number: "23-9"})
	det := newTestDetector(source, dockets, &mockFilings{}, nil)

	res := det.Check(context.Background(), dockets.get("23-9"))
	if res.Outcome != OutcomeNoNew {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if got := dockets.get("23-9").LatestSeenFilingID; got != "X1" {
		t.Fatalf("baseline not recorded: %s", got)
	}
}

func TestCheckIsIdempotentWithoutSourceChanges(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("11-42", "B", "C", "A")}
	dockets := newMockDockets(domain.Docket{Number: "11-42", LatestSeenFilingID: "A"})
	filings := &mockFilings{stored: map[string]bool{"A": true}}
	det := newTestDetector(source, dockets, filings, nil)

	ctx := context.Background()
	first := det.Check(ctx, dockets.get("11-42"))
	for _, f := range first.Filings {
		_ = filings.SaveFiling(ctx, f)
	}
	second := det.Check(ctx, dockets.get("11-42"))
	if len(first.Filings) != 2 || len(second.Filings) != 0 {
		t.Fatalf("unexpected results: first=%d second=%d", len(first.Filings), len(second.Filings))
	}
	if second.Outcome != OutcomeNoNew || second.Latest != "" {
		t.Fatalf("stored filings should settle as no_new, got %+v", second)
	}
	if got := dockets.get("11-42").LatestSeenFilingID; got != "B" {
		t.Fatalf("latest seen should catch up to B, got %s", got)
	}
}

func TestDetectorWithoutGuardTripsDeluge(t *testing.T) {
	t.Parallel()

	source := &mockSource{filings: filingsWithIDs("19-1", "N1", "N2", "N3", "N4", "N5", "N6", "N7")}
	dockets := newMockDockets(domain.Docket{Number: "19-1", LatestSeenFilingID: "OLD"})
	logger := logging.Discard()
	det := NewDetector(source, dockets, nil, NewDeduplicator(&mockFilings{}, logger), DefaultSettings(), logger)

	if res := det.Check(context.Background(), dockets.get("19-1")); res.Outcome != OutcomeDeluge {
		t.Fatalf("unexpected outcome: %s (%v)", res.Outcome, res.Err)
	}
	if dockets.get("19-1").Status != domain.DocketDeluged {
		t.Fatalf("docket not deluged")
	}
	if res := det.Check(context.Background(), dockets.get("19-1")); res.Outcome != OutcomeDelugeActive {
		t.Fatalf("expected deluge_active, got %s", res.Outcome)
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want int }{{-3, 1}, {0, 1}, {7, 7}, {50, 50}, {51, 50}}
	for _, tc := range cases {
		if got := ClampLimit(tc.in, 50); got != tc.want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
