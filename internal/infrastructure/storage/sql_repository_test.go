package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"DocketWatch/internal/domain"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "docketwatch.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewSQLRepository(db, DriverSQLite)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestDocketLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	if _, err := repo.GetDocket(ctx, "11-42"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.UpdateLatestSeen(ctx, "11-42", "A"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing docket, got %v", err)
	}

	if err := repo.UpsertDocket(ctx, domain.Docket{Number: "11-42", LatestSeenFilingID: "A"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.UpsertDocket(ctx, domain.Docket{Number: "99-1", Status: domain.DocketPaused}); err != nil {
		t.Fatalf("upsert paused: %v", err)
	}
	if err := repo.Subscribe(ctx, domain.Subscription{ID: "s1", RecipientID: "alice", DocketNumber: "11-42"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	monitored, err := repo.ListMonitored(ctx)
	if err != nil {
		t.Fatalf("list monitored: %v", err)
	}
	if len(monitored) != 1 || monitored[0].Number != "11-42" || monitored[0].SubscriberCount != 1 {
		t.Fatalf("unexpected monitored dockets %+v", monitored)
	}

	if err := repo.UpdateLatestSeen(ctx, "11-42", "B"); err != nil {
		t.Fatalf("update latest: %v", err)
	}
	d, err := repo.GetDocket(ctx, "11-42")
	if err != nil {
		t.Fatalf("get docket: %v", err)
	}
	if d.LatestSeenFilingID != "B" || d.Status != domain.DocketActive {
		t.Fatalf("unexpected docket %+v", d)
	}
}

func TestRecordCheckErrorThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	if err := repo.UpsertDocket(ctx, domain.Docket{Number: "11-42"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	at := time.Date(2026, time.June, 10, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.RecordCheck(ctx, "11-42", true, 3, at); err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
	}
	d, _ := repo.GetDocket(ctx, "11-42")
	if d.Status != domain.DocketError || d.ConsecutiveErrorCount != 3 {
		t.Fatalf("expected error status after threshold, got %+v", d)
	}
	if d.LastCheckedAt == nil || !d.LastCheckedAt.Equal(at) {
		t.Fatalf("unexpected last checked %v", d.LastCheckedAt)
	}

	if err := repo.RecordCheck(ctx, "11-42", false, 3, at.Add(time.Hour)); err != nil {
		t.Fatalf("record success: %v", err)
	}
	d, _ = repo.GetDocket(ctx, "11-42")
	if d.Status != domain.DocketActive || d.ConsecutiveErrorCount != 0 {
		t.Fatalf("expected recovery, got %+v", d)
	}
}

func TestDelugeTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	if err := repo.UpsertDocket(ctx, domain.Docket{Number: "11-42"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	tripped := time.Date(2026, time.June, 10, 15, 0, 0, 0, time.UTC)

	changed, err := repo.MarkDeluged(ctx, "11-42", tripped)
	if err != nil || !changed {
		t.Fatalf("first trip should change state, got %v %v", changed, err)
	}
	changed, err = repo.MarkDeluged(ctx, "11-42", tripped.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("second trip should be a no-op, got %v %v", changed, err)
	}

	cleared, err := repo.ResetDeluged(ctx, tripped.Add(-time.Hour))
	if err != nil || len(cleared) != 0 {
		t.Fatalf("boundary before trip must not clear, got %v %v", cleared, err)
	}
	cleared, err = repo.ResetDeluged(ctx, tripped.Add(10*time.Hour))
	if err != nil || len(cleared) != 1 || cleared[0] != "11-42" {
		t.Fatalf("expected docket cleared, got %v %v", cleared, err)
	}
	d, _ := repo.GetDocket(ctx, "11-42")
	if d.Status != domain.DocketActive || d.DelugedAt != nil {
		t.Fatalf("unexpected docket after reset %+v", d)
	}
}

func TestFilingsPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	received := time.Date(2026, time.June, 9, 12, 0, 0, 0, time.UTC)

	f1 := domain.Filing{
		ID:           "F1",
		DocketNumber: "11-42",
		Title:        "Comments",
		ReceivedAt:   received,
		Attachments:  []domain.Attachment{{Filename: "a.pdf", URL: "https://example.org/a.pdf", FileType: "pdf"}},
		Raw:          []byte(`{"id_submission":"F1"}`),
		Status:       domain.FilingCompletedEnhanced,
		Analysis:     &domain.Analysis{Summary: "Short summary", KeyPoints: []string{"one"}},
	}
	f2 := domain.Filing{ID: "F2", DocketNumber: "11-42", Title: "Reply", ReceivedAt: received.Add(time.Hour), Status: domain.FilingCompletedBasic}

	for _, f := range []domain.Filing{f1, f2} {
		if err := repo.SaveFiling(ctx, f); err != nil {
			t.Fatalf("save %s: %v", f.ID, err)
		}
	}
	if err := repo.SaveFiling(ctx, f1); !errors.Is(err, domain.ErrDuplicateFiling) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	existing, err := repo.ExistingFilingIDs(ctx, []string{"F1", "F3", "F2"})
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if len(existing) != 2 || !existing["F1"] || !existing["F2"] || existing["F3"] {
		t.Fatalf("unexpected existing set %v", existing)
	}

	got, err := repo.GetFilings(ctx, []string{"F2", "missing", "F1"})
	if err != nil {
		t.Fatalf("get filings: %v", err)
	}
	if len(got) != 2 || got[0].ID != "F2" || got[1].ID != "F1" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[1].Analysis == nil || got[1].Analysis.Summary != "Short summary" || got[1].Attachments[0].FileType != "pdf" {
		t.Fatalf("analysis and attachments should round-trip, got %+v", got[1])
	}
	if !got[1].ReceivedAt.Equal(received) || string(got[1].Raw) != `{"id_submission":"F1"}` {
		t.Fatalf("unexpected received/raw %v %s", got[1].ReceivedAt, got[1].Raw)
	}
	if got[0].Analysis != nil {
		t.Fatalf("filing without analysis should load nil analysis")
	}

	recent, err := repo.RecentFilings(ctx, "11-42", 1)
	if err != nil || len(recent) != 1 || recent[0].ID != "F2" {
		t.Fatalf("expected newest filing F2, got %+v %v", recent, err)
	}
}

func TestQueueClaimAndFinish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Date(2026, time.June, 10, 14, 0, 0, 0, time.UTC)

	items := []domain.QueueItem{
		{ID: "q1", RecipientID: "alice", DocketNumber: "11-42", FilingIDs: []string{"F1"}, DigestType: domain.DigestDaily, ScheduledFor: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)},
		{ID: "q2", RecipientID: "bob", DocketNumber: "11-42", FilingIDs: []string{"F1"}, DigestType: domain.DigestSeed, Snapshot: []domain.Filing{{ID: "F1", Title: "Comments"}}, ScheduledFor: now.Add(-2 * time.Minute), CreatedAt: now.Add(-time.Hour)},
		{ID: "q3", RecipientID: "alice", DocketNumber: "11-42", FilingIDs: []string{"F1"}, DigestType: domain.DigestWeekly, ScheduledFor: now.Add(24 * time.Hour), CreatedAt: now},
	}
	if err := repo.Enqueue(ctx, items); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	due, err := repo.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].ID != "q2" || due[1].ID != "q1" {
		t.Fatalf("unexpected due items %+v", due)
	}
	if due[0].Status != domain.QueuePending || len(due[0].Snapshot) != 1 || due[0].Snapshot[0].Title != "Comments" {
		t.Fatalf("snapshot should round-trip, got %+v", due[0])
	}

	claimed, err := repo.Claim(ctx, []string{"q1", "q2"}, "token-a", now)
	if err != nil || len(claimed) != 2 {
		t.Fatalf("first claim should take both, got %v %v", claimed, err)
	}
	again, err := repo.Claim(ctx, []string{"q1", "q2"}, "token-b", now)
	if err != nil || len(again) != 0 {
		t.Fatalf("second claim should take nothing, got %v %v", again, err)
	}

	if err := repo.MarkSent(ctx, []string{"q1"}, "token-b", now); err != nil {
		t.Fatalf("mark sent wrong token: %v", err)
	}
	if item, _ := repo.QueueItem(ctx, "q1"); item.Status != domain.QueueProcessing {
		t.Fatalf("wrong token must not finalize, got %s", item.Status)
	}

	if err := repo.MarkSent(ctx, []string{"q1"}, "token-a", now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, []string{"q2"}, "token-a", "550 mailbox unavailable", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	q1, _ := repo.QueueItem(ctx, "q1")
	if q1.Status != domain.QueueSent || q1.SentAt == nil {
		t.Fatalf("unexpected q1 %+v", q1)
	}
	q2, _ := repo.QueueItem(ctx, "q2")
	if q2.Status != domain.QueueFailed || q2.Error != "550 mailbox unavailable" {
		t.Fatalf("unexpected q2 %+v", q2)
	}

	if err := repo.MarkSent(ctx, []string{"q2"}, "token-a", now); err != nil {
		t.Fatalf("mark sent terminal: %v", err)
	}
	if q2, _ = repo.QueueItem(ctx, "q2"); q2.Status != domain.QueueFailed {
		t.Fatalf("terminal items must not change, got %s", q2.Status)
	}
	if _, err := repo.QueueItem(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReleaseStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Date(2026, time.June, 10, 14, 0, 0, 0, time.UTC)

	if err := repo.Enqueue(ctx, []domain.QueueItem{
		{ID: "q1", RecipientID: "alice", DocketNumber: "11-42", DigestType: domain.DigestImmediate, ScheduledFor: now, CreatedAt: now},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Claim(ctx, []string{"q1"}, "token", now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := repo.ReleaseStale(ctx, now.Add(-time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("fresh claim must stay, got %d %v", n, err)
	}
	n, err = repo.ReleaseStale(ctx, now.Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected one release, got %d %v", n, err)
	}
	item, _ := repo.QueueItem(ctx, "q1")
	if item.Status != domain.QueuePending || item.ClaimToken != "" {
		t.Fatalf("unexpected released item %+v", item)
	}
}

func TestSubscriptionsAndSeeds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.UpsertRecipient(ctx, domain.Recipient{ID: "alice", Email: "alice@example.org", Tier: domain.TierPro}); err != nil {
		t.Fatalf("upsert recipient: %v", err)
	}
	for i, sub := range []domain.Subscription{
		{ID: "s1", RecipientID: "alice", DocketNumber: "11-42", DigestType: domain.DigestImmediate, CreatedAt: base},
		{ID: "s2", RecipientID: "bob", DocketNumber: "11-42", DigestType: domain.DigestSeed, CreatedAt: base.Add(time.Hour)},
	} {
		if err := repo.Subscribe(ctx, sub); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}

	subs, err := repo.SubscriptionsForDocket(ctx, "11-42")
	if err != nil || len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %v %v", subs, err)
	}
	if subs[0].ID != "s1" || subs[0].DigestType != domain.DigestImmediate || subs[1].DigestType != domain.DigestDaily {
		t.Fatalf("unexpected subscriptions %+v", subs)
	}
	if _, err := repo.GetDocket(ctx, "11-42"); err != nil {
		t.Fatalf("subscribe should create docket: %v", err)
	}

	pending, err := repo.PendingSeeds(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending seeds, got %v %v", pending, err)
	}
	marked, err := repo.MarkSeedQueued(ctx, "s1", base)
	if err != nil || !marked {
		t.Fatalf("first mark should succeed, got %v %v", marked, err)
	}
	marked, err = repo.MarkSeedQueued(ctx, "s1", base)
	if err != nil || marked {
		t.Fatalf("second mark should be a no-op, got %v %v", marked, err)
	}
	pending, _ = repo.PendingSeeds(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "s2" {
		t.Fatalf("unexpected pending seeds %+v", pending)
	}

	rec, err := repo.GetRecipient(ctx, "alice")
	if err != nil || !rec.FullAccess() || rec.Email != "alice@example.org" {
		t.Fatalf("unexpected recipient %+v %v", rec, err)
	}
	if _, err := repo.GetRecipient(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlaceholderFormatPerDriver(t *testing.T) {
	t.Parallel()

	cases := []struct {
		driver string
		want   string
	}{
		{DriverPostgres, "SELECT id FROM filings WHERE id = $1"},
		{DriverPgx, "SELECT id FROM filings WHERE id = $1"},
		{DriverSQLite, "SELECT id FROM filings WHERE id = ?"},
	}
	for _, tc := range cases {
		repo := NewSQLRepository(nil, tc.driver)
		query, _, err := repo.builder.Select("id").From("filings").Where("id = ?", "B").ToSql()
		if err != nil {
			t.Fatalf("%s: build query: %v", tc.driver, err)
		}
		if query != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.driver, query, tc.want)
		}
	}
}
