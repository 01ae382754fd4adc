package detection

import (
	"context"
	"testing"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/logging"
)

func TestFilterDropsStoredAndMalformed(t *testing.T) {
	t.Parallel()

	repo := &mockFilings{stored: map[string]bool{"2": true}}
	dedup := NewDeduplicator(repo, logging.Discard())

	in := append(filingsWithIDs("11-42", "1", "2", "1", "3"), domain.Filing{DocketNumber: "11-42", Title: "no id"})
	got := dedup.Filter(context.Background(), in)

	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected filtered batch: %+v", got)
	}
	if repo.lookups != 1 {
		t.Fatalf("expected one batched lookup, got %d", repo.lookups)
	}
}

func TestFilterTreatsAllAsNewOnStorageFailure(t *testing.T) {
	t.Parallel()

	repo := &mockFilings{stored: map[string]bool{"2": true}, fail: true}
	dedup := NewDeduplicator(repo, logging.Discard())

	got := dedup.Filter(context.Background(), filingsWithIDs("11-42", "1", "2"))
	if len(got) != 2 {
		t.Fatalf("expected every candidate on storage failure, got %d", len(got))
	}
}

func TestFilterEmpty(t *testing.T) {
	t.Parallel()

	dedup := NewDeduplicator(&mockFilings{}, nil)
	if got := dedup.Filter(context.Background(), nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
