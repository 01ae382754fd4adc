package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"DocketWatch/internal/domain"
)

type memoryQueue struct {
	mu    sync.Mutex
	items map[string]*domain.QueueItem
	order []string
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{items: map[string]*domain.QueueItem{}}
}

func (m *memoryQueue) Enqueue(_ context.Context, items []domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		item := items[i]
		m.items[item.ID] = &item
		m.order = append(m.order, item.ID)
	}
	return nil
}

func (m *memoryQueue) ListDue(_ context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QueueItem
	for _, id := range m.order {
		item := m.items[id]
		if item.Status == domain.QueuePending && !item.ScheduledFor.After(now) {
			out = append(out, *item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryQueue) Claim(_ context.Context, ids []string, token string, _ time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []string
	for _, id := range ids {
		item, ok := m.items[id]
		if ok && item.Status == domain.QueuePending {
			item.Status = domain.QueueProcessing
			item.ClaimToken = token
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

func (m *memoryQueue) finish(ids []string, token string, status domain.QueueStatus, msg string, at time.Time) {
	for _, id := range ids {
		item, ok := m.items[id]
		if ok && item.Status == domain.QueueProcessing && item.ClaimToken == token {
			item.Status = status
			item.Error = msg
			if status == domain.QueueSent {
				item.SentAt = &at
			}
		}
	}
}

func (m *memoryQueue) MarkSent(_ context.Context, ids []string, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish(ids, token, domain.QueueSent, "", at)
	return nil
}

func (m *memoryQueue) MarkFailed(_ context.Context, ids []string, token, msg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish(ids, token, domain.QueueFailed, msg, at)
	return nil
}

func (m *memoryQueue) ReleaseStale(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *memoryQueue) all() []domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QueueItem, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.items[id])
	}
	return out
}

type memorySubs struct {
	mu         sync.Mutex
	subs       []domain.Subscription
	recipients map[string]domain.Recipient
}

func (m *memorySubs) SubscriptionsForDocket(_ context.Context, docket string) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subs {
		if s.DocketNumber == docket {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySubs) PendingSeeds(_ context.Context, limit int) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subs {
		if s.SeedQueuedAt == nil && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memorySubs) MarkSeedQueued(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id && m.subs[i].SeedQueuedAt == nil {
			m.subs[i].SeedQueuedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memorySubs) GetRecipient(_ context.Context, id string) (domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok {
		return domain.Recipient{}, domain.ErrNotFound
	}
	return r, nil
}

type memoryFilings struct {
	byID map[string]domain.Filing
}

func (m *memoryFilings) ExistingFilingIDs(context.Context, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (m *memoryFilings) SaveFiling(context.Context, domain.Filing) error { return nil }

func (m *memoryFilings) GetFilings(_ context.Context, ids []string) ([]domain.Filing, error) {
	var out []domain.Filing
	for _, id := range ids {
		if f, ok := m.byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memoryFilings) RecentFilings(_ context.Context, docket string, limit int) ([]domain.Filing, error) {
	var out []domain.Filing
	for _, f := range m.byID {
		if f.DocketNumber == docket && len(out) < limit {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockMailer struct {
	mu       sync.Mutex
	sent     []domain.Email
	failFor  map[string]bool
	SendFunc func(domain.Email) (string, error)
}

func (m *mockMailer) Send(_ context.Context, email domain.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[email.To] {
		return "", errors.New("550 mailbox unavailable")
	}
	if m.SendFunc != nil {
		if _, err := m.SendFunc(email); err != nil {
			return "", err
		}
	}
	m.sent = append(m.sent, email)
	return "msg-" + email.To, nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockLocker struct {
	mu   sync.Mutex
	held bool
}

func (m *mockLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return nil, false, nil
	}
	m.held = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.held = false
		return nil
	}, true, nil
}

func utcSchedule() Schedule {
	return Schedule{Location: time.UTC, DailyHour: 13, WeeklyDay: time.Monday, WeeklyHour: 9}
}
