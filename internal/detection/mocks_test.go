package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"DocketWatch/internal/domain"
)

type sourceCall struct {
	Docket string
	Limit  int
}

type mockSource struct {
	mu        sync.Mutex
	calls     []sourceCall
	filings   []domain.Filing
	failOn    map[int]error
	FetchFunc func(docket string, limit int) ([]domain.Filing, error)
}

func (m *mockSource) RecentFilings(_ context.Context, docket string, limit int) ([]domain.Filing, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sourceCall{Docket: docket, Limit: limit})
	call := len(m.calls)
	m.mu.Unlock()

	if err, ok := m.failOn[call]; ok {
		return nil, err
	}
	if m.FetchFunc != nil {
		return m.FetchFunc(docket, limit)
	}
	if limit > len(m.filings) {
		limit = len(m.filings)
	}
	out := make([]domain.Filing, limit)
	copy(out, m.filings[:limit])
	return out, nil
}

func (m *mockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockDockets struct {
	mu      sync.Mutex
	dockets map[string]*domain.Docket
	checks  int
}

func newMockDockets(dockets ...domain.Docket) *mockDockets {
	m := &mockDockets{dockets: map[string]*domain.Docket{}}
	for i := range dockets {
		d := dockets[i]
		if d.Status == "" {
			d.Status = domain.DocketActive
		}
		m.dockets[d.Number] = &d
	}
	return m
}

func (m *mockDockets) ListMonitored(context.Context) ([]domain.Docket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Docket
	for _, d := range m.dockets {
		if d.Status != domain.DocketPaused {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDockets) GetDocket(_ context.Context, number string) (domain.Docket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dockets[number]
	if !ok {
		return domain.Docket{}, domain.ErrNotFound
	}
	return *d, nil
}

func (m *mockDockets) UpsertDocket(_ context.Context, docket domain.Docket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dockets[docket.Number] = &docket
	return nil
}

func (m *mockDockets) UpdateLatestSeen(_ context.Context, number, filingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dockets[number]
	if !ok {
		return domain.ErrNotFound
	}
	d.LatestSeenFilingID = filingID
	return nil
}

func (m *mockDockets) RecordCheck(_ context.Context, number string, failed bool, threshold int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	d, ok := m.dockets[number]
	if !ok {
		return domain.ErrNotFound
	}
	d.LastCheckedAt = &at
	if !failed {
		d.ConsecutiveErrorCount = 0
		if d.Status == domain.DocketError {
			d.Status = domain.DocketActive
		}
		return nil
	}
	d.ConsecutiveErrorCount++
	if d.ConsecutiveErrorCount >= threshold && d.Status == domain.DocketActive {
		d.Status = domain.DocketError
	}
	return nil
}

func (m *mockDockets) MarkDeluged(_ context.Context, number string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dockets[number]
	if !ok || d.Status == domain.DocketDeluged {
		return false, nil
	}
	d.Status = domain.DocketDeluged
	d.DelugedAt = &at
	return true, nil
}

func (m *mockDockets) ResetDeluged(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cleared []string
	for _, d := range m.dockets {
		if d.Status == domain.DocketDeluged && d.DelugedAt != nil && d.DelugedAt.Before(before) {
			d.Status = domain.DocketActive
			d.DelugedAt = nil
			cleared = append(cleared, d.Number)
		}
	}
	return cleared, nil
}

func (m *mockDockets) get(number string) domain.Docket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.dockets[number]
}

type mockFilings struct {
	mu      sync.Mutex
	stored  map[string]bool
	fail    bool
	lookups int
}

func (m *mockFilings) ExistingFilingIDs(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.fail {
		return nil, errors.New("connection reset")
	}
	out := map[string]bool{}
	for _, id := range ids {
		if m.stored[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (m *mockFilings) SaveFiling(_ context.Context, filing domain.Filing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = map[string]bool{}
	}
	if m.stored[filing.ID] {
		return domain.ErrDuplicateFiling
	}
	m.stored[filing.ID] = true
	return nil
}

func (m *mockFilings) GetFilings(context.Context, []string) ([]domain.Filing, error) {
	return nil, nil
}

func (m *mockFilings) RecentFilings(context.Context, string, int) ([]domain.Filing, error) {
	return nil, nil
}

type mockNotifier struct {
	mu      sync.Mutex
	dockets []string
}

func (m *mockNotifier) NotifyHighActivity(_ context.Context, docket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dockets = append(m.dockets, docket)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dockets)
}

func filingsWithIDs(docket string, ids ...string) []domain.Filing {
	out := make([]domain.Filing, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Filing{ID: id, DocketNumber: docket, Title: "Filing " + id})
	}
	return out
}
