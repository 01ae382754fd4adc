package usecase

import (
	"context"
	"sync"
	"time"

	"DocketWatch/internal/domain"
	"DocketWatch/internal/ports"
)

type sourceCall struct {
	Docket string
	Limit  int
}

type mockSource struct {
	mu      sync.Mutex
	calls   []sourceCall
	filings map[string][]domain.Filing
}

func (m *mockSource) RecentFilings(_ context.Context, docket string, limit int) ([]domain.Filing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sourceCall{Docket: docket, Limit: limit})

	all := m.filings[docket]
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.Filing, limit)
	copy(out, all[:limit])
	return out, nil
}

func (m *mockSource) limits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Limit
	}
	return out
}

type mockMailer struct {
	mu   sync.Mutex
	sent []domain.Email
}

func (m *mockMailer) Send(_ context.Context, msg domain.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return "id", nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockDriver struct {
	mu      sync.Mutex
	job     func(time.Time)
	started int
	stopped int
}

func (d *mockDriver) Start(_ context.Context, job func(time.Time)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = job
	d.started++
	return nil
}

func (d *mockDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *mockDriver) fire(t time.Time) {
	d.mu.Lock()
	job := d.job
	d.mu.Unlock()
	job(t)
}

type failingFilings struct {
	ports.FilingRepository

	mu   sync.Mutex
	fail map[string]error
}

func (m *failingFilings) SaveFiling(ctx context.Context, filing domain.Filing) error {
	m.mu.Lock()
	err := m.fail[filing.ID]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.FilingRepository.SaveFiling(ctx, filing)
}

func (m *failingFilings) heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = nil
}

// cancelOnSave cancels the caller's context before the first write lands.
type cancelOnSave struct {
	ports.FilingRepository
	cancel context.CancelFunc
}

func (m *cancelOnSave) SaveFiling(ctx context.Context, _ domain.Filing) error {
	m.cancel()
	return ctx.Err()
}
