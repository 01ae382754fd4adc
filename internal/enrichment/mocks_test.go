package enrichment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type mockStrategy struct {
	name  string
	text  string
	err   error
	mu    sync.Mutex
	calls int
}

func (m *mockStrategy) Name() string { return m.name }

func (m *mockStrategy) Extract(context.Context, string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.text, m.err
}

func (m *mockStrategy) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSummarizer struct {
	mu           sync.Mutex
	calls        int
	prompts      []string
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockSummarizer) Name() string { return "mock" }

func (m *mockSummarizer) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "SUMMARY: ok\nKEY POINTS:\n- one\nSTAKEHOLDERS:\n- carriers\nREGULATORY IMPACT: minor\nCONFIDENCE: high", nil
}

func (m *mockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockArchive struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *mockArchive) Put(_ context.Context, name, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]string{}
	}
	m.objects[name] = content
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errProvider = &ProviderError{Provider: "mock", StatusCode: 503, Message: "upstream unavailable"}

func longText(word string) string {
	return strings.Repeat(word+" ", 40)
}

var errExtract = errors.New("extract: upstream 502")
