package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the provider failure taxonomy used to pick a backoff hint.
type ErrorKind string

const (
	KindRateLimit     ErrorKind = "rate_limit"
	KindNetwork       ErrorKind = "network"
	KindAuth          ErrorKind = "auth"
	KindContentPolicy ErrorKind = "content_policy"
	KindUnknown       ErrorKind = "unknown"
)

// ProviderError is returned by AI and extraction adapters for non-success responses.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

var refusalPhrases = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i can't help with",
	"i'm unable to",
}

// IsRefusal reports whether a model answer opens with a refusal instead of content.
func IsRefusal(text string) bool {
	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > 200 {
		head = head[:200]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(head, phrase) {
			return true
		}
	}
	return false
}

// Classify maps an error from a provider call onto the failure taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == http.StatusTooManyRequests:
			return KindRateLimit
		case pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden:
			return KindAuth
		case pe.StatusCode == http.StatusRequestTimeout || pe.StatusCode >= http.StatusInternalServerError:
			return KindNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "quota", "resource exhausted", "resourceexhausted"):
		return KindRateLimit
	case containsAny(msg, "content policy", "content_policy", "content_filter", "safety", "refusal", "blocked"):
		return KindContentPolicy
	case containsAny(msg, "unauthorized", "invalid api key", "permission denied", "permissiondenied", "unauthenticated"):
		return KindAuth
	case containsAny(msg, "timeout", "connection", "eof", "unavailable", "deadline"):
		return KindNetwork
	}
	return KindUnknown
}

// BackoffHint returns how long callers should wait before retrying this kind of
// failure; zero means the failure is not retryable.
func BackoffHint(kind ErrorKind) time.Duration {
	switch kind {
	case KindRateLimit:
		return 60 * time.Second
	case KindNetwork:
		return 10 * time.Second
	case KindAuth, KindContentPolicy:
		return 0
	default:
		return 30 * time.Second
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
