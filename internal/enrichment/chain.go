package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"DocketWatch/internal/metrics"
	"DocketWatch/internal/ports"
)

// ErrTooShort marks extraction output under the minimum length, usually a viewer page.
var ErrTooShort = errors.New("extracted text below minimum length")

// Strategy is one extraction mode with a stable name.
type Strategy interface {
	ports.TextExtractor
	Name() string
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]Strategy{}}
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("strategy %s is not registered", name)
}

// Attempt records one strategy call in the chain.
type Attempt struct {
	Strategy string
	Length   int
	Duration time.Duration
	Err      error
}

// Extraction is the chain result for one document.
type Extraction struct {
	Text     string
	Strategy string
	Attempts []Attempt
}

// Chain runs strategies in priority order and stops at the first usable text.
type Chain struct {
	strategies []Strategy
	minLength  int
}

// NewChain resolves the ordered strategy names against the registry.
func NewChain(registry *Registry, order []string, minLength int) (*Chain, error) {
	chain := &Chain{minLength: minLength}
	for _, name := range order {
		strategy, err := registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		chain.strategies = append(chain.strategies, strategy)
	}
	if len(chain.strategies) == 0 {
		return nil, errors.New("extraction chain has no strategies")
	}
	return chain, nil
}

// Run tries each strategy once. Failures and short output are recorded as attempts;
// the returned error aggregates them only when no strategy qualified.
func (c *Chain) Run(ctx context.Context, documentURL string) (Extraction, error) {
	var (
		result Extraction
		errs   []error
	)

	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		started := time.Now()
		raw, err := strategy.Extract(ctx, documentURL)
		attempt := Attempt{Strategy: strategy.Name(), Duration: time.Since(started)}

		if err == nil {
			text := Sanitize(raw)
			attempt.Length = utf8.RuneCountInString(text)
			if attempt.Length >= c.minLength {
				result.Attempts = append(result.Attempts, attempt)
				result.Text = text
				result.Strategy = strategy.Name()
				metrics.ExtractionAttemptsTotal.WithLabelValues(strategy.Name(), "ok").Inc()
				return result, nil
			}
			err = fmt.Errorf("%w: %d < %d", ErrTooShort, attempt.Length, c.minLength)
			metrics.ExtractionAttemptsTotal.WithLabelValues(strategy.Name(), "short").Inc()
		} else {
			metrics.ExtractionAttemptsTotal.WithLabelValues(strategy.Name(), "error").Inc()
		}

		attempt.Err = err
		result.Attempts = append(result.Attempts, attempt)
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
	}

	return result, fmt.Errorf("all extraction strategies failed: %w", errors.Join(errs...))
}
