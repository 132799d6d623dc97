package bible

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/narrative"
	"github.com/lehigh-university-libraries/mangaroo/internal/retry"
)

// Analyzer extracts one page's observations. prior is a snapshot the
// analyzer may use as context; it must not be retained.
type Analyzer interface {
	Analyze(ctx context.Context, pageText string, prior narrative.State) (narrative.Delta, error)
}

// Bible owns the narrative state of exactly one reading session.
type Bible struct {
	analyzer Analyzer
	limits   narrative.Limits
	policy   retry.Policy
	logger   *slog.Logger

	// updateMu serializes Update so merges never interleave.
	updateMu sync.Mutex

	mu    sync.RWMutex
	state narrative.State
}

// Option customizes a Bible.
type Option func(*Bible)

// WithLimits overrides the summary budget and character bound.
func WithLimits(limits narrative.Limits) Option {
	return func(b *Bible) {
		b.limits = limits
	}
}

// WithRetryPolicy overrides how analysis calls are retried.
func WithRetryPolicy(p retry.Policy) Option {
	return func(b *Bible) {
		b.policy = p
	}
}

// WithLogger sets the logger used for absorbed failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bible) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New returns a Bible with an empty narrative state.
func New(analyzer Analyzer, opts ...Option) *Bible {
	b := &Bible{
		analyzer: analyzer,
		limits:   narrative.DefaultLimits(),
		policy:   retry.Default(),
		logger:   slog.Default(),
		state:    narrative.Empty(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Current returns a consistent snapshot of the narrative state.
func (b *Bible) Current() narrative.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// Update analyzes pageText and merges the observations for page.
// On failure the returned state is the unchanged prior snapshot.
func (b *Bible) Update(ctx context.Context, page int, pageText string) (narrative.State, error) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()

	prior := b.Current()
	if b.analyzer == nil {
		return prior, failure.New(failure.KindInternal, "bible update", "no analyzer configured")
	}

	var delta narrative.Delta
	err := b.policy.Do(ctx, "scene analysis", func(ctx context.Context) error {
		d, err := b.analyzer.Analyze(ctx, pageText, prior)
		if err != nil {
			return err
		}
		delta = d
		return nil
	})
	if err != nil {
		b.logger.Warn("Scene analysis failed, keeping prior state", "page", page, "kind", failure.KindOf(err), "err", err)
		return prior, err
	}

	if err := delta.Validate(); err != nil {
		b.logger.Error("Discarding malformed delta", "page", page, "err", err)
		return prior, failure.Wrap(failure.KindMergeFailure, "bible update", err)
	}

	next := narrative.Merge(prior, page, delta, b.limits)

	b.mu.Lock()
	b.state = next
	b.mu.Unlock()

	b.logger.Debug("Story bible updated",
		"page", page,
		"characters", len(next.Characters),
		"summary_len", len([]rune(next.Summary())),
		"empty_delta", delta.IsEmpty(),
	)
	return next.Clone(), nil
}

// Reset returns the bible to its initial empty state.
func (b *Bible) Reset() {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()

	b.mu.Lock()
	b.state = narrative.Empty()
	b.mu.Unlock()
}
