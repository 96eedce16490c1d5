// Package index applies parsed pages to the downstream indexes.
//
// The Coordinator fans a page-level operation out to every registered
// target and reports per-target results; the Pipeline runs the whole
// per-file flow (read, diff against the ledger, parse, save, fan out).
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/blockindex/internal/domain"
	amerrors "github.com/Aman-CERP/blockindex/internal/errors"
	"github.com/Aman-CERP/blockindex/pkg/indexer"
)

// Op is a fan-out operation.
type Op int

const (
	OpIndex Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpIndex:
		return "index"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// TargetResult is the outcome of one operation on one target.
type TargetResult struct {
	Target   string
	Err      error
	Skipped  bool // circuit open, target not called
	Duration time.Duration
}

// Report collects the per-target results of one operation.
type Report struct {
	Op      Op
	PageID  domain.PageID
	Results []TargetResult
}

// OK reports whether every target succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []TargetResult {
	if r == nil {
		return nil
	}
	var out []TargetResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the errors of all failed targets, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

type target struct {
	indexer indexer.Indexer
	breaker *amerrors.CircuitBreaker
}

// Coordinator fans page operations out to downstream indexes. A failing
// target never prevents the others from being called.
type Coordinator struct {
	mu      sync.RWMutex
	targets []*target

	breakerOpts []amerrors.CircuitBreakerOption
	logger      *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithBreaker sets the circuit breaker options applied to each target.
func WithBreaker(opts ...amerrors.CircuitBreakerOption) CoordinatorOption {
	return func(c *Coordinator) { c.breakerOpts = opts }
}

// NewCoordinator creates a coordinator with no targets.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a target. Targets are called in registration order but
// concurrently with each other.
func (c *Coordinator) Register(t indexer.Indexer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = append(c.targets, &target{
		indexer: t,
		breaker: amerrors.NewCircuitBreaker(t.Name(), c.breakerOpts...),
	})
}

// Targets returns the registered indexers.
func (c *Coordinator) Targets() []indexer.Indexer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]indexer.Indexer, len(c.targets))
	for i, t := range c.targets {
		out[i] = t.indexer
	}
	return out
}

// Index adds a new page to every target.
func (c *Coordinator) Index(ctx context.Context, page *domain.Page) *Report {
	return c.apply(ctx, OpIndex, page.ID(), func(ix indexer.Indexer) error {
		return ix.Index(ctx, page)
	})
}

// Update replaces a page in every target.
func (c *Coordinator) Update(ctx context.Context, page *domain.Page) *Report {
	return c.apply(ctx, OpUpdate, page.ID(), func(ix indexer.Indexer) error {
		return ix.Update(ctx, page)
	})
}

// Delete removes a page from every target.
func (c *Coordinator) Delete(ctx context.Context, id domain.PageID) *Report {
	return c.apply(ctx, OpDelete, id, func(ix indexer.Indexer) error {
		return ix.Delete(ctx, id)
	})
}

func (c *Coordinator) apply(_ context.Context, op Op, id domain.PageID, call func(indexer.Indexer) error) *Report {
	c.mu.RLock()
	targets := append([]*target(nil), c.targets...)
	c.mu.RUnlock()

	report := &Report{Op: op, PageID: id, Results: make([]TargetResult, len(targets))}

	// Plain errgroup: each goroutine records its own result and returns nil,
	// so one failure never cancels the others.
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			report.Results[i] = c.run(t, op, id, call)
			return nil
		})
	}
	_ = g.Wait()

	return report
}

// run calls one target behind its breaker and converts failures, including
// panics, into an IndexError.
func (c *Coordinator) run(t *target, op Op, id domain.PageID, call func(indexer.Indexer) error) TargetResult {
	name := t.indexer.Name()
	start := time.Now()

	err := t.breaker.Execute(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return call(t.indexer)
	})

	res := TargetResult{Target: name, Duration: time.Since(start)}
	if err == nil {
		return res
	}

	res.Skipped = errors.Is(err, amerrors.ErrCircuitOpen)
	res.Err = amerrors.IndexError(name, err).
		WithDetail("op", op.String()).
		WithDetail("page_id", string(id))

	c.logger.Warn("index_target_failed",
		slog.String("target", name),
		slog.String("op", op.String()),
		slog.String("page_id", string(id)),
		slog.Bool("skipped", res.Skipped),
		slog.String("error", err.Error()))
	return res
}

// Flush persists every target that buffers writes, joining their errors.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for _, t := range c.targets {
		f, ok := t.indexer.(indexer.Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(ctx); err != nil {
			c.logger.Warn("index_flush_failed",
				slog.String("target", t.indexer.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, amerrors.IndexError(t.indexer.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Audit returns the names of the targets that do not hold page as stored.
// Targets that cannot audit are skipped.
func (c *Coordinator) Audit(ctx context.Context, page *domain.Page) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var drifted []string
	for _, t := range c.targets {
		a, ok := t.indexer.(indexer.Auditor)
		if !ok {
			continue
		}
		ok, err := a.Covers(ctx, page)
		if err != nil {
			return nil, amerrors.IndexError(t.indexer.Name(), err)
		}
		if !ok {
			drifted = append(drifted, t.indexer.Name())
		}
	}
	return drifted, nil
}

// Health returns the circuit breaker of every target in registration order.
func (c *Coordinator) Health() []amerrors.BreakerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]amerrors.BreakerStatus, len(c.targets))
	for i, t := range c.targets {
		out[i] = t.breaker.Status()
	}
	return out
}

// Close closes every target and joins their errors.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, t := range c.targets {
		if err := t.indexer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", t.indexer.Name(), err))
		}
	}
	return errors.Join(errs...)
}
