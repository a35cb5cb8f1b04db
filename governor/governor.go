// Package governor wraps outbound calls to remote APIs with request
// deduplication, bounded concurrency, a sliding-window rate limit and retry of
// transient failures.
package governor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Execute once Close has been called.
var ErrClosed = errors.New("governor closed")

const ratePeriod = time.Second

// Func is a unit of work. It may be invoked more than once, so it must be safe
// to retry.
type Func func(ctx context.Context) (any, error)

// pendingCall is the shared execution for one dedup key.
type pendingCall struct {
	done     chan struct{}
	val      any
	err      error
	waiters  int
	cancel   context.CancelFunc
	detached bool
}

// Stats is a snapshot of the governor's counters. Pending counts dedup keys
// that still have callers waiting. Detached counts cancelled executions whose
// callers have all gone but whose work has not returned yet; such work may
// still hold a concurrency slot and shows up in Active while it runs.
type Stats struct {
	TotalCalls   int64 `json:"totalCalls"`
	FailedCalls  int64 `json:"failedCalls"`
	RetriedCalls int64 `json:"retriedCalls"`
	Active       int64 `json:"active"`
	Pending      int64 `json:"pending"`
	Detached     int64 `json:"detached"`
}

// Governor admits, deduplicates and retries units of work.
type Governor struct {
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger
	tracer trace.Tracer

	slots  *semaphore.Weighted
	window *rateWindow

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool
	running sync.WaitGroup

	total    atomic.Int64
	failed   atomic.Int64
	retried  atomic.Int64
	active   atomic.Int64
	detached atomic.Int64
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the logger used for retry and failure events.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Governor) {
		g.logger = logger
	}
}

// WithClock sets the clock used for rate-window timestamps and waits.
func WithClock(clk clock.Clock) Option {
	return func(g *Governor) {
		g.clock = clk
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Governor) {
		g.tracer = tracer
	}
}

// New creates a Governor. Unusable config values fall back to the defaults.
func New(cfg Config, options ...Option) *Governor {
	cfg = cfg.normalise()
	g := &Governor{
		cfg:     cfg,
		clock:   clock.New(),
		logger:  log.Logger,
		tracer:  otel.Tracer("github.com/jrsteele09/go-integration-hub/governor"),
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		window:  newRateWindow(cfg.MaxRequestsPerSecond, ratePeriod),
		pending: make(map[string]*pendingCall),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Config returns the effective configuration.
func (g *Governor) Config() Config {
	return g.cfg
}

// Execute runs fn under the governor's ceilings. Concurrent calls sharing key
// collapse into a single execution and all receive its result. A caller whose
// ctx ends stops waiting without affecting the other callers; the shared work
// is cancelled only once every caller has gone.
func (g *Governor) Execute(ctx context.Context, key string, fn Func) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	call, ok := g.pending[key]
	if !ok {
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &pendingCall{
			done:   make(chan struct{}),
			cancel: cancel,
		}
		g.pending[key] = call
		g.running.Add(1)
		go g.run(workCtx, key, call, fn)
	}
	call.waiters++
	g.mu.Unlock()

	select {
	case <-call.done:
		return call.val, call.err
	case <-ctx.Done():
		g.abandon(key, call)
		return nil, ctx.Err()
	}
}

// Do is the typed form of Execute.
func Do[T any](ctx context.Context, g *Governor, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := g.Execute(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("[governor Do] %s: unexpected result type %T", key, v)
	}
	return typed, nil
}

// abandon removes one waiter. When none remain the work is cancelled and the
// key is released so the next caller starts fresh.
func (g *Governor) abandon(key string, call *pendingCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	call.waiters--
	if call.waiters > 0 {
		return
	}
	select {
	case <-call.done:
		return
	default:
	}
	call.cancel()
	if g.pending[key] == call {
		delete(g.pending, key)
		call.detached = true
		g.detached.Add(1)
	}
}

func (g *Governor) run(ctx context.Context, key string, call *pendingCall, fn Func) {
	defer g.running.Done()
	defer call.cancel()

	ctx, span := g.tracer.Start(ctx, "governor.execute", trace.WithAttributes(attribute.String("governor.key", key)))
	val, attempts, err := g.attempt(ctx, key, fn)
	span.SetAttributes(attribute.Int("governor.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	g.mu.Lock()
	if g.pending[key] == call {
		delete(g.pending, key)
	}
	if call.detached {
		g.detached.Add(-1)
	}
	call.val, call.err = val, err
	close(call.done)
	g.mu.Unlock()
}

// attempt runs fn until it succeeds, fails fatally or exhausts its retries.
// Every attempt passes concurrency and rate admission.
func (g *Governor) attempt(ctx context.Context, key string, fn Func) (any, int, error) {
	for attempt := 1; ; attempt++ {
		if err := g.admit(ctx); err != nil {
			return nil, attempt - 1, err
		}

		g.active.Add(1)
		g.total.Add(1)
		val, err := invoke(ctx, key, fn)
		g.active.Add(-1)
		g.slots.Release(1)

		if err == nil {
			return val, attempt, nil
		}
		g.failed.Add(1)

		if !IsTransient(err) || attempt > g.cfg.RetryAttempts || ctx.Err() != nil {
			g.logger.Debug().Err(err).Str("key", key).Int("attempt", attempt).Msg("governed call failed")
			return nil, attempt, err
		}

		delay := g.cfg.Backoff.Delay(g.cfg.RetryDelay, attempt, g.cfg.MaxRetryDelay)
		g.retried.Add(1)
		g.logger.Warn().Err(err).Str("key", key).Int("attempt", attempt).Dur("delay", delay).Msg("retrying transient failure")
		if err := sleep(ctx, g.clock, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// admit takes a concurrency slot and then a rate-window start. The slot is
// released again if the rate wait is abandoned.
func (g *Governor) admit(ctx context.Context) error {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.window.wait(ctx, g.clock); err != nil {
		g.slots.Release(1)
		return err
	}
	return nil
}

func invoke(ctx context.Context, key string, fn Func) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("[governor] panic in %s: %v: %w", key, r, apperrors.ErrInternal)
		}
	}()
	return fn(ctx)
}

// Stats returns a snapshot of the counters.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	pending := int64(len(g.pending))
	g.mu.Unlock()
	return Stats{
		TotalCalls:   g.total.Load(),
		FailedCalls:  g.failed.Load(),
		RetriedCalls: g.retried.Load(),
		Active:       g.active.Load(),
		Pending:      pending,
		Detached:     g.detached.Load(),
	}
}

// Close stops admitting new calls and waits for in-flight work to finish or
// ctx to end.
func (g *Governor) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("[Governor Close] waiting for in-flight calls: %w", ctx.Err())
	}
}
