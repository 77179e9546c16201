package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/metrics"
)

// Gate bounds external calls: at most a fixed number run at once, starts
// are paced by a rate limiter, and every call gets a deadline.
//
// Waiting for admission honours the caller's context. Once admitted, the
// call runs detached from the caller's cancellation and ends only by
// completing or timing out.
type Gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewGate builds a Gate from the pipeline settings.
func NewGate(cfg config.PipelineConfig, m *metrics.Metrics) *Gate {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	slots := int64(cfg.MaxConcurrentCalls)
	if slots < 1 {
		slots = 1
	}
	return &Gate{
		sem:     semaphore.NewWeighted(slots),
		limiter: rate.NewLimiter(limit, 1),
		timeout: cfg.CallTimeout,
		metrics: m,
	}
}

// Do runs fn once a call slot and a rate token are available. A call that
// exceeds the timeout returns a transient error.
func (g *Gate) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("capability: %s: wait for call slot: %w", name, err)
	}
	defer g.sem.Release(1)
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("capability: %s: wait for rate limit: %w", name, err)
	}

	callCtx := context.WithoutCancel(ctx)
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, g.timeout)
		defer cancel()
	}

	done := g.metrics.CallStarted(name)
	err := fn(callCtx)
	done(err)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fault.Transient(fmt.Errorf("capability: %s: timed out after %s: %w", name, g.timeout, err))
	}
	return err
}
