// Package strategy holds the runners that source candidate values for a
// facility's missing fields. Runners never write to the store and never
// fail: every expected or unexpected failure degrades to an empty result.
package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/facility-enrich/internal/cache"
	"github.com/sells-group/facility-enrich/internal/model"
	"github.com/sells-group/facility-enrich/internal/resilience"
)

// Runner sources proposed changes for one facility.
type Runner interface {
	Name() model.StrategyName
	Run(ctx context.Context, f *model.Facility) model.StrategyResult
}

// Empty is the result a runner returns when it has nothing to propose.
func Empty(name model.StrategyName) model.StrategyResult {
	return model.StrategyResult{Strategy: name}
}

// RunWithTimeout runs r on a copy of f within budget d. Overruns and panics
// yield an empty result; the runner's goroutine is abandoned on overrun and
// its late result discarded.
func RunWithTimeout(ctx context.Context, r Runner, f *model.Facility, d time.Duration) model.StrategyResult {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan model.StrategyResult, 1)
	input := f.Clone()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				zap.L().Error("strategy: runner panicked",
					zap.String("strategy", string(r.Name())),
					zap.Int64("facility_id", f.ID),
					zap.String("panic", fmt.Sprint(p)),
				)
				done <- Empty(r.Name())
			}
		}()
		done <- r.Run(ctx, input)
	}()

	select {
	case res := <-done:
		res.Strategy = r.Name()
		for i := range res.Changes {
			if res.Changes[i].Strategy == "" {
				res.Changes[i].Strategy = r.Name()
			}
		}
		return res
	case <-ctx.Done():
		zap.L().Warn("strategy: runner timed out",
			zap.String("strategy", string(r.Name())),
			zap.Int64("facility_id", f.ID),
			zap.Duration("budget", d),
		)
		return Empty(r.Name())
	}
}

// guard wraps a runner's outbound calls in cache, circuit breaker and retry.
type guard struct {
	cache   cache.Cache
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

func newGuard(opts []Option) guard {
	g := guard{ttl: 24 * time.Hour, retry: resilience.DefaultRetryConfig()}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// Option configures a runner's outbound guard.
type Option func(*guard)

// WithCache memoises lookups for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *guard) {
		g.cache = c
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithBreaker routes calls through cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(g *guard) { g.breaker = cb }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *guard) { g.retry = cfg }
}

func fetch[T any](ctx context.Context, g guard, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	return cache.Lookup(ctx, g.cache, key, g.ttl, func(ctx context.Context) (T, error) {
		return resilience.Call(ctx, g.breaker, g.retry, fn)
	})
}

func logDegraded(name model.StrategyName, f *model.Facility, msg string, err error) {
	zap.L().Warn("strategy: "+msg,
		zap.String("strategy", string(name)),
		zap.Int64("facility_id", f.ID),
		zap.Error(err),
	)
}
