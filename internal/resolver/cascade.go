package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultBudget = 800 * time.Millisecond

// Cascade runs an ordered list of tiers against one shared deadline and
// falls back to a floor. It holds no per-request state and is safe for
// concurrent use.
type Cascade[T any] struct {
	name      string
	budget    time.Duration
	tiers     []Tier[T]
	floor     Floor[T]
	observers []Observer
}

// New builds a cascade. Tiers are consulted in the order given, which is the
// trust order: a later tier is never consulted once an earlier one succeeds.
func New[T any](name string, budget time.Duration, floor Floor[T], tiers ...Tier[T]) *Cascade[T] {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if floor == nil {
		floor = func(Query) []T { return nil }
	}
	return &Cascade[T]{
		name:   name,
		budget: budget,
		tiers:  tiers,
		floor:  floor,
	}
}

// Observe registers observers. It must be called before the cascade serves requests.
func (c *Cascade[T]) Observe(observers ...Observer) *Cascade[T] {
	for _, o := range observers {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
	return c
}

// Budget is the overall wall-clock ceiling applied by Guard.
func (c *Cascade[T]) Budget() time.Duration {
	return c.budget
}

// Guard resolves q within the cascade's budget. The coordinator runs
// concurrently with the deadline; if the deadline wins, the coordinator's
// context is cancelled and the floor is returned as fast-fallback.
func (c *Cascade[T]) Guard(ctx context.Context, q Query) Outcome[T] {
	started := time.Now()
	q = q.Normalize()
	deadline := started.Add(c.budget)

	caller := ctx
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	done := make(chan Outcome[T], 1)
	go func() {
		done <- c.Resolve(ctx, q, deadline)
	}()

	var out Outcome[T]
	select {
	case out = <-done:
	case <-ctx.Done():
		log.WithField("resolver", c.name).Debugf("fast fallback after %s", c.budget)
		out = c.floorOutcome(q, SourceFastFallback, started)
	}

	// Callers that left before the budget ran out are not counted.
	if caller.Err() != nil {
		log.WithField("resolver", c.name).Debugf("caller gone after %s: %v", time.Since(started), caller.Err())
		return out
	}
	for _, o := range c.observers {
		o.ObserveOutcome(out.Source, out.Elapsed)
	}
	return out
}

// Resolve walks the tiers in order. Each attempt is bounded by
// min(remaining(deadline), tier.Timeout). Timeouts and errors fall through
// to the next tier without retry; the floor is adopted unconditionally at
// the end, tagged fast-fallback when the deadline itself is exhausted.
func (c *Cascade[T]) Resolve(ctx context.Context, q Query, deadline time.Time) Outcome[T] {
	started := time.Now()
	q = q.Normalize()

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for _, tier := range c.tiers {
		if !tier.applies(q) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		attemptStarted := time.Now()
		res := c.attempt(ctx, tier, q)
		elapsed := time.Since(attemptStarted)
		for _, o := range c.observers {
			o.ObserveAttempt(tier.Source, res.Status, elapsed)
		}

		switch res.Status {
		case StatusSuccess:
			return Outcome[T]{
				Source:    tier.Source,
				Records:   clip(res.Records, q.Limit),
				Succeeded: true,
				Elapsed:   time.Since(started),
			}
		case StatusTimeout:
			log.WithFields(log.Fields{"resolver": c.name, "tier": tier.Source}).
				Debugf("tier timed out after %s", elapsed)
		case StatusFailure:
			log.WithFields(log.Fields{"resolver": c.name, "tier": tier.Source}).
				Debugf("tier failed: %v", res.Err)
		}
	}

	source := SourceFallback
	if ctx.Err() != nil || !time.Now().Before(deadline) {
		source = SourceFastFallback
	}
	return c.floorOutcome(q, source, started)
}

func (c *Cascade[T]) attempt(ctx context.Context, tier Tier[T], q Query) Result[T] {
	if tier.Fetcher == nil {
		return Failure[T](fmt.Errorf("%s tier has no fetcher", tier.Source))
	}

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if tier.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, tier.Timeout)
	}
	defer cancel()

	done := make(chan Result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failure[T](fmt.Errorf("%s tier panicked: %v", tier.Source, r))
			}
		}()
		records, err := tier.Fetcher.Fetch(attemptCtx, q)
		done <- classify(records, err)
	}()

	select {
	case res := <-done:
		return res
	case <-attemptCtx.Done():
		return Timeout[T]()
	}
}

func classify[T any](records []T, err error) Result[T] {
	if err == nil {
		return Success(records)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout[T]()
	}
	return Failure[T](err)
}

func (c *Cascade[T]) floorOutcome(q Query, source Source, started time.Time) Outcome[T] {
	return Outcome[T]{
		Source:    source,
		Records:   clip(c.floor(q), q.Limit),
		Succeeded: true,
		Elapsed:   time.Since(started),
	}
}

func clip[T any](records []T, limit int) []T {
	if records == nil {
		return []T{}
	}
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
