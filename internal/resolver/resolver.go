// Package resolver answers list queries within a hard wall-clock budget by
// cascading through ordered data-source tiers and falling back to a
// compiled-in floor when every tier is slow or down.
package resolver

import (
	"context"
	"errors"
	"time"
)

// Source names the tier that served a response. It is exposed to clients
// through the provenance header.
type Source string

const (
	SourceProcedure    Source = "rpc"
	SourceQuery        Source = "db"
	SourceSearch       Source = "search"
	SourceFallback     Source = "fallback"
	SourceFastFallback Source = "fast-fallback"
)

// Degraded reports whether the source is one of the static floor paths.
func (s Source) Degraded() bool {
	return s == SourceFallback || s == SourceFastFallback
}

const (
	DefaultLimit = 12
	MaxLimit     = 100
)

// ErrNoRecords lets a tier report an empty answer as a failure so the
// cascade falls through instead of adopting it.
var ErrNoRecords = errors.New("no records")

// Query is the caller's intent for one request.
type Query struct {
	Limit     int
	Offset    int
	Featured  bool
	Random    bool
	Guarantee []string
	Tag       string
	Text      string
}

// Normalize clamps limit to [1,MaxLimit] (zero means DefaultLimit) and offset to >= 0.
func (q Query) Normalize() Query {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// WantsProcedure reports whether the procedure tier should be consulted.
func (q Query) WantsProcedure() bool {
	return q.Random || len(q.Guarantee) > 0
}

// Status is the variant tag of a single tier attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusTimeout
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is what one tier attempt produced. Records is only meaningful for
// StatusSuccess and Err only for StatusFailure.
type Result[T any] struct {
	Status  Status
	Records []T
	Err     error
}

func Success[T any](records []T) Result[T] {
	return Result[T]{Status: StatusSuccess, Records: records}
}

func Timeout[T any]() Result[T] {
	return Result[T]{Status: StatusTimeout}
}

func Failure[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailure, Err: err}
}

// Outcome is the adopted answer of a resolution.
type Outcome[T any] struct {
	Source    Source
	Records   []T
	Succeeded bool
	Elapsed   time.Duration
}

// Fetcher produces records for a query. Implementations should honor ctx
// cancellation so abandoned attempts release their connections.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q Query) ([]T, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, q Query) ([]T, error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, q Query) ([]T, error) {
	return f(ctx, q)
}

// Tier is one ordered strategy in a cascade.
type Tier[T any] struct {
	Source  Source
	Timeout time.Duration
	// When gates the tier; nil means always attempt.
	When    func(Query) bool
	Fetcher Fetcher[T]
}

func (t Tier[T]) applies(q Query) bool {
	return t.When == nil || t.When(q)
}

// Floor returns the static answer for a query. It must not block.
type Floor[T any] func(q Query) []T

// Observer receives every tier attempt and every adopted outcome.
type Observer interface {
	ObserveAttempt(tier Source, status Status, elapsed time.Duration)
	ObserveOutcome(source Source, elapsed time.Duration)
}
