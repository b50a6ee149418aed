// Package polls serves curated polls for a tag, falling back to the bundled
// poll registry when the database is slow, down or has nothing curated.
package polls

import (
	"context"
	"fmt"
	"time"

	"fleetsite/api/internal/resolver"
	"fleetsite/api/internal/store"
)

// DefaultLimit applies when the caller does not ask for a page size.
const DefaultLimit = FallbackLimit

type Store interface {
	PollsByTag(ctx context.Context, tag string, limit, offset int) ([]store.Poll, error)
}

type Service struct {
	cascade *resolver.Cascade[store.Poll]
}

// NewService builds the polls cascade. st may be nil when no database is configured.
func NewService(st Store, registry *Registry, tierTimeout, budget time.Duration) *Service {
	if registry == nil {
		registry = NewRegistry("")
	}
	var tiers []resolver.Tier[store.Poll]
	if st != nil {
		tiers = append(tiers, resolver.Tier[store.Poll]{
			Source:  resolver.SourceQuery,
			Timeout: tierTimeout,
			Fetcher: curatedFetcher{store: st},
		})
	}
	return &Service{cascade: resolver.New("polls", budget, registry.Floor, tiers...)}
}

func (s *Service) Observe(observers ...resolver.Observer) *Service {
	s.cascade.Observe(observers...)
	return s
}

// ByTag resolves polls for q.Tag after mapping it through the tag synonyms.
func (s *Service) ByTag(ctx context.Context, q resolver.Query) resolver.Outcome[store.Poll] {
	q.Tag = NormalizeTag(q.Tag)
	return s.cascade.Guard(ctx, q)
}

type curatedFetcher struct {
	store Store
}

// Fetch treats an empty curated list as a failure so the registry answers instead.
func (f curatedFetcher) Fetch(ctx context.Context, q resolver.Query) ([]store.Poll, error) {
	polls, err := f.store.PollsByTag(ctx, q.Tag, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, fmt.Errorf("no curated polls for %q: %w", q.Tag, resolver.ErrNoRecords)
	}
	return polls, nil
}
