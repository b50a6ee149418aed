package search

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/resolver"
)

// Service runs event search through the index tier, then Postgres FTS, then
// the static catalog.
type Service struct {
	index   Searcher
	fts     Searcher
	cascade *resolver.Cascade[catalog.Record]
}

// NewService builds the search cascade. index and fts may be nil when the
// backend is not configured; the floor is always present.
func NewService(index, fts Searcher, tierTimeout, budget time.Duration) *Service {
	var tiers []resolver.Tier[catalog.Record]
	if index != nil {
		tiers = append(tiers, resolver.Tier[catalog.Record]{
			Source:  resolver.SourceSearch,
			Timeout: tierTimeout,
			When:    func(resolver.Query) bool { return index.Healthy() },
			Fetcher: index,
		})
	}
	if fts != nil {
		tiers = append(tiers, resolver.Tier[catalog.Record]{
			Source:  resolver.SourceQuery,
			Timeout: tierTimeout,
			When:    func(resolver.Query) bool { return fts.Healthy() },
			Fetcher: fts,
		})
	}

	return &Service{
		index:   index,
		fts:     fts,
		cascade: resolver.New("events-search", budget, catalog.SearchFloor, tiers...),
	}
}

// Observe forwards every attempt and outcome to observers.
func (s *Service) Observe(observers ...resolver.Observer) *Service {
	s.cascade.Observe(observers...)
	return s
}

func (s *Service) Search(ctx context.Context, q resolver.Query) resolver.Outcome[catalog.Record] {
	return s.cascade.Guard(ctx, q)
}

const reindexTimeout = 2 * time.Minute

type recoveryNotifier interface {
	OnRecover(fn func())
}

// KeepIndexed reindexes from loader now in the background, and again whenever
// the index reports it came back without its documents.
func (s *Service) KeepIndexed(loader RecordLoader) {
	if s.index == nil || loader == nil {
		return
	}
	reindex := func() {
		ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
		defer cancel()
		s.ReindexAllFromPG(ctx, loader)
	}
	if notifier, ok := s.index.(recoveryNotifier); ok {
		notifier.OnRecover(reindex)
	}
	go reindex()
}

// ReindexAllFromPG loads every event through loader and pushes it into the
// index. It does nothing while the index is down.
func (s *Service) ReindexAllFromPG(ctx context.Context, loader RecordLoader) {
	indexer, ok := s.index.(Indexer)
	if !ok || loader == nil || !s.index.Healthy() {
		return
	}
	records, err := loader.LoadAllRecords(ctx)
	if err != nil {
		log.Warnf("search: reindex load failed: %v", err)
		return
	}
	if err := indexer.IndexEvents(ctx, records); err != nil {
		log.Warnf("search: reindex events: %v", err)
		return
	}
	log.WithField("events", len(records)).Info("search: reindexed events")
}
