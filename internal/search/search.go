// Package search serves full-text event search through a Meilisearch tier and
// a Postgres full-text tier, with the static catalog as the floor.
package search

import (
	"context"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/resolver"
)

// Searcher is one full-text tier.
type Searcher interface {
	resolver.Fetcher[catalog.Record]
	Healthy() bool
}

// Indexer can push events into a search index.
type Indexer interface {
	IndexEvents(ctx context.Context, records []catalog.Record) error
	Indexed() bool
}

// RecordLoader reads every searchable event from the primary store.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]catalog.Record, error)
}
