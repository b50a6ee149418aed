package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/resolver"
)

const idxEvents = "fleetsite_events"

var (
	errMeiliUnhealthy  = errors.New("meilisearch unhealthy")
	errMeiliNotIndexed = errors.New("meilisearch index not populated")
)

// Meili is the search-index tier.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	indexed atomic.Bool
	done    chan struct{}

	// Run from the health loop while the server is up but unpopulated.
	onRecover atomic.Pointer[func()]
}

// NewMeili creates a Meilisearch client and configures the events index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	return newMeili(url, apiKey, 10*time.Second)
}

func newMeili(url, apiKey string, healthEvery time.Duration) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.WithField("url", url).Warnf("search: meilisearch unavailable: %v", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(healthEvery)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEvents,
		PrimaryKey: "id",
	}); err != nil {
		log.WithField("index", idxEvents).Debugf("search: create index (may already exist): %v", err)
	}

	searchable := []string{"name", "description", "slug"}
	if _, err := m.client.Index(idxEvents).UpdateSearchableAttributes(&searchable); err != nil {
		log.WithField("index", idxEvents).Warnf("search: update searchable attrs: %v", err)
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err != nil {
				continue
			}
			if !wasHealthy {
				log.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
			if !m.indexed.Load() {
				if fn := m.onRecover.Load(); fn != nil {
					(*fn)()
				}
			}
		}
	}
}

// OnRecover registers fn to run on health ticks that find the server up but
// the index not yet populated. fn runs on the health loop goroutine.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Indexed reports whether a reindex has completed since startup.
func (m *Meili) Indexed() bool {
	return m.indexed.Load()
}

func (m *Meili) Fetch(ctx context.Context, q resolver.Query) ([]catalog.Record, error) {
	if !m.healthy.Load() {
		return nil, errMeiliUnhealthy
	}
	if !m.indexed.Load() {
		return nil, errMeiliNotIndexed
	}

	resp, err := m.client.Index(idxEvents).SearchWithContext(ctx, q.Text, &meili.SearchRequest{
		Limit:  int64(q.Limit),
		Offset: int64(q.Offset),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	records := make([]catalog.Record, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		records = append(records, hitToRecord(hit))
	}
	return records, nil
}

// IndexEvents replaces the documents of the events index with records. An
// empty catalog counts as populated.
func (m *Meili) IndexEvents(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		m.indexed.Store(true)
		return nil
	}
	if _, err := m.client.Index(idxEvents).AddDocumentsWithContext(ctx, records, nil); err != nil {
		return fmt.Errorf("meilisearch add documents: %w", err)
	}
	m.indexed.Store(true)
	return nil
}

func hitToRecord(hit meili.Hit) catalog.Record {
	return catalog.Record{
		ID:          decodeString(hit, "id"),
		Name:        decodeString(hit, "name"),
		Description: decodeString(hit, "description"),
		Href:        decodeString(hit, "href"),
		Slug:        decodeString(hit, "slug"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}
