package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/resolver"
)

const enqueuedTask = `{"taskUid":1,"indexUid":"fleetsite_events","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`

type fakeMeiliServer struct {
	mu        sync.Mutex
	searches  []map[string]any
	documents int
	unhealthy bool
}

func (f *fakeMeiliServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/health":
		if f.unhealthy {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"down","code":"internal","type":"internal","link":""}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"available"}`)
	case r.URL.Path == "/indexes/"+idxEvents+"/search":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.searches = append(f.searches, body)
		_, _ = io.WriteString(w, `{"hits":[{"id":"evt-1","name":"Weddings","description":"Shuttles","slug":"weddings"}],"estimatedTotalHits":1,"offset":0,"limit":5,"processingTimeMs":1,"query":"wedding"}`)
	case r.URL.Path == "/indexes/"+idxEvents+"/documents":
		f.documents++
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, enqueuedTask)
	default:
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, enqueuedTask)
	}
}

func TestMeiliFetchRequiresHealthAndIndex(t *testing.T) {
	m := &Meili{done: make(chan struct{})}

	_, err := m.Fetch(context.Background(), resolver.Query{Text: "prom", Limit: 5})
	assert.ErrorIs(t, err, errMeiliUnhealthy)

	m.healthy.Store(true)
	_, err = m.Fetch(context.Background(), resolver.Query{Text: "prom", Limit: 5})
	assert.ErrorIs(t, err, errMeiliNotIndexed)
}

func TestMeiliIndexThenSearch(t *testing.T) {
	fake := &fakeMeiliServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m := newMeili(srv.URL, "test-key", time.Hour)
	defer m.Close()
	require.True(t, m.Healthy())
	require.False(t, m.Indexed())

	require.NoError(t, m.IndexEvents(context.Background(), []catalog.Record{{ID: "evt-1", Name: "Weddings"}}))
	assert.True(t, m.Indexed())

	records, err := m.Fetch(context.Background(), resolver.Query{Text: "wedding", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, catalog.Record{ID: "evt-1", Name: "Weddings", Description: "Shuttles", Slug: "weddings"}, records[0])

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.documents)
	require.Len(t, fake.searches, 1)
	assert.Equal(t, "wedding", fake.searches[0]["q"])
	assert.EqualValues(t, 10, fake.searches[0]["offset"])
}

func TestMeiliUnavailableAtStartup(t *testing.T) {
	fake := &fakeMeiliServer{unhealthy: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m := newMeili(srv.URL, "", time.Hour)
	defer m.Close()

	assert.False(t, m.Healthy())
}

func TestHitToRecord(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"evt-7"`),
		"name":        json.RawMessage(`" Prom "`),
		"description": json.RawMessage(`"Arrive in style"`),
		"priority":    json.RawMessage(`3`),
	}

	r := hitToRecord(hit)

	assert.Equal(t, "evt-7", r.ID)
	assert.Equal(t, "Prom", r.Name)
	assert.Equal(t, "Arrive in style", r.Description)
	assert.Empty(t, r.Href)
	assert.True(t, strings.HasPrefix(decodeString(hit, "description"), "Arrive"))
	assert.Empty(t, decodeString(hit, "priority"))
}

func TestServiceReindexesWhenMeiliRecovers(t *testing.T) {
	fake := &fakeMeiliServer{unhealthy: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	m := newMeili(srv.URL, "", 10*time.Millisecond)
	defer m.Close()
	svc := NewService(m, nil, 500*time.Millisecond, time.Second)

	svc.KeepIndexed(fakeLoader{records: records("Weddings")})

	out := svc.Search(context.Background(), resolver.Query{Text: "wedding", Limit: 5})
	assert.Equal(t, resolver.SourceFallback, out.Source)
	assert.False(t, m.Indexed())

	fake.mu.Lock()
	fake.unhealthy = false
	fake.mu.Unlock()

	require.Eventually(t, m.Indexed, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.Healthy())

	out = svc.Search(context.Background(), resolver.Query{Text: "wedding", Limit: 5})
	assert.Equal(t, resolver.SourceSearch, out.Source)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "evt-1", out.Records[0].ID)
}

func TestMeiliEmptyCatalogCountsAsIndexed(t *testing.T) {
	m := &Meili{done: make(chan struct{})}

	require.NoError(t, m.IndexEvents(context.Background(), nil))
	assert.True(t, m.Indexed())
}
