package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/config"
	"fleetsite/api/internal/metrics"
	"fleetsite/api/internal/polls"
	"fleetsite/api/internal/provenance"
	"fleetsite/api/internal/resolver"
	"fleetsite/api/internal/store"
)

type eventsResponse struct {
	OK    bool             `json:"ok"`
	Data  []catalog.Record `json:"data"`
	Meta  resolver.Meta    `json:"meta"`
	Code  string           `json:"code"`
	Error string           `json:"error"`
}

func serve(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decodeEvents(t *testing.T, rr *httptest.ResponseRecorder) eventsResponse {
	t.Helper()
	var body eventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestEventsEndpointQueryTier(t *testing.T) {
	server := NewHTTPServer(newTestService(Dependencies{EventStore: &fakeEventStore{
		listEventsFn: func(context.Context, store.EventFilter) ([]catalog.Record, error) {
			return namedRecords("A", "B", "C", "D", "E"), nil
		},
	}}), "*")

	rr := serve(t, server.Handler(), "/api/events?limit=5&offset=0&random=false")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "db", rr.Header().Get("X-Events-Source"))
	assert.Equal(t, "public, max-age=60, s-maxage=60, stale-while-revalidate=120", rr.Header().Get("Cache-Control"))

	body := decodeEvents(t, rr)
	assert.True(t, body.OK)
	assert.Len(t, body.Data, 5)
	assert.Equal(t, "A", body.Data[0].Name)
	assert.False(t, body.Meta.Fallback)
	assert.NotContains(t, rr.Body.String(), `"fallback"`)
}

func TestEventsEndpointProcedureTier(t *testing.T) {
	server := NewHTTPServer(newTestService(Dependencies{EventStore: &fakeEventStore{
		eventsSlotFn: func(_ context.Context, _ int, guarantee []string) ([]catalog.Record, error) {
			assert.Equal(t, []string{"evt-42"}, guarantee)
			return []catalog.Record{{ID: "evt-42", Name: "Prom"}, {ID: "evt-3", Name: "Weddings"}}, nil
		},
	}}), "*")

	rr := serve(t, server.Handler(), "/api/events?random=true&guarantee=evt-42,%20,&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "rpc", rr.Header().Get("X-Events-Source"))

	body := decodeEvents(t, rr)
	require.NotEmpty(t, body.Data)
	assert.Equal(t, "evt-42", body.Data[0].ID)
	assert.True(t, body.Meta.Random)
}

func TestEventsEndpointSlowQueryFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.TierTimeout = 50 * time.Millisecond
	cfg.OverallBudget = 400 * time.Millisecond
	server := NewHTTPServer(New(cfg, Dependencies{EventStore: &fakeEventStore{
		listEventsFn: func(ctx context.Context, _ store.EventFilter) ([]catalog.Record, error) {
			return nil, hang(ctx, 2*time.Second)
		},
	}}), "*")

	rr := serve(t, server.Handler(), "/api/events?limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fallback", rr.Header().Get("X-Events-Source"))

	body := decodeEvents(t, rr)
	assert.True(t, body.Meta.Fallback)
	assert.Equal(t, catalog.Page(0, 5), body.Data)
}

func TestEventsEndpointBudgetExhaustedIsFastFallback(t *testing.T) {
	cfg := testConfig()
	cfg.TierTimeout = time.Second
	cfg.OverallBudget = 80 * time.Millisecond
	server := NewHTTPServer(New(cfg, Dependencies{EventStore: &fakeEventStore{
		listEventsFn: func(ctx context.Context, _ store.EventFilter) ([]catalog.Record, error) {
			return nil, hang(ctx, 2*time.Second)
		},
	}}), "*")

	started := time.Now()
	rr := serve(t, server.Handler(), "/api/events?limit=5")
	assert.Less(t, time.Since(started), time.Second)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fast-fallback", rr.Header().Get("X-Events-Source"))
	assert.Equal(t, "public, max-age=10, s-maxage=10, stale-while-revalidate=30", rr.Header().Get("Cache-Control"))

	body := decodeEvents(t, rr)
	assert.True(t, body.OK)
	assert.True(t, body.Meta.Fallback)
	assert.Equal(t, catalog.Page(0, 5), body.Data)
}

func TestEventsEndpointClampsLimit(t *testing.T) {
	var seen store.EventFilter
	server := NewHTTPServer(newTestService(Dependencies{EventStore: &fakeEventStore{
		listEventsFn: func(_ context.Context, filter store.EventFilter) ([]catalog.Record, error) {
			seen = filter
			return namedRecords("A"), nil
		},
	}}), "*")

	body := decodeEvents(t, serve(t, server.Handler(), "/api/events?limit=500&offset=-3&featured=1&tag=%20prom%20"))
	assert.Equal(t, 100, body.Meta.Limit)
	assert.Equal(t, 0, body.Meta.Offset)
	assert.Equal(t, store.EventFilter{Limit: 100, Featured: true, Tag: "prom"}, seen)

	body = decodeEvents(t, serve(t, server.Handler(), "/api/events?limit=abc"))
	assert.Equal(t, resolver.DefaultLimit, body.Meta.Limit)
}

func TestEventsEndpointConfigFault(t *testing.T) {
	server := NewHTTPServer(newTestService(Dependencies{StoreErr: store.ErrNotConfigured}), "*")

	rr := serve(t, server.Handler(), "/api/events")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Events-Source"))

	body := decodeEvents(t, rr)
	assert.False(t, body.OK)
	assert.Equal(t, "CONFIG_MISSING", body.Code)
	assert.Equal(t, "Database connection not configured", body.Error)
}

func TestSearchEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(Dependencies{Search: &fakeSearch{
		searchFn: func(_ context.Context, q resolver.Query) resolver.Outcome[catalog.Record] {
			return resolver.Outcome[catalog.Record]{
				Source:  resolver.SourceFallback,
				Records: catalog.SearchFloor(q),
			}
		},
	}}), "*")

	rr := serve(t, server.Handler(), "/api/events/search")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(t, server.Handler(), "/api/events/search?q=parties&limit=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fallback", rr.Header().Get("X-Search-Source"))
	body := decodeEvents(t, rr)
	assert.Len(t, body.Data, 2)
	assert.True(t, body.Meta.Fallback)
}

func TestPollsEndpointFallsBackToRegistry(t *testing.T) {
	registry := polls.NewRegistry("../../data/pollsRegistry.json")
	pollService := polls.NewService(nil, registry, 50*time.Millisecond, 200*time.Millisecond)
	server := NewHTTPServer(newTestService(Dependencies{Polls: pollService}), "*")

	rr := serve(t, server.Handler(), "/api/poll/by-tag")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, server.Handler(), "/api/poll/by-tag?slug=weddings")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fallback", rr.Header().Get("X-Polls-Source"))

	var body struct {
		OK   bool          `json:"ok"`
		Data []store.Poll  `json:"data"`
		Meta resolver.Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "wedding", body.Data[0].TagSlug)
	assert.Equal(t, polls.DefaultLimit, body.Meta.Limit)
	assert.NotEmpty(t, body.Data[0].Options)

	rr = serve(t, server.Handler(), "/api/poll/by-tag?tag=all&limit=80")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, polls.FallbackLimit, body.Meta.Limit)
	assert.LessOrEqual(t, len(body.Data), body.Meta.Limit)
}

func TestVehicleImagesEndpoint(t *testing.T) {
	var seen []string
	server := NewHTTPServer(newTestService(Dependencies{Images: &fakeImages{
		resolveFn: func(_ context.Context, paths []string) []string {
			seen = paths
			return []string{"https://cdn.example/vehicles1/bus/front.jpg"}
		},
	}}), "*")

	rr := serve(t, server.Handler(), "/api/fleet/images?path=bus&path=%20&path=limo/side.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"bus", "limo/side.png"}, seen)
	assert.JSONEq(t, `{"ok":true,"data":["https://cdn.example/vehicles1/bus/front.jpg"]}`, rr.Body.String())

	rr = serve(t, server.Handler(), "/api/fleet/images")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	disabled := NewHTTPServer(newTestService(Dependencies{}), "*")
	rr = serve(t, disabled.Handler(), "/api/fleet/images?path=bus")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestProvenanceCountsServedSources(t *testing.T) {
	mr := miniredis.RunT(t)
	counters := provenance.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = counters.Close() })

	calls := 0
	server := NewHTTPServer(newTestService(Dependencies{
		EventStore: &fakeEventStore{
			listEventsFn: func(context.Context, store.EventFilter) ([]catalog.Record, error) {
				calls++
				if calls == 1 {
					return nil, errors.New("connection reset")
				}
				return namedRecords("A"), nil
			},
		},
		EventObservers: []resolver.Observer{counters.For("events")},
		Provenance:     counters,
	}), "*")

	serve(t, server.Handler(), "/api/events?limit=1")
	serve(t, server.Handler(), "/api/events?limit=1")

	var summary provenance.Summary
	require.Eventually(t, func() bool {
		rr := serve(t, server.Handler(), "/api/ops/provenance?endpoint=events")
		if rr.Code != http.StatusOK {
			return false
		}
		var body struct {
			Data provenance.Summary `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			return false
		}
		summary = body.Data
		return summary.Total == 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), summary.Counts["db"])
	assert.Equal(t, int64(1), summary.Counts["fallback"])
	assert.InDelta(t, 0.5, summary.FallbackRate, 0.001)

	rr := serve(t, server.Handler(), "/api/ops/provenance?day=yesterday")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	server := NewHTTPServer(New(config.Config{TierTimeout: 100 * time.Millisecond, OverallBudget: 300 * time.Millisecond}, Dependencies{
		EventStore: &fakeEventStore{
			listEventsFn: func(context.Context, store.EventFilter) ([]catalog.Record, error) {
				return namedRecords("A"), nil
			},
		},
		EventObservers: []resolver.Observer{m.For("events")},
	}), "*").WithMetrics(m.Handler())

	serve(t, server.Handler(), "/api/events?limit=1")

	rr := serve(t, server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `fleetsite_resolutions_total{endpoint="events",source="db"} 1`))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	server := NewHTTPServer(newTestService(Dependencies{}), "*")

	rr := serve(t, server.Handler(), "/api/documents")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/events", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
