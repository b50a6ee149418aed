package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/config"
	"fleetsite/api/internal/provenance"
	"fleetsite/api/internal/resolver"
	"fleetsite/api/internal/store"
)

const maxImagePaths = 3

type eventStore interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]catalog.Record, error)
	EventsSlot(ctx context.Context, limit int, guarantee []string) ([]catalog.Record, error)
	Ping(ctx context.Context) error
}

type eventSearcher interface {
	Search(ctx context.Context, q resolver.Query) resolver.Outcome[catalog.Record]
}

type pollResolver interface {
	ByTag(ctx context.Context, q resolver.Query) resolver.Outcome[store.Poll]
}

type imageResolver interface {
	ResolveImages(ctx context.Context, storagePaths []string) []string
}

type provenanceReader interface {
	Summary(ctx context.Context, endpoint, day string) (provenance.Summary, error)
}

// Dependencies are the collaborators a Service is built from. Any of them may
// be nil; the matching endpoint then reports itself unavailable.
type Dependencies struct {
	EventStore eventStore
	// StoreErr explains why EventStore is nil.
	StoreErr       error
	EventObservers []resolver.Observer
	Search         eventSearcher
	Polls          pollResolver
	Images         imageResolver
	Provenance     provenanceReader
}

type Service struct {
	cfg        config.Config
	store      eventStore
	storeErr   error
	events     *resolver.Cascade[catalog.Record]
	search     eventSearcher
	polls      pollResolver
	images     imageResolver
	provenance provenanceReader
}

func New(cfg config.Config, deps Dependencies) *Service {
	s := &Service{
		cfg:        cfg,
		store:      deps.EventStore,
		storeErr:   deps.StoreErr,
		search:     deps.Search,
		polls:      deps.Polls,
		images:     deps.Images,
		provenance: deps.Provenance,
	}
	if deps.EventStore != nil {
		s.events = NewEventsCascade(deps.EventStore, cfg.TierTimeout, cfg.OverallBudget).Observe(deps.EventObservers...)
	}
	return s
}

// NewEventsCascade wires the procedure and query tiers over st with the
// static catalog as the floor.
func NewEventsCascade(st eventStore, tierTimeout, budget time.Duration) *resolver.Cascade[catalog.Record] {
	procedure := resolver.FetcherFunc[catalog.Record](func(ctx context.Context, q resolver.Query) ([]catalog.Record, error) {
		return st.EventsSlot(ctx, q.Limit, q.Guarantee)
	})
	query := resolver.FetcherFunc[catalog.Record](func(ctx context.Context, q resolver.Query) ([]catalog.Record, error) {
		return st.ListEvents(ctx, store.EventFilter{
			Limit:    q.Limit,
			Offset:   q.Offset,
			Featured: q.Featured,
			Tag:      q.Tag,
		})
	})

	return resolver.New("events", budget, catalog.EventsFloor,
		resolver.Tier[catalog.Record]{
			Source:  resolver.SourceProcedure,
			Timeout: tierTimeout,
			When:    resolver.Query.WantsProcedure,
			Fetcher: procedure,
		},
		resolver.Tier[catalog.Record]{
			Source:  resolver.SourceQuery,
			Timeout: tierTimeout,
			Fetcher: query,
		},
	)
}

// ListEvents resolves the events listing. The only error is a missing store.
func (s *Service) ListEvents(ctx context.Context, q resolver.Query) (resolver.Outcome[catalog.Record], error) {
	if s.events == nil {
		return resolver.Outcome[catalog.Record]{}, configMissing(s.storeMessage())
	}
	return s.events.Guard(ctx, q), nil
}

func (s *Service) SearchEvents(ctx context.Context, q resolver.Query) (resolver.Outcome[catalog.Record], error) {
	if strings.TrimSpace(q.Text) == "" {
		return resolver.Outcome[catalog.Record]{}, validationError("q is required")
	}
	if s.search == nil {
		return resolver.Outcome[catalog.Record]{}, configMissing("search is not configured")
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) PollsByTag(ctx context.Context, q resolver.Query) (resolver.Outcome[store.Poll], error) {
	if strings.TrimSpace(q.Tag) == "" {
		return resolver.Outcome[store.Poll]{}, domainError(http.StatusBadRequest, "MISSING_TAG", "Missing 'tag' query param", nil)
	}
	if s.polls == nil {
		return resolver.Outcome[store.Poll]{}, configMissing("polls are not configured")
	}
	return s.polls.ByTag(ctx, q), nil
}

func (s *Service) VehicleImages(ctx context.Context, storagePaths []string) ([]string, error) {
	if s.images == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MEDIA_DISABLED", "Vehicle images are not configured", nil)
	}
	if len(storagePaths) == 0 {
		return nil, validationError("at least one path is required")
	}
	if len(storagePaths) > maxImagePaths {
		return nil, validationError("at most 3 paths are allowed")
	}
	return s.images.ResolveImages(ctx, storagePaths), nil
}

func (s *Service) Provenance(ctx context.Context, endpoint, day string) (provenance.Summary, error) {
	if s.provenance == nil {
		return provenance.Summary{}, domainError(http.StatusServiceUnavailable, "PROVENANCE_DISABLED", "Provenance counters are not configured", nil)
	}
	if endpoint == "" {
		endpoint = "events"
	}
	summary, err := s.provenance.Summary(ctx, endpoint, day)
	if errors.Is(err, provenance.ErrInvalidDay) {
		return provenance.Summary{}, validationError(err.Error())
	}
	return summary, err
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return errors.New(s.storeMessage())
	}
	return s.store.Ping(ctx)
}

func (s *Service) storeMessage() string {
	if s.storeErr != nil && !errors.Is(s.storeErr, store.ErrNotConfigured) {
		return "Database connection is misconfigured"
	}
	return "Database connection not configured"
}
