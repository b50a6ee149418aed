package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/catalog"
)

var (
	eventsTable = goqu.T("events")

	events_id          = goqu.C("id")
	events_name        = goqu.C("name")
	events_description = goqu.C("description")
	events_href        = goqu.C("href")
	events_slug        = goqu.C("slug")
	events_tag         = goqu.C("tag")
	events_featured    = goqu.C("featured")
	events_createdAt   = goqu.C("created_at")
)

const eventsSlotQuery = `SELECT id, name, description, href, slug, priority FROM get_events_slot($1, $2)`

type EventStore struct {
	db   *sql.DB
	goqu *goqu.Database

	// Set once the events table turns out to have no tag column.
	tagColumnMissing atomic.Bool
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db, goqu: goqu.New("postgres", db)}
}

func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping events store: %w", err)
	}
	return nil
}

// ListEvents reads one page of events ordered by name. A tag filter matches
// the tag column exactly; when the column does not exist the filter widens to
// slug equality or a case-insensitive name match.
func (s *EventStore) ListEvents(ctx context.Context, filter EventFilter) ([]catalog.Record, error) {
	broad := s.tagColumnMissing.Load()
	records, err := s.listEvents(ctx, filter, broad)
	if err == nil || broad || filter.Tag == "" {
		return records, err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, err
	}
	switch pgErr.Code {
	case pgerrcode.UndefinedColumn:
		if s.tagColumnMissing.CompareAndSwap(false, true) {
			log.WithField("table", "events").Warn("tag column missing; using slug/name match for tag filters")
		}
	case pgerrcode.DatatypeMismatch, pgerrcode.UndefinedFunction:
	default:
		return nil, err
	}
	return s.listEvents(ctx, filter, true)
}

func (s *EventStore) listEvents(ctx context.Context, filter EventFilter, broad bool) ([]catalog.Record, error) {
	var rows []eventRow
	if err := s.listDataset(filter, broad).Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	records := make([]catalog.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, catalog.Record{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description.String,
			Href:        row.Href.String,
			Slug:        row.Slug.String,
		})
	}
	return records, nil
}

func (s *EventStore) listDataset(filter EventFilter, broad bool) *goqu.SelectDataset {
	ds := s.goqu.
		From(eventsTable).
		Select(
			events_id,
			events_name,
			events_description,
			events_href,
			events_slug,
			events_featured,
			events_createdAt).
		Order(events_name.Asc())

	if filter.Featured {
		ds = ds.Where(events_featured.IsTrue())
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		if broad {
			ds = ds.Where(goqu.Or(
				events_slug.Eq(tag),
				events_name.ILike("%"+escapeLike(tag)+"%")))
		} else {
			ds = ds.Where(events_tag.Eq(tag))
		}
	}
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	return ds
}

// EventsSlot calls the slot procedure: guaranteed IDs first in the order
// given, then a random fill up to limit.
func (s *EventStore) EventsSlot(ctx context.Context, limit int, guarantee []string) ([]catalog.Record, error) {
	if guarantee == nil {
		guarantee = []string{}
	}
	rows, err := s.db.QueryContext(ctx, eventsSlotQuery, limit, guarantee)
	if err != nil {
		return nil, fmt.Errorf("call get_events_slot: %w", err)
	}
	defer rows.Close()

	records := make([]catalog.Record, 0, limit)
	for rows.Next() {
		var (
			record                  catalog.Record
			description, href, slug sql.NullString
			priority                sql.NullFloat64
		)
		if err := rows.Scan(&record.ID, &record.Name, &description, &href, &slug, &priority); err != nil {
			return nil, fmt.Errorf("scan events slot: %w", err)
		}
		record.Description = description.String
		record.Href = href.String
		record.Slug = slug.String
		record.Priority = priority.Float64
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events slot: %w", err)
	}
	return records, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
