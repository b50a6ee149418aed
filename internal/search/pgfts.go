package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fleetsite/api/internal/catalog"
	"fleetsite/api/internal/resolver"
)

const ftsQuery = `
	SELECT id, name, description, href, slug
	FROM events
	WHERE fts @@ plainto_tsquery('english', $1)
	ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC, name ASC
	LIMIT $2 OFFSET $3`

// PgFTS is the Postgres full-text tier over the generated events.fts column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; an unreachable database surfaces as a tier failure.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Fetch(ctx context.Context, q resolver.Query) ([]catalog.Record, error) {
	if strings.TrimSpace(q.Text) == "" {
		return []catalog.Record{}, nil
	}

	rows, err := p.db.QueryContext(ctx, ftsQuery, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("pgfts scan: %w", err)
	}
	return records, nil
}

// LoadAllRecords returns every event for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]catalog.Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, description, href, slug FROM events ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]catalog.Record, error) {
	records := make([]catalog.Record, 0)
	for rows.Next() {
		var (
			r                       catalog.Record
			description, href, slug sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &description, &href, &slug); err != nil {
			return nil, err
		}
		r.Description = description.String
		r.Href = href.String
		r.Slug = slug.String
		records = append(records, r)
	}
	return records, rows.Err()
}
