package store

import (
	"database/sql"
	"time"
)

// EventFilter narrows the plain events listing.
type EventFilter struct {
	Limit    int
	Offset   int
	Featured bool
	Tag      string
}

type eventRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Href        sql.NullString `db:"href"`
	Slug        sql.NullString `db:"slug"`
	Featured    sql.NullBool   `db:"featured"`
	CreatedAt   sql.NullTime   `db:"created_at"`
}

type Poll struct {
	ID        string       `json:"id"`
	Slug      string       `json:"slug,omitempty"`
	Question  string       `json:"question"`
	TagSlug   string       `json:"tag_slug,omitempty"`
	TagName   string       `json:"tag_name,omitempty"`
	CreatedAt time.Time    `json:"-"`
	Options   []PollOption `json:"options"`
}

type PollOption struct {
	ID        string `json:"id"`
	PollID    string `json:"poll_id"`
	Label     string `json:"label"`
	Slug      string `json:"slug"`
	SortOrder int    `json:"sort_order"`
}

type pollRow struct {
	ID        string         `db:"id"`
	Slug      sql.NullString `db:"slug"`
	Question  string         `db:"question"`
	TagSlug   sql.NullString `db:"tag_slug"`
	TagName   sql.NullString `db:"tag_name"`
	CreatedAt sql.NullTime   `db:"created_at"`
}

type pollOptionRow struct {
	ID        string        `db:"id"`
	PollID    string        `db:"poll_id"`
	Label     string        `db:"label"`
	Slug      string        `db:"slug"`
	SortOrder sql.NullInt64 `db:"sort_order"`
}
