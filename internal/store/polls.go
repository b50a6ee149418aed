package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
)

var (
	pollsView       = goqu.T("v_polls_with_tags")
	pollOptionsView = goqu.T("v_poll_options_label")

	polls_id          = goqu.C("id")
	polls_slug        = goqu.C("slug")
	polls_question    = goqu.C("question")
	polls_tagSlug     = goqu.C("tag_slug")
	polls_tagName     = goqu.C("tag_name")
	polls_showOnPolls = goqu.C("show_on_polls")
	polls_createdAt   = goqu.C("created_at")

	options_id        = goqu.C("id")
	options_pollID    = goqu.C("poll_id")
	options_label     = goqu.C("label")
	options_slug      = goqu.C("slug")
	options_sortOrder = goqu.C("sort_order")
)

type PollStore struct {
	goqu *goqu.Database
}

func NewPollStore(db *sql.DB) *PollStore {
	return &PollStore{goqu: goqu.New("postgres", db)}
}

// PollsByTag returns one page of curated polls for a tag, oldest first, with
// their options attached. Auto-generated polls are never returned.
func (s *PollStore) PollsByTag(ctx context.Context, tag string, limit, offset int) ([]Poll, error) {
	var rows []pollRow
	if err := s.pollsDataset(tag, limit, offset).Prepared(true).ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("list polls by tag: %w", err)
	}

	polls := make([]Poll, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if isAutogenerated(row.Slug.String, row.Question) {
			continue
		}
		polls = append(polls, Poll{
			ID:        row.ID,
			Slug:      row.Slug.String,
			Question:  row.Question,
			TagSlug:   row.TagSlug.String,
			TagName:   row.TagName.String,
			CreatedAt: row.CreatedAt.Time,
			Options:   []PollOption{},
		})
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return polls, nil
	}

	var optionRows []pollOptionRow
	if err := s.optionsDataset(ids).Prepared(true).ScanStructsContext(ctx, &optionRows); err != nil {
		return nil, fmt.Errorf("list poll options: %w", err)
	}

	byPoll := make(map[string][]PollOption, len(ids))
	for _, row := range optionRows {
		byPoll[row.PollID] = append(byPoll[row.PollID], PollOption{
			ID:        row.ID,
			PollID:    row.PollID,
			Label:     row.Label,
			Slug:      row.Slug,
			SortOrder: int(row.SortOrder.Int64),
		})
	}
	for i := range polls {
		if options, ok := byPoll[polls[i].ID]; ok {
			polls[i].Options = options
		}
	}
	return polls, nil
}

func (s *PollStore) pollsDataset(tag string, limit, offset int) *goqu.SelectDataset {
	ds := s.goqu.
		From(pollsView).
		Select(
			polls_id,
			polls_slug,
			polls_question,
			polls_tagSlug,
			polls_tagName,
			polls_createdAt).
		Where(
			polls_tagSlug.Eq(tag),
			polls_showOnPolls.IsTrue(),
			goqu.Or(polls_slug.IsNull(), goqu.And(
				polls_slug.NotILike("%-auto-%"),
				polls_slug.NotILike("%autogen%"))),
			polls_question.NotILike("auto-generated%")).
		Order(polls_createdAt.Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	return ds
}

func (s *PollStore) optionsDataset(pollIDs []string) *goqu.SelectDataset {
	return s.goqu.
		From(pollOptionsView).
		Select(
			options_id,
			options_pollID,
			options_label,
			options_slug,
			options_sortOrder).
		Where(options_pollID.In(pollIDs)).
		Order(options_pollID.Asc(), options_sortOrder.Asc())
}

func isAutogenerated(slug, question string) bool {
	return strings.Contains(strings.ToLower(slug), "autogen") ||
		strings.HasPrefix(strings.ToLower(question), "auto-generated")
}
