package polls

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/resolver"
	"fleetsite/api/internal/store"
)

// FallbackLimit caps how many registry polls the floor ever returns.
const FallbackLimit = 25

type registryPoll struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Tags        []string `json:"tags"`
	Active      *bool    `json:"active"`
	OptionSlugs []string `json:"option_slugs"`
	TagName     string   `json:"tag_name"`
	Slug        string   `json:"slug"`
}

// Registry is the bundled poll list used when the database has nothing to
// offer. The file is read once; a missing or malformed file is an empty registry.
type Registry struct {
	path  string
	once  sync.Once
	polls []registryPoll
}

func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Load reads the registry file if it has not been read yet and returns the
// number of polls it holds.
func (r *Registry) Load() int {
	r.once.Do(func() {
		polls, err := readRegistry(r.path)
		if err != nil {
			log.WithField("path", r.path).Warnf("polls: registry unavailable: %v", err)
			polls = []registryPoll{}
		}
		r.polls = polls
	})
	return len(r.polls)
}

func readRegistry(path string) ([]registryPoll, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var polls []registryPoll
	if err := json.Unmarshal(raw, &polls); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return polls, nil
}

// Floor returns active registry polls carrying q.Tag, at most FallbackLimit.
func (r *Registry) Floor(q resolver.Query) []store.Poll {
	r.Load()
	tag := NormalizeTag(q.Tag)

	limit := q.Limit
	if limit <= 0 || limit > FallbackLimit {
		limit = FallbackLimit
	}

	out := make([]store.Poll, 0, limit)
	skipped := 0
	for _, entry := range r.polls {
		if !entry.matches(tag) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, entry.toPoll(tag))
		if len(out) == limit {
			break
		}
	}
	return out
}

func (p registryPoll) matches(tag string) bool {
	if p.Active != nil && !*p.Active {
		return false
	}
	if len(p.Tags) == 0 {
		return false
	}
	if tag == AllTags {
		return true
	}
	for _, t := range p.Tags {
		if t != "" && strings.ToLower(t) == tag {
			return true
		}
	}
	return false
}

func (p registryPoll) toPoll(tag string) store.Poll {
	poll := store.Poll{
		ID:       p.ID,
		Slug:     firstNonEmpty(p.Slug, p.ID),
		Question: p.Question,
		TagSlug:  tag,
		TagName:  firstNonEmpty(p.TagName, tag),
		Options:  make([]store.PollOption, 0, len(p.Options)),
	}
	for idx, label := range p.Options {
		slug := ""
		if idx < len(p.OptionSlugs) {
			slug = p.OptionSlugs[idx]
		}
		poll.Options = append(poll.Options, store.PollOption{
			ID:        fmt.Sprintf("%s__%d", p.ID, idx),
			PollID:    p.ID,
			Label:     label,
			Slug:      firstNonEmpty(slug, slugify(label)),
			SortOrder: idx,
		})
	}
	return poll
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
