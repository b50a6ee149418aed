package polls

import (
	"regexp"
	"strings"
)

// AllTags selects every active registry poll.
const AllTags = "all"

var tagSynonyms = map[string]string{
	"weddings":             "wedding",
	"wedding":              "wedding",
	"bachelor-parties":     "bachelorette",
	"bachelorette-parties": "bachelorette",
	"bachelor":             "bachelorette",
	"bachelorette":         "bachelorette",
	"parties":              "party-bus",
	"party-bus":            "party-bus",
}

// NormalizeTag lowercases tag and maps it onto its canonical poll tag.
func NormalizeTag(tag string) string {
	key := strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := tagSynonyms[key]; ok {
		return canonical
	}
	return key
}

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(value string) string {
	slug := nonSlugRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	slug = strings.TrimSuffix(strings.TrimPrefix(slug, "-"), "-")
	if slug == "" {
		return "option"
	}
	return slug
}
