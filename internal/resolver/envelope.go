package resolver

import "net/http"

// Meta is the pagination and provenance summary sent with every envelope.
type Meta struct {
	Limit    int  `json:"limit"`
	Offset   int  `json:"offset"`
	Random   bool `json:"random,omitempty"`
	Fallback bool `json:"fallback,omitempty"`
}

// Envelope is the response body for resolver-backed endpoints.
type Envelope[T any] struct {
	OK    bool   `json:"ok"`
	Data  []T    `json:"data"`
	Meta  Meta   `json:"meta"`
	Error string `json:"error,omitempty"`
}

// NewEnvelope wraps an adopted outcome. Data never exceeds q.Limit.
func NewEnvelope[T any](q Query, out Outcome[T]) Envelope[T] {
	q = q.Normalize()
	return Envelope[T]{
		OK:   true,
		Data: clip(out.Records, q.Limit),
		Meta: Meta{
			Limit:    q.Limit,
			Offset:   q.Offset,
			Random:   out.Source == SourceProcedure,
			Fallback: out.Source.Degraded(),
		},
	}
}

// CacheControl scales freshness with trust: degraded answers expire fast so
// clients come back soon instead of caching them.
func CacheControl(source Source) string {
	switch source {
	case SourceProcedure:
		return "public, max-age=30, s-maxage=60, stale-while-revalidate=120"
	case SourceQuery, SourceSearch:
		return "public, max-age=60, s-maxage=60, stale-while-revalidate=120"
	default:
		return "public, max-age=10, s-maxage=10, stale-while-revalidate=30"
	}
}

// WriteHeaders sets the caching directive and the provenance marker.
func WriteHeaders(header http.Header, provenanceHeader string, source Source) {
	header.Set("Cache-Control", CacheControl(source))
	header.Set(provenanceHeader, string(source))
}
