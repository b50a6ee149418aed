package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/polls"
	"fleetsite/api/internal/resolver"
)

const (
	eventsSourceHeader = "X-Events-Source"
	searchSourceHeader = "X-Search-Source"
	pollsSourceHeader  = "X-Polls-Source"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

// WithMetrics serves h at /metrics.
func (s *HTTPServer) WithMetrics(h http.Handler) *HTTPServer {
	s.metrics = h
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch r.URL.Path {
	case "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "/api/ready":
		s.handleReady(w, r)
	case "/api/events":
		s.handleEvents(w, r)
	case "/api/events/search":
		s.handleSearch(w, r)
	case "/api/poll/by-tag":
		s.handlePollsByTag(w, r)
	case "/api/fleet/images":
		s.handleVehicleImages(w, r)
	case "/api/ops/provenance":
		s.handleProvenance(w, r)
	case "/metrics":
		if s.metrics == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.metrics.ServeHTTP(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r, resolver.DefaultLimit)
	out, err := s.service.ListEvents(r.Context(), q)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeResolved(w, eventsSourceHeader, q, out)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r, resolver.DefaultLimit)
	q.Text = strings.TrimSpace(r.URL.Query().Get("q"))
	out, err := s.service.SearchEvents(r.Context(), q)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeResolved(w, searchSourceHeader, q, out)
}

func (s *HTTPServer) handlePollsByTag(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r, polls.DefaultLimit)
	if q.Limit > polls.FallbackLimit {
		q.Limit = polls.FallbackLimit
	}
	if q.Tag == "" {
		q.Tag = strings.TrimSpace(r.URL.Query().Get("slug"))
	}
	out, err := s.service.PollsByTag(r.Context(), q)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeResolved(w, pollsSourceHeader, q, out)
}

func (s *HTTPServer) handleVehicleImages(w http.ResponseWriter, r *http.Request) {
	var paths []string
	for _, raw := range r.URL.Query()["path"] {
		if p := strings.TrimSpace(raw); p != "" {
			paths = append(paths, p)
		}
	}
	urls, err := s.service.VehicleImages(r.Context(), paths)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300, s-maxage=300")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": urls})
}

func (s *HTTPServer) handleProvenance(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	summary, err := s.service.Provenance(r.Context(), strings.TrimSpace(values.Get("endpoint")), strings.TrimSpace(values.Get("day")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": summary})
}

// parseQuery reads the shared list parameters. Unparseable numbers fall back
// to their defaults; Normalize clamps the rest.
func parseQuery(r *http.Request, defaultLimit int) resolver.Query {
	values := r.URL.Query()
	q := resolver.Query{
		Limit:    defaultLimit,
		Featured: truthy(values.Get("featured")),
		Random:   truthy(values.Get("random")),
		Tag:      strings.TrimSpace(values.Get("tag")),
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Limit = n
		}
	}
	if raw := strings.TrimSpace(values.Get("offset")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			q.Offset = n
		}
	}
	for _, id := range strings.Split(values.Get("guarantee"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			q.Guarantee = append(q.Guarantee, id)
		}
	}
	return q.Normalize()
}

func truthy(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func writeResolved[T any](w http.ResponseWriter, header string, q resolver.Query, out resolver.Outcome[T]) {
	resolver.WriteHeaders(w.Header(), header, out.Source)
	writeJSON(w, http.StatusOK, resolver.NewEnvelope(q, out))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.WithFields(log.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Events-Source, X-Search-Source, X-Polls-Source, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"ok":    false,
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("code", code).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
