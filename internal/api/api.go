package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/beacon/internal/broadcast"
	"github.com/joescharf/beacon/internal/ingest"
	"github.com/joescharf/beacon/internal/models"
	"github.com/joescharf/beacon/internal/store"
)

// Server provides the REST and websocket API handlers.
type Server struct {
	store    store.Store
	pipeline *ingest.Pipeline
	registry *broadcast.Registry
}

// NewServer creates a new API server. The registry is shared with the
// ingest pipeline so persisted events reach live stream subscribers.
func NewServer(s store.Store, registry *broadcast.Registry) *Server {
	return &Server{
		store:    s,
		pipeline: ingest.NewPipeline(s, registry),
		registry: registry,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", s.createEvent)
	mux.HandleFunc("POST /api/events/batch", s.createEventsBatch)
	mux.HandleFunc("GET /api/events", s.listEvents)
	mux.HandleFunc("GET /api/events/{id}", s.getEvent)

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.getProject)

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.getSessionEvents)

	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("GET /api/filter-options", s.getFilterOptions)

	mux.HandleFunc("GET /ws/stream", s.streamEvents)
	mux.HandleFunc("GET /health", s.healthCheck)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt parses a positive integer query parameter, clamping to max and
// falling back to def when absent, malformed, or below 1.
func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// --- Ingest ---

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var in models.EventCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if missing := in.Validate(); missing != "" {
		writeError(w, http.StatusBadRequest, missing+" is required")
		return
	}

	event, err := s.pipeline.Ingest(r.Context(), &in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) createEventsBatch(w http.ResponseWriter, r *http.Request) {
	var batch []models.EventCreate
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// No batch atomicity: items are ingested sequentially, and a failure
	// leaves earlier items persisted.
	events := make([]*models.Event, 0, len(batch))
	for i := range batch {
		if missing := batch[i].Validate(); missing != "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %s is required", i, missing))
			return
		}
		event, err := s.pipeline.Ingest(r.Context(), &batch[i])
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		events = append(events, event)
	}
	writeJSON(w, http.StatusCreated, events)
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	limit := queryInt(r, "limit", 50, 500)
	offset := queryInt(r, "offset", 0, 0)

	sessions, err := s.store.ListSessions(r.Context(), projectID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := s.store.ListSessionEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	sess.Events = events

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.store.ListSessionEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Events ---

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter := store.EventListFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		SessionID: r.URL.Query().Get("session_id"),
		EventType: r.URL.Query().Get("event_type"),
		Limit:     queryInt(r, "limit", 100, 1000),
		Offset:    queryInt(r, "offset", 0, 0),
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	event, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// --- Aggregates ---

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats.RecentSessions == nil {
		stats.RecentSessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.store.FilterOptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if opts.EventTypes == nil {
		opts.EventTypes = []string{}
	}
	if opts.Projects == nil {
		opts.Projects = []*models.ProjectOption{}
	}
	if opts.Sessions == nil {
		opts.Sessions = []*models.SessionOption{}
	}
	writeJSON(w, http.StatusOK, opts)
}

// --- Health ---

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
