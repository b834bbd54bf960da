// Package api exposes a small HTTP status surface: health, persona
// info, and the moderation audit log. The conversational transport
// itself (e.g. a WebSocket endpoint) is a separate adapter that talks
// to the gateway directly; this API never touches event routing.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"digitalhuman/internal/audit"
)

// PersonaInfo is the slice of the conversation component the API reads.
type PersonaInfo interface {
	ID() string
	Name() string
	ActiveSessions() int
}

// ConnectionInfo is the slice of the gateway the API reads.
type ConnectionInfo interface {
	ActiveConnections() int
}

// Server serves the status API.
type Server struct {
	persona     PersonaInfo
	connections ConnectionInfo
	audit       audit.Store
	logger      *slog.Logger
}

// New creates a Server. audit may be nil; its endpoints then report 404.
func New(persona PersonaInfo, connections ConnectionInfo, auditStore audit.Store, logger *slog.Logger) *Server {
	return &Server{
		persona:     persona,
		connections: connections,
		audit:       auditStore,
		logger:      logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/persona/info", s.handlePersonaInfo).Methods(http.MethodGet)
	v1.HandleFunc("/moderation/recent", s.handleModerationRecent).Methods(http.MethodGet)
	v1.HandleFunc("/moderation/stats", s.handleModerationStats).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "digital-human",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handlePersonaInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":                 s.persona.ID(),
		"name":               s.persona.Name(),
		"active_sessions":    s.persona.ActiveSessions(),
		"active_connections": s.connections.ActiveConnections(),
	})
}

func (s *Server) handleModerationRecent(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.NotFound(w, r)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	decisions, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, map[string]any{
			"event_id":   d.EventID,
			"session_id": d.SessionID,
			"user_id":    d.UserID,
			"outcome":    d.Outcome,
			"reason":     d.Reason,
			"timestamp":  d.Timestamp,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": out})
}

func (s *Server) handleModerationStats(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.NotFound(w, r)
		return
	}

	counts, err := s.audit.CountByOutcome(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"outcomes": counts})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && s.logger != nil {
		s.logger.Warn("response encode failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if s.logger != nil {
		s.logger.Warn("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}
