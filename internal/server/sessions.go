package server

import (
	"net/http"

	"github.com/dsaito/agentboard/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"sessions":     len(s.registry.Sessions()),
		"laggedEvents": s.bus.Lagged(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Sessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, ok := s.registry.Detail(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.registry.Messages(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
