package server

import (
	"net/http"
	"strings"

	"github.com/dsaito/agentboard/internal/model"
)

// handleSearch serves GET /api/search?q=...&scope=a,b. Unknown
// scope names are dropped; an empty scope set falls back to all.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}

	scopes := model.ParseScopes(r.URL.Query().Get("scope"))
	resp := s.registry.Search(query, scopes)
	if resp.Results == nil {
		resp.Results = []model.SessionSearchResult{}
	}
	writeJSON(w, http.StatusOK, resp)
}
