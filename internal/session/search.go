package session

import (
	"sort"
	"strings"

	"github.com/dsaito/agentboard/internal/model"
)

const (
	// Snippet window on each side of a match, in bytes, cut on
	// code-point boundaries.
	snippetRadius = 40
	// Matches reported per session; MatchCount still counts all.
	maxMatchesPerSession = 3
)

// Search performs a case-insensitive substring search over the
// emitted sessions. Results are ordered by match count descending,
// ties keeping the most-recently-active-first session order.
func (r *Registry) Search(query string, scopes []model.SearchScope) model.SearchResponse {
	if len(scopes) == 0 {
		scopes = model.AllScopes
	}
	needle := strings.ToLower(query)

	var results []model.SessionSearchResult
	for _, summary := range r.Sessions() {
		detail, ok := r.Detail(summary.SessionID)
		if !ok {
			continue
		}
		if res, found := searchSession(detail, needle, scopes); found {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchCount > results[j].MatchCount
	})

	return model.SearchResponse{
		Query:         query,
		TotalSessions: len(results),
		Results:       results,
	}
}

func searchSession(
	detail model.SessionDetail, needle string, scopes []model.SearchScope,
) (model.SessionSearchResult, bool) {
	res := model.SessionSearchResult{Session: detail.SessionSummary}

	add := func(m model.SearchMatch) {
		res.MatchCount++
		if len(res.Matches) < maxMatchesPerSession {
			res.Matches = append(res.Matches, m)
		}
	}

	// Field-level matches carry the session's start time and a
	// system/text classification; only content matches carry the
	// message's own role and type.
	fieldMatch := func(scope model.SearchScope, content string) model.SearchMatch {
		return model.SearchMatch{
			Content:     content,
			Scope:       scope,
			MessageRole: model.RoleSystem,
			MessageType: model.TypeText,
			Timestamp:   detail.StartedAt,
		}
	}

	for _, scope := range scopes {
		switch scope {
		case model.ScopeProjectName:
			// The project name is short; report the whole field.
			if containsFold(detail.ProjectName, needle) {
				add(fieldMatch(scope, detail.ProjectName))
			}

		case model.ScopeCurrentTask:
			if idx := indexFold(detail.CurrentTask, needle); idx >= 0 {
				add(fieldMatch(scope,
					snippet(detail.CurrentTask, idx, len(needle))))
			}

		case model.ScopeWorkingDirectory:
			// Matches the live working directory, else the project
			// path.
			if idx := indexFold(detail.WorkingDirectory, needle); idx >= 0 {
				add(fieldMatch(scope,
					snippet(detail.WorkingDirectory, idx, len(needle))))
			} else if idx := indexFold(detail.ProjectPath, needle); idx >= 0 {
				add(fieldMatch(scope,
					snippet(detail.ProjectPath, idx, len(needle))))
			}

		case model.ScopeContent:
			for _, msg := range detail.Messages {
				if idx := indexFold(msg.Content, needle); idx >= 0 {
					add(model.SearchMatch{
						Content:     snippet(msg.Content, idx, len(needle)),
						Scope:       scope,
						MessageRole: msg.Role,
						MessageType: msg.Type,
						Timestamp:   msg.Timestamp,
					})
				}
			}
		}
	}

	return res, res.MatchCount > 0
}

func containsFold(haystack, needle string) bool {
	return indexFold(haystack, needle) >= 0
}

// indexFold returns the byte index of the lowercase needle in the
// lowercased haystack, or -1.
func indexFold(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	return strings.Index(strings.ToLower(haystack), needle)
}

// snippet cuts a window of snippetRadius bytes on each side of the
// match at idx, aligned to code-point boundaries, padding with
// "..." where text was cut.
func snippet(s string, idx, matchLen int) string {
	// idx comes from the case-folded haystack; folding can grow a
	// rune's byte length, pushing folded offsets past the original
	// string. Clamp before slicing.
	if idx > len(s) {
		idx = len(s)
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && start < len(s) && !isRuneStart(s[start]) {
		start--
	}

	end := idx + matchLen + snippetRadius
	if end > len(s) {
		end = len(s)
	}
	for end < len(s) && !isRuneStart(s[end]) {
		end++
	}

	out := s[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(s) {
		out += "..."
	}
	return out
}
