package server

import (
	"net/http"
	"time"

	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

type limitStatus struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// handleLimits reports the caller's current budgets without charging a
// request against them.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	if class := r.URL.Query().Get("class"); class != "" {
		result := s.limiter.Status(r.Context(), identity.UserID, ratelimit.Class(class))
		s.writeJSON(w, http.StatusOK, toLimitStatus(result))
		return
	}

	statuses := make(map[string]limitStatus)
	for _, class := range s.limiter.Classes() {
		result := s.limiter.Status(r.Context(), identity.UserID, class)
		statuses[string(class)] = toLimitStatus(result)
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

func toLimitStatus(result ratelimit.Result) limitStatus {
	return limitStatus{
		Limit:     result.Limit,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt.UTC().Format(time.RFC3339),
	}
}
