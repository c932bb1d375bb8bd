package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

// maxResumeChars guards the parser against oversized uploads.
const maxResumeChars = 50_000

func (s *Server) handleResumeUpload(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	limit := s.limiter.Check(r.Context(), identity.UserID, ratelimit.ClassResumeParse)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(body.Text)
	if text == "" {
		s.writeError(w, http.StatusBadRequest, "resume text is required")
		return
	}
	if len(text) > maxResumeChars {
		s.writeError(w, http.StatusBadRequest, "resume text is too large")
		return
	}

	parsed, err := s.parser.Parse(r.Context(), text)
	if err != nil {
		s.logger.Error("resume parsing failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "resume parsing is temporarily unavailable")
		return
	}

	if err := s.profiles.Save(r.Context(), identity.UserID, parsed); err != nil {
		s.logger.Error("saving profile failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save resume")
		return
	}

	// The old resume's scores are stale the moment the new profile is
	// saved. Invalidate before responding so no later read can serve them.
	s.matches.InvalidateUser(r.Context(), identity.UserID)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"profile": parsed,
	})
}

func (s *Server) handleResumeDelete(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	if err := s.profiles.Delete(r.Context(), identity.UserID); err != nil {
		s.logger.Error("deleting profile failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete resume")
		return
	}

	s.matches.InvalidateUser(r.Context(), identity.UserID)

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
