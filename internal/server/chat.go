package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

// handleChat accepts anonymous callers; they are throttled by network
// origin instead of user id.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	identifier, identity := s.identify(r)

	limit := s.limiter.Check(r.Context(), identifier, ratelimit.ClassAIChat)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	var body struct {
		Messages       []ai.Message `json:"messages"`
		JobTitle       string       `json:"jobTitle"`
		JobDescription string       `json:"jobDescription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}

	chatCtx := &ai.ChatContext{
		JobTitle:       body.JobTitle,
		JobDescription: body.JobDescription,
	}
	if identity != nil {
		resume, err := s.profiles.Get(r.Context(), identity.UserID)
		if err == nil {
			chatCtx.Resume = resume
		} else if !errors.Is(err, profile.ErrNoResume) {
			s.logger.Warn("loading profile for chat context failed",
				zap.String("user_id", identity.UserID), zap.Error(err))
		}
	}

	reply, err := s.chatter.Chat(r.Context(), body.Messages, chatCtx)
	if err != nil {
		s.logger.Error("chat generation failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "assistant is temporarily unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": reply})
}
