package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/applications"
	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

func (s *Server) handleApplicationList(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	limit := s.limiter.Check(r.Context(), identity.UserID, ratelimit.ClassGeneral)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("limit"))

	apps, stats, pagination, err := s.applications.List(r.Context(), identity.UserID,
		applications.Status(q.Get("status")), page, pageSize)
	if err != nil {
		s.logger.Error("listing applications failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch applications")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"stats":        stats,
		"pagination":   pagination,
	})
}

func (s *Server) handleApplicationSave(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	limit := s.limiter.Check(r.Context(), identity.UserID, ratelimit.ClassGeneral)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	var body struct {
		Job        applications.EmbeddedJob `json:"job"`
		MatchScore int                      `json:"matchScore"`
		Notes      string                   `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Job.ExternalID == "" || body.Job.Title == "" || body.Job.Company == "" {
		s.writeError(w, http.StatusBadRequest, "job data is required (externalId, title, company)")
		return
	}

	app, err := s.applications.Save(r.Context(), identity.UserID, body.Job, body.MatchScore, body.Notes)
	if err != nil {
		if errors.Is(err, applications.ErrDuplicate) {
			s.writeError(w, http.StatusConflict, "job already saved")
			return
		}
		s.logger.Error("saving application failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save job")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"application": app})
}

func (s *Server) handleApplicationUpdate(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	var body struct {
		ApplicationID string  `json:"applicationId"`
		Status        string  `json:"status"`
		Notes         *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ApplicationID == "" {
		s.writeError(w, http.StatusBadRequest, "application id is required")
		return
	}
	if !applications.ValidStatus(applications.Status(body.Status)) {
		s.writeError(w, http.StatusBadRequest, "unknown application status")
		return
	}

	app, err := s.applications.UpdateStatus(r.Context(), identity.UserID,
		body.ApplicationID, applications.Status(body.Status), body.Notes)
	if err != nil {
		if errors.Is(err, applications.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "application not found")
			return
		}
		s.logger.Error("updating application failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to update application")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"application": app})
}

func (s *Server) handleApplicationDelete(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	q := r.URL.Query()
	applicationID := q.Get("id")
	jobID := q.Get("jobId")
	if applicationID == "" && jobID == "" {
		s.writeError(w, http.StatusBadRequest, "application id or job id is required")
		return
	}

	err := s.applications.Delete(r.Context(), identity.UserID, applicationID, jobID)
	if err != nil {
		if errors.Is(err, applications.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "application not found")
			return
		}
		s.logger.Error("deleting application failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to remove job")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "job removed from saved",
		"success": true,
	})
}

func (s *Server) handleSavedJobs(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	ids, refs, err := s.applications.SavedJobs(r.Context(), identity.UserID)
	if err != nil {
		s.logger.Error("listing saved jobs failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to fetch saved jobs")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"savedJobIds":  ids,
		"savedJobsMap": refs,
	})
}
