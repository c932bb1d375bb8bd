package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

const (
	// maxBatchJobs caps one batch request's AI fan-out.
	maxBatchJobs = 20
	// scoreConcurrency bounds concurrent scorer calls per batch request.
	scoreConcurrency = 4

	noResumeRecommendation    = "Upload your resume to get personalized match scores."
	unavailableRecommendation = "Match calculation temporarily unavailable."
)

type jobPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

// jobID falls back to a title slug when the provider sent no id.
func (j jobPayload) jobID() string {
	if j.ID != "" {
		return j.ID
	}
	return strings.ToLower(strings.Join(strings.Fields(j.Title), "-"))
}

func (j jobPayload) posting() *ai.JobPosting {
	return &ai.JobPosting{
		ID:          j.jobID(),
		Title:       j.Title,
		Description: j.Description,
		Skills:      j.Skills,
	}
}

type matchResponse struct {
	Score          int      `json:"score"`
	MatchedSkills  []string `json:"matchedSkills"`
	MissingSkills  []string `json:"missingSkills"`
	Recommendation string   `json:"recommendation,omitempty"`
	HasResume      bool     `json:"hasResume"`
	Cached         bool     `json:"cached,omitempty"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	limit := s.limiter.Check(r.Context(), identity.UserID, ratelimit.ClassAIScoring)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	var body struct {
		Job jobPayload `json:"job"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Job.Title == "" {
		s.writeError(w, http.StatusBadRequest, "job data with title is required")
		return
	}

	resume, err := s.profiles.Get(r.Context(), identity.UserID)
	if err != nil && !errors.Is(err, profile.ErrNoResume) {
		s.logger.Error("loading profile failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if err != nil || !resume.HasSkills() {
		// An unset resume is a universal default, not cacheable per-job
		// state.
		s.writeJSON(w, http.StatusOK, matchResponse{
			Score:          ai.FallbackScore,
			MatchedSkills:  []string{},
			MissingSkills:  body.Job.Skills,
			Recommendation: noResumeRecommendation,
			HasResume:      false,
		})
		return
	}

	score, cached := s.scoreOne(r.Context(), identity.UserID, resume, body.Job.posting())

	s.writeJSON(w, http.StatusOK, matchResponse{
		Score:          score.Score,
		MatchedSkills:  score.MatchedSkills,
		MissingSkills:  score.MissingSkills,
		Recommendation: score.Recommendation,
		HasResume:      true,
		Cached:         cached,
	})
}

type scoredJob struct {
	JobID         string   `json:"jobId"`
	Score         int      `json:"score"`
	MatchedSkills []string `json:"matchedSkills"`
	MissingSkills []string `json:"missingSkills"`
}

func (s *Server) handleMatchBatch(w http.ResponseWriter, r *http.Request, identity *authn.Identity) {
	limit := s.limiter.Check(r.Context(), identity.UserID, ratelimit.ClassAIScoring)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	var body struct {
		Jobs []jobPayload `json:"jobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Jobs) == 0 {
		s.writeError(w, http.StatusBadRequest, "jobs array is required")
		return
	}

	// The same job listed twice is one computation and one cache row.
	jobs := make([]jobPayload, 0, len(body.Jobs))
	seen := make(map[string]bool, len(body.Jobs))
	for _, job := range body.Jobs {
		if seen[job.jobID()] {
			continue
		}
		seen[job.jobID()] = true
		jobs = append(jobs, job)
	}
	if len(jobs) > maxBatchJobs {
		jobs = jobs[:maxBatchJobs]
	}

	resume, err := s.profiles.Get(r.Context(), identity.UserID)
	if err != nil && !errors.Is(err, profile.ErrNoResume) {
		s.logger.Error("loading profile failed",
			zap.String("user_id", identity.UserID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if err != nil || !resume.HasSkills() {
		scores := make([]scoredJob, 0, len(jobs))
		for _, job := range jobs {
			scores = append(scores, scoredJob{
				JobID:         job.jobID(),
				Score:         ai.FallbackScore,
				MatchedSkills: []string{},
				MissingSkills: job.Skills,
			})
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"scores":    scores,
			"hasResume": false,
			"message":   noResumeRecommendation,
		})
		return
	}

	jobIDs := make([]string, 0, len(jobs))
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.jobID())
	}

	hits := s.matches.GetMany(r.Context(), identity.UserID, jobIDs)

	scores := make([]scoredJob, 0, len(jobs))
	var misses []jobPayload
	for _, job := range jobs {
		if hit, ok := hits[job.jobID()]; ok {
			scores = append(scores, scoredJob{
				JobID:         job.jobID(),
				Score:         hit.Score,
				MatchedSkills: hit.MatchedSkills,
				MissingSkills: hit.MissingSkills,
			})
			continue
		}
		misses = append(misses, job)
	}

	computed := s.scoreBatch(r.Context(), identity.UserID, resume, misses)
	scores = append(scores, computed...)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"scores":        scores,
		"hasResume":     true,
		"cachedCount":   len(hits),
		"computedCount": len(computed),
	})
}

// scoreOne returns the cached result for (user, job) or computes and caches
// a fresh one. Concurrent identical computations are collapsed; a scorer
// failure yields the neutral fallback and is not cached, so the next
// request retries.
func (s *Server) scoreOne(ctx context.Context, userID string, resume *profile.Resume, job *ai.JobPosting) (cache.MatchScore, bool) {
	type outcome struct {
		score  cache.MatchScore
		cached bool
	}

	v, _, _ := s.inflight.Do(cache.Key(userID, job.ID), func() (any, error) {
		if hit := s.matches.GetOne(ctx, userID, job.ID); hit != nil {
			return outcome{score: *hit, cached: true}, nil
		}

		result, err := s.scorer.Score(ctx, resume, job)
		if err != nil {
			s.logger.Warn("match scoring failed, substituting fallback",
				zap.String("user_id", userID), zap.String("job_id", job.ID), zap.Error(err))
			fallback := ai.Fallback(job, unavailableRecommendation)
			return outcome{score: toMatchScore(fallback)}, nil
		}

		score := toMatchScore(result)
		s.matches.SetOne(ctx, userID, job.ID, score)

		return outcome{score: score}, nil
	})

	out := v.(outcome)
	return out.score, out.cached
}

// scoreBatch computes the uncached subset concurrently. Each job is
// independent: one scorer failure falls back for that job only and never
// aborts its siblings. Only successfully computed scores are written back.
func (s *Server) scoreBatch(ctx context.Context, userID string, resume *profile.Resume, misses []jobPayload) []scoredJob {
	if len(misses) == 0 {
		return nil
	}

	results := make([]scoredJob, len(misses))
	fresh := make([]*cache.JobScore, len(misses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)

	for i, job := range misses {
		g.Go(func() error {
			posting := job.posting()

			result, err := s.scorer.Score(gctx, resume, posting)
			if err != nil {
				s.logger.Warn("match scoring failed, substituting fallback",
					zap.String("user_id", userID), zap.String("job_id", posting.ID), zap.Error(err))
				result = ai.Fallback(posting, "")
			} else {
				fresh[i] = &cache.JobScore{JobID: posting.ID, MatchScore: toMatchScore(result)}
			}

			results[i] = scoredJob{
				JobID:         posting.ID,
				Score:         result.Score,
				MatchedSkills: result.MatchedSkills,
				MissingSkills: result.MissingSkills,
			}
			return nil
		})
	}
	_ = g.Wait()

	var toCache []cache.JobScore
	for _, score := range fresh {
		if score != nil {
			toCache = append(toCache, *score)
		}
	}
	s.matches.SetMany(ctx, userID, toCache)

	return results
}

func toMatchScore(result *ai.MatchResult) cache.MatchScore {
	return cache.MatchScore{
		Score:          result.Score,
		MatchedSkills:  result.MatchedSkills,
		MissingSkills:  result.MissingSkills,
		Recommendation: result.Recommendation,
	}
}
