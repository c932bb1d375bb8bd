package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
	"github.com/hiresense/hiresense/internal/store"
)

type matchBody struct {
	Score          int      `json:"score"`
	MatchedSkills  []string `json:"matchedSkills"`
	MissingSkills  []string `json:"missingSkills"`
	Recommendation string   `json:"recommendation"`
	HasResume      bool     `json:"hasResume"`
	Cached         bool     `json:"cached"`
}

type batchBody struct {
	Scores        []scoredJob `json:"scores"`
	HasResume     bool        `json:"hasResume"`
	CachedCount   int         `json:"cachedCount"`
	ComputedCount int         `json:"computedCount"`
	Message       string      `json:"message"`
}

func matchRequest(jobID, title string) map[string]any {
	return map[string]any{
		"job": map[string]any{
			"id":     jobID,
			"title":  title,
			"skills": []string{"Go", "Kubernetes"},
		},
	}
}

func TestMatchWithoutResume(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body matchBody
	decodeBody(t, rec, &body)
	require.Equal(t, 50, body.Score)
	require.False(t, body.HasResume)
	require.Equal(t, []string{"Go", "Kubernetes"}, body.MissingSkills)
	require.NotEmpty(t, body.Recommendation)

	require.Empty(t, env.scorer.scored(), "no resume means no scorer call")
}

func TestMatchComputesThenServesFromCache(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body matchBody
	decodeBody(t, rec, &body)
	require.Equal(t, 80, body.Score)
	require.True(t, body.HasResume)
	require.False(t, body.Cached)

	rec = env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	decodeBody(t, rec, &body)
	require.Equal(t, 80, body.Score)
	require.True(t, body.Cached)

	require.Equal(t, []string{"job-1"}, env.scorer.scored(), "second request must hit the cache")
}

func TestMatchCacheIsPerUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")
	env.saveResume(t, "user-2")

	env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-2", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body matchBody
	decodeBody(t, rec, &body)
	require.False(t, body.Cached, "one user's score must not serve another")
	require.Len(t, env.scorer.scored(), 2)
}

func TestMatchScorerFailureFallsBackUncached(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")
	env.scorer.fail["job-1"] = true

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body matchBody
	decodeBody(t, rec, &body)
	require.Equal(t, 50, body.Score)
	require.True(t, body.HasResume)
	require.False(t, body.Cached)

	// The fallback must not be cached: once the model recovers the next
	// request computes for real.
	env.scorer.fail["job-1"] = false
	rec = env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	decodeBody(t, rec, &body)
	require.Equal(t, 80, body.Score)
	require.Len(t, env.scorer.scored(), 2)
}

// profileFailingStore simulates a storage outage on profile reads.
type profileFailingStore struct {
	*store.Memory
}

func (s *profileFailingStore) GetProfile(ctx context.Context, userID string) (json.RawMessage, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestMatchProfileOutageIsNotTreatedAsNoResume(t *testing.T) {
	env := newTestEnv(t, nil)

	deps := env.deps
	deps.Profiles = profile.NewService(&profileFailingStore{Memory: env.store})
	env.handler = New(deps).Routes()

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest("job-1"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	require.Empty(t, env.scorer.scored(), "an outage must not silently score as resume-less")
}

func TestMatchRequiresTitle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", map[string]any{
		"job": map[string]any{"id": "job-1"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchRateLimited(t *testing.T) {
	env := newTestEnv(t, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassAIScoring: {Limit: 1, Window: time.Minute},
	})
	env.saveResume(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-1", "Go Developer"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/jobs/match", "token-1", matchRequest("job-2", "Go Developer"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error   string `json:"error"`
		ResetAt string `json:"resetAt"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Error)
	require.NotEmpty(t, body.ResetAt)
}

func batchRequest(jobIDs ...string) map[string]any {
	jobs := make([]map[string]any, 0, len(jobIDs))
	for _, id := range jobIDs {
		jobs = append(jobs, map[string]any{
			"id":     id,
			"title":  "Go Developer",
			"skills": []string{"Go"},
		})
	}
	return map[string]any{"jobs": jobs}
}

func TestBatchServesHitsAndComputesMisses(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")

	env.matches.SetOne(context.Background(), "user-1", "job-1", cache.MatchScore{
		Score: 91, MatchedSkills: []string{"Go"}, MissingSkills: []string{},
	})

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest("job-1", "job-2"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchBody
	decodeBody(t, rec, &body)
	require.True(t, body.HasResume)
	require.Equal(t, 1, body.CachedCount)
	require.Equal(t, 1, body.ComputedCount)
	require.Len(t, body.Scores, 2)

	byID := make(map[string]scoredJob, len(body.Scores))
	for _, score := range body.Scores {
		byID[score.JobID] = score
	}
	require.Equal(t, 91, byID["job-1"].Score)
	require.Equal(t, 80, byID["job-2"].Score)

	require.Equal(t, []string{"job-2"}, env.scorer.scored(), "only the miss may reach the scorer")

	// The fresh score must now be cached.
	require.NotNil(t, env.matches.GetOne(context.Background(), "user-1", "job-2"))
}

func TestBatchIsolatesFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")
	env.scorer.fail["job-2"] = true

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest("job-1", "job-2", "job-3"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchBody
	decodeBody(t, rec, &body)
	require.Len(t, body.Scores, 3)

	byID := make(map[string]scoredJob, len(body.Scores))
	for _, score := range body.Scores {
		byID[score.JobID] = score
	}
	require.Equal(t, 80, byID["job-1"].Score)
	require.Equal(t, 50, byID["job-2"].Score, "failed job gets the neutral fallback")
	require.Equal(t, 80, byID["job-3"].Score)

	ctx := context.Background()
	require.NotNil(t, env.matches.GetOne(ctx, "user-1", "job-1"))
	require.Nil(t, env.matches.GetOne(ctx, "user-1", "job-2"), "fallbacks must not be cached")
	require.NotNil(t, env.matches.GetOne(ctx, "user-1", "job-3"))
}

func TestBatchWithoutResume(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest("job-1", "job-2"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchBody
	decodeBody(t, rec, &body)
	require.False(t, body.HasResume)
	require.NotEmpty(t, body.Message)
	require.Len(t, body.Scores, 2)
	for _, score := range body.Scores {
		require.Equal(t, 50, score.Score)
	}
	require.Empty(t, env.scorer.scored())
}

func TestBatchCollapsesRepeatedJobs(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest("job-1", "job-1", "job-2"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchBody
	decodeBody(t, rec, &body)
	require.Len(t, body.Scores, 2, "a repeated job must appear once")
	require.Equal(t, 2, body.ComputedCount)
	require.ElementsMatch(t, []string{"job-1", "job-2"}, env.scorer.scored())

	// Both scores must land in the cache.
	ctx := context.Background()
	require.NotNil(t, env.matches.GetOne(ctx, "user-1", "job-1"))
	require.NotNil(t, env.matches.GetOne(ctx, "user-1", "job-2"))
}

func TestBatchRequiresJobs(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", map[string]any{"jobs": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchClampsOversizedRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")

	jobIDs := make([]string, 0, maxBatchJobs+5)
	for i := 0; i < maxBatchJobs+5; i++ {
		jobIDs = append(jobIDs, fmt.Sprintf("job-%d", i))
	}

	rec := env.do(t, http.MethodPost, "/api/jobs/match/batch", "token-1", batchRequest(jobIDs...))
	require.Equal(t, http.StatusOK, rec.Code)

	var body batchBody
	decodeBody(t, rec, &body)
	require.Len(t, body.Scores, maxBatchJobs)
	require.Len(t, env.scorer.scored(), maxBatchJobs)
}
