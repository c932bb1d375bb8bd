package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/applications"
	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/jobsearch"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
	"github.com/hiresense/hiresense/internal/store"
)

// stubScorer returns a fixed result and records which jobs it scored.
// Jobs listed in fail error out instead.
type stubScorer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (s *stubScorer) Score(_ context.Context, _ *profile.Resume, job *ai.JobPosting) (*ai.MatchResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, job.ID)
	failed := s.fail[job.ID]
	s.mu.Unlock()

	if failed {
		return nil, errors.New("model unavailable")
	}
	return &ai.MatchResult{
		Score:          80,
		MatchedSkills:  []string{"Go"},
		MissingSkills:  []string{"Kubernetes"},
		Recommendation: "Solid fit.",
	}, nil
}

func (s *stubScorer) scored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type stubParser struct {
	resume *profile.Resume
	err    error
}

func (p *stubParser) Parse(context.Context, string) (*profile.Resume, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resume, nil
}

type stubChatter struct {
	reply string
	err   error
}

func (c *stubChatter) Chat(context.Context, []ai.Message, *ai.ChatContext) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type testEnv struct {
	store    *store.Memory
	scorer   *stubScorer
	parser   *stubParser
	chatter  *stubChatter
	matches  *cache.MatchScores
	profiles *profile.Service
	deps     Deps
	handler  http.Handler
}

func newTestEnv(t *testing.T, limits map[ratelimit.Class]ratelimit.Limit) *testEnv {
	t.Helper()

	if limits == nil {
		limits = map[ratelimit.Class]ratelimit.Limit{
			ratelimit.ClassAIScoring:   {Limit: 100, Window: time.Minute},
			ratelimit.ClassAIChat:      {Limit: 100, Window: time.Minute},
			ratelimit.ClassResumeParse: {Limit: 100, Window: time.Hour},
			ratelimit.ClassGeneral:     {Limit: 100, Window: time.Minute},
		}
	}

	log := zap.NewNop()
	st := store.NewMemory()
	env := &testEnv{
		store: st,
		scorer: &stubScorer{
			fail: make(map[string]bool),
		},
		parser: &stubParser{
			resume: &profile.Resume{Skills: []string{"Go"}, Summary: "dev"},
		},
		chatter:  &stubChatter{reply: "happy to help"},
		matches:  cache.NewMatchScores(st, log, time.Minute),
		profiles: profile.NewService(st),
	}

	env.deps = Deps{
		Logger:       log,
		Store:        st,
		Limiter:      ratelimit.New(st, limits, log),
		Matches:      env.matches,
		Profiles:     env.profiles,
		Applications: applications.NewService(st),
		Scorer:       env.scorer,
		Parser:       env.parser,
		Chatter:      env.chatter,
		Jobs:         jobsearch.New("test-key", "", log),
		Verifier: authn.NewStaticVerifier(map[string]string{
			"token-1": "user-1",
			"token-2": "user-2",
		}),
	}
	env.handler = New(env.deps).Routes()

	return env
}

// rebuildWithJobs swaps in a listings client pointed at a fake provider.
func (e *testEnv) rebuildWithJobs(client *jobsearch.Client) *Server {
	deps := e.deps
	deps.Jobs = client
	return New(deps)
}

func (e *testEnv) saveResume(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, e.profiles.Save(context.Background(), userID, &profile.Resume{
		Skills:  []string{"Go", "PostgreSQL"},
		Summary: "backend engineer",
	}))
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/jobs/match", "bogus-token", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestLimitsReportWithoutCharging(t *testing.T) {
	env := newTestEnv(t, nil)
	env.saveResume(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/jobs/match", "token-1", map[string]any{
		"job": map[string]any{"id": "job-1", "title": "Go Developer"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 3; i++ {
		rec = env.do(t, http.MethodGet, "/api/limits?class=AI_SCORING", "token-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var status struct {
			Limit     int    `json:"limit"`
			Remaining int    `json:"remaining"`
			ResetAt   string `json:"resetAt"`
		}
		decodeBody(t, rec, &status)
		require.Equal(t, 100, status.Limit)
		require.Equal(t, 99, status.Remaining)
		require.NotEmpty(t, status.ResetAt)
	}
}

func TestLimitsListsAllClasses(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/limits", "token-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses map[string]struct {
		Limit     int `json:"limit"`
		Remaining int `json:"remaining"`
	}
	decodeBody(t, rec, &statuses)
	require.Len(t, statuses, 4)
	require.Contains(t, statuses, "AI_SCORING")
	require.Contains(t, statuses, "GENERAL")
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/chat", "", map[string]any{
		"messages": []ai.Message{{Role: "user", Content: "How do I stand out?"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "happy to help", body["message"])
}

func TestChatRequiresMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/chat", "", map[string]any{"messages": []ai.Message{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.chatter.err = errors.New("model unavailable")

	rec := env.do(t, http.MethodPost, "/api/chat", "", map[string]any{
		"messages": []ai.Message{{Role: "user", Content: "hi"}},
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatThrottledByOrigin(t *testing.T) {
	env := newTestEnv(t, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassAIChat: {Limit: 1, Window: time.Minute},
	})

	body := map[string]any{"messages": []ai.Message{{Role: "user", Content: "hi"}}}

	rec := env.do(t, http.MethodPost, "/api/chat", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
