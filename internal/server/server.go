// Package server exposes the tracker's HTTP API and hosts the scoring
// orchestrator: rate limit, then cache, then the external scorer, then
// cache write-back.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/applications"
	"github.com/hiresense/hiresense/internal/authn"
	"github.com/hiresense/hiresense/internal/cache"
	"github.com/hiresense/hiresense/internal/jobsearch"
	"github.com/hiresense/hiresense/internal/profile"
	"github.com/hiresense/hiresense/internal/ratelimit"
	"github.com/hiresense/hiresense/internal/store"
)

// DefaultJobListTTL bounds how long a job-search result page is reused.
const DefaultJobListTTL = 5 * time.Minute

// Deps carries everything the server needs. Store-backed pieces share the
// one store; AI pieces share the one provider.
type Deps struct {
	Logger       *zap.Logger
	Store        store.Store
	Limiter      *ratelimit.Limiter
	Matches      *cache.MatchScores
	Profiles     *profile.Service
	Applications *applications.Service
	Scorer       ai.Scorer
	Parser       ai.ResumeParser
	Chatter      ai.Chatter
	Jobs         *jobsearch.Client
	Verifier     authn.Verifier
	JobListTTL   time.Duration
}

// Server is the HTTP API front.
type Server struct {
	logger       *zap.Logger
	store        store.Store
	limiter      *ratelimit.Limiter
	matches      *cache.MatchScores
	lists        *cache.Manager
	profiles     *profile.Service
	applications *applications.Service
	scorer       ai.Scorer
	parser       ai.ResumeParser
	chatter      ai.Chatter
	jobs         *jobsearch.Client
	verifier     authn.Verifier
	jobListTTL   time.Duration

	// inflight collapses concurrent identical score computations so a burst
	// of requests for the same (user, job) costs one AI call.
	inflight singleflight.Group
}

// New assembles a server from its dependencies.
func New(deps Deps) *Server {
	ttl := deps.JobListTTL
	if ttl <= 0 {
		ttl = DefaultJobListTTL
	}

	return &Server{
		logger:       deps.Logger,
		store:        deps.Store,
		limiter:      deps.Limiter,
		matches:      deps.Matches,
		lists:        cache.NewManager(deps.Store, deps.Logger),
		profiles:     deps.Profiles,
		applications: deps.Applications,
		scorer:       deps.Scorer,
		parser:       deps.Parser,
		chatter:      deps.Chatter,
		jobs:         deps.Jobs,
		verifier:     deps.Verifier,
		jobListTTL:   ttl,
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs/match", s.requireAuth(s.handleMatch))
	mux.HandleFunc("POST /api/jobs/match/batch", s.requireAuth(s.handleMatchBatch))
	mux.HandleFunc("POST /api/resume", s.requireAuth(s.handleResumeUpload))
	mux.HandleFunc("DELETE /api/resume", s.requireAuth(s.handleResumeDelete))
	mux.HandleFunc("GET /api/jobs", s.handleJobSearch)
	mux.HandleFunc("GET /api/applications", s.requireAuth(s.handleApplicationList))
	mux.HandleFunc("POST /api/applications", s.requireAuth(s.handleApplicationSave))
	mux.HandleFunc("PUT /api/applications", s.requireAuth(s.handleApplicationUpdate))
	mux.HandleFunc("DELETE /api/applications", s.requireAuth(s.handleApplicationDelete))
	mux.HandleFunc("GET /api/applications/saved", s.requireAuth(s.handleSavedJobs))
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/limits", s.requireAuth(s.handleLimits))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("writing response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeRateLimited answers a rejected request with the window reset time so
// the client can back off.
func (s *Server) writeRateLimited(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("Retry-After", result.ResetAt.UTC().Format(http.TimeFormat))
	s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":   "rate limit exceeded",
		"limit":   result.Limit,
		"resetAt": result.ResetAt.UTC().Format(time.RFC3339),
	})
}
