package server

import (
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/jobsearch"
	"github.com/hiresense/hiresense/internal/ratelimit"
)

func (s *Server) handleJobSearch(w http.ResponseWriter, r *http.Request) {
	identifier, _ := s.identify(r)

	limit := s.limiter.Check(r.Context(), identifier, ratelimit.ClassGeneral)
	if !limit.Allowed {
		s.writeRateLimited(w, limit)
		return
	}

	params := searchParamsFromQuery(r.URL.Query())
	key := jobListKey(params)

	var jobs []jobsearch.Job
	if s.lists.Get(r.Context(), key, &jobs) {
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "cached": true})
		return
	}

	jobs, err := s.jobs.Search(r.Context(), params)
	if err != nil {
		s.logger.Error("job search failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "job search is temporarily unavailable")
		return
	}
	if jobs == nil {
		jobs = []jobsearch.Job{}
	}

	s.lists.Set(r.Context(), key, jobs, s.jobListTTL)

	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func searchParamsFromQuery(q url.Values) *jobsearch.SearchParams {
	page, _ := strconv.Atoi(q.Get("page"))
	remote, _ := strconv.ParseBool(q.Get("remote"))

	return &jobsearch.SearchParams{
		Query:      q.Get("query"),
		Location:   q.Get("location"),
		Page:       page,
		RemoteOnly: remote,
		DatePosted: q.Get("datePosted"),
	}
}

// jobListKey derives a shared cache key from the normalized search. Job
// listings are not user-specific, so all callers share one keyspace.
func jobListKey(params *jobsearch.SearchParams) string {
	v := url.Values{}
	v.Set("q", params.Query)
	v.Set("l", params.Location)
	v.Set("p", strconv.Itoa(params.Page))
	v.Set("r", strconv.FormatBool(params.RemoteOnly))
	v.Set("d", params.DatePosted)
	return "jobs:" + v.Encode()
}
