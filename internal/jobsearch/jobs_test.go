package jobsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	client := New("test-key", strings.TrimPrefix(srv.URL, "https://"), zap.NewNop())
	client.HTTPClient = srv.Client()
	return client
}

func TestSearchNormalizesJobs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-rapidapi-key"))
		require.Equal(t, "golang developer in Berlin", r.URL.Query().Get("query"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "week", r.URL.Query().Get("date_posted"))

		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"data": []map[string]any{
				{
					"job_id":              "abc123",
					"employer_name":       "Acme",
					"job_title":           "Go Developer",
					"job_description":     "Build services in Go with PostgreSQL and Docker.",
					"job_city":            "Berlin",
					"job_country":         "DE",
					"job_is_remote":       false,
					"job_required_skills": []string{"Go", "PostgreSQL"},
				},
				{
					"job_id":        "def456",
					"employer_name": "Globex",
					"job_title":     "Backend Engineer",
					"job_is_remote": true,
				},
			},
		})
	})

	jobs, err := client.Search(context.Background(), &SearchParams{
		Query:      "golang developer",
		Location:   "Berlin",
		Page:       2,
		DatePosted: "week",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	require.Equal(t, "abc123", jobs[0].ID)
	require.Equal(t, "Acme", jobs[0].Company)
	require.Equal(t, "Berlin, DE", jobs[0].Location)
	require.Equal(t, []string{"Go", "PostgreSQL"}, jobs[0].Skills)
	require.False(t, jobs[0].Remote)

	require.Equal(t, "Remote", jobs[1].Location)
	require.True(t, jobs[1].Remote)
}

func TestSearchDefaultsAndRemoteQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "software developer remote", r.URL.Query().Get("query"))
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "month", r.URL.Query().Get("date_posted"))

		json.NewEncoder(w).Encode(map[string]any{"status": "OK", "data": []map[string]any{}})
	})

	jobs, err := client.Search(context.Background(), &SearchParams{RemoteOnly: true})
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestSearchBadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.Search(context.Background(), &SearchParams{Query: "go"})
	require.Error(t, err)
}

func TestSkillsFromDescription(t *testing.T) {
	skills := skillsFromDescription("We use Go, Docker and Kubernetes on AWS with PostgreSQL, Redis and Terraform.")
	require.Len(t, skills, maxExtractedSkills)
	require.Contains(t, skills, "Go")
	require.Contains(t, skills, "Docker")

	require.Equal(t, []string{"Software Development"}, skillsFromDescription("We value teamwork."))
}

func TestTransformLocationFallback(t *testing.T) {
	job := transform(rawJob{JobID: "x", JobTitle: "Engineer"})
	require.Equal(t, "Location not specified", job.Location)
	require.Equal(t, []string{"Software Development"}, job.Skills)
}
