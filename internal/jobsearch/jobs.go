package jobsearch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Job is a normalized external job posting.
type Job struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Remote      bool     `json:"remote"`
	Skills      []string `json:"skills"`
	Description string   `json:"description,omitempty"`
	PostedAt    string   `json:"postedAt,omitempty"`
	ApplyLink   string   `json:"applyLink,omitempty"`
}

// SearchParams narrows a job search.
type SearchParams struct {
	Query      string `mapstructure:"query"`
	Location   string `mapstructure:"location"`
	Page       int    `mapstructure:"page"`
	RemoteOnly bool   `mapstructure:"remote-only"`
	DatePosted string `mapstructure:"date-posted"`
}

// rawJob mirrors the provider's wire shape.
type rawJob struct {
	JobID            string   `mapstructure:"job_id"`
	EmployerName     string   `mapstructure:"employer_name"`
	JobTitle         string   `mapstructure:"job_title"`
	JobDescription   string   `mapstructure:"job_description"`
	JobApplyLink     string   `mapstructure:"job_apply_link"`
	JobCity          string   `mapstructure:"job_city"`
	JobState         string   `mapstructure:"job_state"`
	JobCountry       string   `mapstructure:"job_country"`
	JobPostedAt      string   `mapstructure:"job_posted_at_datetime_utc"`
	JobIsRemote      bool     `mapstructure:"job_is_remote"`
	JobRequiredSkill []string `mapstructure:"job_required_skills"`
}

type searchResponse struct {
	Status string           `json:"status"`
	Data   []map[string]any `json:"data"`
}

// Search queries the provider and returns normalized jobs. A provider
// response without data is an empty result, not an error.
func (c *Client) Search(ctx context.Context, params *SearchParams) ([]Job, error) {
	if params == nil {
		params = &SearchParams{}
	}

	query := strings.TrimSpace(params.Query)
	if query == "" {
		query = "software developer"
	}
	switch {
	case params.RemoteOnly:
		query += " remote"
	case params.Location != "":
		query += " in " + params.Location
	}

	page := params.Page
	if page < 1 {
		page = 1
	}

	datePosted := params.DatePosted
	if datePosted == "" {
		datePosted = "month"
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("date_posted", datePosted)

	var resp searchResponse
	if err := c.getJSON(ctx, "/search", q, &resp); err != nil {
		return nil, fmt.Errorf("search jobs: %w", err)
	}

	if resp.Status != "OK" || len(resp.Data) == 0 {
		return nil, nil
	}

	jobs := make([]Job, 0, len(resp.Data))
	for _, item := range resp.Data {
		var raw rawJob
		if err := mapstructure.Decode(item, &raw); err != nil {
			return nil, fmt.Errorf("decode job item: %w", err)
		}
		jobs = append(jobs, transform(raw))
	}

	return jobs, nil
}

func transform(raw rawJob) Job {
	location := "Remote"
	if !raw.JobIsRemote {
		parts := make([]string, 0, 3)
		for _, part := range []string{raw.JobCity, raw.JobState, raw.JobCountry} {
			if part != "" {
				parts = append(parts, part)
			}
		}
		location = strings.Join(parts, ", ")
		if location == "" {
			location = "Location not specified"
		}
	}

	skills := raw.JobRequiredSkill
	if len(skills) == 0 {
		skills = skillsFromDescription(raw.JobDescription)
	}

	return Job{
		ID:          raw.JobID,
		Title:       raw.JobTitle,
		Company:     raw.EmployerName,
		Location:    location,
		Remote:      raw.JobIsRemote,
		Skills:      skills,
		Description: raw.JobDescription,
		PostedAt:    raw.JobPostedAt,
		ApplyLink:   raw.JobApplyLink,
	}
}

// commonSkills is scanned when the provider sends no skill list.
var commonSkills = []string{
	"JavaScript", "TypeScript", "Python", "Java", "C++", "C#", "Go", "Rust", "Ruby",
	"React", "Angular", "Vue", "Node.js", "Django", "Flask",
	"AWS", "Azure", "GCP", "Docker", "Kubernetes", "Terraform",
	"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis",
	"Git", "CI/CD", "Agile",
	"Machine Learning", "Data Science",
	"REST", "GraphQL", "Microservices",
}

const maxExtractedSkills = 6

func skillsFromDescription(description string) []string {
	lower := strings.ToLower(description)

	var found []string
	for _, skill := range commonSkills {
		if strings.Contains(lower, strings.ToLower(skill)) {
			found = append(found, skill)
		}
		if len(found) >= maxExtractedSkills {
			break
		}
	}

	if len(found) == 0 {
		return []string{"Software Development"}
	}
	return found
}
