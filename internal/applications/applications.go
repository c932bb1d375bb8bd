// Package applications tracks the jobs a user saved or applied to, with a
// status pipeline from saved through offer or rejection. One application
// exists per (user, external job id).
package applications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hiresense/hiresense/internal/store"
)

// ErrNotFound is returned when no application matches the given ids.
var ErrNotFound = errors.New("applications: not found")

// ErrDuplicate is returned when the user already tracks the job.
var ErrDuplicate = errors.New("applications: job already saved")

// Status is the stage an application is in.
type Status string

const (
	StatusSaved        Status = "saved"
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusOffered      Status = "offered"
	StatusRejected     Status = "rejected"
	StatusWithdrawn    Status = "withdrawn"
)

// ValidStatus reports whether s is one of the known pipeline stages.
func ValidStatus(s Status) bool {
	switch s {
	case StatusSaved, StatusApplied, StatusInterviewing, StatusOffered, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// EmbeddedJob is the snapshot of the posting taken when the job was saved.
// Listings expire upstream, so the application keeps its own copy.
type EmbeddedJob struct {
	ExternalID  string   `json:"externalId"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Type        string   `json:"type"`
	Skills      []string `json:"skills"`
	Description string   `json:"description,omitempty"`
	ApplyLink   string   `json:"applyLink,omitempty"`
	PostedAt    string   `json:"postedAt,omitempty"`
}

// TimelineEvent is one entry of an application's history.
type TimelineEvent struct {
	Action string    `json:"action"`
	Date   time.Time `json:"date"`
	Note   string    `json:"note,omitempty"`
}

// Application is a tracked job with its status history.
type Application struct {
	ID         string          `json:"id"`
	Job        EmbeddedJob     `json:"job"`
	Status     Status          `json:"status"`
	MatchScore int             `json:"matchScore"`
	Notes      string          `json:"notes,omitempty"`
	AppliedAt  *time.Time      `json:"appliedAt,omitempty"`
	Timeline   []TimelineEvent `json:"timeline"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Stats counts a user's applications per pipeline stage.
type Stats struct {
	Total        int `json:"total"`
	Saved        int `json:"saved"`
	Applied      int `json:"applied"`
	Interviewing int `json:"interviewing"`
	Offered      int `json:"offered"`
	Rejected     int `json:"rejected"`
}

// Page describes the returned slice of a listing.
type Page struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// SavedRef points a job id back at its application.
type SavedRef struct {
	ApplicationID string `json:"applicationId"`
	Status        Status `json:"status"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// Service persists applications through the document store.
type Service struct {
	store store.Store
}

// NewService wires an application service to the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Save tracks a new job for the user with status "saved". The job snapshot
// must carry an external id, title and company; saving a job the user
// already tracks returns ErrDuplicate.
func (s *Service) Save(ctx context.Context, userID string, job EmbeddedJob, matchScore int, notes string) (*Application, error) {
	if job.ExternalID == "" || job.Title == "" || job.Company == "" {
		return nil, fmt.Errorf("job external id, title and company are required")
	}

	if _, err := s.store.GetApplication(ctx, userID, job.ExternalID); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check application: %w", err)
	}

	if job.Location == "" {
		job.Location = "Not specified"
	}
	if job.Type == "" {
		job.Type = "full-time"
	}
	if job.Skills == nil {
		job.Skills = []string{}
	}
	if matchScore < 0 {
		matchScore = 0
	}
	if matchScore > 100 {
		matchScore = 100
	}

	now := time.Now().UTC()
	app := &Application{
		ID:         uuid.New().String(),
		Job:        job,
		Status:     StatusSaved,
		MatchScore: matchScore,
		Notes:      notes,
		Timeline:   []TimelineEvent{{Action: "Job saved", Date: now}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.put(ctx, userID, app); err != nil {
		return nil, err
	}
	return app, nil
}

// List returns the user's applications, newest update first, optionally
// narrowed to one status, along with stage counts over all applications and
// the pagination of the filtered set.
func (s *Service) List(ctx context.Context, userID string, status Status, page, limit int) ([]Application, Stats, Page, error) {
	apps, err := s.load(ctx, userID)
	if err != nil {
		return nil, Stats{}, Page{}, err
	}

	stats := countStats(apps)

	filtered := apps
	if status != "" {
		filtered = filtered[:0:0]
		for _, app := range apps {
			if app.Status == status {
				filtered = append(filtered, app)
			}
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].UpdatedAt.After(filtered[j].UpdatedAt)
	})

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	total := len(filtered)
	pagination := Page{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}

	start := (page - 1) * limit
	if start >= total {
		return []Application{}, stats, pagination, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	return filtered[start:end], stats, pagination, nil
}

// UpdateStatus moves the application identified by its id to a new stage,
// recording the transition in the timeline. The first move to "applied"
// stamps AppliedAt. A nil notes leaves notes untouched.
func (s *Service) UpdateStatus(ctx context.Context, userID, applicationID string, status Status, notes *string) (*Application, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("unknown application status: %s", status)
	}

	app, err := s.byID(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	app.Status = status
	app.Timeline = append(app.Timeline, TimelineEvent{
		Action: fmt.Sprintf("Status changed to %s", status),
		Date:   now,
	})
	if status == StatusApplied && app.AppliedAt == nil {
		app.AppliedAt = &now
	}
	if notes != nil {
		app.Notes = *notes
	}
	app.UpdatedAt = now

	if err := s.put(ctx, userID, app); err != nil {
		return nil, err
	}
	return app, nil
}

// Delete untracks a job, addressed either by application id or by the job's
// external id. ErrNotFound when neither matches.
func (s *Service) Delete(ctx context.Context, userID, applicationID, jobID string) error {
	if jobID == "" {
		app, err := s.byID(ctx, userID, applicationID)
		if err != nil {
			return err
		}
		jobID = app.Job.ExternalID
	}

	if err := s.store.DeleteApplication(ctx, userID, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

// SavedJobs returns the external ids of every tracked job plus a lookup from
// job id to application, which the listing UI uses to mark saved jobs.
func (s *Service) SavedJobs(ctx context.Context, userID string) ([]string, map[string]SavedRef, error) {
	apps, err := s.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(apps))
	refs := make(map[string]SavedRef, len(apps))
	for _, app := range apps {
		ids = append(ids, app.Job.ExternalID)
		refs[app.Job.ExternalID] = SavedRef{ApplicationID: app.ID, Status: app.Status}
	}
	sort.Strings(ids)

	return ids, refs, nil
}

func (s *Service) put(ctx context.Context, userID string, app *Application) error {
	doc, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	if err := s.store.PutApplication(ctx, userID, app.Job.ExternalID, doc); err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string) ([]Application, error) {
	docs, err := s.store.ListApplications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}

	apps := make([]Application, 0, len(docs))
	for _, doc := range docs {
		var app Application
		if err := json.Unmarshal(doc, &app); err != nil {
			return nil, fmt.Errorf("decode application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// byID scans the user's applications for one with the given id. Per-user
// counts are small; a scan beats a second index.
func (s *Service) byID(ctx context.Context, userID, applicationID string) (*Application, error) {
	if applicationID == "" {
		return nil, ErrNotFound
	}

	apps, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].ID == applicationID {
			return &apps[i], nil
		}
	}
	return nil, ErrNotFound
}

func countStats(apps []Application) Stats {
	stats := Stats{Total: len(apps)}
	for _, app := range apps {
		switch app.Status {
		case StatusSaved:
			stats.Saved++
		case StatusApplied:
			stats.Applied++
		case StatusInterviewing:
			stats.Interviewing++
		case StatusOffered:
			stats.Offered++
		case StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}
