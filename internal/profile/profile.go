// Package profile stores the parsed resume profile the match scorer works
// against.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hiresense/hiresense/internal/store"
)

// ErrNoResume is returned when the user has not uploaded a usable resume.
var ErrNoResume = errors.New("profile: no resume on file")

// Resume is the structured profile extracted from an uploaded resume.
type Resume struct {
	Skills     []string `json:"skills"`
	Experience []string `json:"experience"`
	Education  []string `json:"education"`
	Summary    string   `json:"summary"`
}

// HasSkills reports whether the profile is usable for match scoring. A
// resume that parsed to nothing is treated the same as no resume at all.
func (r *Resume) HasSkills() bool {
	return r != nil && len(r.Skills) > 0
}

// Service persists resume profiles through the document store.
type Service struct {
	store store.Store
}

// NewService wires a profile service to the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Get returns the user's stored profile, or ErrNoResume when none exists.
func (s *Service) Get(ctx context.Context, userID string) (*Resume, error) {
	data, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoResume
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var resume Resume
	if err := json.Unmarshal(data, &resume); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	return &resume, nil
}

// Save persists the parsed profile, replacing any previous one.
func (s *Service) Save(ctx context.Context, userID string, resume *Resume) error {
	data, err := json.Marshal(resume)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.store.SaveProfile(ctx, userID, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Delete removes the stored profile; idempotent.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.DeleteProfile(ctx, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
