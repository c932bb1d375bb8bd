// Package ai defines the provider-neutral contracts for the AI operations
// the service depends on: match scoring, resume parsing and the chat
// assistant.
package ai

import (
	"context"

	"github.com/hiresense/hiresense/internal/profile"
)

// FallbackScore is the neutral match score substituted when no resume is on
// file or the scorer fails. Scores are heuristic; a fixed midpoint is better
// than surfacing a provider error to the user.
const FallbackScore = 50

// JobPosting is the slice of a job listing the scorer needs.
type JobPosting struct {
	ID          string
	Title       string
	Description string
	Skills      []string
}

// MatchResult is a computed compatibility result.
type MatchResult struct {
	Score          int
	MatchedSkills  []string
	MissingSkills  []string
	Recommendation string
}

// Scorer computes how well a resume profile matches a job posting.
type Scorer interface {
	Score(ctx context.Context, resume *profile.Resume, job *JobPosting) (*MatchResult, error)
}

// ResumeParser extracts a structured profile from raw resume text.
type ResumeParser interface {
	Parse(ctx context.Context, text string) (*profile.Resume, error)
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatContext optionally grounds the assistant in the user's resume and the
// job under discussion.
type ChatContext struct {
	Resume         *profile.Resume
	JobTitle       string
	JobDescription string
}

// Chatter answers job-search assistant conversations.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, chatCtx *ChatContext) (string, error)
}

// Fallback returns the neutral result used when scoring is impossible. The
// job's own skills are reported missing so the UI can still render them.
func Fallback(job *JobPosting, recommendation string) *MatchResult {
	var missing []string
	if job != nil {
		missing = append(missing, job.Skills...)
	}
	return &MatchResult{
		Score:          FallbackScore,
		MatchedSkills:  []string{},
		MissingSkills:  missing,
		Recommendation: recommendation,
	}
}
