package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/ai"
	"github.com/hiresense/hiresense/internal/logger"
	"github.com/hiresense/hiresense/internal/profile"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

const defaultMaxLogLength = 200

// Scorer computes resume/job match results with Gemini.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewScorer builds a Scorer on top of a shared generator.
func NewScorer(generator contentGenerator, log *zap.Logger, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Scorer{
		generator: generator,
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

const scorePromptTemplate = `You are a job matching expert. Analyze resume data against job requirements and calculate match scores.
Always respond with valid JSON only, no additional text.

Analyze how well this candidate matches the job posting.

Resume Data:
Skills: {{SKILLS}}
Experience: {{EXPERIENCE}}
Education: {{EDUCATION}}
Summary: {{SUMMARY}}

Job Posting:
Title: {{JOB_TITLE}}
Description: {{JOB_DESCRIPTION}}
Required Skills: {{JOB_SKILLS}}

Respond with this exact JSON format:
{
  "score": 75,
  "matchedSkills": ["skill1", "skill2"],
  "missingSkills": ["skill3", "skill4"],
  "recommendation": "Brief recommendation for the candidate"
}

Important:
- Score should be 0-100 based on how well the candidate matches
- List skills from the job that the candidate has
- List important skills the candidate is missing
- Provide actionable recommendation
- Return ONLY valid JSON`

// Score asks the model for a compatibility assessment. The caller owns
// fallback behavior on error; this method never substitutes results.
func (s *Scorer) Score(ctx context.Context, resume *profile.Resume, job *ai.JobPosting) (*ai.MatchResult, error) {
	if resume == nil {
		return nil, fmt.Errorf("resume profile is required")
	}
	if job == nil {
		return nil, fmt.Errorf("job posting is required")
	}

	prompt := buildScorePrompt(resume, job)

	s.logger.Debug("gemini score request",
		zap.String("job_id", job.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini score response",
		zap.String("job_id", job.ID),
		zap.String("response_preview", logger.TruncateForLog(raw, s.maxLogLen)),
	)

	return parseScoreResponse(raw)
}

func buildScorePrompt(resume *profile.Resume, job *ai.JobPosting) string {
	replacer := strings.NewReplacer(
		"{{SKILLS}}", strings.Join(resume.Skills, ", "),
		"{{EXPERIENCE}}", strings.Join(resume.Experience, " | "),
		"{{EDUCATION}}", strings.Join(resume.Education, " | "),
		"{{SUMMARY}}", resume.Summary,
		"{{JOB_TITLE}}", job.Title,
		"{{JOB_DESCRIPTION}}", job.Description,
		"{{JOB_SKILLS}}", strings.Join(job.Skills, ", "),
	)
	return replacer.Replace(scorePromptTemplate)
}

func parseScoreResponse(raw string) (*ai.MatchResult, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini score response: %w", err)
	}

	score := coerceInt(data["score"])
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &ai.MatchResult{
		Score:          score,
		MatchedSkills:  coerceStrings(data["matchedSkills"]),
		MissingSkills:  coerceStrings(data["missingSkills"]),
		Recommendation: coerceString(data["recommendation"]),
	}, nil
}

// extractJSON strips markdown code fences the model tends to wrap its JSON
// answer in.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceInt(v any) int {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return 0
		}
		return int(math.Round(val))
	case int:
		return val
	case string:
		trimmed := strings.TrimSpace(val)
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		return int(math.Round(f))
	default:
		return 0
	}
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
