package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/logger"
	"github.com/hiresense/hiresense/internal/profile"
)

// Parser extracts structured resume profiles with Gemini.
type Parser struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewParser builds a Parser on top of a shared generator.
func NewParser(generator contentGenerator, log *zap.Logger, maxLogLength int) *Parser {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Parser{
		generator: generator,
		logger:    log,
		maxLogLen: maxLogLength,
	}
}

const parsePromptTemplate = `You are a professional resume parser. Extract structured information from resumes accurately.
Always respond with valid JSON only, no additional text.

Parse the following resume and extract the information in this exact JSON format:
{
  "skills": ["skill1", "skill2"],
  "experience": ["Job Title at Company (Duration) - Brief description"],
  "education": ["Degree at Institution (Year)"],
  "summary": "A brief 2-3 sentence professional summary"
}

Resume:
{{RESUME_TEXT}}

Important:
- Extract all technical and soft skills mentioned
- List work experience in reverse chronological order
- Include all education details
- Create a concise professional summary based on the resume content
- Return ONLY valid JSON, no markdown or additional text`

// Parse extracts a profile from raw resume text.
func (p *Parser) Parse(ctx context.Context, text string) (*profile.Resume, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("resume text is required")
	}

	prompt := strings.ReplaceAll(parsePromptTemplate, "{{RESUME_TEXT}}", text)

	p.logger.Debug("gemini parse request",
		zap.Int("resume_length", utf8.RuneCountInString(text)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, p.maxLogLen)),
	)

	raw, err := p.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("gemini parse response",
		zap.String("response_preview", logger.TruncateForLog(raw, p.maxLogLen)),
	)

	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini resume response: %w", err)
	}

	return &profile.Resume{
		Skills:     coerceStrings(data["skills"]),
		Experience: coerceStrings(data["experience"]),
		Education:  coerceStrings(data["education"]),
		Summary:    coerceString(data["summary"]),
	}, nil
}
