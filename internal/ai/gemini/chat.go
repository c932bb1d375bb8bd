package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hiresense/hiresense/internal/ai"
)

// Assistant answers job-search chat conversations with Gemini.
type Assistant struct {
	generator contentGenerator
	logger    *zap.Logger
}

// NewAssistant builds an Assistant on top of a shared generator.
func NewAssistant(generator contentGenerator, log *zap.Logger) *Assistant {
	return &Assistant{generator: generator, logger: log}
}

const chatSystemPrompt = `You are a helpful job search assistant. You help users with:
- Resume improvements and tips
- Job search strategies
- Interview preparation
- Career advice
- Understanding job requirements

Be helpful, concise, and professional. Focus on actionable advice.`

// Chat renders the conversation plus optional grounding context into a
// single prompt and returns the assistant's reply.
func (a *Assistant) Chat(ctx context.Context, messages []ai.Message, chatCtx *ai.ChatContext) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}

	var sb strings.Builder
	sb.WriteString(chatSystemPrompt)

	if chatCtx != nil {
		if chatCtx.Resume != nil {
			fmt.Fprintf(&sb, "\n\nUser's Resume Skills: %s", strings.Join(chatCtx.Resume.Skills, ", "))
			fmt.Fprintf(&sb, "\nUser's Experience: %s", strings.Join(chatCtx.Resume.Experience, " | "))
			fmt.Fprintf(&sb, "\nUser's Summary: %s", chatCtx.Resume.Summary)
		}
		if chatCtx.JobTitle != "" {
			fmt.Fprintf(&sb, "\n\nCurrent Job Being Discussed:\nTitle: %s", chatCtx.JobTitle)
			description := chatCtx.JobDescription
			if description == "" {
				description = "Not provided"
			}
			fmt.Fprintf(&sb, "\nDescription: %s", description)
		}
	}

	sb.WriteString("\n\nConversation:")
	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&sb, "\n%s: %s", role, msg.Content)
	}
	sb.WriteString("\nassistant:")

	a.logger.Debug("gemini chat request", zap.Int("messages", len(messages)))

	return a.generator.GenerateContent(ctx, sb.String())
}
