package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"venturedesk/internal/domain"
)

const assistSystemPrompt = `You route startup founder questions to specialist advisors. Reply with
exactly one word, the best-matching topic from this list:
pitch, competitive, marketing, patent, policy, team, general.`

const assistTimeout = 10 * time.Second

// LLMAssist resolves low-confidence keyword classifications with a single
// cheap model call. Any failure falls back to the keyword decision; assist
// never makes a request fail.
type LLMAssist struct {
	generator Generator
	providers ProviderSource
	logger    *slog.Logger
}

// NewLLMAssist creates an assist classifier over the shared gateway.
func NewLLMAssist(generator Generator, providers ProviderSource, logger *slog.Logger) *LLMAssist {
	return &LLMAssist{generator: generator, providers: providers, logger: logger}
}

// Classify asks the model for a one-word domain. The second return is false
// when the call failed or produced anything but a known domain.
func (a *LLMAssist) Classify(ctx context.Context, query string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, assistTimeout)
	defer cancel()

	resp, _, err := a.generator.Generate(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: assistSystemPrompt},
			{Role: domain.RoleUser, Content: query},
		},
	}, a.providers.Ordered(), domain.GenerationParams{MaxTokens: 8})
	if err != nil {
		a.logger.Debug("llm classification assist failed", "error", err)
		return "", false
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Message.Content))
	answer = strings.Trim(answer, ".\"'")
	for _, d := range domain.Domains {
		if answer == d {
			return d, true
		}
	}
	return "", false
}
