package usecase

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"venturedesk/internal/domain"
)

const defaultPromptBudget = 6000

// PromptBuilder assembles the generation prompt from retrieved chunks, tool
// output, and company context, keeping the total under a token budget.
// Retrieval context is trimmed lowest-score-first when over budget; the
// question itself is never trimmed.
type PromptBuilder struct {
	budget  int
	encoder *tiktoken.Tiktoken
}

// NewPromptBuilder creates a builder with the given token budget. Encoder
// load failure falls back to a character heuristic rather than failing the
// runtime.
func NewPromptBuilder(budget int) *PromptBuilder {
	if budget <= 0 {
		budget = defaultPromptBudget
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &PromptBuilder{budget: budget, encoder: enc}
}

// CountTokens returns the token count of text.
func (b *PromptBuilder) CountTokens(text string) int {
	if b.encoder != nil {
		return len(b.encoder.Encode(text, nil, nil))
	}
	// Rough heuristic: one token per 4 characters.
	return (len(text) + 3) / 4
}

// PromptInput carries everything that may go into one prompt.
type PromptInput struct {
	SystemPrompt   string
	Query          string
	CompanyContext string
	Retrieved      []domain.RetrievalResult
	ToolSections   []ToolSection
}

// ToolSection is one tool's output destined for the prompt.
type ToolSection struct {
	ToolName string
	Content  string
}

// Build returns the chat messages plus the retrieval results and tool
// sections that actually made it into the prompt. Callers cite only those;
// anything the budget pushed out never existed as far as the model is
// concerned.
func (b *PromptBuilder) Build(in PromptInput) ([]domain.Message, []domain.RetrievalResult, []ToolSection) {
	fixed := b.CountTokens(in.SystemPrompt) + b.CountTokens(in.Query) + b.CountTokens(in.CompanyContext)
	remaining := b.budget - fixed

	var sb strings.Builder
	if in.CompanyContext != "" {
		sb.WriteString("Company context:\n")
		sb.WriteString(in.CompanyContext)
		sb.WriteString("\n\n")
	}

	// Tool sections go in before retrieval context; they carry fresher data.
	var usedSections []ToolSection
	for _, ts := range in.ToolSections {
		section := fmt.Sprintf("[T%d] Output of %s:\n%s\n\n", len(usedSections)+1, ts.ToolName, ts.Content)
		cost := b.CountTokens(section)
		if cost > remaining {
			continue
		}
		sb.WriteString(section)
		remaining -= cost
		usedSections = append(usedSections, ts)
	}

	var included []domain.RetrievalResult
	if len(in.Retrieved) > 0 {
		header := "Knowledge base context (cite sources as [S1], [S2], ...):\n"
		remaining -= b.CountTokens(header)
		var ctxSB strings.Builder
		for _, r := range in.Retrieved {
			section := fmt.Sprintf("[S%d] %s\n\n", len(included)+1, r.Chunk.Text)
			cost := b.CountTokens(section)
			if cost > remaining {
				break
			}
			ctxSB.WriteString(section)
			remaining -= cost
			included = append(included, r)
		}
		if len(included) > 0 {
			sb.WriteString(header)
			sb.WriteString(ctxSB.String())
		}
	}

	sb.WriteString("Question: ")
	sb.WriteString(in.Query)

	return []domain.Message{
		{Role: domain.RoleSystem, Content: in.SystemPrompt},
		{Role: domain.RoleUser, Content: sb.String()},
	}, included, usedSections
}
