package usecase

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/domain"
)

func TestPromptBuilderIncludesEverythingUnderBudget(t *testing.T) {
	b := NewPromptBuilder(6000)
	messages, included, usedSections := b.Build(PromptInput{
		SystemPrompt:   "You are an advisor.",
		Query:          "how do I price my product?",
		CompanyContext: "name: Acme\nstage: seed\n",
		Retrieved: []domain.RetrievalResult{
			chunkResult("c1", "value-based pricing beats cost-plus", 0.9),
			chunkResult("c2", "anchor against the alternative", 0.8),
		},
		ToolSections: []ToolSection{{ToolName: "web_search", Content: `[{"title":"x"}]`}},
	})

	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleSystem, messages[0].Role)
	assert.Equal(t, "You are an advisor.", messages[0].Content)

	user := messages[1].Content
	assert.Contains(t, user, "name: Acme")
	assert.Contains(t, user, "[T1] Output of web_search")
	assert.Contains(t, user, "[S1] value-based pricing")
	assert.Contains(t, user, "[S2] anchor against")
	assert.True(t, strings.HasSuffix(user, "Question: how do I price my product?"))
	assert.Len(t, included, 2)
	assert.Len(t, usedSections, 1)
}

func TestPromptBuilderDropsOversizedToolSection(t *testing.T) {
	b := NewPromptBuilder(80)
	big := strings.Repeat("scraped page text ", 100)

	messages, included, usedSections := b.Build(PromptInput{
		SystemPrompt: "advisor",
		Query:        "who are my competitors?",
		ToolSections: []ToolSection{
			{ToolName: "extract_content", Content: big},
			{ToolName: "web_search", Content: `[{"title":"x","url":"https://x.example.com"}]`},
		},
	})

	require.Len(t, usedSections, 1, "only the section that fit is reported")
	assert.Equal(t, "web_search", usedSections[0].ToolName)
	assert.Empty(t, included)

	user := messages[1].Content
	assert.NotContains(t, user, "extract_content")
	assert.Contains(t, user, "[T1] Output of web_search", "numbering skips dropped sections")
}

func TestPromptBuilderTrimsLowScoredChunks(t *testing.T) {
	b := NewPromptBuilder(120)

	long := strings.Repeat("competitive moats and switching costs ", 10)
	var retrieved []domain.RetrievalResult
	for i := 0; i < 10; i++ {
		retrieved = append(retrieved, chunkResult(fmt.Sprintf("c%02d", i), long, 1.0-float64(i)*0.05))
	}

	messages, included, _ := b.Build(PromptInput{
		SystemPrompt: "advisor",
		Query:        "question",
		Retrieved:    retrieved,
	})

	assert.Less(t, len(included), 10, "budget forces trimming")
	// Highest-scored chunks survive; the list is already score-ordered.
	for i, r := range included {
		assert.Equal(t, retrieved[i].Chunk.ID, r.Chunk.ID)
	}
	assert.Contains(t, messages[1].Content, "Question: question")
}

func TestPromptBuilderQueryNeverTrimmed(t *testing.T) {
	b := NewPromptBuilder(10)
	query := "a fairly long question that alone blows the tiny budget wide open"
	messages, included, _ := b.Build(PromptInput{
		SystemPrompt: "advisor",
		Query:        query,
		Retrieved:    []domain.RetrievalResult{chunkResult("c1", "context", 0.9)},
	})
	assert.Empty(t, included)
	assert.Contains(t, messages[1].Content, query)
}

func TestPromptBuilderNoContextSections(t *testing.T) {
	b := NewPromptBuilder(6000)
	messages, included, usedSections := b.Build(PromptInput{SystemPrompt: "advisor", Query: "q"})
	assert.Empty(t, usedSections)
	assert.Empty(t, included)
	assert.Equal(t, "Question: q", messages[1].Content)
	assert.NotContains(t, messages[1].Content, "Knowledge base context")
}

func TestCountTokens(t *testing.T) {
	b := NewPromptBuilder(6000)
	assert.Equal(t, 0, b.CountTokens(""))
	short := b.CountTokens("hello")
	long := b.CountTokens(strings.Repeat("hello world ", 50))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short*20)
}
