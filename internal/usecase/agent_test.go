package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRetriever struct {
	results    []domain.RetrievalResult
	allResults []domain.RetrievalResult
	err        error

	mu          sync.Mutex
	collections []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, collection string, _ int, _ float64) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	f.collections = append(f.collections, collection)
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeRetriever) RetrieveAll(_ context.Context, _ string, _ int, _ float64) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	f.collections = append(f.collections, "*")
	f.mu.Unlock()
	return f.allResults, f.err
}

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      []string
	callParams []json.RawMessage
	results    map[string]domain.ToolInvocation
}

func (f *fakeDispatcher) Dispatch(_ context.Context, name string, params json.RawMessage) domain.ToolInvocation {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.callParams = append(f.callParams, params)
	f.mu.Unlock()
	if inv, ok := f.results[name]; ok {
		inv.ToolName = name
		inv.Params = params
		return inv
	}
	return domain.ToolInvocation{
		ToolName: name,
		Params:   params,
		Err:      fmt.Errorf("%w: %s", domain.ErrToolNotFound, name),
	}
}

func (f *fakeDispatcher) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeDispatcher) paramsFor(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for i, c := range f.calls {
		if c == name {
			out = append(out, string(f.callParams[i]))
		}
	}
	return out
}

type fakeGenerator struct {
	mu        sync.Mutex
	requests  []domain.ChatRequest
	responses []string
	err       error
}

func (f *fakeGenerator) Generate(_ context.Context, req domain.ChatRequest, _ []domain.LLMProvider, _ domain.GenerationParams) (*domain.ChatResponse, []domain.ProviderAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, []domain.ProviderAttempt{
			{Provider: "primary", Outcome: domain.AttemptTransient, Reason: f.err.Error()},
		}, f.err
	}
	text := "an answer"
	if len(f.responses) > 0 {
		text = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: text},
			Usage:   domain.Usage{TotalTokens: 42},
		}, []domain.ProviderAttempt{
			{Provider: "primary", Outcome: domain.AttemptSuccess, Latency: time.Millisecond, TokensUsed: 42},
		}, nil
}

type fakeProviderSource struct{}

func (fakeProviderSource) Ordered() []domain.LLMProvider { return nil }

func searchJSON(t *testing.T, results []webResult) string {
	t.Helper()
	data, err := json.Marshal(results)
	require.NoError(t, err)
	return string(data)
}

func buildCore(spec agentSpec, retriever *fakeRetriever, tools *fakeDispatcher, gen *fakeGenerator) *agentCore {
	return newAgentCore(spec, retriever, tools, gen, fakeProviderSource{},
		NewPromptBuilder(6000),
		RetrievalSettings{TopK: 5, MinScore: 0.3, MinUsefulResults: 2, SearchMaxResults: 5},
		domain.GenerationParams{}, testLogger())
}

func chunkResult(id, text string, score float64) domain.RetrievalResult {
	return domain.RetrievalResult{
		Chunk: domain.Chunk{ID: id, Text: text, SourceID: "kb/" + id},
		Score: score,
	}
}

func TestAgentAnswersFromRetrievalAlone(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "structure the deck problem-first", 0.9),
		chunkResult("c2", "ten slides maximum", 0.8),
	}}
	tools := &fakeDispatcher{}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainPitch, systemPrompt: pitchPrompt}, retriever, tools, gen)

	resp, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r1", Query: "how do I structure my pitch deck?"})
	require.NoError(t, err)

	assert.Equal(t, "an answer", resp.ResponseText)
	assert.Equal(t, "primary", resp.ProviderUsed)
	assert.Empty(t, resp.DegradedFlags)
	assert.Empty(t, tools.callNames(), "healthy retrieval needs no augmentation")

	require.Len(t, resp.Sources, 2)
	assert.Equal(t, domain.SourceRetrieval, resp.Sources[0].Kind)
	assert.Equal(t, "c1", resp.Sources[0].ID)
	assert.InDelta(t, 0.9, resp.Sources[0].Score, 1e-9)
}

func TestAgentAugmentsWhenRetrievalThin(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "one lonely chunk", 0.5),
	}}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"web_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "Competitor pricing 2026", URL: "https://example.com/pricing", Snippet: "plans start at $9"},
		})}},
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainTeam, systemPrompt: teamPrompt}, retriever, tools, gen)

	resp, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r2", Query: "how should I split equity?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"web_search"}, tools.callNames())
	assert.Contains(t, resp.ToolResultsUsed, "web_search")
	assert.Empty(t, resp.DegradedFlags)

	var toolSource *domain.Source
	for i := range resp.Sources {
		if resp.Sources[i].Kind == domain.SourceTool {
			toolSource = &resp.Sources[i]
		}
	}
	require.NotNil(t, toolSource)
	assert.Equal(t, "https://example.com/pricing", toolSource.URL)
	assert.Equal(t, "web_search", toolSource.ToolName)

	// Tool output lands in the prompt.
	require.Len(t, gen.requests, 1)
	user := gen.requests[0].Messages[1].Content
	assert.Contains(t, user, "Competitor pricing 2026")
	assert.Contains(t, user, "[T1]")
}

func TestAgentRetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store offline")}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"web_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "t", URL: "https://example.com"},
		})}},
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainPolicy, systemPrompt: policyPrompt}, retriever, tools, gen)

	resp, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r3", Query: "draft a gdpr policy"})
	require.NoError(t, err, "retrieval failure is not fatal")
	assert.True(t, resp.Degraded(domain.FlagRetrievalDegraded))
	assert.False(t, resp.Degraded(domain.FlagNoExternalSources), "web search still produced sources")
}

func TestAgentNoExternalSources(t *testing.T) {
	retriever := &fakeRetriever{}
	tools := &fakeDispatcher{} // every dispatch fails with tool-not-found
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainPitch, systemPrompt: pitchPrompt}, retriever, tools, gen)

	resp, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r4", Query: "help with my pitch"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded(domain.FlagNoExternalSources))
	assert.True(t, resp.Degraded(domain.FlagToolUnavailable))
	assert.Empty(t, resp.Sources)
}

func TestAgentOmitsCitationsForBudgetedOutTools(t *testing.T) {
	retriever := &fakeRetriever{}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"web_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "huge page", URL: "https://big.example.com", Snippet: strings.Repeat("competitor data ", 200)},
		})}},
	}}
	gen := &fakeGenerator{}
	core := newAgentCore(agentSpec{domain: domain.DomainCompetitive, systemPrompt: "analyst", alwaysSearch: true},
		retriever, tools, gen, fakeProviderSource{},
		NewPromptBuilder(60),
		RetrievalSettings{TopK: 5, MinScore: 0.3, MinUsefulResults: 2, SearchMaxResults: 5},
		domain.GenerationParams{}, testLogger())

	resp, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r11", Query: "who are my competitors?"})
	require.NoError(t, err)

	// The search output never fit into the prompt, so the response must not
	// claim the model saw it.
	require.Len(t, gen.requests, 1)
	assert.NotContains(t, gen.requests[0].Messages[1].Content, "big.example.com")
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.ToolResultsUsed)
	assert.True(t, resp.Degraded(domain.FlagNoExternalSources))
}

func TestAgentGenerationFailureIsFatal(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "ctx", 0.9), chunkResult("c2", "ctx", 0.8),
	}}
	gen := &fakeGenerator{err: domain.ErrProvidersExhausted}
	core := buildCore(agentSpec{domain: domain.DomainPitch, systemPrompt: pitchPrompt}, retriever, &fakeDispatcher{}, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r5", Query: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProvidersExhausted))
}

func TestCompetitiveAgentExtractsTopURLs(t *testing.T) {
	retriever := &fakeRetriever{}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"web_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "a", URL: "https://a.example.com"},
			{Title: "b", URL: "https://b.example.com"},
			{Title: "c", URL: "https://c.example.com"},
		})}},
		"extract_content": {Result: &domain.ToolResult{Content: `{"url":"x","title":"page","text":"body"}`}},
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{
		domain:         domain.DomainCompetitive,
		systemPrompt:   competitivePrompt,
		alwaysSearch:   true,
		extractTopURLs: 2,
	}, retriever, tools, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r6", Query: "who are my competitors?"})
	require.NoError(t, err)

	calls := tools.callNames()
	extracts := 0
	for _, c := range calls {
		if c == "extract_content" {
			extracts++
		}
	}
	assert.Equal(t, 2, extracts, "only the top URLs get extracted")
}

func TestCompetitiveAgentPrefersQueryURLs(t *testing.T) {
	retriever := &fakeRetriever{}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"web_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "a", URL: "https://a.example.com"},
			{Title: "b", URL: "https://b.example.com"},
		})}},
		"extract_content": {Result: &domain.ToolResult{Content: `{"url":"x","title":"page","text":"body"}`}},
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{
		domain:         domain.DomainCompetitive,
		systemPrompt:   competitivePrompt,
		alwaysSearch:   true,
		extractTopURLs: 2,
	}, retriever, tools, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{
		RequestID: "r10",
		Query:     "how do I stack up against https://rival.example.com/pricing ?",
	})
	require.NoError(t, err)

	extractParams := tools.paramsFor("extract_content")
	require.Len(t, extractParams, 2)
	joined := strings.Join(extractParams, "\n")
	assert.Contains(t, joined, "https://rival.example.com/pricing", "query URL is extracted")
	assert.Contains(t, joined, "https://a.example.com", "remaining slot goes to the top search hit")
}

func marketingCore(retriever *fakeRetriever, tools *fakeDispatcher, gen *fakeGenerator) *agentCore {
	return buildCore(agentSpec{
		domain:       domain.DomainMarketing,
		systemPrompt: marketingPrompt,
		queryTools: []queryTool{{
			tool:     "image_search",
			triggers: []string{"visual", "image", "logo"},
		}},
	}, retriever, tools, gen)
}

func TestMarketingAgentRunsImageSearchOnVisualQueries(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "ctx", 0.9), chunkResult("c2", "ctx", 0.8),
	}}
	tools := &fakeDispatcher{results: map[string]domain.ToolInvocation{
		"image_search": {Result: &domain.ToolResult{Content: searchJSON(t, []webResult{
			{Title: "moodboard", URL: "https://img.example.com", ImageURL: "https://img.example.com/1.png"},
		})}},
	}}
	gen := &fakeGenerator{}
	core := marketingCore(retriever, tools, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r7", Query: "brand visuals for launch"})
	require.NoError(t, err)
	assert.Equal(t, []string{"image_search"}, tools.callNames(),
		"healthy retrieval skips web search but the visual query triggers image search")
}

func TestMarketingAgentSkipsImageSearchWithoutVisualAsk(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "ctx", 0.9), chunkResult("c2", "ctx", 0.8),
	}}
	tools := &fakeDispatcher{}
	gen := &fakeGenerator{}
	core := marketingCore(retriever, tools, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r7b", Query: "which channels should we launch on?"})
	require.NoError(t, err)
	assert.Empty(t, tools.callNames())
}

func TestGeneralAgentRetrievesAcrossCollections(t *testing.T) {
	retriever := &fakeRetriever{allResults: []domain.RetrievalResult{
		chunkResult("c1", "ctx", 0.9), chunkResult("c2", "ctx", 0.8),
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainGeneral, systemPrompt: generalPrompt}, retriever, &fakeDispatcher{}, gen)

	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r8", Query: "what should I focus on this quarter?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, retriever.collections)
}

func TestCompanyContextReachesPrompt(t *testing.T) {
	retriever := &fakeRetriever{results: []domain.RetrievalResult{
		chunkResult("c1", "ctx", 0.9), chunkResult("c2", "ctx", 0.8),
	}}
	gen := &fakeGenerator{}
	core := buildCore(agentSpec{domain: domain.DomainPitch, systemPrompt: pitchPrompt}, retriever, &fakeDispatcher{}, gen)

	ctx := json.RawMessage(`{"name": "Acme Robotics", "stage": "seed"}`)
	_, err := core.Handle(t.Context(), domain.AgentRequest{RequestID: "r9", Query: "q", CompanyContext: ctx})
	require.NoError(t, err)

	user := gen.requests[0].Messages[1].Content
	assert.Contains(t, user, "name: Acme Robotics")
	assert.Contains(t, user, "stage: seed")
}
