package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

// Generator produces text from an ordered provider list with failover.
// Implemented by the llm gateway.
type Generator interface {
	Generate(ctx context.Context, req domain.ChatRequest, providers []domain.LLMProvider, params domain.GenerationParams) (*domain.ChatResponse, []domain.ProviderAttempt, error)
}

// ToolDispatcher executes named tools with validation and retry.
// Implemented by the tool client.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, name string, params json.RawMessage) domain.ToolInvocation
}

// ProviderSource yields the current failover-ordered provider list.
// Implemented by the llm registry.
type ProviderSource interface {
	Ordered() []domain.LLMProvider
}

// contextRetriever extends domain.Retriever with cross-collection lookup for
// the generic fallback agent.
type contextRetriever interface {
	domain.Retriever
	RetrieveAll(ctx context.Context, query string, topK int, minScore float64) ([]domain.RetrievalResult, error)
}

type stateObserverKey struct{}

// StateFunc observes request state transitions.
type StateFunc func(state domain.RequestState)

// WithStateObserver attaches a state transition observer to the context.
// Agents report RETRIEVING, TOOL_AUGMENTING, GENERATING, and PROVIDER_RETRY
// through it; the supervisor owns the terminal states.
func WithStateObserver(ctx context.Context, fn StateFunc) context.Context {
	return context.WithValue(ctx, stateObserverKey{}, fn)
}

func notifyState(ctx context.Context, state domain.RequestState) {
	if fn, ok := ctx.Value(stateObserverKey{}).(StateFunc); ok && fn != nil {
		fn(state)
	}
}

// RetrievalSettings bound knowledge-base lookups per request.
type RetrievalSettings struct {
	TopK             int
	MinScore         float64
	MinUsefulResults int
	SearchMaxResults int
}

// agentSpec declares how one domain agent behaves; the shared pipeline in
// agentCore interprets it.
type agentSpec struct {
	domain       string
	systemPrompt string

	// alwaysTools are dispatched on every request regardless of retrieval
	// quality. Web search is added separately when retrieval comes up short.
	alwaysTools []string
	// queryTools are dispatched only when the query mentions one of their
	// trigger phrases.
	queryTools []queryTool
	// alwaysSearch forces web search even with a healthy knowledge base.
	alwaysSearch bool
	// extractTopURLs > 0 follows up web search with page extraction on the
	// highest-ranked result URLs.
	extractTopURLs int
	// structured enables JSON output parsing with one corrective retry.
	structured bool
}

// agentCore runs the shared retrieve-augment-generate pipeline. One instance
// per domain; all instances share the gateway, tool client, and retriever.
type agentCore struct {
	spec      agentSpec
	retriever contextRetriever
	tools     ToolDispatcher
	generator Generator
	providers ProviderSource
	prompts   *PromptBuilder
	settings  RetrievalSettings
	genParams domain.GenerationParams
	logger    *slog.Logger
}

func newAgentCore(spec agentSpec, retriever contextRetriever, tools ToolDispatcher, generator Generator, providers ProviderSource, prompts *PromptBuilder, settings RetrievalSettings, genParams domain.GenerationParams, logger *slog.Logger) *agentCore {
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.MinUsefulResults <= 0 {
		settings.MinUsefulResults = 2
	}
	if settings.SearchMaxResults <= 0 {
		settings.SearchMaxResults = 5
	}
	return &agentCore{
		spec:      spec,
		retriever: retriever,
		tools:     tools,
		generator: generator,
		providers: providers,
		prompts:   prompts,
		settings:  settings,
		genParams: genParams,
		logger:    logger.With("agent", spec.domain),
	}
}

func (a *agentCore) Domain() string { return a.spec.domain }

// Handle runs the full pipeline for one request. Tool and retrieval failures
// degrade the response; only generation failure is a hard error.
func (a *agentCore) Handle(ctx context.Context, req domain.AgentRequest) (*domain.AgentResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.handle",
		trace.WithAttributes(
			tracer.StringAttr("agent.domain", a.spec.domain),
			tracer.StringAttr("request.id", req.RequestID),
		),
	)
	defer span.End()

	var flags []string

	notifyState(ctx, domain.StateRetrieving)
	retrieved, err := a.retrieve(ctx, req.Query)
	if err != nil {
		// Degraded, not fatal. The agent still answers from tools and the
		// model's own knowledge.
		a.logger.Warn("retrieval failed, continuing degraded",
			"request_id", req.RequestID, "error", err)
		retrieved = nil
	}
	if len(retrieved) == 0 {
		// Empty context counts as degraded retrieval whether the store was
		// unreachable or simply had nothing relevant.
		flags = append(flags, domain.FlagRetrievalDegraded)
	}

	invocations := a.augment(ctx, req, len(retrieved))
	sections, toolFlags := a.collectToolOutput(invocations)
	flags = appendUnique(flags, toolFlags...)

	messages, included, usedSections := a.prompts.Build(PromptInput{
		SystemPrompt:   a.spec.systemPrompt,
		Query:          req.Query,
		CompanyContext: companyContextBlock(req.CompanyContext),
		Retrieved:      retrieved,
		ToolSections:   sections,
	})

	// Citations come from what the budget let through, not from what the
	// tools produced.
	citedTools, toolNames := citeSections(usedSections)
	if len(included) == 0 && len(usedSections) == 0 {
		flags = appendUnique(flags, domain.FlagNoExternalSources)
	}

	notifyState(ctx, domain.StateGenerating)
	resp, attempts, err := a.generator.Generate(ctx, domain.ChatRequest{Messages: messages}, a.providers.Ordered(), a.genParams)
	if len(attempts) > 1 {
		notifyState(ctx, domain.StateProviderRetry)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("agent %s: %w", a.spec.domain, err)
	}

	out := &domain.AgentResponse{
		ResponseText:    resp.Message.Content,
		Sources:         buildSources(included, citedTools),
		ToolResultsUsed: toolNames,
		ProviderUsed:    providerUsed(attempts),
		DegradedFlags:   flags,
		Attempts:        attempts,
	}

	if a.spec.structured {
		a.parseStructured(ctx, messages, out)
	}

	tracer.SetOK(span)
	a.logger.Info("request handled",
		"request_id", req.RequestID,
		"provider", out.ProviderUsed,
		"sources", len(out.Sources),
		"degraded_flags", out.DegradedFlags)
	return out, nil
}

func (a *agentCore) retrieve(ctx context.Context, query string) ([]domain.RetrievalResult, error) {
	if a.spec.domain == domain.DomainGeneral {
		return a.retriever.RetrieveAll(ctx, query, a.settings.TopK, a.settings.MinScore)
	}
	return a.retriever.Retrieve(ctx, query, a.spec.domain, a.settings.TopK, a.settings.MinScore)
}

// augment dispatches the request's tool plan. The first phase runs web search
// and the agent's always-on tools in parallel; the second phase extracts page
// content when the agent has an extraction budget.
func (a *agentCore) augment(ctx context.Context, req domain.AgentRequest, retrievedCount int) []domain.ToolInvocation {
	searchParams, _ := json.Marshal(map[string]any{
		"query": req.Query,
		"count": a.settings.SearchMaxResults,
	})

	type plannedCall struct {
		name   string
		params json.RawMessage
	}
	var plan []plannedCall

	if a.spec.alwaysSearch || retrievedCount < a.settings.MinUsefulResults {
		plan = append(plan, plannedCall{"web_search", searchParams})
	}
	for _, name := range a.spec.alwaysTools {
		plan = append(plan, plannedCall{name, searchParams})
	}
	for _, qt := range a.spec.queryTools {
		if qt.triggeredBy(req.Query) {
			plan = append(plan, plannedCall{qt.tool, searchParams})
		}
	}
	if len(plan) == 0 {
		return nil
	}

	notifyState(ctx, domain.StateToolAugmenting)

	invocations := make([]domain.ToolInvocation, len(plan))
	var wg sync.WaitGroup
	for i, call := range plan {
		wg.Add(1)
		go func(i int, call plannedCall) {
			defer wg.Done()
			invocations[i] = a.tools.Dispatch(ctx, call.name, call.params)
		}(i, call)
	}
	wg.Wait()

	if a.spec.extractTopURLs > 0 {
		invocations = append(invocations, a.extractPages(ctx, req.Query, invocations)...)
	}
	return invocations
}

// queryTool gates a tool on the query mentioning one of its trigger phrases.
type queryTool struct {
	tool     string
	triggers []string
}

func (q queryTool) triggeredBy(query string) bool {
	lowered := strings.ToLower(query)
	for _, t := range q.triggers {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// extractPages follows up with page extraction, in parallel. URLs the caller
// put in the query take priority over top web search hits.
func (a *agentCore) extractPages(ctx context.Context, query string, invocations []domain.ToolInvocation) []domain.ToolInvocation {
	urls := urlPattern.FindAllString(query, a.spec.extractTopURLs)
	for i := range invocations {
		if len(urls) >= a.spec.extractTopURLs {
			break
		}
		if invocations[i].ToolName != "web_search" || !invocations[i].Succeeded() {
			continue
		}
		results, err := parseWebResults(invocations[i].Result.Content)
		if err != nil {
			continue
		}
		for _, r := range results {
			if r.URL == "" || containsString(urls, r.URL) {
				continue
			}
			urls = append(urls, r.URL)
			if len(urls) >= a.spec.extractTopURLs {
				break
			}
		}
	}
	if len(urls) == 0 {
		return nil
	}

	extracts := make([]domain.ToolInvocation, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			params, _ := json.Marshal(map[string]string{"url": url})
			extracts[i] = a.tools.Dispatch(ctx, "extract_content", params)
		}(i, url)
	}
	wg.Wait()
	return extracts
}

// collectToolOutput turns invocations into candidate prompt sections. Any
// failed invocation marks the response tool_unavailable.
func (a *agentCore) collectToolOutput(invocations []domain.ToolInvocation) ([]ToolSection, []string) {
	var (
		sections []ToolSection
		flags    []string
	)
	for i := range invocations {
		inv := &invocations[i]
		if !inv.Succeeded() {
			a.logger.Warn("tool unavailable for request", "tool", inv.ToolName, "error", inv.Err)
			flags = appendUnique(flags, domain.FlagToolUnavailable)
			continue
		}
		sections = append(sections, ToolSection{ToolName: inv.ToolName, Content: inv.Result.Content})
	}
	return sections, flags
}

// citeSections derives provenance and tool names from the sections that made
// it into the prompt.
func citeSections(sections []ToolSection) ([]domain.Source, []string) {
	var (
		sources []domain.Source
		names   []string
	)
	for _, ts := range sections {
		names = appendUnique(names, ts.ToolName)
		sources = append(sources, toolSources(ts)...)
	}
	return sources, names
}

// webResult mirrors the JSON payload emitted by the search tools.
type webResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	ImageURL string `json:"image_url,omitempty"`
}

func parseWebResults(content string) ([]webResult, error) {
	var results []webResult
	if err := json.Unmarshal([]byte(content), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// toolSources derives provenance entries from one prompt section.
// Search-style JSON payloads yield one source per result; anything else
// yields a single entry for the tool itself.
func toolSources(ts ToolSection) []domain.Source {
	if results, err := parseWebResults(ts.Content); err == nil && len(results) > 0 {
		sources := make([]domain.Source, 0, len(results))
		for _, r := range results {
			if r.URL == "" && r.Title == "" {
				continue
			}
			sources = append(sources, domain.Source{
				Kind:     domain.SourceTool,
				ID:       r.URL,
				Title:    r.Title,
				URL:      r.URL,
				ToolName: ts.ToolName,
			})
		}
		return sources
	}
	return []domain.Source{{
		Kind:     domain.SourceTool,
		ID:       ts.ToolName,
		ToolName: ts.ToolName,
	}}
}

// buildSources merges retrieval and tool provenance, deduplicating by kind
// and ID, retrieval first.
func buildSources(included []domain.RetrievalResult, tool []domain.Source) []domain.Source {
	seen := make(map[string]bool)
	sources := make([]domain.Source, 0, len(included)+len(tool))
	for _, r := range included {
		key := "retrieval|" + r.Chunk.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, domain.Source{
			Kind:  domain.SourceRetrieval,
			ID:    r.Chunk.ID,
			Title: r.Chunk.SourceID,
			Score: r.Score,
		})
	}
	for _, s := range tool {
		key := "tool|" + s.ID
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, s)
	}
	return sources
}

func providerUsed(attempts []domain.ProviderAttempt) string {
	for _, a := range attempts {
		if a.Outcome == domain.AttemptSuccess {
			return a.Provider
		}
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, existing := range list {
		if existing == v {
			return true
		}
	}
	return false
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}

// companyContextBlock renders the optional caller-supplied company profile
// into prompt text. Arbitrary JSON is flattened to sorted key: value lines.
func companyContextBlock(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return string(raw)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out string
	for _, k := range keys {
		out += fmt.Sprintf("%s: %v\n", k, fields[k])
	}
	return out
}
