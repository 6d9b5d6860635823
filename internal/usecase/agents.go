package usecase

import (
	"log/slog"

	"venturedesk/internal/domain"
)

const (
	pitchPrompt = `You are a pitch advisor for startup founders. You help with pitch decks,
investor narratives, fundraising strategy, and valuation framing. Ground your
advice in the provided context and cite sources with their [S#] or [T#]
markers. Be concrete: name the slide, the metric, or the phrasing to change.`

	competitivePrompt = `You are a competitive intelligence analyst for startup founders. You map
competitor landscapes, positioning, pricing, and differentiation. Prefer
fresh web data over general knowledge; cite every competitor claim with its
[S#] or [T#] marker. Flag when data may be stale.`

	marketingPrompt = `You are a marketing strategist for startup founders. You advise on
go-to-market, channels, messaging, content, and brand. Ground recommendations
in the provided context and cite with [S#] or [T#] markers. When image search
results are provided, reference relevant visuals by URL.`

	patentPrompt = `You are a patent and IP analyst for startup founders. You assess
patentability, prior art risk, and IP strategy. You are not a lawyer and must
say so. Always respond with a single JSON object of this shape and nothing
else:
{"patentability_score": <0-100>, "summary": "<short assessment>",
 "risks": ["<risk>", ...], "similar_patents": ["<patent title or id>", ...]}
Base similar_patents on the provided patent search results and cite nothing
you cannot see in the context.`

	policyPrompt = `You are a policy and compliance advisor for startup founders. You draft and
review privacy policies, terms of service, and data handling practices, and
explain regulatory obligations such as GDPR and CCPA. You are not a lawyer
and must say so. Cite context with [S#] or [T#] markers.`

	teamPrompt = `You are a hiring and organization advisor for startup founders. You help
with role definitions, compensation and equity, interview design, and team
structure as the company scales. Ground advice in the provided context and
cite with [S#] or [T#] markers.`

	generalPrompt = `You are a business advisor for startup founders. Answer the question
directly using the provided context where relevant, citing with [S#] or [T#]
markers. If the question would be better served by a specialist topic such as
pitch, competitive analysis, marketing, patents, policy, or hiring, say so
while still answering.`
)

// AgentSet holds the constructed domain agents keyed by domain, plus the
// generic fallback.
type AgentSet struct {
	byDomain map[string]domain.Agent
	fallback domain.Agent
}

// AgentDeps carries the shared collaborators every agent is built on.
type AgentDeps struct {
	Retriever contextRetriever
	Tools     ToolDispatcher
	Generator Generator
	Providers ProviderSource
	Prompts   *PromptBuilder
	Settings  RetrievalSettings
	GenParams domain.GenerationParams
	Logger    *slog.Logger
}

// NewAgentSet builds the six domain agents and the generic fallback over the
// shared dependencies.
func NewAgentSet(deps AgentDeps) *AgentSet {
	specs := []agentSpec{
		{
			domain:       domain.DomainPitch,
			systemPrompt: pitchPrompt,
		},
		{
			domain:         domain.DomainCompetitive,
			systemPrompt:   competitivePrompt,
			alwaysSearch:   true,
			extractTopURLs: 2,
		},
		{
			domain:       domain.DomainMarketing,
			systemPrompt: marketingPrompt,
			queryTools: []queryTool{{
				tool: "image_search",
				triggers: []string{
					"visual", "image", "imagery", "logo", "banner", "creative",
					"moodboard", "mockup", "screenshot", "ad design", "landing page",
				},
			}},
		},
		{
			domain:       domain.DomainPatent,
			systemPrompt: patentPrompt,
			alwaysTools:  []string{"patent_search"},
			structured:   true,
		},
		{
			domain:       domain.DomainPolicy,
			systemPrompt: policyPrompt,
		},
		{
			domain:       domain.DomainTeam,
			systemPrompt: teamPrompt,
		},
	}

	set := &AgentSet{byDomain: make(map[string]domain.Agent, len(specs))}
	for _, spec := range specs {
		set.byDomain[spec.domain] = newAgentCore(spec, deps.Retriever, deps.Tools,
			deps.Generator, deps.Providers, deps.Prompts, deps.Settings, deps.GenParams, deps.Logger)
	}
	set.fallback = newAgentCore(agentSpec{
		domain:       domain.DomainGeneral,
		systemPrompt: generalPrompt,
	}, deps.Retriever, deps.Tools, deps.Generator, deps.Providers, deps.Prompts,
		deps.Settings, deps.GenParams, deps.Logger)
	return set
}

// Get returns the agent for a domain, falling back to the generic agent for
// unknown or general domains.
func (s *AgentSet) Get(d string) domain.Agent {
	if agent, ok := s.byDomain[d]; ok {
		return agent
	}
	return s.fallback
}

// Fallback returns the generic agent.
func (s *AgentSet) Fallback() domain.Agent { return s.fallback }

// Domains lists the routable domains in this set.
func (s *AgentSet) Domains() []string {
	out := make([]string, 0, len(s.byDomain))
	for d := range s.byDomain {
		out = append(out, d)
	}
	return out
}
