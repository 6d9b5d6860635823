package domain

import (
	"context"
	"encoding/json"
)

// Business domains served by the runtime. Each maps to one knowledge-base
// collection and one agent.
const (
	DomainPitch       = "pitch"
	DomainCompetitive = "competitive"
	DomainMarketing   = "marketing"
	DomainPatent      = "patent"
	DomainPolicy      = "policy"
	DomainTeam        = "team"
	DomainGeneral     = "general"
)

// Domains lists the routable business domains, excluding the generic
// fallback.
var Domains = []string{
	DomainPitch, DomainCompetitive, DomainMarketing,
	DomainPatent, DomainPolicy, DomainTeam,
}

// Degraded-response flags attached to AgentResponse.DegradedFlags.
const (
	FlagRetrievalDegraded  = "retrieval_degraded"
	FlagToolUnavailable    = "tool_unavailable"
	FlagUnstructuredOutput = "unstructured_output"
	FlagNoExternalSources  = "no_external_sources"
)

// AgentRequest is the input to a domain agent. Read-only downstream.
type AgentRequest struct {
	RequestID      string          `json:"request_id"`
	Query          string          `json:"query"`
	Domain         string          `json:"domain"`
	CompanyContext json.RawMessage `json:"company_context,omitempty"`
}

// SourceKind distinguishes where a cited source came from.
type SourceKind string

const (
	SourceRetrieval SourceKind = "retrieval"
	SourceTool      SourceKind = "tool"
)

// Source is one provenance entry on an AgentResponse. Sources reference only
// retrieval or tool data actually included in the final prompt.
type Source struct {
	Kind     SourceKind `json:"kind"`
	ID       string     `json:"id"`
	Title    string     `json:"title,omitempty"`
	URL      string     `json:"url,omitempty"`
	Score    float64    `json:"score,omitempty"`
	ToolName string     `json:"tool_name,omitempty"`
}

// AgentResponse is the final artifact returned to the caller. Never mutated
// after construction.
type AgentResponse struct {
	ResponseText    string            `json:"response_text"`
	Sources         []Source          `json:"sources"`
	ToolResultsUsed []string          `json:"tool_results_used,omitempty"`
	ProviderUsed    string            `json:"provider_used"`
	DegradedFlags   []string          `json:"degraded_flags,omitempty"`
	Attempts        []ProviderAttempt `json:"attempts,omitempty"`
	Structured      json.RawMessage   `json:"structured,omitempty"`
}

// Degraded reports whether the response carries the given flag.
func (r *AgentResponse) Degraded(flag string) bool {
	for _, f := range r.DegradedFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Agent is the shared contract implemented by every domain agent variant.
type Agent interface {
	Domain() string
	Handle(ctx context.Context, req AgentRequest) (*AgentResponse, error)
}

// RoutingDecision is produced once per incoming message.
type RoutingDecision struct {
	Domain        string  `json:"domain"`
	Confidence    float64 `json:"confidence"`
	MatchedSignal string  `json:"matched_signal,omitempty"`
}

// RequestState tracks a request through the runtime's state machine.
// StateFailed is reachable only from StateGenerating / StateProviderRetry.
type RequestState string

const (
	StateReceived       RequestState = "RECEIVED"
	StateClassified     RequestState = "CLASSIFIED"
	StateRetrieving     RequestState = "RETRIEVING"
	StateToolAugmenting RequestState = "TOOL_AUGMENTING"
	StateGenerating     RequestState = "GENERATING"
	StateProviderRetry  RequestState = "PROVIDER_RETRY"
	StateCompleted      RequestState = "COMPLETED"
	StateFailed         RequestState = "FAILED"
)
