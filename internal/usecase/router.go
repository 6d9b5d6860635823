package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"venturedesk/internal/domain"
	"venturedesk/internal/infra/tracer"
)

const maxQueryLen = 8192

// AskResult pairs the agent response with the routing decision that produced
// it.
type AskResult struct {
	RequestID string                 `json:"request_id"`
	Routing   domain.RoutingDecision `json:"routing"`
	Response  *domain.AgentResponse  `json:"response"`
}

// Supervisor owns the per-request lifecycle: classification, agent dispatch,
// timeout enforcement, and the request state machine. Stateless across
// requests and safe for concurrent use.
type Supervisor struct {
	classifier     *Classifier
	assist         *LLMAssist
	agents         *AgentSet
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewSupervisor creates a supervisor. requestTimeout bounds the whole
// request, including all tool and provider attempts; zero disables it.
// assist may be nil.
func NewSupervisor(classifier *Classifier, assist *LLMAssist, agents *AgentSet, requestTimeout time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		classifier:     classifier,
		assist:         assist,
		agents:         agents,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// Ask routes one query through classification and the selected agent.
// A non-empty domainOverride skips classification. Validation failures
// return ErrInvalidInput before any work starts.
func (s *Supervisor) Ask(ctx context.Context, query, domainOverride string, companyContext json.RawMessage) (*AskResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewDomainError("Supervisor.Ask", domain.ErrInvalidInput, "empty query")
	}
	if len(query) > maxQueryLen {
		return nil, domain.NewDomainError("Supervisor.Ask", domain.ErrInvalidInput,
			fmt.Sprintf("query exceeds %d bytes", maxQueryLen))
	}
	if domainOverride != "" && !knownDomain(domainOverride) {
		return nil, domain.NewDomainError("Supervisor.Ask", domain.ErrInvalidInput,
			fmt.Sprintf("unknown domain %q", domainOverride))
	}
	if len(companyContext) > 0 && !json.Valid(companyContext) {
		return nil, domain.NewDomainError("Supervisor.Ask", domain.ErrInvalidInput, "company_context is not valid JSON")
	}

	requestID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	logger := s.logger.With("request_id", requestID)

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "supervisor.ask",
		trace.WithAttributes(tracer.StringAttr("request.id", requestID)),
	)
	defer span.End()

	sm := newStateMachine(logger)
	sm.transition(domain.StateReceived)

	var decision domain.RoutingDecision
	if domainOverride != "" {
		decision = domain.RoutingDecision{Domain: domainOverride, Confidence: 1, MatchedSignal: "caller_override"}
	} else {
		decision = s.classifier.Classify(query)
		if decision.Domain == domain.DomainGeneral && s.assist != nil {
			if assisted, ok := s.assist.Classify(ctx, query); ok {
				decision.Domain = assisted
				decision.MatchedSignal = "llm_assist"
			}
		}
	}
	sm.transition(domain.StateClassified)
	logger.Info("request classified",
		"domain", decision.Domain,
		"confidence", decision.Confidence,
		"matched_signal", decision.MatchedSignal)
	span.SetAttributes(tracer.StringAttr("routing.domain", decision.Domain))

	agent := s.agents.Get(decision.Domain)
	if agent == nil {
		sm.transition(domain.StateFailed)
		return nil, domain.NewDomainError("Supervisor.Ask", domain.ErrAgentNotFound, decision.Domain)
	}

	resp, err := agent.Handle(WithStateObserver(ctx, sm.transition), domain.AgentRequest{
		RequestID:      requestID,
		Query:          query,
		Domain:         decision.Domain,
		CompanyContext: companyContext,
	})
	if err != nil {
		sm.transition(domain.StateFailed)
		tracer.RecordError(span, err)
		logger.Error("request failed", "domain", decision.Domain, "error", err)
		return nil, err
	}

	sm.transition(domain.StateCompleted)
	tracer.SetOK(span)
	return &AskResult{RequestID: requestID, Routing: decision, Response: resp}, nil
}

func knownDomain(d string) bool {
	if d == domain.DomainGeneral {
		return true
	}
	for _, known := range domain.Domains {
		if known == d {
			return true
		}
	}
	return false
}

// stateMachine enforces the legal request transitions and logs each one.
// Illegal transitions are dropped with a warning rather than panicking; they
// indicate a pipeline bug, not a caller error.
type stateMachine struct {
	current domain.RequestState
	logger  *slog.Logger
}

var legalTransitions = map[domain.RequestState][]domain.RequestState{
	"":                         {domain.StateReceived},
	domain.StateReceived:       {domain.StateClassified},
	domain.StateClassified:     {domain.StateRetrieving},
	domain.StateRetrieving:     {domain.StateToolAugmenting, domain.StateGenerating},
	domain.StateToolAugmenting: {domain.StateGenerating},
	domain.StateGenerating:     {domain.StateProviderRetry, domain.StateCompleted, domain.StateFailed},
	domain.StateProviderRetry:  {domain.StateGenerating, domain.StateCompleted, domain.StateFailed},
}

func newStateMachine(logger *slog.Logger) *stateMachine {
	return &stateMachine{logger: logger}
}

func (m *stateMachine) transition(next domain.RequestState) {
	for _, allowed := range legalTransitions[m.current] {
		if allowed == next {
			m.logger.Debug("state transition", "from", string(m.current), "to", string(next))
			m.current = next
			return
		}
	}
	m.logger.Warn("illegal state transition dropped",
		"from", string(m.current), "to", string(next))
}
