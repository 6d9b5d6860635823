package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"venturedesk/internal/domain"
)

// patentAssessment is the structured payload the patent agent must produce.
type patentAssessment struct {
	PatentabilityScore int      `json:"patentability_score"`
	Summary            string   `json:"summary"`
	Risks              []string `json:"risks"`
	SimilarPatents     []string `json:"similar_patents"`
}

func (p *patentAssessment) validate() error {
	if p.PatentabilityScore < 0 || p.PatentabilityScore > 100 {
		return fmt.Errorf("patentability_score %d out of range", p.PatentabilityScore)
	}
	if strings.TrimSpace(p.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	return nil
}

const correctiveInstruction = `Your previous reply was not valid JSON of the required shape. Respond again
with ONLY a single JSON object:
{"patentability_score": <0-100>, "summary": "...", "risks": [...], "similar_patents": [...]}`

// parseStructured extracts and validates the structured payload from the
// model output, with one corrective retry. A second failure keeps the raw
// text and marks the response unstructured_output.
func (a *agentCore) parseStructured(ctx context.Context, messages []domain.Message, out *domain.AgentResponse) {
	if structured, err := extractAssessment(out.ResponseText); err == nil {
		out.Structured = structured
		return
	}

	a.logger.Warn("structured output parse failed, retrying once")

	retry := append(append([]domain.Message{}, messages...),
		domain.Message{Role: domain.RoleAssistant, Content: out.ResponseText},
		domain.Message{Role: domain.RoleUser, Content: correctiveInstruction},
	)
	resp, attempts, err := a.generator.Generate(ctx, domain.ChatRequest{Messages: retry}, a.providers.Ordered(), a.genParams)
	out.Attempts = append(out.Attempts, attempts...)
	if err == nil {
		if structured, perr := extractAssessment(resp.Message.Content); perr == nil {
			out.ResponseText = resp.Message.Content
			out.Structured = structured
			return
		}
	}

	a.logger.Warn("structured output still invalid, returning raw text",
		"error", err)
	out.DegradedFlags = appendUnique(out.DegradedFlags, domain.FlagUnstructuredOutput)
}

// extractAssessment finds the first JSON object in text, decodes, and
// validates it. Models sometimes wrap JSON in prose or code fences.
func extractAssessment(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", domain.ErrUnstructuredOut)
	}
	candidate := text[start : end+1]

	var assessment patentAssessment
	if err := json.Unmarshal([]byte(candidate), &assessment); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnstructuredOut, err)
	}
	if err := assessment.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnstructuredOut, err)
	}

	normalized, err := json.Marshal(assessment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnstructuredOut, err)
	}
	return normalized, nil
}
