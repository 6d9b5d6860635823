package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"venturedesk/internal/domain"
	"venturedesk/internal/usecase"
)

const maxRequestBody = 64 * 1024

// Asker answers one routed question. Implemented by the supervisor.
type Asker interface {
	Ask(ctx context.Context, query, domainOverride string, companyContext json.RawMessage) (*usecase.AskResult, error)
}

type askRequest struct {
	Query          string          `json:"query"`
	Domain         string          `json:"domain,omitempty"`
	CompanyContext json.RawMessage `json:"company_context,omitempty"`
}

type errorBody struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	client, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if !s.limiter.allow(client.Name) {
		writeError(w, http.StatusTooManyRequests,
			domain.NewDomainError("gateway", domain.ErrRateLimit, "client request rate exceeded"))
		return
	}

	var req askRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			domain.NewDomainError("gateway", domain.ErrInvalidInput, "malformed JSON body"))
		return
	}

	result, err := s.asker.Ask(r.Context(), req.Query, req.Domain, req.CompanyContext)
	if err != nil {
		s.logger.Warn("ask failed", "client", client.Name, "error", err)
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"domains": domain.Domains})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps domain error codes to HTTP statuses. Anything
// unrecognized is an internal error. 401 is reserved for the gateway's own
// auth; a provider rejecting our credentials is an upstream fault, not the
// caller's.
func statusForError(err error) int {
	switch domain.ErrorCodeOf(err) {
	case domain.CodeInvalidInput, domain.CodeInvalidToolParams, domain.CodeContextOverflow:
		return http.StatusBadRequest
	case domain.CodeGatewayAuth:
		return http.StatusUnauthorized
	case domain.CodeAuthInvalid:
		return http.StatusBadGateway
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeProvidersExhausted, domain.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessages are the only error strings callers ever see. Anything the
// chain carries beyond these stays in the server log.
var publicMessages = map[domain.ErrorCode]string{
	domain.CodeInvalidInput:       "invalid request",
	domain.CodeInvalidToolParams:  "invalid tool parameters",
	domain.CodeContextOverflow:    "request exceeds the model context window",
	domain.CodeGatewayAuth:        "authentication failed",
	domain.CodeAuthInvalid:        "upstream provider rejected the service credentials",
	domain.CodeRateLimit:          "rate limit exceeded",
	domain.CodeProvidersExhausted: "all language model providers failed",
	domain.CodeServiceUnavailable: "service temporarily unavailable",
	domain.CodeTimeout:            "request timed out",
}

// writeError collapses internal error chains to a code and a fixed message.
// A DomainError raised at this boundary may carry a caller-facing Detail;
// everything else maps through publicMessages so provider response bodies and
// operation chains never leak.
func writeError(w http.ResponseWriter, status int, err error) {
	code := domain.ErrorCodeOf(err)
	message := publicMessages[code]
	if message == "" {
		message = "internal error"
	}
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		message = de.Detail
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    code,
		Message: message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
