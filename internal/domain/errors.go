package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrProviderError      = fmt.Errorf("provider error")
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrProvidersExhausted = fmt.Errorf("all providers exhausted")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Tool errors.
	ErrToolNotFound      = fmt.Errorf("tool not found")
	ErrInvalidToolParams = fmt.Errorf("invalid tool parameters")
	ErrToolFailure       = fmt.Errorf("tool execution failed")
	ErrToolUnavailable   = fmt.Errorf("tool unavailable")

	// Retrieval errors.
	ErrEmbeddingFailed    = fmt.Errorf("embedding generation failed")
	ErrCollectionNotFound = fmt.Errorf("collection not found")
	ErrDimensionMismatch  = fmt.Errorf("embedding dimension mismatch")
	ErrVectorStore        = fmt.Errorf("vector store operation failed")
	ErrVectorSearch       = fmt.Errorf("vector search failed")

	// Boundary errors.
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrEncryption       = fmt.Errorf("encryption operation failed")
	ErrSSRFBlocked      = fmt.Errorf("request to private/reserved IP blocked")
	ErrGatewayAuth      = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrAgentNotFound    = fmt.Errorf("no agent registered for domain")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")
	ErrUnstructuredOut  = fmt.Errorf("structured output parse failed")
	ErrNoExternalSource = fmt.Errorf("no external sources available")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Gateway.Generate")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "retriever", "tool")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed
// on a later attempt against the same or another provider.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderError)
}

// IsFatalProviderError reports whether err indicates a request-shape bug
// rather than transient unavailability. Fatal errors short-circuit failover.
func IsFatalProviderError(err error) bool {
	return errors.Is(err, ErrAuthInvalid) || errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeProvidersExhausted ErrorCode = "PROVIDERS_EXHAUSTED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeInvalidToolParams  ErrorCode = "INVALID_TOOL_PARAMS"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeToolUnavailable    ErrorCode = "TOOL_UNAVAILABLE"
	CodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"
	CodeCollectionNotFound ErrorCode = "COLLECTION_NOT_FOUND"
	CodeDimensionMismatch  ErrorCode = "DIMENSION_MISMATCH"
	CodeVectorStore        ErrorCode = "VECTOR_STORE"
	CodeVectorSearch       ErrorCode = "VECTOR_SEARCH"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeSSRFBlocked        ErrorCode = "SSRF_BLOCKED"
	CodeGatewayAuth        ErrorCode = "GATEWAY_AUTH"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:       CodeInvalidInput,
	ErrTimeout:            CodeTimeout,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrProviderError:      CodeProviderError,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrProvidersExhausted: CodeProvidersExhausted,
	ErrServiceUnavailable: CodeServiceUnavailable,
	ErrToolNotFound:       CodeToolNotFound,
	ErrInvalidToolParams:  CodeInvalidToolParams,
	ErrToolFailure:        CodeToolFailure,
	ErrToolUnavailable:    CodeToolUnavailable,
	ErrEmbeddingFailed:    CodeEmbeddingFailed,
	ErrCollectionNotFound: CodeCollectionNotFound,
	ErrDimensionMismatch:  CodeDimensionMismatch,
	ErrVectorStore:        CodeVectorStore,
	ErrVectorSearch:       CodeVectorSearch,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrEncryption:         CodeEncryption,
	ErrSSRFBlocked:        CodeSSRFBlocked,
	ErrGatewayAuth:        CodeGatewayAuth,
	ErrAgentNotFound:      CodeAgentNotFound,
	ErrContextOverflow:    CodeContextOverflow,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
