package llmkit

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindAuth       ErrorKind = "auth"
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindBadRequest ErrorKind = "bad_request"
	ErrKindServer     ErrorKind = "server"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindCanceled   ErrorKind = "canceled"
	ErrKindParse      ErrorKind = "parse"
	ErrKindUnknown    ErrorKind = "unknown"
)

// LLMError is a provider-agnostic error container.
//
// It carries a stable classification, the raw upstream payload when one
// exists, and a retry hint. Adapters surface backend-reported stream errors
// as an *LLMError that terminates the pending aggregate result.
type LLMError struct {
	Provider string
	Kind     ErrorKind

	ProviderCode string
	Message      string

	Retryable bool

	// Raw is an optional raw error payload (e.g. the offending stream chunk).
	Raw []byte

	Cause error
}

func (e *LLMError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llmkit %s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("llmkit: %s", msg)
}

func (e *LLMError) Unwrap() error { return e.Cause }

func AsLLMError(err error) (*LLMError, bool) {
	var e *LLMError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
