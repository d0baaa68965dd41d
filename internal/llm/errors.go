package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the provider answered successfully but the
// payload carried no usable completion text.
type ErrInvalidResponse struct {
	Body string
	Err  error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// FailureKind classifies a failed completion.
type FailureKind int

const (
	// GatewayUnavailable covers transport errors and non-success statuses.
	GatewayUnavailable FailureKind = iota + 1
	// MalformedResponse covers success payloads without usable text.
	MalformedResponse
)

func (k FailureKind) String() string {
	switch k {
	case GatewayUnavailable:
		return "gateway unavailable"
	case MalformedResponse:
		return "malformed response"
	default:
		return "unknown"
	}
}

// Failure is the only error type returned by Gateway.Complete.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf classifies err. Anything other than a Failure or an
// ErrInvalidResponse counts as GatewayUnavailable.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	var inv *ErrInvalidResponse
	if errors.As(err, &inv) {
		return MalformedResponse
	}
	return GatewayUnavailable
}
