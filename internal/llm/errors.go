package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailoverReason classifies why an adapter call failed, so the router
// and driver can decide retryability without string-matching at the
// call site.
type FailoverReason string

const (
	ReasonBilling          FailoverReason = "billing"
	ReasonRateLimit        FailoverReason = "rate_limit"
	ReasonAuth             FailoverReason = "auth"
	ReasonTimeout          FailoverReason = "timeout"
	ReasonServerError      FailoverReason = "server_error"
	ReasonInvalidRequest   FailoverReason = "invalid_request"
	ReasonModelUnavailable FailoverReason = "model_unavailable"
	ReasonContentFilter    FailoverReason = "content_filter"
	ReasonUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether a failure of this reason is generally
// worth retrying with backoff.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// AdapterError wraps an adapter failure with a classification and the
// provider/model context it occurred in.
type AdapterError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *AdapterError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s/%s: %s (%s)", e.Provider, e.Model, e.Message, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %v (%s)", e.Provider, e.Model, e.Cause, e.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Reason)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// NewAdapterError classifies cause and wraps it as an AdapterError for
// the given provider/model.
func NewAdapterError(provider, model string, cause error) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Model:    model,
		Reason:   ClassifyError(cause),
		Cause:    cause,
	}
}

// ClassifyError inspects an error's text for familiar substrings to
// assign a FailoverReason. Provider SDKs rarely expose typed sentinel
// errors for every failure mode, so substring classification is the
// pragmatic fallback used across adapters.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return ReasonUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "timeout") || errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return ReasonAuth
	case strings.Contains(msg, "billing") || strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient_quota"):
		return ReasonBilling
	case strings.Contains(msg, "content filter") || strings.Contains(msg, "content_policy"):
		return ReasonContentFilter
	case strings.Contains(msg, "model_not_found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "overloaded"):
		return ReasonModelUnavailable
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid_request"):
		return ReasonInvalidRequest
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "internal server"):
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}
