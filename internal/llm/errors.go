package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType classifies provider errors for UI handling
type ErrorType string

const (
	ErrorTypeRateLimit          ErrorType = "rate_limit"          // 429
	ErrorTypeInsufficientCredit ErrorType = "insufficient_credit" // 402
	ErrorTypeProviderDown       ErrorType = "provider_down"       // 5xx
	ErrorTypeAuth               ErrorType = "auth"                // 401/403
	ErrorTypeMalformed          ErrorType = "malformed"           // unparseable body
	ErrorTypeUnknown            ErrorType = "unknown"
)

// ProviderError is a structured error returned by LLM clients
type ProviderError struct {
	Type       ErrorType
	Provider   string
	Code       string // HTTP status or provider code
	Message    string
	RetryAfter *time.Duration
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsProviderError checks if err is a ProviderError and returns it
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewProviderError creates a new ProviderError with the given parameters
func NewProviderError(provider string, errType ErrorType, code, message string) *ProviderError {
	return &ProviderError{
		Type:     errType,
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// FromStatus classifies a non-2xx HTTP answer. retryAfter is the raw
// Retry-After header, if any.
func FromStatus(provider string, status int, body, retryAfter string) *ProviderError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	pe := NewProviderError(provider, ErrorTypeUnknown, strconv.Itoa(status), msg)
	switch {
	case status == http.StatusTooManyRequests:
		pe.Type, pe.Retryable = ErrorTypeRateLimit, true
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil {
			d := time.Duration(secs) * time.Second
			pe.RetryAfter = &d
		}
	case status == http.StatusPaymentRequired:
		pe.Type = ErrorTypeInsufficientCredit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Type = ErrorTypeAuth
	case status >= 500:
		pe.Type, pe.Retryable = ErrorTypeProviderDown, true
	}
	return pe
}
