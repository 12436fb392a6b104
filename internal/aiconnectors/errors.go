package aiconnectors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures so callers can switch on them.
type ErrorKind string

const (
	// KindUnsupportedProvider means the provider is unknown, disabled or has no connector.
	KindUnsupportedProvider ErrorKind = "unsupported_provider"
	// KindTransport means no response was received (network failure, timeout).
	KindTransport ErrorKind = "transport"
	// KindUpstream means the provider answered with a non-2xx status.
	KindUpstream ErrorKind = "upstream"
	// KindMalformedResponse means a 2xx answer lacked the completion field.
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ErrEmptyPrompt is returned before any dispatch when the prompt is blank.
var ErrEmptyPrompt = errors.New("prompt is required")

// GatewayError is the only error type returned by Gateway.Send for dispatch failures.
type GatewayError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// UnsupportedProviderError builds the error for a provider that cannot be dispatched to.
func UnsupportedProviderError(provider string) *GatewayError {
	return &GatewayError{
		Kind:     KindUnsupportedProvider,
		Provider: provider,
		Message:  fmt.Sprintf("Provider '%s' is not supported yet.", provider),
	}
}

// TransportError builds the error for a request that never got a response.
// An empty message falls back to the generic network error text.
func TransportError(provider, message string, cause error) *GatewayError {
	if message == "" {
		message = "Network error - no response received"
	}
	return &GatewayError{
		Kind:     KindTransport,
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// UpstreamError builds the error for a non-2xx provider response.
func UpstreamError(provider string, status int, extracted string) *GatewayError {
	return &GatewayError{
		Kind:       KindUpstream,
		Provider:   provider,
		StatusCode: status,
		Message:    fmt.Sprintf("API Error: %d - %s", status, extracted),
	}
}

// MalformedResponseError builds the error for a 2xx response without completion text.
func MalformedResponseError(provider, providerLabel string) *GatewayError {
	return &GatewayError{
		Kind:     KindMalformedResponse,
		Provider: provider,
		Message:  fmt.Sprintf("Unexpected response structure from %s API", providerLabel),
	}
}

// KindOf reports the gateway error kind of err, or "" when err is not a GatewayError.
func KindOf(err error) ErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// IsKind reports whether err is a GatewayError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// UnknownModelError is an unsupported-provider failure for a model id the registry cannot resolve.
func UnknownModelError(modelID string) *GatewayError {
	return &GatewayError{
		Kind:    KindUnsupportedProvider,
		Message: fmt.Sprintf("Model '%s' is not supported yet.", modelID),
	}
}
