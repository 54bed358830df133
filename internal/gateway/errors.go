package gateway

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned when an operation is not offered by the
// selected gateway (e.g. refunds through the Razorpay adapter).
var ErrNotSupported = errors.New("operation not supported by this gateway")

// ValidationError reports a malformed or missing request field. It is the
// caller's fault and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// UnsupportedGatewayError reports an unknown gateway discriminator. The
// router rejects these before any adapter is called.
type UnsupportedGatewayError struct {
	Gateway string
}

func (e *UnsupportedGatewayError) Error() string {
	return fmt.Sprintf("unsupported payment gateway %q", e.Gateway)
}

// UpstreamError reports a failed call to the third-party API. The upstream
// message is preserved so operators can match it against the gateway
// dashboard.
type UpstreamError struct {
	Gateway    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (http %d): %s", e.Gateway, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Gateway, e.Message)
}

// SignatureMismatchError reports a failed authentication or signature
// check. It is never a transient condition and is always rejected.
type SignatureMismatchError struct {
	Gateway string
	Context string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("%s signature mismatch during %s", e.Gateway, e.Context)
}

// ConfigurationError reports missing credentials. The specific operation
// needing the credential fails instead of crashing the process.
type ConfigurationError struct {
	Gateway string
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s gateway is not configured: missing %s", e.Gateway, e.Missing)
}
