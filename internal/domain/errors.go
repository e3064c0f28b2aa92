package domain

import "github.com/pkg/errors"

var (
	// ErrCredentialMissing a required secret was not found in the vault.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrTransport network, timeout or non-success HTTP status talking to a provider.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse provider payload could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// FailureKind classifies err against the taxonomy for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "transport_failure"
	}
}
