package errs

import "fmt"

// DecodeError marks a malformed ingress envelope. Events failing to decode
// have no identity to deduplicate on, so they are logged and dropped at the
// ingress boundary and never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AuthError marks a credential that is invalid or expired beyond repair.
// It is fatal for the credential until a human re-authorizes.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

const (
	// KindProvider is a non-2xx response from the external API.
	KindProvider = "provider"
	// KindNetwork covers transport failures and timeouts.
	KindNetwork = "network"
)

// ApiError is a transport or provider failure on an outbound call.
type ApiError struct {
	Kind   string
	Status int
	Detail string
	Err    error
}

func (e *ApiError) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("api error (network): %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Detail)
}

func (e *ApiError) Unwrap() error { return e.Err }

// IsNetwork reports whether the error is a transient transport failure.
func (e *ApiError) IsNetwork() bool { return e.Kind == KindNetwork }

// ConfigError marks a missing required mapping, e.g. no space bound to a
// project. Surfaced to the initiating action.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.Reason)
}

// ConflictError is a uniqueness violation on space or thread creation.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s already exists for %s", e.Resource, e.Key)
}
