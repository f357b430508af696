package gateway

import "errors"

// Error taxonomy shared by all drivers. Callers match with errors.Is.
var (
	// ErrInvalidRequest marks caller/programmer errors; never retried.
	ErrInvalidRequest = errors.New("gateway: invalid request")

	// ErrGatewayUnavailable marks transport failures, timeouts and
	// provider 5xx responses; retryable with backoff.
	ErrGatewayUnavailable = errors.New("gateway: provider unavailable")

	// ErrInvalidState marks operations that violate the payment state
	// machine (cancel after capture, refund above captured amount).
	ErrInvalidState = errors.New("gateway: invalid state for operation")

	// ErrUnknownDriver marks a lookup of an unregistered driver name;
	// a configuration error, fatal at startup or first use.
	ErrUnknownDriver = errors.New("gateway: unknown driver")
)
