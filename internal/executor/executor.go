// Package executor is the narrow boundary to the inference backend.
// The dispatcher and health monitor depend only on the interfaces here,
// never on the transport.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pagegate/pagegate/internal/envelope"
)

// ErrDeadlineExceeded marks a call that the backend (or the transport on
// its behalf) abandoned because the deadline elapsed. The dispatcher
// classifies it as a gateway timeout.
var ErrDeadlineExceeded = errors.New("executor: deadline exceeded")

// TransportError is any backend failure other than a timeout: connection
// refused, protocol violation, non-JSON payload, unexpected status. The
// detail is for logs, never for callers.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("executor: %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Invoker runs one named operation against the backend. The returned
// envelope is the backend's verbatim response; domain-level failures
// travel inside it, transport-level failures travel in err.
type Invoker interface {
	Invoke(ctx context.Context, operation string, body json.RawMessage) (*envelope.Response, error)
}

// HealthChecker exposes the backend's readiness probes. Each call is
// bounded by the caller's context.
type HealthChecker interface {
	ServerReady(ctx context.Context) (bool, error)
	ModelReady(ctx context.Context, model string) (bool, error)
}

// Client is the full backend surface the gateway consumes.
type Client interface {
	Invoker
	HealthChecker
}
