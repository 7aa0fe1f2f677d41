// Package dispatch admits inference requests under a global concurrency
// budget, forwards them to the backend with a deadline, and normalizes
// every outcome into a response envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pagegate/pagegate/internal/envelope"
	"github.com/pagegate/pagegate/internal/executor"
)

const (
	// DefaultMaxConcurrent is the admission budget when none is configured.
	DefaultMaxConcurrent = 16
	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 600 * time.Second
)

// Dispatcher owns the admission budget and the backend client. One
// instance serves all operations; construct it once and share it.
type Dispatcher struct {
	exec       executor.Invoker
	budget     *semaphore.Weighted
	capacity   int64
	timeout    time.Duration
	operations map[string]struct{}
	logger     *slog.Logger

	inFlight admitCounter
}

// admitCounter instruments the admission and release points so the
// budget invariant (at most C in flight, acquired == released) is
// observable from tests and the status surface.
type admitCounter struct {
	current  atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// Config configures a Dispatcher. Executor is required; zero values
// elsewhere fall back to defaults.
type Config struct {
	// Executor runs operations against the backend.
	Executor executor.Invoker
	// MaxConcurrent is the admission budget C (default 16).
	MaxConcurrent int
	// Timeout is the absolute deadline per backend call (default 600s).
	Timeout time.Duration
	// Operations is the set of invocable operation names.
	Operations []string
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a Dispatcher with the given configuration.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Executor == nil {
		return nil, errors.New("dispatch: executor is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ops := make(map[string]struct{}, len(cfg.Operations))
	for _, op := range cfg.Operations {
		ops[op] = struct{}{}
	}

	return &Dispatcher{
		exec:       cfg.Executor,
		budget:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		capacity:   int64(cfg.MaxConcurrent),
		timeout:    cfg.Timeout,
		operations: ops,
		logger:     cfg.Logger.With("component", "dispatcher"),
	}, nil
}

// Operations returns the registered operation names.
func (d *Dispatcher) Operations() []string {
	ops := make([]string, 0, len(d.operations))
	for op := range d.operations {
		ops = append(ops, op)
	}
	return ops
}

// Status reports the dispatcher's current admission state.
type Status struct {
	Capacity int64 `json:"capacity"`
	InFlight int64 `json:"in_flight"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
}

// Status returns current admission counters.
func (d *Dispatcher) Status() Status {
	return Status{
		Capacity: d.capacity,
		InFlight: d.inFlight.current.Load(),
		Acquired: d.inFlight.acquired.Load(),
		Released: d.inFlight.released.Load(),
	}
}

// Submit runs one operation through admission, the backend call, and
// outcome classification. It never returns an error: every outcome,
// including a panic in the backend client, becomes an envelope. The
// envelope always carries the logId established at admission.
func (d *Dispatcher) Submit(ctx context.Context, operation string, body json.RawMessage) (resp envelope.Response) {
	if _, ok := d.operations[operation]; !ok {
		return envelope.NewError(http.StatusNotFound, fmt.Sprintf("Unknown operation %q", operation), "")
	}

	payload, logID := d.stampLogID(operation, body)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during dispatch",
				"operation", operation, "logId", logID, "panic", r)
			resp = envelope.NewError(http.StatusInternalServerError, "Internal server error", logID)
		}
	}()

	d.logger.Info("processing request", "operation", operation, "logId", logID)

	// Admission. A caller whose own deadline lapses while waiting
	// abandons the wait without ever holding a slot.
	if err := d.budget.Acquire(ctx, 1); err != nil {
		d.logger.Warn("admission abandoned",
			"operation", operation, "logId", logID, "error", err)
		return envelope.NewError(http.StatusGatewayTimeout, "Gateway timeout", logID)
	}
	d.inFlight.acquired.Add(1)
	d.inFlight.current.Add(1)
	defer func() {
		d.inFlight.current.Add(-1)
		d.inFlight.released.Add(1)
		d.budget.Release(1)
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.exec.Invoke(callCtx, operation, payload)
	if err != nil {
		return d.classify(operation, logID, err)
	}

	// The backend is authoritative for domain-level failures; its code
	// and message pass through unchanged.
	if !out.OK() {
		d.logger.Warn("backend returned error",
			"operation", operation, "logId", logID,
			"errorCode", out.ErrorCode, "errorMsg", out.ErrorMsg)
		return envelope.NewError(out.ErrorCode, out.ErrorMsg, logID)
	}

	d.logger.Info("completed request", "operation", operation, "logId", logID)

	resp = *out
	resp.LogID = logID
	return resp
}

// stampLogID establishes the request's logId: a caller-supplied value
// wins and is logged as a warning, otherwise a fresh one is generated.
// The returned payload has the logId written back so the backend can
// correlate its own logs.
func (d *Dispatcher) stampLogID(operation string, body json.RawMessage) (json.RawMessage, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		fields = map[string]json.RawMessage{}
	}

	logID := ""
	if raw, ok := fields["logId"]; ok {
		if err := json.Unmarshal(raw, &logID); err == nil && logID != "" {
			d.logger.Warn("duplicate logId field in request",
				"operation", operation, "logId", logID)
		}
	}
	if logID == "" {
		logID = envelope.NewLogID()
	}

	stamped, err := json.Marshal(logID)
	if err == nil {
		fields["logId"] = stamped
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return body, logID
	}
	return payload, logID
}

// classify maps backend call failures onto the envelope taxonomy.
// Timeouts and cancellations (local deadline or backend-reported)
// are 504; everything else is a 500 whose detail is logged, not
// echoed.
func (d *Dispatcher) classify(operation, logID string, err error) envelope.Response {
	if errors.Is(err, executor.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		d.logger.Warn("timeout processing request",
			"operation", operation, "logId", logID)
		return envelope.NewError(http.StatusGatewayTimeout, "Gateway timeout", logID)
	}

	var terr *executor.TransportError
	if errors.As(err, &terr) {
		d.logger.Error("backend transport error",
			"operation", operation, "logId", logID, "error", terr)
	} else {
		d.logger.Error("unexpected error processing request",
			"operation", operation, "logId", logID, "error", err)
	}
	return envelope.NewError(http.StatusInternalServerError, "Internal server error", logID)
}
