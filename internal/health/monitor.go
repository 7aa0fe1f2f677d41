// Package health probes the inference backend's liveness and readiness.
// It feeds the gateway's external status surface only; nothing else in
// the gateway consults it.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagegate/pagegate/internal/executor"
)

// DefaultCheckTimeout bounds each individual readiness probe.
const DefaultCheckTimeout = 5 * time.Second

// State is the overall readiness verdict.
type State string

const (
	Ready    State = "ready"
	NotReady State = "not_ready"
	TimedOut State = "timed_out"
)

// ReadyStatus is the outcome of a readiness check. Reason is safe to
// surface to callers; Detail carries the underlying cause for logs.
type ReadyStatus struct {
	State  State
	Reason string
	Detail error
}

// IsReady reports whether everything required is serving.
func (s ReadyStatus) IsReady() bool { return s.State == Ready }

// Monitor checks the backend server and a fixed set of required models.
type Monitor struct {
	checker executor.HealthChecker
	models  []string
	timeout time.Duration
	logger  *slog.Logger
}

// Config configures a Monitor.
type Config struct {
	// Checker probes the backend.
	Checker executor.HealthChecker
	// Models are the required model names; all must be ready.
	Models []string
	// Timeout bounds each individual probe (default 5s).
	Timeout time.Duration
	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCheckTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		checker: cfg.Checker,
		models:  cfg.Models,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With("component", "health"),
	}
}

// CheckLive reports process liveness. If this code runs at all the
// process is alive, so it is constant.
func (m *Monitor) CheckLive() bool { return true }

// CheckReady verifies the backend server and every required model, each
// probe bounded by its own timeout. The first failure short-circuits
// with its reason.
func (m *Monitor) CheckReady(ctx context.Context) ReadyStatus {
	ready, err := m.probe(ctx, func(ctx context.Context) (bool, error) {
		return m.checker.ServerReady(ctx)
	})
	if err != nil {
		return m.failure("Inference server unavailable", err)
	}
	if !ready {
		return ReadyStatus{State: NotReady, Reason: "Inference server not ready"}
	}

	for _, model := range m.models {
		ready, err := m.probe(ctx, func(ctx context.Context) (bool, error) {
			return m.checker.ModelReady(ctx, model)
		})
		if err != nil {
			return m.failure(fmt.Sprintf("Model %q unavailable", model), err)
		}
		if !ready {
			return ReadyStatus{State: NotReady, Reason: fmt.Sprintf("Model %q not ready", model)}
		}
	}

	return ReadyStatus{State: Ready, Reason: "Ready"}
}

func (m *Monitor) probe(ctx context.Context, fn func(context.Context) (bool, error)) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return fn(probeCtx)
}

func (m *Monitor) failure(reason string, err error) ReadyStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("readiness probe timed out", "timeout", m.timeout, "error", err)
		return ReadyStatus{State: TimedOut, Reason: "Health check timed out", Detail: err}
	}
	m.logger.Error("readiness probe failed", "reason", reason, "error", err)
	return ReadyStatus{State: NotReady, Reason: reason, Detail: err}
}
