// Package svcctx provides service context for dependency injection via
// context. This package is separate from server to avoid import cycles
// with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/pagegate/pagegate/internal/dispatch"
	"github.com/pagegate/pagegate/internal/health"
	"github.com/pagegate/pagegate/internal/restructure"
)

// Services holds the core services that flow through request context.
// Endpoints extract what they need via the individual extractors.
type Services struct {
	Dispatcher   *dispatch.Dispatcher
	Monitor      *health.Monitor
	Restructurer *restructure.Restructurer
	Logger       *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DispatcherFrom extracts the dispatcher from context.
func DispatcherFrom(ctx context.Context) *dispatch.Dispatcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Dispatcher
	}
	return nil
}

// MonitorFrom extracts the health monitor from context.
func MonitorFrom(ctx context.Context) *health.Monitor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Monitor
	}
	return nil
}

// RestructurerFrom extracts the restructurer from context.
func RestructurerFrom(ctx context.Context) *restructure.Restructurer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Restructurer
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to the
// default logger so call sites never nil-check.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
