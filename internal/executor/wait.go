package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// WaitReady polls the backend's server readiness once a second until it
// reports ready or timeout elapses. Used at serve time so the gateway
// can optionally hold off accepting traffic while the backend warms up.
func WaitReady(ctx context.Context, hc HealthChecker, timeout time.Duration) error {
	return retry.Do(
		func() error {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			ready, err := hc.ServerReady(probeCtx)
			if err != nil {
				return err
			}
			if !ready {
				return fmt.Errorf("backend not ready")
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout.Seconds())),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.FixedDelay),
	)
}
