package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/envelope"
	"github.com/pagegate/pagegate/internal/svcctx"
)

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler reports process liveness: responding at all means healthy,
// regardless of backend state.
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, envelope.Response{LogID: envelope.NewLogID(), ErrorMsg: "Healthy"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			resp, err := client.Get(cmd.Context(), "/health")
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReadyEndpoint handles GET /health/ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler reports backend readiness: the inference server and every
// required model must answer ready, otherwise 503 with the reason.
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	monitor := svcctx.MonitorFrom(r.Context())
	if monitor == nil {
		writeEnvelope(w, envelope.NewError(http.StatusServiceUnavailable, "Health monitor not initialized", ""))
		return
	}

	status := monitor.CheckReady(r.Context())
	if !status.IsReady() {
		writeEnvelope(w, envelope.NewError(http.StatusServiceUnavailable, status.Reason, ""))
		return
	}

	resp := envelope.Response{LogID: envelope.NewLogID(), ErrorMsg: "Ready"}
	writeEnvelope(w, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check backend readiness (server and required models)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			resp, err := client.Get(cmd.Context(), "/health/ready")
			if err != nil {
				return err
			}
			if err := api.Output(resp); err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("not ready: %s", resp.ErrorMsg)
			}
			return nil
		},
	}
}
