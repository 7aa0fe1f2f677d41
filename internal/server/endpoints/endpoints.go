// Package endpoints defines the gateway's HTTP surface. Each endpoint
// implements api.Endpoint, pairing its HTTP route with a CLI command.
package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/envelope"
)

// Config passes construction-time settings to the endpoint set.
type Config struct {
	// Operations are the backend operations to expose as POST routes.
	Operations []string
}

// All returns every endpoint the gateway serves.
func All(cfg Config) []api.Endpoint {
	eps := []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&RestructureEndpoint{},
	}
	for _, op := range cfg.Operations {
		eps = append(eps, NewInferEndpoint(op))
	}
	return eps
}

// writeEnvelope serializes an envelope with the HTTP status implied by
// its error code: 200 on success, the code itself when it is a valid
// HTTP status, 500 otherwise.
func writeEnvelope(w http.ResponseWriter, resp envelope.Response) {
	status := http.StatusOK
	if resp.ErrorCode != 0 {
		status = http.StatusInternalServerError
		if resp.ErrorCode >= 400 && resp.ErrorCode <= 599 {
			status = resp.ErrorCode
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
