package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/envelope"
	"github.com/pagegate/pagegate/internal/svcctx"
)

// maxRequestBytes caps inbound request bodies. Base64-encoded documents
// are large; half a gigabyte accommodates them without letting a stream
// run away.
const maxRequestBytes = 512 << 20

// InferEndpoint handles POST /{operation}, forwarding the body to the
// backend through the dispatcher's admission budget.
type InferEndpoint struct {
	operation string
}

// NewInferEndpoint creates the endpoint for one backend operation.
func NewInferEndpoint(operation string) *InferEndpoint {
	return &InferEndpoint{operation: operation}
}

func (e *InferEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/" + e.operation, e.handler
}

func (e *InferEndpoint) RequiresInit() bool { return true }

func (e *InferEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	body, doc, ok := decodeRequestBody(w, r)
	if !ok {
		return
	}

	if err := inferSchema.Validate(doc); err != nil {
		writeEnvelope(w, envelope.NewError(http.StatusUnprocessableEntity, validationMessage(err), ""))
		return
	}

	d := svcctx.DispatcherFrom(r.Context())
	writeEnvelope(w, d.Submit(r.Context(), e.operation, body))
}

func (e *InferEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   e.operation + " <request.json>",
		Short: fmt.Sprintf("Invoke the %s model", e.operation),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			resp, err := client.Post(cmd.Context(), "/"+e.operation, body)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// decodeRequestBody reads and parses a JSON request body. On failure it
// writes the 400 envelope itself and reports !ok.
func decodeRequestBody(w http.ResponseWriter, r *http.Request) (body json.RawMessage, doc any, ok bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeEnvelope(w, envelope.NewError(http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err), ""))
		return nil, nil, false
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		writeEnvelope(w, envelope.NewError(http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err), ""))
		return nil, nil, false
	}
	return raw, doc, true
}
