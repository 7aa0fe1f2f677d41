package endpoints

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagegate/pagegate/internal/api"
	"github.com/pagegate/pagegate/internal/envelope"
	"github.com/pagegate/pagegate/internal/restructure"
	"github.com/pagegate/pagegate/internal/svcctx"
)

// RestructureRequest is the body for POST /restructure-pages. Option
// fields are pointers so absent and false are distinguishable; absent
// falls back to the documented default.
type RestructureRequest struct {
	LogID            string                   `json:"logId,omitempty"`
	Pages            []restructure.PageResult `json:"pages"`
	MergeTables      *bool                    `json:"mergeTables,omitempty"`
	RelevelTitles    *bool                    `json:"relevelTitles,omitempty"`
	ConcatenatePages *bool                    `json:"concatenatePages,omitempty"`
}

// Options resolves the request's toggles against the defaults.
func (req *RestructureRequest) Options() restructure.Options {
	opts := restructure.DefaultOptions()
	if req.MergeTables != nil {
		opts.MergeTables = *req.MergeTables
	}
	if req.RelevelTitles != nil {
		opts.RelevelTitles = *req.RelevelTitles
	}
	if req.ConcatenatePages != nil {
		opts.ConcatenatePages = *req.ConcatenatePages
	}
	return opts
}

// RestructureResult is the success payload of POST /restructure-pages.
type RestructureResult struct {
	LayoutParsingResult LayoutParsingResult `json:"layoutParsingResult"`
}

// LayoutParsingResult carries the merged document in the same shape the
// per-page results use, so downstream consumers need no second decoder.
type LayoutParsingResult struct {
	PrunedResult MergedPrunedResult   `json:"prunedResult"`
	Markdown     restructure.Markdown `json:"markdown"`
}

// MergedPrunedResult wraps the merged block sequence.
type MergedPrunedResult struct {
	ParsingBlocks []restructure.Block `json:"parsingBlocks"`
}

// RestructureEndpoint handles POST /restructure-pages. The merge runs
// in-process; it never passes the dispatcher's admission budget.
type RestructureEndpoint struct{}

func (e *RestructureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/restructure-pages", e.handler
}

func (e *RestructureEndpoint) RequiresInit() bool { return true }

func (e *RestructureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	raw, doc, ok := decodeRequestBody(w, r)
	if !ok {
		return
	}

	if err := restructureSchema.Validate(doc); err != nil {
		writeEnvelope(w, envelope.NewError(http.StatusUnprocessableEntity, validationMessage(err), ""))
		return
	}

	var req RestructureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeEnvelope(w, envelope.NewError(http.StatusUnprocessableEntity, validationMessage(err), ""))
		return
	}

	logger := svcctx.LoggerFrom(r.Context())
	logID := req.LogID
	if logID != "" {
		logger.Warn("duplicate logId field in restructure request", "logId", logID)
	} else {
		logID = envelope.NewLogID()
	}

	logger.Info("processing restructure-pages request", "logId", logID, "pages", len(req.Pages))

	merged := svcctx.RestructurerFrom(r.Context()).Merge(req.Pages, req.Options())

	result, err := json.Marshal(RestructureResult{
		LayoutParsingResult: LayoutParsingResult{
			PrunedResult: MergedPrunedResult{ParsingBlocks: merged.Blocks},
			Markdown:     merged.Markdown,
		},
	})
	if err != nil {
		logger.Error("failed to encode restructure result", "logId", logID, "error", err)
		writeEnvelope(w, envelope.NewError(http.StatusInternalServerError, "Internal server error", logID))
		return
	}

	logger.Info("completed restructure-pages request", "logId", logID)
	writeEnvelope(w, envelope.NewSuccess(result, logID))
}

func (e *RestructureEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "restructure <pages.json>",
		Short: "Merge per-page parsing results into one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			resp, err := client.Post(cmd.Context(), "/restructure-pages", body)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
