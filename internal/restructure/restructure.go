// Package restructure assembles per-page inference outputs into one
// coherent document: tables that span page breaks are merged and heading
// levels are recomputed against the whole document instead of per page.
// Merge is pure: it never mutates its input and holds no shared state.
package restructure

import (
	"fmt"
	"log/slog"
)

// Block labels produced by the layout-parsing backend. Only the ones the
// merge logic inspects are named here; every other label passes through
// untouched.
const (
	LabelDocTitle     = "doc_title"
	LabelSectionTitle = "paragraph_title"
	LabelTable        = "table"
)

// Block is one parsed content unit of a document page. Ordering within a
// page is reading order.
type Block struct {
	Content   string `json:"content"`
	Label     string `json:"blockLabel"`
	PageIndex int    `json:"pageIndex"`
	// LevelHint is the heading's hierarchical level, 1 being the
	// outermost. Zero for non-headings and unassigned headings.
	LevelHint int `json:"levelHint,omitempty"`
	// Bbox is [x1, y1, x2, y2] in page coordinates.
	Bbox []float64 `json:"blockBbox,omitempty"`
	// TableContinuation marks a table block that the backend's layout
	// analysis identified as the continuation of a table ending on the
	// previous page. Opaque to this package beyond its boolean value.
	TableContinuation bool `json:"tableContinuation,omitempty"`
}

// Region is one layout-detection region. The cross-page pool of regions
// feeds title releveling.
type Region struct {
	Label string    `json:"label"`
	Bbox  []float64 `json:"bbox,omitempty"`
	Score float64   `json:"score,omitempty"`
}

// PrunedResult is the parsed portion of one page's inference output.
type PrunedResult struct {
	ParsingBlocks []Block  `json:"parsingBlocks"`
	LayoutRegions []Region `json:"layoutRegions,omitempty"`
}

// PageResult is one page's full inference output as produced by the
// backend. Read-only to this package.
type PageResult struct {
	PrunedResult   *PrunedResult     `json:"prunedResult"`
	MarkdownImages map[string]string `json:"markdownImages,omitempty"`
}

// Options toggles the merge steps. Use DefaultOptions as the baseline.
type Options struct {
	MergeTables      bool
	RelevelTitles    bool
	ConcatenatePages bool
}

// DefaultOptions returns the option defaults: tables merged, titles
// releveled, no flattened markdown.
func DefaultOptions() Options {
	return Options{MergeTables: true, RelevelTitles: true}
}

// Markdown is the flattened text rendition of a merged document. Images
// is nil when the document carries none.
type Markdown struct {
	Text   string            `json:"text"`
	Images map[string]string `json:"images"`
}

// MergedDocument is the cross-page document produced by Merge. It is a
// fresh value owned by the caller, never a view into any PageResult.
type MergedDocument struct {
	Blocks   []Block  `json:"parsingBlocks"`
	Markdown Markdown `json:"markdown"`
}

// Restructurer merges per-page results. Safe for concurrent use; every
// call operates on its own input and allocates its own output.
type Restructurer struct {
	logger *slog.Logger
}

// New creates a Restructurer logging through the given logger.
func New(logger *slog.Logger) *Restructurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Restructurer{logger: logger.With("component", "restructurer")}
}

// Merge turns an ordered list of per-page results into one document.
//
// A page missing its prunedResult degrades to an empty block list with a
// warning; the merge itself never fails.
func (r *Restructurer) Merge(pages []PageResult, opts Options) MergedDocument {
	blocksByPage := make([][]Block, len(pages))
	var regions []Region
	images := map[string]string{}

	for idx, page := range pages {
		if page.PrunedResult == nil {
			r.logger.Warn("page missing prunedResult, treating as empty", "pageIndex", idx)
			blocksByPage[idx] = nil
		} else {
			blocksByPage[idx] = copyBlocks(page.PrunedResult.ParsingBlocks, idx)
			regions = append(regions, page.PrunedResult.LayoutRegions...)
		}

		for key, ref := range page.MarkdownImages {
			images[fmt.Sprintf("page%d_%s", idx, key)] = ref
		}
	}

	if opts.MergeTables {
		mergeTablesAcrossPages(blocksByPage)
	}
	if opts.RelevelTitles {
		assignTitleLevels(blocksByPage, regions)
	}

	var blocks []Block
	for _, pageBlocks := range blocksByPage {
		blocks = append(blocks, pageBlocks...)
	}
	if blocks == nil {
		blocks = []Block{}
	}

	doc := MergedDocument{Blocks: blocks}
	if opts.ConcatenatePages {
		doc.Markdown.Text = renderMarkdown(blocks)
		if len(images) > 0 {
			doc.Markdown.Images = images
		}
	}
	return doc
}

// copyBlocks deep-copies one page's blocks and stamps their page index.
func copyBlocks(src []Block, pageIndex int) []Block {
	out := make([]Block, len(src))
	for i, b := range src {
		b.PageIndex = pageIndex
		if b.Bbox != nil {
			b.Bbox = append([]float64(nil), b.Bbox...)
		}
		out[i] = b
	}
	return out
}

// renderMarkdown joins non-empty block contents with blank lines.
func renderMarkdown(blocks []Block) string {
	text := ""
	for _, b := range blocks {
		if b.Content == "" {
			continue
		}
		if text != "" {
			text += "\n\n"
		}
		text += b.Content
	}
	return text
}
