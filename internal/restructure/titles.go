package restructure

import "sort"

// levelTolerance is the relative height difference under which two
// headings are considered the same hierarchical level. Font rendering
// and detection jitter keep same-level headings within a few percent.
const levelTolerance = 0.1

// assignTitleLevels recomputes every heading block's level against the
// whole document. Per-page level hints are unreliable because the
// backend derives its size thresholds page by page, so heading heights
// are pooled across all pages (blocks plus the layout-region pool) and
// clustered; taller clusters get smaller level numbers.
//
// Document titles are pinned to level 1 and push section titles down by
// one. Headings without usable geometry keep whatever hint they carry.
// The pass is idempotent: it reads only geometry, which it never writes.
func assignTitleLevels(blocksByPage [][]Block, regions []Region) {
	var heights []float64
	hasDocTitle := false

	for _, page := range blocksByPage {
		for _, b := range page {
			switch b.Label {
			case LabelDocTitle:
				hasDocTitle = true
			case LabelSectionTitle:
				if h := bboxHeight(b.Bbox); h > 0 {
					heights = append(heights, h)
				}
			}
		}
	}
	for _, reg := range regions {
		if reg.Label == LabelSectionTitle {
			if h := bboxHeight(reg.Bbox); h > 0 {
				heights = append(heights, h)
			}
		}
	}

	clusters := clusterHeights(heights)
	base := 1
	if hasDocTitle {
		base = 2
	}

	for _, page := range blocksByPage {
		for i := range page {
			b := &page[i]
			switch b.Label {
			case LabelDocTitle:
				b.LevelHint = 1
			case LabelSectionTitle:
				h := bboxHeight(b.Bbox)
				if h <= 0 {
					continue
				}
				b.LevelHint = base + clusterIndex(clusters, h)
			}
		}
	}
}

func bboxHeight(bbox []float64) float64 {
	if len(bbox) < 4 {
		return 0
	}
	return bbox[3] - bbox[1]
}

// clusterHeights groups heading heights into descending size bands. Each
// cluster is represented by its tallest member; a height more than
// levelTolerance below the representative opens the next cluster.
func clusterHeights(heights []float64) []float64 {
	if len(heights) == 0 {
		return nil
	}

	sorted := append([]float64(nil), heights...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	clusters := []float64{sorted[0]}
	for _, h := range sorted[1:] {
		rep := clusters[len(clusters)-1]
		if h < rep*(1-levelTolerance) {
			clusters = append(clusters, h)
		}
	}
	return clusters
}

// clusterIndex returns the band a height falls into, 0 being the
// tallest. Heights between bands attach to the band above them.
func clusterIndex(clusters []float64, h float64) int {
	for i, rep := range clusters {
		if h >= rep*(1-levelTolerance) {
			return i
		}
	}
	return len(clusters) - 1
}
