package restructure

import "testing"

func heading(content string, height float64) Block {
	return Block{Content: content, Label: LabelSectionTitle, Bbox: []float64{0, 100, 500, 100 + height}}
}

func levels(doc MergedDocument) map[string]int {
	out := map[string]int{}
	for _, b := range doc.Blocks {
		if b.Label == LabelDocTitle || b.Label == LabelSectionTitle {
			out[b.Content] = b.LevelHint
		}
	}
	return out
}

func TestRelevel_GlobalHierarchy(t *testing.T) {
	// Page-local font thresholds would make "1.1" on page 0 and "2"
	// on page 1 ambiguous; pooling heights across pages resolves them.
	pages := []PageResult{
		page(
			heading("1", 30),
			heading("1.1", 20),
			text("body"),
		),
		page(
			heading("2", 30),
			heading("2.1", 20),
			heading("2.1.1", 14),
		),
	}

	doc := New(nil).Merge(pages, Options{RelevelTitles: true})

	want := map[string]int{"1": 1, "1.1": 2, "2": 1, "2.1": 2, "2.1.1": 3}
	got := levels(doc)
	for name, level := range want {
		if got[name] != level {
			t.Errorf("level(%q) = %d, want %d", name, got[name], level)
		}
	}
}

func TestRelevel_DocTitlePinnedToOne(t *testing.T) {
	pages := []PageResult{
		page(
			Block{Content: "Report", Label: LabelDocTitle, Bbox: []float64{0, 0, 500, 40}},
			heading("Intro", 30),
			heading("Background", 20),
		),
	}

	doc := New(nil).Merge(pages, Options{RelevelTitles: true})

	got := levels(doc)
	if got["Report"] != 1 {
		t.Errorf("doc title level = %d, want 1", got["Report"])
	}
	// Section titles start below the document title.
	if got["Intro"] != 2 || got["Background"] != 3 {
		t.Errorf("section levels = %v, want Intro=2 Background=3", got)
	}
}

func TestRelevel_Idempotent(t *testing.T) {
	pages := []PageResult{
		page(heading("A", 28), heading("A.1", 19)),
		page(heading("B", 27.5), heading("B.1.1", 12)),
	}

	r := New(nil)
	once := r.Merge(pages, Options{RelevelTitles: true})

	// Feed the releveled document back in as a single page.
	again := r.Merge([]PageResult{
		{PrunedResult: &PrunedResult{ParsingBlocks: once.Blocks}},
	}, Options{RelevelTitles: true})

	lhs, rhs := levels(once), levels(again)
	for name, level := range lhs {
		if rhs[name] != level {
			t.Errorf("level(%q) changed on re-application: %d -> %d", name, level, rhs[name])
		}
	}
}

func TestRelevel_JitterWithinTolerance(t *testing.T) {
	// Heights within ten percent of each other are the same level.
	pages := []PageResult{
		page(heading("A", 30), heading("B", 28.5)),
	}

	doc := New(nil).Merge(pages, Options{RelevelTitles: true})
	got := levels(doc)
	if got["A"] != got["B"] {
		t.Errorf("levels differ under jitter: A=%d B=%d", got["A"], got["B"])
	}
}

func TestRelevel_UsesRegionPool(t *testing.T) {
	// A lone page heading plus a taller heading region elsewhere in the
	// pool pushes the block down a level.
	pages := []PageResult{
		{PrunedResult: &PrunedResult{
			ParsingBlocks: []Block{heading("Sub", 18)},
			LayoutRegions: []Region{{Label: LabelSectionTitle, Bbox: []float64{0, 0, 500, 30}}},
		}},
	}

	doc := New(nil).Merge(pages, Options{RelevelTitles: true})
	if got := levels(doc)["Sub"]; got != 2 {
		t.Errorf("level(Sub) = %d, want 2 (region pool ignored)", got)
	}
}

func TestRelevel_NoGeometryKeepsHint(t *testing.T) {
	pages := []PageResult{
		page(Block{Content: "H", Label: LabelSectionTitle, LevelHint: 4}),
	}

	doc := New(nil).Merge(pages, Options{RelevelTitles: true})
	if got := levels(doc)["H"]; got != 4 {
		t.Errorf("level(H) = %d, want untouched 4", got)
	}
}

func TestRelevel_Disabled(t *testing.T) {
	pages := []PageResult{
		page(heading("A", 30)),
	}

	doc := New(nil).Merge(pages, Options{})
	if got := levels(doc)["A"]; got != 0 {
		t.Errorf("level(A) = %d, want 0 with RelevelTitles=false", got)
	}
}

func TestClusterHeights(t *testing.T) {
	tests := []struct {
		name    string
		heights []float64
		want    int
	}{
		{"empty", nil, 0},
		{"single", []float64{20}, 1},
		{"two_bands", []float64{30, 20, 29, 19.5}, 2},
		{"jitter_one_band", []float64{20, 19, 18.5}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clusterHeights(tt.heights); len(got) != tt.want {
				t.Errorf("clusterHeights(%v) = %v, want %d clusters", tt.heights, got, tt.want)
			}
		})
	}
}
