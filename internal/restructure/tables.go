package restructure

// mergeTablesAcrossPages splices table blocks that continue across page
// breaks. A table block at the start of page N flagged as a continuation
// is appended to the table block ending the nearest earlier non-empty
// page and removed from its own page. Chains spanning several pages fold
// into the first table of the chain.
//
// The continuation flag itself comes from the backend's layout analysis;
// this pass only checks structural plausibility before trusting it.
func mergeTablesAcrossPages(blocksByPage [][]Block) {
	for i := 1; i < len(blocksByPage); i++ {
		page := blocksByPage[i]
		if len(page) == 0 {
			continue
		}

		head := page[0]
		if head.Label != LabelTable || !head.TableContinuation {
			continue
		}

		prev := previousNonEmpty(blocksByPage, i)
		if prev < 0 {
			continue
		}
		tail := &blocksByPage[prev][len(blocksByPage[prev])-1]
		if tail.Label != LabelTable {
			continue
		}

		tail.Content = joinTableContent(tail.Content, head.Content)
		blocksByPage[i] = page[1:]
	}
}

func previousNonEmpty(blocksByPage [][]Block, i int) int {
	for j := i - 1; j >= 0; j-- {
		if len(blocksByPage[j]) > 0 {
			return j
		}
	}
	return -1
}

func joinTableContent(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
