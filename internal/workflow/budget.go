// ABOUTME: Character budgets keeping each step's input bounded

package workflow

import "unicode/utf8"

const truncationMarker = " …[truncated]"

// clip shortens s to at most budget runes, marking the cut. A non-positive budget disables clipping.
func clip(s string, budget int) (string, bool) {
	if budget <= 0 || utf8.RuneCountInString(s) <= budget {
		return s, false
	}
	marker := []rune(truncationMarker)
	if budget <= len(marker) {
		return string([]rune(s)[:budget]), true
	}
	return string([]rune(s)[:budget-len(marker)]) + truncationMarker, true
}

// clipResults fits results into a shared budget, giving each result an equal share
// of whatever the earlier ones did not use.
func clipResults(results []ToolResult, budget int) []ToolResult {
	out := make([]ToolResult, len(results))
	copy(out, results)
	if budget <= 0 {
		return out
	}

	remaining := budget
	for i := range out {
		share := remaining / (len(out) - i)
		text, cut := clipShare(out[i].Output, share)
		out[i].Output = text
		out[i].Truncated = out[i].Truncated || cut
		remaining -= utf8.RuneCountInString(text)
	}
	return out
}

// clipShare is clip for a slice of a shared budget: an exhausted share
// drops the text entirely instead of disabling the cut.
func clipShare(s string, share int) (string, bool) {
	if share <= 0 {
		return "", s != ""
	}
	return clip(s, share)
}

// clipFacts keeps whole facts, in order, until the budget is spent.
func clipFacts(facts []string, budget int) []string {
	if budget <= 0 {
		return facts
	}
	var out []string
	used := 0
	for _, f := range facts {
		n := utf8.RuneCountInString(f)
		if used+n > budget {
			break
		}
		out = append(out, f)
		used += n
	}
	return out
}
