package textdiff

// Edit describes a single span replacement: delete DeleteCount runes
// starting at Pos, then insert InsertText at that same position.
type Edit struct {
	Pos         int
	DeleteCount int
	InsertText  string
}

// ComputeTextEdits returns the edits to turn oldText into newText. The
// result is at most one edit: peervault's documents are small enough
// (notes, not codebases) that a common-prefix/suffix trim already finds a
// minimal single-span diff in practice, and a single span is all
// pkg/document's RGA-style text container needs to translate into
// per-character ops.
func ComputeTextEdits(oldText, newText string) []Edit {
	if oldText == newText {
		return nil
	}
	if oldText == "" {
		return []Edit{{Pos: 0, DeleteCount: 0, InsertText: newText}}
	}
	if newText == "" {
		return []Edit{{Pos: 0, DeleteCount: len([]rune(oldText)), InsertText: ""}}
	}

	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	prefix := commonPrefixLen(oldRunes, newRunes)

	// The suffix can't be allowed to eat back into the prefix: cap it so
	// the scan never crosses the shorter of the two remaining tails.
	maxSuffix := min(len(oldRunes)-prefix, len(newRunes)-prefix)
	suffix := commonSuffixLen(oldRunes, newRunes, maxSuffix)

	delCount := len(oldRunes) - prefix - suffix
	insText := string(newRunes[prefix : len(newRunes)-suffix])

	if delCount == 0 && insText == "" {
		return nil
	}
	return []Edit{{Pos: prefix, DeleteCount: delCount, InsertText: insText}}
}

// ApplyTextEdits applies edits (assumed sorted by Pos ascending, as
// ComputeTextEdits and MergeAdjacentEdits both produce) to oldText,
// working in descending position order so earlier edits' positions stay
// valid as later ones are applied.
func ApplyTextEdits(oldText string, edits []Edit) string {
	runes := []rune(oldText)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		insert := []rune(e.InsertText)
		head := append([]rune{}, runes[:e.Pos]...)
		tail := append([]rune{}, runes[e.Pos+e.DeleteCount:]...)
		head = append(head, insert...)
		runes = append(head, tail...)
	}
	return string(runes)
}

// MergeAdjacentEdits coalesces edits whose spans touch or overlap into a
// single edit. Edits must already be sorted by Pos.
func MergeAdjacentEdits(edits []Edit) []Edit {
	if len(edits) <= 1 {
		return edits
	}
	merged := []Edit{edits[0]}
	for _, e := range edits[1:] {
		last := &merged[len(merged)-1]
		lastEnd := last.Pos + last.DeleteCount
		if e.Pos <= lastEnd {
			// Overlapping or touching: extend the deletion span to cover
			// both, concatenate the insertions in order.
			overhang := e.Pos + e.DeleteCount - lastEnd
			if overhang > 0 {
				last.DeleteCount += overhang
			}
			last.InsertText += e.InsertText
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

func commonPrefixLen(a, b []rune) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []rune, maxLen int) int {
	i := 0
	for i < maxLen && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
