package textdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTextEditsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"identical", "hello", "hello"},
		{"empty to text", "", "hello world"},
		{"text to empty", "hello world", ""},
		{"append", "hello", "hello world"},
		{"prepend", "world", "hello world"},
		{"middle replace", "the quick fox", "the slow fox"},
		{"unicode", "café ☕", "café ☕☕"},
		{"total replace", "abc", "xyz"},
		{"both empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			edits := ComputeTextEdits(tc.old, tc.new)
			got := ApplyTextEdits(tc.old, edits)
			assert.Equal(t, tc.new, got)
		})
	}
}

func TestComputeTextEditsMinimal(t *testing.T) {
	edits := ComputeTextEdits("the quick brown fox", "the slow brown fox")
	require.Len(t, edits, 1)
	assert.Equal(t, "slow", edits[0].InsertText)
	assert.Equal(t, len("quick"), edits[0].DeleteCount)
	assert.Equal(t, len("the "), edits[0].Pos)
}

func TestMergeAdjacentEdits(t *testing.T) {
	edits := []Edit{
		{Pos: 0, DeleteCount: 2, InsertText: "AA"},
		{Pos: 2, DeleteCount: 2, InsertText: "BB"},
	}
	merged := MergeAdjacentEdits(edits)
	require.Len(t, merged, 1)
	assert.Equal(t, 0, merged[0].Pos)
	assert.Equal(t, 4, merged[0].DeleteCount)
	assert.Equal(t, "AABB", merged[0].InsertText)
}

func TestMergeAdjacentEditsNonOverlapping(t *testing.T) {
	edits := []Edit{
		{Pos: 0, DeleteCount: 1, InsertText: "A"},
		{Pos: 10, DeleteCount: 1, InsertText: "B"},
	}
	merged := MergeAdjacentEdits(edits)
	assert.Len(t, merged, 2)
}
