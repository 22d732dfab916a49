package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(title string, score float64, citations int) Candidate {
	return Candidate{Title: title, CitationCount: citations}.WithRelevance(score, QueryKindTitle)
}

func TestSortByRelevance(t *testing.T) {
	cs := []Candidate{
		scored("low", 0.31, 500),
		scored("tie-few", 0.8, 3),
		scored("high", 0.95, 0),
		scored("tie-many", 0.8, 40),
	}

	SortByRelevance(cs)

	require.Len(t, cs, 4)
	assert.Equal(t, []string{"high", "tie-many", "tie-few", "low"}, titles(cs))
	for i := 1; i < len(cs); i++ {
		prev, cur := cs[i-1], cs[i]
		assert.GreaterOrEqual(t, prev.Relevance(), cur.Relevance())
		if prev.Relevance() == cur.Relevance() {
			assert.GreaterOrEqual(t, prev.CitationCount, cur.CitationCount)
		}
	}
}

func TestSortByGeneration(t *testing.T) {
	cs := []Candidate{
		Candidate{Title: "b", CitationCount: 1}.WithGeneration(0.2),
		Candidate{Title: "a", CitationCount: 9}.WithGeneration(0.2),
		Candidate{Title: "c"}.WithGeneration(0.7),
	}

	SortByGeneration(cs)

	assert.Equal(t, []string{"c", "a", "b"}, titles(cs))
}

func TestTruncate(t *testing.T) {
	cs := []Candidate{{Title: "1"}, {Title: "2"}, {Title: "3"}}

	assert.Len(t, Truncate(cs, 2), 2)
	assert.Len(t, Truncate(cs, 5), 3)
	assert.NotNil(t, Truncate(cs, 0))
	assert.Empty(t, Truncate(cs, 0))
}

func titles(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Title
	}
	return out
}
