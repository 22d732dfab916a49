package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

func TestRelevance(t *testing.T) {
	t.Parallel()

	c := domain.Candidate{
		Source:  domain.SourceTypeCrossRef,
		Title:   "Deep Learning for X",
		Authors: []string{"Alice Smith", "Bob Jones"},
	}

	t.Run("exact title and authors", func(t *testing.T) {
		got := Relevance(c, "deep learning for x", []string{"A. Smith", "B. Jones"}, CrossRefWeights)
		assert.InDelta(t, 1.0, got, 1e-9)
	})

	t.Run("author term is zero without search authors", func(t *testing.T) {
		got := Relevance(c, "Deep Learning for X", nil, CrossRefWeights)
		assert.InDelta(t, 0.7, got, 1e-9)
	})

	t.Run("arxiv weights title higher", func(t *testing.T) {
		got := Relevance(c, "Deep Learning for X", []string{"Z. Nobody"}, ArXivWeights)
		assert.InDelta(t, 0.8, got, 1e-9)
	})

	t.Run("citation bonus only where enabled", func(t *testing.T) {
		cited := c
		cited.CitationCount = 50
		withBonus := Relevance(cited, "Deep Learning for X", nil, CrossRefWeights)
		withoutBonus := Relevance(cited, "Deep Learning for X", nil, PubMedWeights)
		assert.InDelta(t, 0.7+math.Log(50)/100, withBonus, 1e-9)
		assert.InDelta(t, 0.7, withoutBonus, 1e-9)
	})

	t.Run("clamped to one", func(t *testing.T) {
		cited := c
		cited.CitationCount = 100000
		got := Relevance(cited, "Deep Learning for X", []string{"A. Smith"}, CrossRefWeights)
		assert.Equal(t, 1.0, got)
	})
}

func TestRelevance_Bounds(t *testing.T) {
	t.Parallel()

	titles := []string{"", "a", "Deep Learning for X", "Completely unrelated astronomy survey of galaxies"}
	authorSets := [][]string{nil, {"A. Smith"}, {"A. Smith", "B. Jones"}, {"Q. Unknown"}}
	citations := []int{0, 5, 11, 1000, 1 << 30}

	for _, source := range domain.AllSourceTypes {
		w := WeightsFor(source)
		for _, title := range titles {
			for _, authors := range authorSets {
				for _, cc := range citations {
					c := domain.Candidate{Source: source, Title: "Deep Learning for X", Authors: []string{"Alice Smith"}, CitationCount: cc}
					got := Relevance(c, title, authors, w)
					assert.GreaterOrEqual(t, got, 0.0)
					assert.LessOrEqual(t, got, 1.0)
				}
			}
		}
	}
}

func TestCitationBonus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, CitationBonus(0))
	assert.Equal(t, 0.0, CitationBonus(10))
	assert.InDelta(t, math.Log(11)/100, CitationBonus(11), 1e-12)
	assert.Equal(t, 0.05, CitationBonus(1_000_000))
}

func TestAuthorYear(t *testing.T) {
	t.Parallel()

	c := domain.Candidate{Authors: []string{"Jane Doe"}, Year: 2019, Venue: "Nature"}

	t.Run("all components max out at one", func(t *testing.T) {
		assert.InDelta(t, 1.0, AuthorYear(c, []string{"J. Doe"}, 2019), 1e-9)
	})

	t.Run("year within one", func(t *testing.T) {
		assert.InDelta(t, 0.8, AuthorYear(c, []string{"J. Doe"}, 2020), 1e-9)
	})

	t.Run("year too far", func(t *testing.T) {
		assert.InDelta(t, 0.5, AuthorYear(c, []string{"J. Doe"}, 2015), 1e-9)
	})

	t.Run("no venue no author", func(t *testing.T) {
		bare := domain.Candidate{Authors: []string{"Someone Else"}, Year: 2019}
		assert.InDelta(t, 0.5, AuthorYear(bare, []string{"J. Doe"}, 2019), 1e-9)
	})

	t.Run("unknown candidate year", func(t *testing.T) {
		undated := domain.Candidate{Authors: []string{"Jane Doe"}}
		assert.InDelta(t, 0.4, AuthorYear(undated, []string{"J. Doe"}, 2019), 1e-9)
	})
}

func TestWeightsFor(t *testing.T) {
	for _, source := range domain.AllSourceTypes {
		w := WeightsFor(source)
		assert.InDelta(t, 1.0, w.Title+w.Authors, 1e-9, source)
		assert.GreaterOrEqual(t, w.Title, 0.7, source)
		assert.LessOrEqual(t, w.Title, 0.8, source)
	}
	assert.Equal(t, 0.7, WeightsFor(domain.SourceTypeCrossRef).Title)
}
