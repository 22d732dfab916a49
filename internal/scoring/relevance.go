// Package scoring ranks provider candidates. Reference resolution uses the
// relevance score (title similarity, author match, citation bonus) or, for
// references without a title, the additive author+year score. Topic discovery
// uses the generation score.
package scoring

import (
	"math"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/matching"
)

// Weights splits the relevance score between title similarity and author
// match. CitationBonus enables the citation-count bonus for providers that
// report citation counts.
type Weights struct {
	Title         float64
	Authors       float64
	CitationBonus bool
}

// Per-provider weighting. These values are empirical and kept as constants.
var (
	ArXivWeights           = Weights{Title: 0.8, Authors: 0.2}
	CrossRefWeights        = Weights{Title: 0.7, Authors: 0.3, CitationBonus: true}
	OpenAlexWeights        = Weights{Title: 0.7, Authors: 0.3, CitationBonus: true}
	PubMedWeights          = Weights{Title: 0.7, Authors: 0.3}
	SemanticScholarWeights = Weights{Title: 0.7, Authors: 0.3, CitationBonus: true}
)

const (
	// citationBonusFloor is the citation count a work must exceed to earn a bonus.
	citationBonusFloor = 10
	// maxCitationBonus caps the logarithmic citation bonus.
	maxCitationBonus = 0.05
)

// WeightsFor returns the weighting used for candidates from source.
func WeightsFor(source domain.SourceType) Weights {
	switch source {
	case domain.SourceTypeArXiv:
		return ArXivWeights
	case domain.SourceTypeCrossRef:
		return CrossRefWeights
	case domain.SourceTypeOpenAlex:
		return OpenAlexWeights
	case domain.SourceTypePubMed:
		return PubMedWeights
	case domain.SourceTypeSemanticScholar:
		return SemanticScholarWeights
	}
	return Weights{Title: 0.7, Authors: 0.3}
}

// Relevance scores a candidate against a searched title and author list.
// Passing no authors zeroes the author term. The result is clamped to [0, 1].
func Relevance(c domain.Candidate, title string, authors []string, w Weights) float64 {
	score := w.Title * matching.TitleSimilarity(c.Title, title)
	if len(authors) > 0 {
		score += w.Authors * matching.AuthorMatchScore(authors, c.Authors)
	}
	if w.CitationBonus {
		score += CitationBonus(c.CitationCount)
	}
	return clamp01(score)
}

// CitationBonus returns min(0.05, ln(count)/100) for counts above 10 and 0
// otherwise.
func CitationBonus(count int) float64 {
	if count <= citationBonusFloor {
		return 0
	}
	return math.Min(maxCitationBonus, math.Log(float64(count))/100)
}

// AuthorYear scores a candidate for the title-less author+year tier. The
// components are additive: 0.5 for an exact year (0.3 within one year), up to
// 0.4 for author match and 0.1 when a venue is present. The sum tops out at
// exactly 1.0 and is deliberately not renormalized.
func AuthorYear(c domain.Candidate, authors []string, year int) float64 {
	score := 0.0
	if c.Year > 0 && year > 0 {
		switch diff := c.Year - year; {
		case diff == 0:
			score += 0.5
		case diff == 1 || diff == -1:
			score += 0.3
		}
	}
	score += 0.4 * matching.AuthorMatchScore(authors, c.Authors)
	if c.Venue != "" {
		score += 0.1
	}
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
