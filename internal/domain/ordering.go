package domain

import "sort"

// SortByRelevance orders candidates by relevance score, highest first. Equal
// scores fall back to citation count, highest first.
func SortByRelevance(cs []Candidate) {
	sortByScore(cs, Candidate.Relevance)
}

// SortByGeneration orders candidates by generation score with the same
// citation-count tie break as SortByRelevance.
func SortByGeneration(cs []Candidate) {
	sortByScore(cs, Candidate.Generation)
}

func sortByScore(cs []Candidate, score func(Candidate) float64) {
	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := score(cs[i]), score(cs[j])
		if si != sj {
			return si > sj
		}
		return cs[i].CitationCount > cs[j].CitationCount
	})
}

// Truncate returns at most n leading candidates. A non-positive n yields an
// empty, non-nil slice.
func Truncate(cs []Candidate, n int) []Candidate {
	if n <= 0 {
		return []Candidate{}
	}
	if len(cs) > n {
		return cs[:n]
	}
	return cs
}
