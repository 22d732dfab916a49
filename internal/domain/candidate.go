package domain

import "encoding/json"

// ExternalIDs holds the identifiers a provider reported for a work.
type ExternalIDs struct {
	DOI               string `json:"doi,omitempty"`
	PubMedID          string `json:"pubmed_id,omitempty"`
	ArXivID           string `json:"arxiv_id,omitempty"`
	OpenAlexID        string `json:"openalex_id,omitempty"`
	SemanticScholarID string `json:"semantic_scholar_id,omitempty"`
}

// Candidate is one scholarly work returned by a provider.
//
// Year is zero when the provider could not resolve it. RelevanceScore is set
// only by reference resolution and GenerationScore only by topic discovery.
// RawPayload keeps the provider record for provenance and is never scored.
type Candidate struct {
	Source          SourceType      `json:"source"`
	ExternalIDs     ExternalIDs     `json:"external_ids"`
	Title           string          `json:"title,omitempty"`
	Authors         []string        `json:"authors,omitempty"`
	Year            int             `json:"year,omitempty"`
	Venue           string          `json:"venue,omitempty"`
	Abstract        string          `json:"abstract,omitempty"`
	CitationCount   int             `json:"citation_count"`
	OpenAccess      bool            `json:"open_access,omitempty"`
	URL             string          `json:"url,omitempty"`
	MatchTier       QueryKind       `json:"match_tier,omitempty"`
	RelevanceScore  *float64        `json:"relevance_score,omitempty"`
	GenerationScore *float64        `json:"generation_score,omitempty"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`
}

// Relevance returns the relevance score, or 0 when unscored.
func (c Candidate) Relevance() float64 {
	if c.RelevanceScore == nil {
		return 0
	}
	return *c.RelevanceScore
}

// Generation returns the generation score, or 0 when unscored.
func (c Candidate) Generation() float64 {
	if c.GenerationScore == nil {
		return 0
	}
	return *c.GenerationScore
}

// WithRelevance returns a copy carrying the given relevance score and tier.
func (c Candidate) WithRelevance(score float64, tier QueryKind) Candidate {
	c.RelevanceScore = &score
	c.MatchTier = tier
	return c
}

// WithGeneration returns a copy carrying the given generation score.
func (c Candidate) WithGeneration(score float64) Candidate {
	c.GenerationScore = &score
	c.MatchTier = QueryKindTopic
	return c
}

// HasContent reports whether the candidate has a title or an abstract.
func (c Candidate) HasContent() bool {
	return c.Title != "" || c.Abstract != ""
}
