package domain

import (
	"fmt"
	"strings"
)

// SourceType identifies the bibliographic provider that produced a candidate.
type SourceType string

const (
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeCrossRef        SourceType = "crossref"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
)

// AllSourceTypes lists every supported provider in registration order.
var AllSourceTypes = []SourceType{
	SourceTypeArXiv,
	SourceTypeCrossRef,
	SourceTypeOpenAlex,
	SourceTypePubMed,
	SourceTypeSemanticScholar,
}

// ParseSourceType resolves a provider tag, accepting a few common spellings.
func ParseSourceType(s string) (SourceType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "arxiv":
		return SourceTypeArXiv, nil
	case "crossref", "cross_ref":
		return SourceTypeCrossRef, nil
	case "openalex", "open_alex":
		return SourceTypeOpenAlex, nil
	case "pubmed", "pub_med":
		return SourceTypePubMed, nil
	case "semantic_scholar", "semanticscholar", "s2":
		return SourceTypeSemanticScholar, nil
	}
	return "", NewNotFoundError("provider", s)
}

// String implements fmt.Stringer.
func (s SourceType) String() string { return string(s) }

// IdentifierType names a persistent identifier scheme.
type IdentifierType string

const (
	IdentifierTypeDOI               IdentifierType = "doi"
	IdentifierTypeArXivID           IdentifierType = "arxiv_id"
	IdentifierTypePubMedID          IdentifierType = "pubmed_id"
	IdentifierTypeOpenAlexID        IdentifierType = "openalex_id"
	IdentifierTypeSemanticScholarID IdentifierType = "semantic_scholar_id"
)

// QueryKind classifies a provider query. It selects the cache TTL bucket and
// the scoring rule applied to the candidates the query returns.
type QueryKind string

const (
	QueryKindID          QueryKind = "id"
	QueryKindTitleAuthor QueryKind = "title_author"
	QueryKindTitle       QueryKind = "title"
	QueryKindAuthorYear  QueryKind = "author_year"
	QueryKindTopic       QueryKind = "topic"
	QueryKindCategory    QueryKind = "category"
	QueryKindRecent      QueryKind = "recent"
	QueryKindRelated     QueryKind = "related"
)

// Identifier is a typed identifier value.
type Identifier struct {
	Type  IdentifierType
	Value string
}

// String renders the identifier as "type:value".
func (i Identifier) String() string {
	return fmt.Sprintf("%s:%s", i.Type, i.Value)
}
