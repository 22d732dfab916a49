// Package openalex provides a client for the OpenAlex API.
//
// OpenAlex is a free, open catalog of scholarly works, authors, venues,
// institutions and topics. The client resolves works by DOI or PubMed ID and
// searches them by title, author, year and free-text topic.
//
// API Documentation: https://docs.openalex.org/
package openalex

import (
	"encoding/json"
	"strings"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// SearchResponse is one page of the works endpoint. Results stay raw so that
// each work is decoded, and can fail, on its own.
type SearchResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []json.RawMessage `json:"results"`
}

// Work holds the subset of an OpenAlex work the client maps to a candidate.
type Work struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	DisplayName     string `json:"display_name"`
	PublicationYear int    `json:"publication_year"`
	CitedByCount    int    `json:"cited_by_count"`

	IDs struct {
		OpenAlex string `json:"openalex"`
		DOI      string `json:"doi"`
		PMID     string `json:"pmid"`
	} `json:"ids"`

	OpenAccess *struct {
		IsOA bool `json:"is_oa"`
	} `json:"open_access"`

	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
		RawAuthorName string `json:"raw_author_name"`
	} `json:"authorships"`

	PrimaryLocation *struct {
		LandingURL string `json:"landing_page_url"`
		Source     *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`

	Topics   []Topic `json:"topics"`
	Concepts []named `json:"concepts"`

	// AbstractInvertedIndex maps each word to the positions it occupies.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// Topic is an OpenAlex topic with its place in the field hierarchy.
type Topic struct {
	DisplayName string `json:"display_name"`
	Subfield    named  `json:"subfield"`
	Field       named  `json:"field"`
	Domain      named  `json:"domain"`
}

type named struct {
	DisplayName string `json:"display_name"`
}

// ExternalIDs prefers the top-level id and doi over the ids block.
func (w Work) ExternalIDs() domain.ExternalIDs {
	ids := domain.ExternalIDs{
		OpenAlexID: domain.NormalizeOpenAlexID(w.ID),
		DOI:        domain.NormalizeDOI(w.DOI),
		PubMedID:   domain.NormalizePMID(w.IDs.PMID),
	}
	if ids.OpenAlexID == "" {
		ids.OpenAlexID = domain.NormalizeOpenAlexID(w.IDs.OpenAlex)
	}
	if ids.DOI == "" {
		ids.DOI = domain.NormalizeDOI(w.IDs.DOI)
	}
	return ids
}

// DisplayTitle returns display_name, which is usually the cleaner of the two
// title fields.
func (w Work) DisplayTitle() string {
	if w.DisplayName != "" {
		return strings.TrimSpace(w.DisplayName)
	}
	return strings.TrimSpace(w.Title)
}

func (w Work) AuthorNames() []string {
	names := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		name := a.Author.DisplayName
		if name == "" {
			name = a.RawAuthorName
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// FieldNames lists every topic, subfield, field, domain and concept name the
// work is tagged with.
func (w Work) FieldNames() []string {
	var names []string
	for _, t := range w.Topics {
		names = append(names, t.DisplayName, t.Subfield.DisplayName, t.Field.DisplayName, t.Domain.DisplayName)
	}
	for _, c := range w.Concepts {
		names = append(names, c.DisplayName)
	}
	return names
}
