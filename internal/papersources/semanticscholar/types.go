// Package semanticscholar provides a client for the Semantic Scholar API.
//
// Besides the resolution and discovery searches, the client exposes the
// citation graph (citing and cited papers) and paper recommendations.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

import (
	"encoding/json"
	"strings"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

const paperPageURL = "https://www.semanticscholar.org/paper/"

// SearchResponse is a page of /paper/search. Papers stay raw so that each one
// is decoded, and can fail, on its own.
type SearchResponse struct {
	Total int               `json:"total"`
	Data  []json.RawMessage `json:"data"`
}

// CitationResponse is a page of the citations or references listing. Each
// edge carries the paper on the other end under citingPaper or citedPaper.
type CitationResponse struct {
	Data []CitationEdge `json:"data"`
}

type CitationEdge struct {
	CitingPaper json.RawMessage `json:"citingPaper,omitempty"`
	CitedPaper  json.RawMessage `json:"citedPaper,omitempty"`
}

type RecommendationResponse struct {
	RecommendedPapers []json.RawMessage `json:"recommendedPapers"`
}

// PaperResult holds the Graph API fields requested through paperFields.
type PaperResult struct {
	PaperID       string   `json:"paperId"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Year          int      `json:"year"`
	Venue         string   `json:"venue"`
	URL           string   `json:"url,omitempty"`
	CitationCount int      `json:"citationCount"`
	IsOpenAccess  bool     `json:"isOpenAccess"`
	Authors       []Author `json:"authors"`

	Journal *struct {
		Name string `json:"name"`
	} `json:"journal,omitempty"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf,omitempty"`
	ExternalIDs *struct {
		DOI    string `json:"DOI"`
		ArXiv  string `json:"ArXiv"`
		PubMed string `json:"PubMed"`
	} `json:"externalIds,omitempty"`
}

type Author struct {
	Name string `json:"name"`
}

// IDs returns the normalized identifiers linked to the paper.
func (p PaperResult) IDs() domain.ExternalIDs {
	ids := domain.ExternalIDs{SemanticScholarID: p.PaperID}
	if x := p.ExternalIDs; x != nil {
		ids.DOI = domain.NormalizeDOI(x.DOI)
		ids.PubMedID = domain.NormalizePMID(x.PubMed)
		ids.ArXivID = domain.NormalizeArXivID(x.ArXiv)
	}
	return ids
}

func (p PaperResult) AuthorNames() []string {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// VenueName prefers the venue string and falls back to the journal name.
func (p PaperResult) VenueName() string {
	if v := strings.TrimSpace(p.Venue); v != "" {
		return v
	}
	if p.Journal != nil {
		return strings.TrimSpace(p.Journal.Name)
	}
	return ""
}

// OpenAccess counts a linked PDF as open access even when the flag is unset.
func (p PaperResult) OpenAccess() bool {
	return p.IsOpenAccess || (p.OpenAccessPDF != nil && p.OpenAccessPDF.URL != "")
}

func (p PaperResult) Link() string {
	if p.URL != "" {
		return p.URL
	}
	return paperPageURL + p.PaperID
}
