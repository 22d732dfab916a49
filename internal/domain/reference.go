package domain

import "strings"

// ParsedReference is a partially known bibliographic reference. Every field is
// optional.
type ParsedReference struct {
	DOI      string   `json:"doi,omitempty"`
	PubMedID string   `json:"pubmed_id,omitempty"`
	ArXivID  string   `json:"arxiv_id,omitempty"`
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
}

// HasTitle reports whether the reference carries a non-blank title.
func (r ParsedReference) HasTitle() bool {
	return strings.TrimSpace(r.Title) != ""
}

// HasAuthors reports whether at least one non-blank author is present.
func (r ParsedReference) HasAuthors() bool {
	return len(r.LeadAuthors(1)) > 0
}

// HasYear reports whether a publication year is present.
func (r ParsedReference) HasYear() bool {
	return r.Year > 0
}

// LeadAuthors returns up to n trimmed, non-blank authors in their original
// order. A non-positive n returns all of them.
func (r ParsedReference) LeadAuthors(n int) []string {
	out := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		out = append(out, a)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// IsEmpty reports whether no field is usable for resolution.
func (r ParsedReference) IsEmpty() bool {
	return len(r.Identifiers()) == 0 && !r.HasTitle() && !r.HasAuthors() && !r.HasYear()
}

// Identifiers returns the normalized identifiers carried by the reference,
// DOI first, then PubMed ID, then arXiv ID.
func (r ParsedReference) Identifiers() []Identifier {
	var ids []Identifier
	if doi := NormalizeDOI(r.DOI); doi != "" {
		ids = append(ids, Identifier{Type: IdentifierTypeDOI, Value: doi})
	}
	if pmid := NormalizePMID(r.PubMedID); pmid != "" {
		ids = append(ids, Identifier{Type: IdentifierTypePubMedID, Value: pmid})
	}
	if arxiv := NormalizeArXivID(r.ArXivID); arxiv != "" {
		ids = append(ids, Identifier{Type: IdentifierTypeArXivID, Value: arxiv})
	}
	return ids
}

// IdentifierFor returns the first identifier whose type appears in supported.
// Reference order wins over the order of supported.
func (r ParsedReference) IdentifierFor(supported []IdentifierType) (Identifier, bool) {
	for _, id := range r.Identifiers() {
		for _, t := range supported {
			if id.Type == t {
				return id, true
			}
		}
	}
	return Identifier{}, false
}
