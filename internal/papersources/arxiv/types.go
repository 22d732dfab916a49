// Package arxiv provides a client for the arXiv query API and its per-category
// RSS announcement feeds.
//
// API Documentation: https://info.arxiv.org/help/api/user-manual.html
package arxiv

import (
	"encoding/xml"
	"strings"
	"time"
)

// Feed is the Atom document returned by the query endpoint.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []Entry  `xml:"entry"`
}

// Entry is one work in a Feed. DOI, JournalRef and PrimaryCategory come from
// the arxiv: namespace and are often absent.
type Entry struct {
	ID              string     `xml:"id" json:"id"` // http://arxiv.org/abs/2301.12345v1
	Title           string     `xml:"title" json:"title"`
	Summary         string     `xml:"summary" json:"summary"`
	Published       string     `xml:"published" json:"published"`
	Authors         []Author   `xml:"author" json:"authors"`
	DOI             string     `xml:"doi" json:"doi,omitempty"`
	JournalRef      string     `xml:"journal_ref" json:"journal_ref,omitempty"`
	PrimaryCategory Category   `xml:"primary_category" json:"primary_category"`
	Categories      []Category `xml:"category" json:"categories,omitempty"`
}

// Author is an entry author.
type Author struct {
	Name string `xml:"name" json:"name"`
}

// Category is an arXiv subject category such as cs.LG.
type Category struct {
	Term string `xml:"term,attr" json:"term"`
}

// AuthorNames returns the non-blank author names in order.
func (e Entry) AuthorNames() []string {
	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := normalizeWhitespace(a.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Year returns the year of first submission, or 0 when unparseable.
func (e Entry) Year() int {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return 0
	}
	return t.Year()
}

// normalizeWhitespace trims and collapses runs of whitespace; Atom titles and
// summaries are hard-wrapped.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
