// Package crossref provides a client for the CrossRef REST API.
//
// CrossRef is the registration agency for most journal DOIs. The client looks
// works up by DOI and searches them bibliographically.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

import "encoding/json"

// WorkResponse is the envelope returned by /works/{doi}.
type WorkResponse struct {
	Status      string          `json:"status"`
	MessageType string          `json:"message-type"`
	Message     json.RawMessage `json:"message"`
}

// ListResponse is the envelope returned by /works searches.
type ListResponse struct {
	Status  string      `json:"status"`
	Message ListMessage `json:"message"`
}

// ListMessage holds one page of search results.
type ListMessage struct {
	TotalResults int               `json:"total-results"`
	Items        []json.RawMessage `json:"items"`
}

// Work is a CrossRef work record.
type Work struct {
	DOI                 string     `json:"DOI"`
	Title               []string   `json:"title"`
	Subtitle            []string   `json:"subtitle"`
	Author              []Author   `json:"author"`
	ContainerTitle      []string   `json:"container-title"`
	Publisher           string     `json:"publisher"`
	Type                string     `json:"type"`
	Abstract            string     `json:"abstract"`
	IsReferencedByCount int        `json:"is-referenced-by-count"`
	PublishedPrint      *DateParts `json:"published-print"`
	PublishedOnline     *DateParts `json:"published-online"`
	URL                 string     `json:"URL"`
	License             []License  `json:"license"`
}

// Author is a contributor. Organizations carry Name instead of Given/Family.
type Author struct {
	Given    string `json:"given"`
	Family   string `json:"family"`
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
	ORCID    string `json:"ORCID"`
}

// DateParts holds a partial date as [[year, month, day]].
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// License is a license assertion attached to a work.
type License struct {
	URL string `json:"URL"`
}

// Year returns the year component, or 0 when absent.
func (d *DateParts) Year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}
