// Package pubmed provides a client for the NCBI PubMed E-utilities API.
//
// Searches run in two steps: esearch (JSON) returns the ranked PMIDs, then
// efetch (XML) returns the article records for those PMIDs in batches.
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import "encoding/xml"

// ESearchResponse is the JSON envelope returned by esearch.fcgi.
type ESearchResponse struct {
	Result ESearchResult `json:"esearchresult"`
	// Error is set instead of Result for request-level failures such as an
	// exceeded API rate.
	Error string `json:"error"`
}

// ESearchResult carries the matched PMIDs in relevance order. E-utilities
// encodes the counts as strings.
type ESearchResult struct {
	Count     string     `json:"count"`
	RetMax    string     `json:"retmax"`
	RetStart  string     `json:"retstart"`
	IDList    []string   `json:"idlist"`
	ErrorList *ErrorList `json:"errorlist,omitempty"`
	Error     string     `json:"ERROR,omitempty"`
}

// ErrorList contains query-level diagnostics from esearch.
type ErrorList struct {
	PhrasesNotFound []string `json:"phrasesnotfound,omitempty"`
	FieldsNotFound  []string `json:"fieldsnotfound,omitempty"`
}

// PubmedArticleSet represents the response from the efetch.fcgi endpoint.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle represents a single article in the PubMed database.
type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation" json:"medline_citation"`
	PubmedData      PubmedData      `xml:"PubmedData" json:"pubmed_data"`
}

// MedlineCitation contains the core bibliographic information.
type MedlineCitation struct {
	PMID            PMID             `xml:"PMID" json:"pmid"`
	Article         Article          `xml:"Article" json:"article"`
	MeshHeadingList *MeshHeadingList `xml:"MeshHeadingList,omitempty" json:"mesh_headings,omitempty"`
}

// PMID represents the PubMed identifier with optional version.
type PMID struct {
	Version int    `xml:"Version,attr,omitempty" json:"version,omitempty"`
	Value   string `xml:",chardata" json:"value"`
}

// Article contains the article metadata.
type Article struct {
	Journal      Journal       `xml:"Journal" json:"journal"`
	ArticleTitle MarkupText    `xml:"ArticleTitle" json:"title"`
	ELocationID  []ELocationID `xml:"ELocationID,omitempty" json:"elocation_ids,omitempty"`
	Abstract     *Abstract     `xml:"Abstract,omitempty" json:"abstract,omitempty"`
	AuthorList   *AuthorList   `xml:"AuthorList,omitempty" json:"authors,omitempty"`
	ArticleDate  []ArticleDate `xml:"ArticleDate,omitempty" json:"article_dates,omitempty"`
}

// MarkupText holds an element whose text may contain inline markup such as
// <i> or <sup>. Inner holds the raw inner XML.
type MarkupText struct {
	Inner string `xml:",innerxml" json:"inner"`
}

// Journal contains journal information.
type Journal struct {
	JournalIssue    JournalIssue `xml:"JournalIssue" json:"issue"`
	Title           string       `xml:"Title,omitempty" json:"title,omitempty"`
	ISOAbbreviation string       `xml:"ISOAbbreviation,omitempty" json:"iso_abbreviation,omitempty"`
}

// JournalIssue contains the volume, issue, and publication date.
type JournalIssue struct {
	Volume  string  `xml:"Volume,omitempty" json:"volume,omitempty"`
	Issue   string  `xml:"Issue,omitempty" json:"issue,omitempty"`
	PubDate PubDate `xml:"PubDate" json:"pub_date"`
}

// PubDate represents the publication date which may have various formats.
type PubDate struct {
	Year        string `xml:"Year,omitempty" json:"year,omitempty"`
	Month       string `xml:"Month,omitempty" json:"month,omitempty"`
	MedlineDate string `xml:"MedlineDate,omitempty" json:"medline_date,omitempty"`
}

// ELocationID represents an electronic location identifier (DOI or PII).
type ELocationID struct {
	EIdType string `xml:"EIdType,attr" json:"type"`
	Valid   string `xml:"ValidYN,attr,omitempty" json:"valid,omitempty"`
	Value   string `xml:",chardata" json:"value"`
}

// Abstract contains the article abstract, which may be split into segments.
type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText" json:"segments"`
}

// AbstractText is one segment of the abstract. Structured abstracts label
// their segments (Background, Methods, Results, etc.).
type AbstractText struct {
	Label string `xml:"Label,attr,omitempty" json:"label,omitempty"`
	Inner string `xml:",innerxml" json:"inner"`
}

// AuthorList contains the list of authors.
type AuthorList struct {
	Authors []Author `xml:"Author" json:"authors"`
}

// Author represents a single author or a collective.
type Author struct {
	ValidYN        string `xml:"ValidYN,attr,omitempty" json:"valid,omitempty"`
	LastName       string `xml:"LastName,omitempty" json:"last_name,omitempty"`
	ForeName       string `xml:"ForeName,omitempty" json:"fore_name,omitempty"`
	Initials       string `xml:"Initials,omitempty" json:"initials,omitempty"`
	CollectiveName string `xml:"CollectiveName,omitempty" json:"collective_name,omitempty"`
}

// ArticleDate represents the electronic publication date.
type ArticleDate struct {
	DateType string `xml:"DateType,attr,omitempty" json:"type,omitempty"`
	Year     string `xml:"Year" json:"year"`
}

// MeshHeadingList contains the MeSH terms assigned to the article.
type MeshHeadingList struct {
	MeshHeadings []MeshHeading `xml:"MeshHeading" json:"headings"`
}

// MeshHeading represents a MeSH descriptor.
type MeshHeading struct {
	DescriptorName string `xml:"DescriptorName" json:"descriptor"`
}

// PubmedData contains additional PubMed-specific data.
type PubmedData struct {
	ArticleIdList ArticleIdList `xml:"ArticleIdList" json:"article_ids"`
}

// ArticleIdList contains various identifiers for the article.
type ArticleIdList struct {
	ArticleIds []ArticleId `xml:"ArticleId" json:"ids"`
}

// ArticleId represents an article identifier (PMID, DOI, PMC, etc.).
type ArticleId struct {
	IdType string `xml:"IdType,attr" json:"type"`
	Value  string `xml:",chardata" json:"value"`
}
