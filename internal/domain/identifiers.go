package domain

import (
	"regexp"
	"strings"
)

var (
	doiPrefixes = []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	}
	pmidPrefixes = []string{
		"https://pubmed.ncbi.nlm.nih.gov/",
		"http://pubmed.ncbi.nlm.nih.gov/",
		"pmid:",
	}
	arxivPrefixes = []string{
		"https://arxiv.org/abs/",
		"http://arxiv.org/abs/",
		"https://export.arxiv.org/abs/",
		"http://export.arxiv.org/abs/",
		"arxiv:",
	}

	// New-style identifiers: YYMM.NNNN or YYMM.NNNNN with an optional version.
	arxivNewStyle = regexp.MustCompile(`^(\d{4}\.\d{4,5})(v\d+)?$`)
	pmidPattern   = regexp.MustCompile(`^\d+$`)
)

// trimPrefixFold removes the first matching prefix, ignoring ASCII case.
func trimPrefixFold(s string, prefixes []string) string {
	for _, p := range prefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):]
		}
	}
	return s
}

// NormalizeDOI strips resolver URLs and the "doi:" scheme and lowercases the
// remainder. DOIs are case-insensitive.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	doi = trimPrefixFold(doi, doiPrefixes)
	return strings.ToLower(strings.TrimSpace(doi))
}

// NormalizePMID strips URL and scheme prefixes. Non-numeric input yields "".
func NormalizePMID(pmid string) string {
	pmid = strings.TrimSpace(pmid)
	pmid = trimPrefixFold(pmid, pmidPrefixes)
	pmid = strings.Trim(strings.TrimSpace(pmid), "/")
	if !pmidPattern.MatchString(pmid) {
		return ""
	}
	return pmid
}

// NormalizeArXivID strips an "arxiv:" prefix (any case) and abs URLs. For
// new-style dotted identifiers the trailing version suffix is removed; legacy
// "category/NNNNNNN" identifiers are returned untouched.
//
//	NormalizeArXivID("arXiv:1501.00001v2") == "1501.00001"
//	NormalizeArXivID("math/0601001")       == "math/0601001"
func NormalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	id = strings.TrimSpace(trimPrefixFold(id, arxivPrefixes))
	if m := arxivNewStyle.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

// NormalizeOpenAlexID reduces an OpenAlex work URL to its short "W..." form.
func NormalizeOpenAlexID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "https://openalex.org/")
	return strings.TrimSpace(id)
}
