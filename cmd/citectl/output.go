package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// titleMaxLen truncates titles in tabular output.
const titleMaxLen = 70

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCandidates prints candidates as JSON or as a table with one row each.
func (c *cli) writeCandidates(w io.Writer, cs []domain.Candidate) error {
	if c.jsonOutput {
		if cs == nil {
			cs = []domain.Candidate{}
		}
		return writeJSON(w, cs)
	}
	if len(cs) == 0 {
		_, err := fmt.Fprintln(w, "no candidates found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tSOURCE\tYEAR\tCITED\tID\tTITLE")
	for i, cand := range cs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i+1,
			formatScore(cand),
			cand.Source,
			formatYear(cand.Year),
			cand.CitationCount,
			primaryID(cand.ExternalIDs),
			truncate(cand.Title, titleMaxLen),
		)
	}
	return tw.Flush()
}

func formatScore(c domain.Candidate) string {
	switch {
	case c.RelevanceScore != nil:
		return fmt.Sprintf("%.3f", *c.RelevanceScore)
	case c.GenerationScore != nil:
		return fmt.Sprintf("%.3f", *c.GenerationScore)
	}
	return "-"
}

func formatYear(y int) string {
	if y <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", y)
}

// primaryID picks the most portable identifier a candidate carries.
func primaryID(ids domain.ExternalIDs) string {
	switch {
	case ids.DOI != "":
		return "doi:" + ids.DOI
	case ids.ArXivID != "":
		return "arxiv:" + ids.ArXivID
	case ids.PubMedID != "":
		return "pmid:" + ids.PubMedID
	case ids.OpenAlexID != "":
		return "openalex:" + ids.OpenAlexID
	case ids.SemanticScholarID != "":
		return "s2:" + ids.SemanticScholarID
	}
	return "-"
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
