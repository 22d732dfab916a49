package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

func newResolveCmd(c *cli) *cobra.Command {
	var (
		ref      domain.ParsedReference
		provider string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a partial reference into ranked candidate works",
		Long: `Resolve queries every enabled provider for a partially known reference and
prints at most five candidates, best first. Any subset of identifiers, title,
authors and year may be given; identifiers take precedence.

Examples:
  citectl resolve --doi 10.1038/nature14539
  citectl resolve --title "Deep learning" --author "LeCun, Y." --author "Bengio, Y."
  citectl resolve --author "Hinton" --year 2006 --provider openalex --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ref.IsEmpty() {
				return fmt.Errorf("%w: give at least one of --doi, --pmid, --arxiv, --title, --author with --year", domain.ErrInvalidReference)
			}

			ctx := cmd.Context()
			svc, err := c.service(ctx)
			if err != nil {
				return err
			}

			var out []domain.Candidate
			if provider == "" {
				out = svc.Resolver.Resolve(ctx, ref)
			} else {
				source, err := domain.ParseSourceType(provider)
				if err != nil {
					return err
				}
				if out, err = svc.Resolver.ResolveWith(ctx, source, ref); err != nil {
					return err
				}
			}
			return c.writeCandidates(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&ref.DOI, "doi", "", "DOI, bare or as a doi.org URL")
	cmd.Flags().StringVar(&ref.PubMedID, "pmid", "", "PubMed ID")
	cmd.Flags().StringVar(&ref.ArXivID, "arxiv", "", "arXiv ID, old or new style")
	cmd.Flags().StringVar(&ref.Title, "title", "", "work title")
	cmd.Flags().StringArrayVar(&ref.Authors, "author", nil, "author name; repeat for each author in order")
	cmd.Flags().IntVar(&ref.Year, "year", 0, "publication year")
	cmd.Flags().StringVar(&provider, "provider", "", "resolve against a single provider")
	return cmd
}
