package main

import (
	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

func newArxivCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arxiv",
		Short: "Browse arXiv subject categories",
		Long: `Arxiv lists papers in an arXiv category such as cs.LG or q-bio.NC.

Examples:
  citectl arxiv recent cs.CL
  citectl arxiv papers math.PR --limit 50`,
	}

	var limit int
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "maximum results")

	sub := func(use, short string, pick func(papersources.CategoryLister) listing) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <category>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				lister, err := providerAs[papersources.CategoryLister](cmd.Context(), c, domain.SourceTypeArXiv)
				if err != nil {
					return err
				}
				return c.runListing(cmd, pick(lister), args[0], limit)
			},
		}
	}

	cmd.AddCommand(
		sub("recent", "List the latest announcements from the category feed", func(l papersources.CategoryLister) listing { return l.RecentByCategory }),
		sub("papers", "List the newest submissions in the category", func(l papersources.CategoryLister) listing { return l.SearchByCategory }),
	)
	return cmd
}
