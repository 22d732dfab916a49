package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/papersources"
)

type listing func(ctx context.Context, key string, limit int) ([]domain.Candidate, error)

func newPaperCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Browse the citation graph around a work",
		Long: `Paper lists works connected to a paper through Semantic Scholar. The paper
may be given as a Semantic Scholar ID or a prefixed identifier such as
DOI:10.1038/nature14539 or ARXIV:1706.03762.`,
	}

	var limit int
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 20, "maximum results")

	sub := func(use, short string, pick func(papersources.CitationGraph) listing) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <paper-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				graph, err := providerAs[papersources.CitationGraph](cmd.Context(), c, domain.SourceTypeSemanticScholar)
				if err != nil {
					return err
				}
				return c.runListing(cmd, pick(graph), args[0], limit)
			},
		}
	}

	cmd.AddCommand(
		sub("citations", "List works that cite the paper", func(g papersources.CitationGraph) listing { return g.Citations }),
		sub("references", "List works the paper cites", func(g papersources.CitationGraph) listing { return g.References }),
		sub("related", "List recommended related works", func(g papersources.CitationGraph) listing { return g.Related }),
	)
	return cmd
}

func (c *cli) runListing(cmd *cobra.Command, list listing, key string, limit int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("identifier is required")
	}
	out, err := list(cmd.Context(), key, limit)
	if err != nil {
		return err
	}
	return c.writeCandidates(cmd.OutOrStdout(), out)
}

// providerAs returns the enabled adapter for source as a T.
func providerAs[T any](ctx context.Context, c *cli, source domain.SourceType) (T, error) {
	var zero T
	svc, err := c.service(ctx)
	if err != nil {
		return zero, err
	}
	a, ok := svc.Registry.Get(source)
	if !ok || !a.IsEnabled() {
		return zero, fmt.Errorf("%s provider not enabled", source)
	}
	t, ok := a.(T)
	if !ok {
		return zero, fmt.Errorf("%s does not support this listing", source)
	}
	return t, nil
}
