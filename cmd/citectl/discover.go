package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

func newDiscoverCmd(c *cli) *cobra.Command {
	var (
		provider string
		limit    int
		filters  []string
	)

	cmd := &cobra.Command{
		Use:   "discover <topic>",
		Short: "Discover source works for a free-text topic",
		Long: `Discover runs a topic search on one provider and ranks the results for
use as generation sources: topical overlap, citations, recency and abstract
length all count.

Filters are key=value pairs: year_from, year_to, min_citations, open_access,
fields_of_study (comma separated).

Examples:
  citectl discover "graph neural networks" --provider semantic_scholar
  citectl discover "CRISPR off-target effects" --provider pubmed --limit 5 --filter year_from=2018`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, err := domain.ParseSourceType(provider)
			if err != nil {
				return err
			}
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}

			svc, err := c.service(ctx)
			if err != nil {
				return err
			}
			topic := strings.Join(args, " ")
			out, err := svc.Resolver.Discover(ctx, source, topic, limit, domain.ParseDiscoveryFilters(parsed))
			if err != nil {
				return err
			}
			return c.writeCandidates(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "openalex", "provider to search")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter as key=value; repeatable")
	return cmd
}

func parseFilters(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", p)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}
