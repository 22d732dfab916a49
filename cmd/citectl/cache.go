package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/database"
	"github.com/helixir/citation-discovery-service/internal/domain"
	"github.com/helixir/citation-discovery-service/internal/repository"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the persistent response cache",
		Long: `Cache operates on the citation_cache table and needs database settings even
when the service itself runs with the memory backend.`,
	}
	cmd.AddCommand(newCachePurgeCmd(c), newCacheStatsCmd(c))
	return cmd
}

func newCachePurgeCmd(c *cli) *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries, or every entry of one provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var source domain.SourceType
			if provider != "" {
				var err error
				if source, err = domain.ParseSourceType(provider); err != nil {
					return err
				}
			}

			return c.withStore(ctx, func(store *repository.PgCacheStore) error {
				var (
					n   int64
					err error
				)
				if source != "" {
					n, err = store.PurgeSource(ctx, source)
				} else {
					n, err = store.PurgeExpired(ctx, time.Now())
				}
				if err != nil {
					return err
				}
				c.logger.Info().Int64("deleted", n).Str("source", string(source)).Msg("cache purged")
				if c.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"deleted": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "delete every entry of this provider, live or not")
	return cmd
}

func newCacheStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count live and expired entries per provider and query kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(store *repository.PgCacheStore) error {
				stats, err := store.Stats(ctx, time.Now())
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SOURCE\tKIND\tLIVE\tEXPIRED")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", s.Source, s.Kind, s.Live, s.Expired)
				}
				return tw.Flush()
			})
		},
	}
}

// withStore opens a short-lived connection for cache maintenance.
func (c *cli) withStore(ctx context.Context, fn func(*repository.PgCacheStore) error) error {
	db, err := c.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(repository.NewPgCacheStore(db))
}

func (c *cli) openDB(ctx context.Context) (*database.DB, error) {
	if err := c.cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	db, err := database.New(ctx, &c.cfg.Database, c.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}
