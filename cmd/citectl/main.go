// Package main is the entry point for citectl, a command-line client for the
// citation resolver. It resolves references, discovers sources for a topic,
// browses provider listings and maintains the persistent cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/app"
	"github.com/helixir/citation-discovery-service/internal/config"
	"github.com/helixir/citation-discovery-service/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

// cli carries state shared by every subcommand.
type cli struct {
	jsonOutput bool
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger

	// loadConfig and newService are replaced in tests.
	loadConfig func() (*config.Config, error)
	newService func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app.Service, error)

	svc *app.Service
}

func newCLI() *cli {
	return &cli{
		loadConfig: config.Load,
		newService: func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app.Service, error) {
			return app.New(ctx, cfg, logger)
		},
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "citectl",
		Short:         "Resolve references and discover sources across bibliographic providers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.svc != nil {
				c.svc.Close()
			}
		},
	}

	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "output results as JSON")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newResolveCmd(c),
		newDiscoverCmd(c),
		newProvidersCmd(c),
		newPaperCmd(c),
		newArxivCmd(c),
		newCacheCmd(c),
		newMigrateCmd(c),
	)
	return root
}

// init loads .env, then configuration, and sets up a stderr logger.
func (c *cli) init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Short-lived processes have nothing to scrape.
	cfg.Metrics.Enabled = false
	c.cfg = cfg

	c.logger = observability.NewLogger(observability.LoggingConfig{
		Level:      c.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "citectl").Logger()
	return nil
}

// service wires the resolver on first use.
func (c *cli) service(ctx context.Context) (*app.Service, error) {
	if c.svc != nil {
		return c.svc, nil
	}
	svc, err := c.newService(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	return svc, nil
}

func main() {
	if err := newRootCmd(newCLI()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
