package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-discovery-service/internal/database"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the cache table schema",
		Long: `Migrate applies the schema migrations embedded in the binary, or those in
--path when given.`,
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "read migrations from this directory instead")

	// run opens a migrator, applies action and reports the resulting version.
	run := func(cmd *cobra.Command, action func(*database.Migrator) error) error {
		ctx := cmd.Context()
		db, err := c.openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		dir := c.cfg.Database.MigrationPath
		if path != "" {
			dir = path
		}
		migrator, err := database.NewMigrator(db, dir, c.logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				c.logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if action != nil {
			if err := action(migrator); err != nil {
				return err
			}
		}
		return c.printVersion(cmd.OutOrStdout(), migrator)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(m *database.Migrator) error {
					if err := m.Up(); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(m *database.Migrator) error {
					if err := m.Down(); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, or roll back when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return run(cmd, func(m *database.Migrator) error {
					if err := m.Steps(n); err != nil {
						return fmt.Errorf("migrate steps: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, nil)
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Record a version without running it, to recover from a failed migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				return run(cmd, func(m *database.Migrator) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func (c *cli) printVersion(w io.Writer, m *database.Migrator) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		v, dirty, err = 0, false, nil
	}
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	if c.jsonOutput {
		return writeJSON(w, map[string]any{"version": v, "dirty": dirty})
	}
	fmt.Fprintf(w, "version %d", v)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}
