package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/habitquest/duel-engine/internal/infrastructure/persistence/postgres"
)

// MigrateCmd returns the migrate command group.
func MigrateCmd(load ConfigLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(migrateUpCmd(load))
	cmd.AddCommand(migrateDownCmd(load))
	cmd.AddCommand(migrateStatusCmd(load))
	return cmd
}

func migrateUpCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), load, func(m *postgres.Migrator) error {
				applied, err := m.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				if applied == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s applied %d migration(s)\n", color.New(color.FgGreen).Sprint("✓"), applied)
				return nil
			})
		},
	}
}

func migrateDownCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), load, func(m *postgres.Migrator) error {
				if err := m.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s rolled back one migration\n", color.New(color.FgYellow).Sprint("↩"))
				return nil
			})
		},
	}
}

func migrateStatusCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), load, func(m *postgres.Migrator) error {
				migrations, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, mig := range migrations {
					applied := color.New(color.FgHiBlack).Sprint("pending")
					if mig.IsApplied {
						applied = color.New(color.FgGreen).Sprint(mig.AppliedAt.Format("2006-01-02 15:04"))
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()
			})
		},
	}
}

func withMigrator(ctx context.Context, load ConfigLoader, fn func(m *postgres.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = 2
	pgCfg.MinConns = 0

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	return fn(postgres.NewMigrator(conn))
}
