package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/liamcoop/rulepack/internal/config"
	"github.com/liamcoop/rulepack/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every migration command
type options struct {
	configPath     string
	databaseURL    string
	migrationsPath string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the rule_packs schema used by the named store",
		Long: `Run schema migrations against the named store database.
Without a subcommand, all pending migrations are applied.

The database URL comes from --database, or store.database_url in the
config file, or RULEPACK_STORE_DATABASE_URL.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return up(cmd.Context(), opts)
		},
	}
	root.SetOut(stdout)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./"+config.ConfigFileName+" when present)")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "database URL")
	root.PersistentFlags().StringVar(&opts.migrationsPath, "path", "migrations", "path to migrations directory")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return up(cmd.Context(), opts)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to roll back migrations: %w", err)
			}
			logger.Info("rollback completed")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number %q: %w", args[0], err)
			}

			m, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("failed to force version: %w", err)
			}
			logger.Info("forced version", "version", version)
			return nil
		},
	})

	return root
}

func up(ctx context.Context, opts *options) error {
	m, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to run, database is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations completed")
	return nil
}

// open resolves the database URL and creates the migration instance
func (o *options) open(ctx context.Context) (*migrate.Migrate, error) {
	databaseURL := o.databaseURL
	if databaseURL == "" {
		cfg, _, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: o.configPath})
		if err != nil {
			return nil, err
		}
		databaseURL = cfg.Store.DatabaseURL
	}
	if databaseURL == "" {
		return nil, errors.New("database URL is required (use --database or RULEPACK_STORE_DATABASE_URL)")
	}

	logger.Info("connecting to database", "migrations", o.migrationsPath)
	m, err := migrate.New("file://"+o.migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}
