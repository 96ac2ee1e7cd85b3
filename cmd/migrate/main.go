package main

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/liamcoop/classifier/internal/config"
	"github.com/liamcoop/classifier/internal/db"
	"github.com/liamcoop/classifier/internal/logger"
)

var (
	configFile string
	dbURL      string
	steps      int
)

var rootCmd = &cobra.Command{
	Use:          "classifier-migrate",
	Short:        "Apply or roll back the classifier database schema",
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to run migrations")
		}
		logger.Info("migrations completed")
		return nil
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (all of them unless --steps is given)",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		var err error
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return errors.Wrap(err, "failed to roll back migrations")
		}
		logger.Info("rollback completed", "steps", steps)
		return nil
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to get version")
		}
		logger.Info("current schema version", "version", version, "dirty", dirty)
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "invalid version number %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return errors.Wrap(err, "failed to force version")
		}
		logger.Info("forced schema version", "version", version)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	downCmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back")

	rootCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withMigrator opens the configured database and hands a migrator over the
// embedded migrations to fn.
func withMigrator(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		url := dbURL
		if url == "" {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			url = cfg.Database.URL
		}
		if url == "" {
			return errors.New("database URL is required: use --db-url or CLASSIFIER_DATABASE_URL")
		}

		database, err := db.Open(url)
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}

		m, err := db.NewMigrator(database)
		if err != nil {
			database.Close()
			return err
		}
		// Closing the migrator closes the database too.
		defer m.Close()

		return fn(m, args)
	}
}
