package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/liamcoop/classifier/classification"
	"github.com/liamcoop/classifier/internal/config"
	"github.com/liamcoop/classifier/internal/db"
	"github.com/liamcoop/classifier/internal/logger"
	"github.com/liamcoop/classifier/rules"
)

var (
	configFile string
	dbURL      string
	port       int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "classifier",
	Short: "Rule-based demand classification service",
	Long: `Classifies demand records against an ordered set of administrator rules.

Results are identified by a hash of the record and never change once issued.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cmd.Flags().Changed("db-url") {
		cfg.Database.URL = dbURL
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetSampleRate(cfg.Log.ErrorSampleRate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.server,
		ReadTimeout:  cfg.Server.RequestTimeout,
		WriteTimeout: cfg.Server.RequestTimeout + cfg.Server.ShutdownTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("classifier starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed")
	case <-sigChan:
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// app holds the wired components and what must be released on exit.
type app struct {
	server    *Server
	database  *sqlx.DB
	refresher *rules.Refresher
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	var queries *db.Queries
	if cfg.Database.URL != "" {
		database, err := db.Open(cfg.Database.URL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		a.database = database

		if cfg.Database.AutoMigrate {
			if err := db.MigrateUp(database); err != nil {
				a.Close()
				return nil, err
			}
		}
		queries, err = db.LoadQueries(database)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to load queries")
		}
	}

	var store rules.RuleStore
	var fileStore *rules.FileStore
	switch {
	case cfg.Rules.File != "":
		fileStore = rules.NewFileStore(cfg.Rules.File)
		store = fileStore
		logger.Info("serving rules from file", "path", cfg.Rules.File)
	case queries != nil:
		store = rules.NewSQLRuleStore(queries)
	default:
		store = rules.NewInMemoryRuleStore()
		logger.Warn("no database configured, rules and results are kept in memory only")
	}

	validator, err := rules.NewValidator(cfg.RecordSchema(), cfg.Classification.Labels)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to build rule validator")
	}

	registry, err := rules.NewRegistry(store,
		rules.WithValidator(validator),
		rules.WithSnapshotCache(rules.NewInMemorySnapshotCache(rules.CacheConfig{TTL: cfg.Rules.CacheTTL})),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to load rules")
	}

	if fileStore != nil {
		err := fileStore.Watch(ctx, func() {
			if _, err := registry.Refresh(); err != nil {
				logger.Error("failed to reload rule file", "path", fileStore.Path(), "error", err)
			}
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to watch rule file")
		}
	}

	if cfg.Rules.RefreshSchedule != "" {
		a.refresher, err = rules.NewRefresher(registry, cfg.Rules.RefreshSchedule)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.refresher.Start()
	}

	engineCfg := classification.Config{
		Options: classification.Options{
			DefaultLabel: cfg.Classification.DefaultLabel,
			Confidence: classification.ConfidenceModel{
				Floor:    cfg.Classification.ConfidenceFloor,
				Fallback: cfg.Classification.FallbackConfidence,
			},
		},
		HashFields: cfg.Classification.HashFields,
	}
	if queries != nil {
		engineCfg.Archive = classification.NewSQLArchive(queries)
	}
	engine := classification.NewEngine(registry, engineCfg)

	a.server = NewServer(cfg, registry, engine, a.database)

	set, err := registry.Snapshot()
	if err == nil {
		logger.Info("rules loaded", "active", set.Len(), "invalid", len(set.Invalid()))
		for _, cr := range set.Invalid() {
			logger.WarnInvalidRule(cr.Rule.ID, cr.Err)
		}
	}
	return a, nil
}

// Close stops background work and releases the database.
func (a *app) Close() {
	if a.refresher != nil {
		a.refresher.Stop()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
}
