/*
main.go - Application entry point

PURPOSE:
  Runs the reports service and offers a few read-only client commands
  against a running deployment.

COMMANDS:
  serve      Start the HTTP service (store contract + repository endpoints)
  types      List report types of a remote service
  calendar   Print the calendar tree of a type
  exists     Check whether a report exists for (type, branch, day)
  catalog    Print the effective type catalog as YAML

STARTUP SEQUENCE (serve):
  1. Load config file, apply flag overrides
  2. Initialize store (SQLite or memory)
  3. Build the type catalog: built-in checklists + types_file overrides
  4. Create Repository, Handler, optional missing-report monitor
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the monitor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  reports serve --db ./data/reports.db

  # Run with in-memory store and debug logs
  reports serve --store memory --log-level debug

  # Ask a remote service
  reports exists pos10_temperature --branch "POS 10" --day 2024-05-01 --remote http://reports.local:8080

ENVIRONMENT:
  REPORTS_LISTEN, REPORTS_DATABASE, REPORTS_REMOTE_URL, REPORTS_LOG_LEVEL

SEE ALSO:
  - config/config.go: Config file and logger
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/report-sync/api"
	"github.com/warp/report-sync/checklists"
	"github.com/warp/report-sync/config"
	"github.com/warp/report-sync/factory"
	"github.com/warp/report-sync/generic"
	"github.com/warp/report-sync/generic/store"
	"github.com/warp/report-sync/store/sqlite"
	"go.uber.org/zap"
)

var (
	cfg        *config.Config
	logger     *zap.Logger
	configPath string
	logLevel   string
	logFormat  string
	remoteURL  string
)

var rootCmd = &cobra.Command{
	Use:   "reports",
	Short: "Branch checklist report service",
	Long: `Stores daily food-safety checklist reports and keeps them consistent:
one report per branch per day where required, latest-wins reads and
merged registers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		if cmd.Flags().Changed("remote") {
			cfg.RemoteURL = remoteURL
		}
		logger, err = config.NewLogger(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reports.yaml", "config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json, console")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "base URL of a running service (client commands)")

	serveCmd.Flags().String("listen", "", "listen address (default from config, :8080)")
	serveCmd.Flags().String("db", "", "SQLite database path; \":memory:\" for in-memory")
	serveCmd.Flags().String("store", "", "store backend: sqlite or memory")
	serveCmd.Flags().String("types", "", "catalog file merged over the built-in types")

	calendarCmd.Flags().String("branch", "", "only this branch")
	calendarCmd.Flags().String("from", "", "first day (inclusive)")
	calendarCmd.Flags().String("to", "", "last day (inclusive)")

	existsCmd.Flags().String("branch", "", "branch (default: the type's fallback)")
	existsCmd.Flags().String("day", time.Now().Format(generic.DayLayout), "day to check")

	catalogCmd.Flags().String("types", "", "catalog file merged over the built-in types")

	rootCmd.AddCommand(serveCmd, typesCmd, calendarCmd, existsCmd, catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// SERVE
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideString(cmd, "listen", &cfg.Listen)
		overrideString(cmd, "db", &cfg.Database)
		overrideString(cmd, "store", &cfg.Store)
		overrideString(cmd, "types", &cfg.TypesFile)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return serve(cfg, logger)
	},
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	// Initialize store
	var reports api.ReportStore
	switch cfg.Store {
	case "memory":
		reports = store.NewMemory()
		logger.Warn("using in-memory store; reports are lost on restart")
	default:
		db, err := sqlite.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
		reports = db
	}

	catalog, err := loadCatalog(cfg.TypesFile)
	if err != nil {
		return err
	}

	repo := generic.NewRepository(reports,
		generic.WithCatalog(catalog),
		generic.WithLogger(logger.Named("repository")))
	handler := api.NewHandler(reports, repo, logger.Named("api"))

	if cfg.Monitor.Enabled {
		interval, err := cfg.Monitor.IntervalDuration()
		if err != nil {
			return err
		}
		handler.Monitor = api.NewMissingReportMonitor(repo, logger.Named("monitor"), interval, cfg.Monitor.Branches)
		handler.Monitor.Start()
		defer handler.Monitor.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewRouter(handler, cfg.CORS.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("listen", cfg.Listen),
			zap.String("store", cfg.Store),
			zap.Int("types", len(catalog.List())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadCatalog merges the types file over the built-in checklists.
func loadCatalog(path string) (*generic.Catalog, error) {
	if path == "" {
		return checklists.Catalog(), nil
	}
	overrides, err := factory.LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return checklists.Catalog(overrides...), nil
}

// =============================================================================
// CLIENT COMMANDS
// =============================================================================

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List report types of a running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := newClient().Types(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, types)
	},
}

var calendarCmd = &cobra.Command{
	Use:   "calendar TYPE",
	Short: "Print the year > month > day tree of a report type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter generic.Filter
		filter.Branch, _ = cmd.Flags().GetString("branch")
		filter.From, _ = cmd.Flags().GetString("from")
		filter.To, _ = cmd.Flags().GetString("to")

		cal, err := newClient().Calendar(cmd.Context(), args[0], filter)
		if err != nil {
			return err
		}
		return printJSON(cmd, cal)
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists TYPE",
	Short: "Check whether a report exists for a branch and day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch, _ := cmd.Flags().GetString("branch")
		day, _ := cmd.Flags().GetString("day")

		res, err := newClient().Exists(cmd.Context(), args[0], branch, day)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if !res.Verified {
			return errors.New("store unreachable; existence not verified")
		}
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the effective type catalog as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrideString(cmd, "types", &cfg.TypesFile)
		catalog, err := loadCatalog(cfg.TypesFile)
		if err != nil {
			return err
		}
		out, err := factory.MarshalCatalog(catalog.List())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// =============================================================================
// HELPERS
// =============================================================================

func newClient() *api.Client {
	return api.NewClient(cfg.RemoteURL, api.WithClientLogger(logger.Named("client")))
}

func overrideString(cmd *cobra.Command, flag string, dst *string) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetString(flag)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
