/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the timesheet engine server, and exposes the
  maintenance commands that share its configuration.

COMMANDS:
  serve    Run the HTTP API (migrates the database first)
  migrate  Apply pending migrations and print the schema version
  cycle    Print the window for a cycle type and date

STARTUP SEQUENCE (serve):
  1. Load configuration (TOML file, then TIMESHEET_* env, then flags)
  2. Open SQLite store and apply migrations
  3. Seed the people table from configuration
  4. Create sessions, handler and router
  5. Start the idle session sweeper
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, flush and close every open sheet
  4. Close database connection

EXAMPLES:
  # Run with a config file
  ./server serve --config=./timesheets.toml

  # Run with in-memory database on another port
  ./server serve --db=":memory:" --port=3000

  # Inspect the semi-monthly window around a date
  ./server cycle --type semi-monthly --date 2024-12-18 --next

SEE ALSO:
  - config/config.go: Settings and environment overrides
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timesheet-engine/api"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Timesheet cycle engine and grid reconciliation server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// New applies migrations on open.
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		status, err := store.Version()
		if err != nil {
			return err
		}
		fmt.Printf("Schema version %d of %d (dirty: %t)\n", status.CurrentVersion, status.LatestVersion, status.Dirty)
		return nil
	},
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Print the window for a cycle type and date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		rawType, _ := cmd.Flags().GetString("type")
		rawDate, _ := cmd.Flags().GetString("date")
		next, _ := cmd.Flags().GetBool("next")
		previous, _ := cmd.Flags().GetBool("previous")

		t := cfg.CycleType()
		if rawType != "" {
			if t, err = cycle.ParseType(rawType); err != nil {
				return err
			}
		}
		ref := cycle.Today()
		if rawDate != "" {
			if ref, err = cycle.ParseDate(rawDate); err != nil {
				return err
			}
		}

		calc := cycle.NewCalculator(cfg.Calendar())
		w, err := calc.Compute(ref, t)
		if err != nil {
			return err
		}
		switch {
		case next && previous:
			return errors.New("--next and --previous are mutually exclusive")
		case next:
			w, err = calc.NextWindow(w)
		case previous:
			w, err = calc.PreviousWindow(w)
		}
		if err != nil {
			return err
		}

		days := make([]string, len(w.GridDates))
		for i, d := range w.GridDates {
			days[i] = fmt.Sprintf("%s %s", d.Weekday().String()[:3], d)
		}
		fmt.Printf("Type:   %s\n", w.Type)
		fmt.Printf("Label:  %s\n", calc.FormatLabel(w))
		fmt.Printf("Period: %s .. %s\n", w.Start, w.End)
		fmt.Printf("Grid:   %s\n", strings.Join(days, ", "))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides config); \":memory:\" for in-memory")

	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides config)")

	cycleCmd.Flags().StringP("type", "t", "", "Cycle type (default: configured type)")
	cycleCmd.Flags().StringP("date", "d", "", "Reference date YYYY-MM-DD (default: today)")
	cycleCmd.Flags().Bool("next", false, "Show the following cycle")
	cycleCmd.Flags().Bool("previous", false, "Show the preceding cycle")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cycleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies flags over the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database.Path = db
	}
	if cmd.Flags().Lookup("port") != nil {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
	}
	return cfg, cfg.Validate()
}

func serve(cfg *config.Config) error {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, p := range cfg.People {
		if err := store.SavePerson(ctx, p); err != nil {
			return fmt.Errorf("failed to seed %s: %w", p.ID, err)
		}
	}

	calc := cycle.NewCalculator(cfg.Calendar())
	logger := log.Default()

	sessions := api.NewSessions(func(ctx context.Context, employeeID string, w cycle.Window) (*timesheet.Sheet, error) {
		return timesheet.Open(ctx, timesheet.SheetConfig{
			EmployeeID:    employeeID,
			Window:        w,
			Calculator:    calc,
			Entries:       store,
			Timesheets:    store,
			Audit:         store,
			Identity:      store,
			FieldDelay:    cfg.Autosave.FieldDelay.Duration,
			DurationDelay: cfg.Autosave.DurationDelay.Duration,
			OnSaveError: func(e *timesheet.SaveError) {
				logger.Printf("[Autosave] %s: %v", employeeID, e)
			},
			Logger: logger,
		})
	}, nil)

	handler := api.NewHandler(api.HandlerConfig{
		Sessions:    sessions,
		Calculator:  calc,
		Audit:       store,
		DefaultType: cfg.CycleType(),
		Logger:      logger,
	})
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	sweeper := api.NewSweeper(sessions)
	sweeper.CheckInterval = cfg.Sessions.SweepInterval.Duration
	sweeper.IdleTTL = cfg.Sessions.IdleTTL.Duration
	sweeper.Logger = logger
	sweeper.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[Server] Starting on http://localhost:%d (db: %s)", cfg.Server.Port, cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		sweeper.Stop()
		sessions.CloseAll()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("[Server] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Forced to shutdown: %v", err)
	}

	sweeper.Stop()
	if err := sessions.CloseAll(); err != nil {
		log.Printf("[Server] Unsaved changes at shutdown: %v", err)
	}

	log.Println("[Server] Stopped")
	return nil
}
