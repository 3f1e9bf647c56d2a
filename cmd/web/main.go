package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/league-brackets/internal/config"
	"github.com/AdamBeresnev/league-brackets/internal/db"
	"github.com/AdamBeresnev/league-brackets/internal/live"
	"github.com/AdamBeresnev/league-brackets/internal/metrics"
	"github.com/AdamBeresnev/league-brackets/internal/service"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	dbPath   string
	httpAddr string
)

var rootCmd = &cobra.Command{
	Use:   "league",
	Short: "Tournament bracket server for the recreational league",
	Long: `Runs the tournament API: registrations, bracket generation, score reporting,
attendance enforcement and finalization, plus the reminder scheduler.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := bootstrap()
		if err != nil {
			return err
		}
		defer database.Close()
		return serve(cmd.Context(), cfg, database)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := bootstrap()
		if err != nil {
			return err
		}
		defer database.Close()
		slog.Info("migrations applied")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reminder sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := bootstrap()
		if err != nil {
			return err
		}
		defer database.Close()

		deps := service.NewDeps(database, metrics.NewService(), nil)
		n, err := service.NewScheduler(deps, cfg.SchedulerInterval).Sweep(cmd.Context(), deps.Now())
		if err != nil {
			return err
		}
		slog.Info("sweep finished", "tournaments", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE_PATH)")
	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

// bootstrap loads config, sets up logging and opens the migrated database.
func bootstrap() (*config.Config, *sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	if err := config.SetupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, err
	}
	if !cfg.EnvFileLoaded {
		slog.Info("No .env file found, using environment variables")
	}

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(database.DB); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, database, nil
}

func serve(ctx context.Context, cfg *config.Config, database *sqlx.DB) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := live.NewHub(cfg.CORSAllowedOrigins)
	app := newApplication(database, metrics.NewService(), metrics.NewMetricsHandler(), hub)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newRouter(app, cfg.CORSAllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.NewScheduler(app.deps, cfg.SchedulerInterval).Run(gctx)
	})
	g.Go(func() error {
		slog.Info("starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server", "timeout", cfg.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			return server.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "league: %s\n", err)
		os.Exit(1)
	}
}
