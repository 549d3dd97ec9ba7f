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

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/groupdir/internal/adapter/fsm"
	"github.com/neomorfeo/groupdir/internal/adapter/logging"
	"github.com/neomorfeo/groupdir/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/groupdir/internal/adapter/river"
	"github.com/neomorfeo/groupdir/internal/adapter/sqlite"
	"github.com/neomorfeo/groupdir/internal/app"

	handler "github.com/neomorfeo/groupdir/internal/adapter/http"
)

const (
	serviceName = "groupdir"
	version     = "0.1.0"
)

// config holds the settings shared by the serve and migrate commands.
type config struct {
	port            string
	databasePath    string
	listenerTimeout time.Duration
	otel            otel.Config
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Hierarchical group directory service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.databasePath, "database", envOrDefault("DATABASE_PATH", "groupdir.db"), "SQLite database path (env DATABASE_PATH)")

	root.AddCommand(newServeCmd(cfg), newMigrateCmd(cfg))
	return root
}

func newServeCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.port, "port", envOrDefault("PORT", "8080"), "HTTP listen port (env PORT)")
	cmd.Flags().DurationVar(&cfg.listenerTimeout, "listener-timeout", durationEnvOrDefault("LISTENER_TIMEOUT", 5*time.Second), "Per-listener delivery timeout, 0 disables (env LISTENER_TIMEOUT)")

	environment := envOrDefault("OTEL_ENVIRONMENT", "development")
	cfg.otel.Exporter = otel.ExporterStdout
	if v := os.Getenv("OTEL_EXPORTER"); v != "" {
		if err := cfg.otel.Exporter.Set(v); err != nil {
			slog.Warn("ignoring OTEL_EXPORTER", "error", err)
		}
	}

	cmd.Flags().Var(&cfg.otel.Exporter, "otel-exporter", "Telemetry exporter: stdout, otlp or none (env OTEL_EXPORTER)")
	cmd.Flags().StringVar(&cfg.otel.ServiceName, "otel-service-name", envOrDefault("OTEL_SERVICE_NAME", serviceName), "Reported service name (env OTEL_SERVICE_NAME)")
	cmd.Flags().StringVar(&cfg.otel.ServiceVersion, "otel-service-version", envOrDefault("OTEL_SERVICE_VERSION", version), "Reported service version (env OTEL_SERVICE_VERSION)")
	cmd.Flags().StringVar(&cfg.otel.Environment, "otel-environment", environment, "Deployment environment (env OTEL_ENVIRONMENT)")
	cmd.Flags().BoolVar(&cfg.otel.Insecure, "otel-insecure", environment == "development", "Send OTLP over plain HTTP")

	return cmd
}

func newMigrateCmd(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply directory and queue migrations, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := sqlite.New(cfg.databasePath)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer store.Close()

			if err := riveradapter.Migrate(cmd.Context(), store.DB()); err != nil {
				return err
			}

			slog.InfoContext(cmd.Context(), "migrations applied", "database", cfg.databasePath)
			return nil
		},
	}
}

// serve wires the adapters around the directory service and blocks until ctx
// is cancelled or a component fails.
func serve(ctx context.Context, cfg config) error {
	// --- Observability ---
	providers, err := otel.Setup(ctx, cfg.otel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(cfg.databasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("database: %w", err)
	}
	defer store.Close()

	queue, err := riveradapter.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	// --- Application ---
	svc := app.NewDirectoryService(
		otel.NewTracingGroupRepository(store.Groups()),
		otel.NewTracingMembershipRepository(store.Memberships()),
		fsm.New(),
		app.WithListenerTimeout(cfg.listenerTimeout),
		app.WithTransactor(otel.NewTracingTransactor(store)),
	)

	audit, err := otel.NewTracingListener("audit", logging.NewAuditListener(slog.Default()))
	if err != nil {
		return fmt.Errorf("audit listener: %w", err)
	}
	if err := svc.AddListener(audit); err != nil {
		return fmt.Errorf("audit listener: %w", err)
	}

	enqueuer, err := otel.NewTracingListener("river", riveradapter.NewListener(queue))
	if err != nil {
		return fmt.Errorf("river listener: %w", err)
	}
	if err := svc.AddListener(enqueuer); err != nil {
		return fmt.Errorf("river listener: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig(serviceName, version))
	handler.Register(api, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// River stops through Stop below, not through context cancellation.
		if err := queue.Start(context.WithoutCancel(gctx)); err != nil {
			return fmt.Errorf("river start: %w", err)
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return queue.Stop(stopCtx)
	})

	g.Go(func() error {
		slog.Info("groupdir listening", "port", cfg.port, "docs", "http://localhost:"+cfg.port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("stopped")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationEnvOrDefault parses key as a time.Duration, falling back on absence or parse failure.
func durationEnvOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", "key", key, "value", v, "error", err)
		return fallback
	}
	return d
}
