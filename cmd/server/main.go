// Command server is the Rendering Resource Manager's entrypoint: it wires
// the Config/Session/Policy stores, the Scheduler or Process Adapter, the
// Session Engine, the Keep-Alive Sweeper and the REST transport together
// and serves them over HTTP with a graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/engine"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/policy"
	"github.com/ppodhajski/RenderingResourceManager/internal/procconfig"
	"github.com/ppodhajski/RenderingResourceManager/internal/process"
	"github.com/ppodhajski/RenderingResourceManager/internal/scheduler"
	"github.com/ppodhajski/RenderingResourceManager/internal/scheduling"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
	"github.com/ppodhajski/RenderingResourceManager/internal/sweeper"
	"github.com/ppodhajski/RenderingResourceManager/internal/transport"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "console") == "console")
	log := logger.Engine()

	cfg := procconfig.FromEnv()

	log.Info().Str("host", cfg.Database.Host).Msg("connecting to database")
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database connection")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to reach database")
	}

	configs := config.NewPostgresStore(db)
	if err := configs.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate renderer_configs")
	}

	sessions := sessionstore.NewPostgresStore(db)
	if err := sessions.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate sessions")
	}

	policies := policy.NewPostgresStore(db, int(cfg.KeepAliveTimeout.Seconds()))
	if err := policies.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate global_policy")
	}

	renderAdapter := buildAdapter(cfg)

	eng := engine.New(configs, sessions, policies, renderAdapter, engine.Options{
		RequestTimeout: cfg.Scheduler.RequestTimeout,
	})

	pollInterval := cfg.KeepAlivePollInterval
	if cfg.KeepAlivePollIntervalCron != "" {
		pollInterval = scheduling.ResolveInterval(cfg.KeepAlivePollIntervalCron, time.Now())
	}
	sw := sweeper.New(sessions, eng, pollInterval)
	go sw.Start()
	defer sw.Stop()

	router := transport.NewRouter(eng, configs, policies)

	srv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("rendering resource manager listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}

// buildAdapter selects the Scheduler Adapter (SLURM cluster jobs) when a
// SLURM endpoint is configured, otherwise the Process Adapter (local forks),
// so the service runs standalone with no cluster dependency.
func buildAdapter(cfg procconfig.Config) adapter.Adapter {
	if cfg.UseLocalProcesses {
		return process.NewLocalClient(cfg.Process)
	}
	return scheduler.NewSlurmClient(cfg.Scheduler)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
