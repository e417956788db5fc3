// Package procconfig reads the process configuration environment variables
// recognized by the core into typed structs the rest of the module consumes
// directly, following the teacher's getEnv/getEnvInt env-with-fallback
// pattern instead of a config file or flag parser.
package procconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ppodhajski/RenderingResourceManager/internal/process"
	"github.com/ppodhajski/RenderingResourceManager/internal/scheduler"
)

// Database carries the Postgres connection parameters (DB_* variables,
// required by the Postgres-backed stores regardless of which adapter is
// in use).
type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the libpq connection string lib/pq expects.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Config is every environment-derived setting the core needs at startup.
type Config struct {
	APIPort string

	Scheduler scheduler.Config
	Process   process.Config
	Database  Database

	// KeepAliveTimeout seeds the Global Policy's default idle horizon.
	KeepAliveTimeout time.Duration
	// KeepAlivePollInterval sizes the Keep-Alive Sweeper's ticker.
	KeepAlivePollInterval time.Duration
	// KeepAlivePollIntervalCron optionally overrides the poll interval with
	// a cron expression (resolved via internal/scheduling.ResolveInterval).
	KeepAlivePollIntervalCron string

	// UseLocalProcesses selects the Process Adapter over the Scheduler
	// Adapter when no SLURM endpoint is configured, so the service is
	// runnable standalone with no cluster dependency.
	UseLocalProcesses bool
}

// FromEnv reads Config from the process environment, following the same
// string/int-with-default helper shape the teacher's cmd/main.go uses.
func FromEnv() Config {
	requestTimeout := time.Duration(getEnvInt("REQUEST_TIMEOUT", 5)) * time.Second

	schedulerCfg := scheduler.Config{
		ServiceURL:     getEnv("SLURM_SERVICE_URL", ""),
		Username:       getEnv("SLURM_USERNAME", ""),
		Password:       getEnv("SLURM_PASSWORD", ""),
		Host:           getEnv("SLURM_HOST", ""),
		HostDomain:     getEnv("SLURM_HOST_DOMAIN", ""),
		Queue:          getEnv("SLURM_QUEUE", ""),
		Project:        getEnv("SLURM_PROJECT", ""),
		DefaultModule:  getEnv("SLURM_DEFAULT_MODULE", ""),
		JobNamePrefix:  getEnv("SLURM_JOB_NAME_PREFIX", ""),
		OutputPrefix:   getEnv("SLURM_OUTPUT_PREFIX", ""),
		OutFile:        getEnv("SLURM_OUT_FILE", ".out"),
		ErrFile:        getEnv("SLURM_ERR_FILE", ".err"),
		RequestTimeout: requestTimeout,
	}

	return Config{
		APIPort:   getEnv("API_PORT", "8000"),
		Scheduler: schedulerCfg,
		Process:   process.Config{RequestTimeout: requestTimeout},
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "rrm"),
			Password: getEnv("DB_PASSWORD", "rrm"),
			Name:     getEnv("DB_NAME", "rrm"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		KeepAliveTimeout:          time.Duration(getEnvInt("KEEP_ALIVE_TIMEOUT", 180)) * time.Second,
		KeepAlivePollInterval:     time.Duration(getEnvInt("KEEP_ALIVE_POLL_INTERVAL", 5)) * time.Second,
		KeepAlivePollIntervalCron: getEnv("KEEP_ALIVE_POLL_INTERVAL_CRON", ""),
		UseLocalProcesses:         schedulerCfg.ServiceURL == "",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
