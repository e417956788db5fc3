package procconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, prev)
			}
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t, "SLURM_SERVICE_URL", "SLURM_USERNAME", "API_PORT",
		"KEEP_ALIVE_TIMEOUT", "KEEP_ALIVE_POLL_INTERVAL", "REQUEST_TIMEOUT")

	cfg := FromEnv()

	assert.Equal(t, "8000", cfg.APIPort)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.RequestTimeout)
	assert.Equal(t, 180*time.Second, cfg.KeepAliveTimeout)
	assert.Equal(t, 5*time.Second, cfg.KeepAlivePollInterval)
	assert.True(t, cfg.UseLocalProcesses, "no SLURM_SERVICE_URL configured should select the Process Adapter")
}

func TestFromEnvSlurmConfiguredSelectsSchedulerAdapter(t *testing.T) {
	clearEnv(t, "SLURM_SERVICE_URL")
	os.Setenv("SLURM_SERVICE_URL", "http://slurm-head:6820")

	cfg := FromEnv()

	assert.False(t, cfg.UseLocalProcesses)
	assert.Equal(t, "http://slurm-head:6820", cfg.Scheduler.ServiceURL)
}

func TestFromEnvOverridesIntsAndStrings(t *testing.T) {
	clearEnv(t, "KEEP_ALIVE_TIMEOUT", "KEEP_ALIVE_POLL_INTERVAL", "DB_HOST", "REQUEST_TIMEOUT")
	os.Setenv("KEEP_ALIVE_TIMEOUT", "42")
	os.Setenv("KEEP_ALIVE_POLL_INTERVAL", "3")
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("REQUEST_TIMEOUT", "not-an-int")

	cfg := FromEnv()

	assert.Equal(t, 42*time.Second, cfg.KeepAliveTimeout)
	assert.Equal(t, 3*time.Second, cfg.KeepAlivePollInterval)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.RequestTimeout, "malformed int falls back to default")
}

func TestDatabaseDSN(t *testing.T) {
	db := Database{Host: "localhost", Port: "5432", User: "rrm", Password: "secret", Name: "rrm", SSLMode: "disable"}

	assert.Equal(t, "host=localhost port=5432 user=rrm password=secret dbname=rrm sslmode=disable", db.DSN())
}
