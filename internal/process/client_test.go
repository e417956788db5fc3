package process

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

func TestReserveEphemeralPortIsNonZero(t *testing.T) {
	port, err := reserveEphemeralPort("127.0.0.1")
	require.NoError(t, err)
	assert.NotZero(t, port)
}

func TestParseEnvPairs(t *testing.T) {
	env := parseEnvPairs("FOO=bar BAZ=qux")
	assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, env)
}

func TestFlattenEnvRoundtrip(t *testing.T) {
	flattened := flattenEnv(map[string]string{"FOO": "bar"})
	assert.Contains(t, flattened, "FOO=bar")
}

func TestResolveHostUnknownJobIsFailed(t *testing.T) {
	client := NewLocalClient(Config{})
	resolution, err := client.ResolveHost(context.Background(), "99999")
	require.NoError(t, err)
	assert.Equal(t, adapter.HostFailed, resolution.State)
}

func TestSubmitAndResolveHostSleepProcess(t *testing.T) {
	client := NewLocalClient(Config{RequestTimeout: time.Second})

	cfg := config.RendererConfig{
		ID:                          "echo",
		CommandLine:                 "sleep",
		ProcessRestParametersFormat: "5",
	}
	session := sessionstore.Session{ID: "sess-1"}

	result, err := client.Submit(context.Background(), adapter.SubmitRequest{Config: cfg, Session: session})
	require.NoError(t, err)
	require.NotZero(t, result.ProcessPID)
	jobID := strconv.Itoa(result.ProcessPID)

	resolution, err := client.ResolveHost(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, adapter.HostScheduled, resolution.State)

	err = client.Kill(context.Background(), jobID)
	require.NoError(t, err)
}
