package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", false)
	os.Exit(m.Run())
}

func TestNormalizeJobIDBracketed(t *testing.T) {
	id, err := normalizeJobID("rtneuron-[4821]")
	require.NoError(t, err)
	assert.Equal(t, "4821", id)
}

func TestNormalizeJobIDPlain(t *testing.T) {
	id, err := normalizeJobID("4821")
	require.NoError(t, err)
	assert.Equal(t, "4821", id)
}

func TestNormalizeJobIDMalformedBracket(t *testing.T) {
	_, err := normalizeJobID("rtneuron-[]")
	assert.Error(t, err)
}

func TestParseEnvPairs(t *testing.T) {
	env := parseEnvPairs("FOO=bar BAZ=qux")
	assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, env)
}

func TestParseEnvPairsIgnoresMalformedTokens(t *testing.T) {
	env := parseEnvPairs("FOO=bar standalone BAZ=qux")
	assert.Equal(t, map[string]string{"FOO": "bar", "BAZ": "qux"}, env)
}

func TestParseEnvPairsEmpty(t *testing.T) {
	env := parseEnvPairs("")
	assert.Empty(t, env)
}

func TestBuildScriptIncludesModulesAndExecutable(t *testing.T) {
	script := buildScript("rendering-resource-manager", "rtneuron/3.4 viz/1.0", "rtneuron", []string{"--rest", "rest/v1"})
	assert.Contains(t, script, "#!/bin/bash\n")
	assert.Contains(t, script, "module purge\n")
	assert.Contains(t, script, "module load rendering-resource-manager\n")
	assert.Contains(t, script, "module load rtneuron/3.4\n")
	assert.Contains(t, script, "module load viz/1.0\n")
	assert.Contains(t, script, "rtneuron --rest rest/v1")
}

func TestBuildScriptNoDefaultModule(t *testing.T) {
	script := buildScript("", "", "livre", nil)
	assert.NotContains(t, script, "module load \n")
	assert.Contains(t, script, "livre")
}

func TestConnectLockedRequiresConfiguration(t *testing.T) {
	client := NewSlurmClient(Config{})
	err := client.connectLocked()
	assert.Error(t, err)
}

func TestResolveHostFailedWhenJobMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewSlurmClient(Config{ServiceURL: server.URL, Username: "rrm", Password: "token"})
	resolution, err := client.ResolveHost(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, 2, int(resolution.State)) // HostFailed
}

func TestResolveHostRunningAppendsDomain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[{"job_id":4821,"job_state":["RUNNING"],"batch_host":"node042"}]}`))
	}))
	defer server.Close()

	client := NewSlurmClient(Config{ServiceURL: server.URL, Username: "rrm", Password: "token", HostDomain: ".cluster.example.com"})
	resolution, err := client.ResolveHost(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, 1, int(resolution.State)) // HostRunning
	assert.Equal(t, "node042.cluster.example.com", resolution.Hostname)
}
