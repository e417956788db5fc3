// Package process implements the Process Adapter (C4): the same contract
// as the Scheduler Adapter, but for renderer instances forked locally
// instead of submitted to the cluster. A process's pid plays the role of
// the cluster job id.
package process

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/formatter"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

// Config carries the process-adapter-relevant process configuration.
type Config struct {
	// RequestTimeout bounds renderer probes (vocabulary, EXIT, listen check).
	RequestTimeout time.Duration
}

// proc tracks one forked renderer child by pid.
type proc struct {
	cmd  *exec.Cmd
	host string
	port int
}

// LocalClient is the Process Adapter. A single mutex guards its table of
// forked children: Submit holds it for the whole fork, while ResolveHost,
// Cancel and Kill hold it only for the table lookup, so their probes, waits
// and signals run outside the lock.
type LocalClient struct {
	cfg         Config
	probeClient *http.Client

	mu    sync.Mutex
	procs map[string]*proc
}

// NewLocalClient creates a Process Adapter.
func NewLocalClient(cfg Config) *LocalClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocalClient{
		cfg:         cfg,
		probeClient: &http.Client{Timeout: timeout},
		procs:       make(map[string]*proc),
	}
}

var _ adapter.Adapter = (*LocalClient)(nil)

// Submit forks cfg.CommandLine as a child process bound to an ephemeral
// local port, mirroring the argument-building rule the Scheduler Adapter
// uses for cluster jobs.
func (l *LocalClient) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := req.Config
	session := req.Session

	host := "127.0.0.1"
	port, err := reserveEphemeralPort(host)
	if err != nil {
		return adapter.SubmitResult{}, apierr.InternalWrap("failed to reserve local port", err)
	}

	schema := "rest" + cfg.ID + session.ID
	restParams := formatter.Format(cfg.ProcessRestParametersFormat, host, strconv.Itoa(port), schema)
	args := strings.Fields(restParams)
	if req.ExtraParams != "" {
		args = append(args, req.ExtraParams)
	}

	env := parseEnvPairs(cfg.EnvironmentVariables)
	for k, v := range parseEnvPairs(req.ExtraEnv) {
		env[k] = v
	}

	cmd := exec.Command(cfg.CommandLine, args...)
	cmd.Env = flattenEnv(env)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return adapter.SubmitResult{}, apierr.SchedulerFailure("failed to start local renderer: " + err.Error())
	}

	childPID := cmd.Process.Pid
	pid := strconv.Itoa(childPID)
	l.procs[pid] = &proc{cmd: cmd, host: host, port: port}

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Process().Warn().Str("pid", pid).Err(err).Str("stderr", stderr.String()).Msg("local renderer exited")
		}
	}()

	logger.Process().Info().Str("pid", pid).Str("executable", cfg.CommandLine).Msg("forked local renderer")
	return adapter.SubmitResult{ProcessPID: childPID}, nil
}

// ResolveHost returns "localhost" once the forked child is observed
// listening on its reserved port, "" while it is still starting, or
// HostFailed once the process has exited.
func (l *LocalClient) ResolveHost(ctx context.Context, jobID string) (adapter.HostResolution, error) {
	l.mu.Lock()
	p, ok := l.procs[jobID]
	l.mu.Unlock()

	if !ok {
		return adapter.HostResolution{State: adapter.HostFailed}, nil
	}
	if p.cmd.ProcessState != nil {
		return adapter.HostResolution{State: adapter.HostFailed}, nil
	}

	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err != nil {
		return adapter.HostResolution{State: adapter.HostScheduled}, nil
	}
	conn.Close()
	return adapter.HostResolution{State: adapter.HostRunning, Hostname: "localhost", Port: p.port}, nil
}

// Cancel issues the graceful-exit probe (if configured) and then sends
// SIGTERM, waiting up to 2 seconds for the process to exit.
func (l *LocalClient) Cancel(ctx context.Context, req adapter.CancelRequest) error {
	pid := localPID(req.Session)

	l.mu.Lock()
	p, ok := l.procs[pid]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if req.Config.GracefulExit {
		l.issueGracefulExit(p.host, p.port)
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Process().Warn().Str("pid", pid).Err(err).Msg("failed to signal local renderer")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.cmd.ProcessState != nil {
			l.forget(pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return apierr.SchedulerFailure("could not cancel local renderer pid " + pid + " within timeout")
}

// localPID recovers the string pid this client's procs map is keyed by. A
// session submitted through this adapter carries it in ProcessPID, never
// JobID; req.Session.JobID is only ever set for sessions submitted through
// the Scheduler Adapter.
func localPID(session sessionstore.Session) string {
	if session.JobID != "" {
		return session.JobID
	}
	return strconv.Itoa(session.ProcessPID)
}

// Kill forcibly terminates jobID via SIGKILL, best-effort.
func (l *LocalClient) Kill(ctx context.Context, jobID string) error {
	l.mu.Lock()
	p, ok := l.procs[jobID]
	l.mu.Unlock()
	if !ok {
		return apierr.Internal("no local renderer tracked for pid " + jobID)
	}

	go func() {
		if err := p.cmd.Process.Kill(); err != nil {
			logger.Process().Warn().Str("pid", jobID).Err(err).Msg("failed to kill local renderer")
		}
		l.forget(jobID)
	}()
	return nil
}

func (l *LocalClient) forget(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.procs, jobID)
}

func (l *LocalClient) issueGracefulExit(host string, port int) {
	url := fmt.Sprintf("http://%s:%d/EXIT", host, port)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := l.probeClient.Do(req)
	if err != nil {
		logger.Process().Debug().Err(err).Msg("failed to contact local renderer for graceful exit")
		return
	}
	resp.Body.Close()
}

// reserveEphemeralPort asks the kernel for a free port by binding a
// listener and immediately closing it.
func reserveEphemeralPort(host string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

func parseEnvPairs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Fields(s) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
