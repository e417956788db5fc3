package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/formatter"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
)

// SlurmClient is the Scheduler Adapter (C3). It connects lazily to
// slurmrestd on first use and serializes every operation on a single
// mutex, reflecting that the underlying cluster-control channel is not
// safe for concurrent use.
type SlurmClient struct {
	cfg        Config
	httpClient *http.Client
	probeClient *http.Client

	mu        sync.Mutex
	connected bool
}

// NewSlurmClient creates a Scheduler Adapter for the given cluster
// configuration. The connection to slurmrestd is established lazily.
func NewSlurmClient(cfg Config) *SlurmClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SlurmClient{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		probeClient: &http.Client{Timeout: timeout},
	}
}

var _ adapter.Adapter = (*SlurmClient)(nil)

// connectLocked establishes the connection to slurmrestd if not already
// done. Idempotent. Must be called with mu held.
func (s *SlurmClient) connectLocked() error {
	if s.connected {
		return nil
	}
	if s.cfg.ServiceURL == "" || s.cfg.Username == "" {
		return apierr.Internal("scheduler not configured: missing SLURM_SERVICE_URL or SLURM_USERNAME")
	}
	s.connected = true
	logger.Scheduler().Info().Str("service_url", s.cfg.ServiceURL).Msg("connected to slurm queue")
	return nil
}

func (s *SlurmClient) authHeaders(req *http.Request) {
	req.Header.Set("X-SLURM-USER-NAME", s.cfg.Username)
	req.Header.Set("X-SLURM-USER-TOKEN", s.cfg.Password)
	req.Header.Set("Content-Type", "application/json")
}

// Submit builds a job description from req and submits it to slurmrestd.
func (s *SlurmClient) Submit(ctx context.Context, req adapter.SubmitRequest) (adapter.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return adapter.SubmitResult{}, err
	}

	cfg := req.Config
	session := req.Session

	schema := "rest" + cfg.ID + session.ID
	restParams := formatter.Format(cfg.SchedulerRestParametersFormat, session.HTTPHost, strconv.Itoa(session.HTTPPort), schema)
	args := strings.Fields(restParams)
	if req.ExtraParams != "" {
		args = append(args, req.ExtraParams)
	}

	env := parseEnvPairs(cfg.EnvironmentVariables)
	for k, v := range parseEnvPairs(req.ExtraEnv) {
		env[k] = v
	}

	executable := cfg.CommandLine
	script := buildScript(s.cfg.DefaultModule, cfg.Modules, executable, args)

	description := jobDescription{
		Name:              s.cfg.JobNamePrefix + executable,
		Partition:         s.cfg.Queue,
		Account:           s.cfg.Project,
		StandardOutput:    s.cfg.OutputPrefix + executable + s.cfg.OutFile,
		StandardError:     s.cfg.OutputPrefix + executable + s.cfg.ErrFile,
		Environment:       env,
		CurrentWorkingDir: "/tmp",
	}

	body := jobSubmitRequest{Script: script, Job: description}
	var resp jobSubmitResponse
	if err := s.doJSON(ctx, http.MethodPost, "/slurm/v0.0.40/job/submit", body, &resp); err != nil {
		return adapter.SubmitResult{}, apierr.SchedulerFailure("failed to submit job: " + err.Error())
	}
	if len(resp.Errors) > 0 {
		return adapter.SubmitResult{}, apierr.SchedulerFailure("slurm rejected job submission: " + resp.Errors[0].Error)
	}

	jobID := fmt.Sprintf("%v", resp.JobID)
	logger.Scheduler().Info().Str("job_id", jobID).Str("executable", executable).Msg("submitted job")
	return adapter.SubmitResult{JobID: jobID}, nil
}

// ResolveHost queries slurmrestd for the job's state and batch host.
func (s *SlurmClient) ResolveHost(ctx context.Context, jobID string) (adapter.HostResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveHostLocked(ctx, jobID)
}

func (s *SlurmClient) resolveHostLocked(ctx context.Context, jobID string) (adapter.HostResolution, error) {
	if err := s.connectLocked(); err != nil {
		return adapter.HostResolution{}, err
	}

	id, err := normalizeJobID(jobID)
	if err != nil {
		return adapter.HostResolution{}, err
	}

	var resp jobQueryResponse
	err = s.doJSON(ctx, http.MethodGet, "/slurm/v0.0.40/job/"+id, nil, &resp)
	if err != nil {
		return adapter.HostResolution{}, apierr.InternalWrap("failed to query job "+id, err)
	}

	if len(resp.Jobs) == 0 {
		return adapter.HostResolution{State: adapter.HostFailed}, nil
	}

	job := resp.Jobs[0]
	for _, state := range job.JobState {
		if terminalFailedStates[state] {
			return adapter.HostResolution{State: adapter.HostFailed}, nil
		}
	}
	for _, state := range job.JobState {
		if state == "RUNNING" && job.BatchHost != "" {
			hostname := job.BatchHost
			if s.cfg.HostDomain != "" && !strings.Contains(hostname, s.cfg.HostDomain) {
				hostname += s.cfg.HostDomain
			}
			return adapter.HostResolution{State: adapter.HostRunning, Hostname: hostname}, nil
		}
	}
	return adapter.HostResolution{State: adapter.HostScheduled}, nil
}

// Cancel issues the graceful-exit probe (if configured), then cancels the
// job and waits up to 2 seconds for it to be observed as cancelled.
func (s *SlurmClient) Cancel(ctx context.Context, req adapter.CancelRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	if req.Config.GracefulExit {
		s.issueGracefulExit(req.Session.HTTPHost, req.Session.HTTPPort)
	}

	id, err := normalizeJobID(req.Session.JobID)
	if err != nil {
		return err
	}

	if err := s.doJSON(ctx, http.MethodDelete, "/slurm/v0.0.40/job/"+id, nil, nil); err != nil {
		logger.Scheduler().Warn().Err(err).Str("job_id", id).Msg("failed to request job cancellation")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resolution, err := s.resolveHostLocked(ctx, req.Session.JobID)
		if err == nil && resolution.State == adapter.HostFailed {
			logger.Scheduler().Info().Str("job_id", id).Msg("job successfully cancelled")
			return nil
		}
		time.Sleep(cancelPollInterval)
	}

	return apierr.SchedulerFailure("could not cancel job " + id + " within timeout")
}

// issueGracefulExit asks the renderer to shut down cleanly. Network errors
// are ignored: the job cancel that follows is the authoritative teardown.
func (s *SlurmClient) issueGracefulExit(host string, port int) {
	url := fmt.Sprintf("http://%s:%d/EXIT", host, port)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := s.probeClient.Do(req)
	if err != nil {
		logger.Scheduler().Debug().Err(err).Msg("failed to contact rendering resource for graceful exit")
		return
	}
	resp.Body.Close()
}

// Kill forcibly terminates jobID via SIGKILL. Best-effort and asynchronous:
// only the not-connected precondition and a malformed job id are reported
// synchronously.
func (s *SlurmClient) Kill(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if err := s.connectLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	id, err := normalizeJobID(jobID)
	if err != nil {
		return err
	}

	go func() {
		killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.doJSON(killCtx, http.MethodDelete, "/slurm/v0.0.40/job/"+id+"?signal=SIGKILL", nil, nil); err != nil {
			logger.Scheduler().Warn().Err(err).Str("job_id", id).Msg("failed to kill job")
		}
	}()
	return nil
}

func (s *SlurmClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.cfg.ServiceURL+path, reader)
	if err != nil {
		return err
	}
	s.authHeaders(httpReq)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slurmrestd returned %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parseEnvPairs splits a whitespace-separated "K=V" list into a map.
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

// buildScript renders the sbatch-style script body: module purge, default
// module load, every configured module load, then the executable and its
// arguments (job_manager.py's create_job pre-script).
func buildScript(defaultModule, modules, executable string, args []string) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("module purge\n")
	if defaultModule != "" {
		b.WriteString("module load " + defaultModule + "\n")
	}
	for _, module := range strings.Fields(modules) {
		b.WriteString("module load " + module + "\n")
	}
	b.WriteString(executable)
	for _, arg := range args {
		b.WriteString(" ")
		b.WriteString(arg)
	}
	b.WriteString("\n")
	return b.String()
}
