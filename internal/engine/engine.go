// Package engine implements the Session Engine (C5): the state machine
// governing a rendering session from creation through scheduling, hostname
// discovery, readiness probing, active service, idle expiration and
// termination.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ppodhajski/RenderingResourceManager/internal/adapter"
	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/policy"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

// vocabularyPath is the renderer readiness probe path, conventionally
// called "vocabulary". 200 means ready, 404 means the job is gone, anything
// else means busy.
const vocabularyPath = "/registry"

// Options configures an Engine beyond its required collaborators.
type Options struct {
	// RequestTimeout bounds the vocabulary probe.
	RequestTimeout time.Duration
	// DefaultPort is the port every renderer is expected to bind to. Jobs
	// are scheduled onto an exclusive node (job_manager.py's SBATCH
	// --exclusive directive), so a single well-known port can be reused
	// across sessions without collision.
	DefaultPort int
}

// Engine drives the session lifecycle. A single instance is shared by every
// request; all mutation of a given session id is serialized by the Session
// Store.
type Engine struct {
	configs  config.Store
	sessions sessionstore.Store
	policies policy.Store
	adapter  adapter.Adapter

	httpClient  *http.Client
	defaultPort int
}

// New creates a Session Engine.
func New(configs config.Store, sessions sessionstore.Store, policies policy.Store, renderAdapter adapter.Adapter, opts Options) *Engine {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	port := opts.DefaultPort
	if port <= 0 {
		port = 5000
	}
	return &Engine{
		configs:     configs,
		sessions:    sessions,
		policies:    policies,
		adapter:     renderAdapter,
		httpClient:  &http.Client{Timeout: timeout},
		defaultPort: port,
	}
}

// StatusResponse is the wire shape returned by QueryStatus: session id,
// status code and text, and the renderer's reported hostname/port.
type StatusResponse struct {
	SessionID   string             `json:"session_id"`
	StatusCode  sessionstore.Status `json:"status_code"`
	StatusText  string             `json:"status_text"`
	Hostname    string             `json:"hostname"`
	Port        int                `json:"port"`
}

func responseFor(s sessionstore.Session, description string) StatusResponse {
	return StatusResponse{
		SessionID:  s.ID,
		StatusCode: s.Status,
		StatusText: description,
		Hostname:   s.HTTPHost,
		Port:       s.HTTPPort,
	}
}

// CreateSession inserts a new session row in SCHEDULING status. Job
// submission is a separate step (Schedule) — create is side-effect-free
// beyond the row insert.
func (e *Engine) CreateSession(ctx context.Context, owner, configurationID string) (sessionstore.Session, error) {
	pol, err := e.policies.Get(ctx)
	if err != nil {
		return sessionstore.Session{}, err
	}
	if !pol.SessionCreationEnabled {
		return sessionstore.Session{}, apierr.Forbidden("session creation is currently suspended")
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return sessionstore.Session{}, apierr.InternalWrap("failed to generate session id", err)
	}

	now := time.Now().UTC()
	session := sessionstore.Session{
		ID:              id.String(),
		Owner:           owner,
		ConfigurationID: configurationID,
		Status:          sessionstore.StatusScheduling,
		ProcessPID:      sessionstore.ProcessPIDUnset,
		Created:         now,
		ValidUntil:      now.Add(time.Duration(pol.KeepAliveTimeoutSeconds) * time.Second),
	}

	if err := e.sessions.Insert(ctx, session); err != nil {
		return sessionstore.Session{}, err
	}

	logger.Engine().Info().Str("session_id", session.ID).Str("owner", owner).Msg("session created")
	return session, nil
}

// Schedule resolves the session's RendererConfig, submits the renderer via
// the configured Adapter, and advances the session to SCHEDULED (or FAILED
// on submission error).
func (e *Engine) Schedule(ctx context.Context, sessionID, extraParams, extraEnv string) (sessionstore.Session, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return sessionstore.Session{}, err
	}

	cfg, err := config.GetLowercased(ctx, e.configs, session.ConfigurationID)
	if err != nil {
		e.markFailed(ctx, sessionID)
		return sessionstore.Session{}, err
	}

	session.HTTPPort = e.defaultPort
	result, err := e.adapter.Submit(ctx, adapter.SubmitRequest{
		Config:      cfg,
		Session:     session,
		ExtraParams: extraParams,
		ExtraEnv:    extraEnv,
	})
	if err != nil {
		e.markFailed(ctx, sessionID)
		return sessionstore.Session{}, apierr.As(err)
	}

	updated, err := e.sessions.Update(ctx, sessionID, func(s *sessionstore.Session) error {
		if result.JobID != "" {
			s.JobID = result.JobID
			s.ProcessPID = sessionstore.ProcessPIDUnset
		} else {
			s.JobID = ""
			s.ProcessPID = result.ProcessPID
		}
		s.HTTPPort = e.defaultPort
		s.Status = sessionstore.StatusScheduled
		return nil
	})
	if err != nil {
		return sessionstore.Session{}, err
	}

	logger.Engine().Info().Str("session_id", sessionID).Str("identifier", adapterIdentifier(updated)).Msg("session scheduled")
	return updated, nil
}

// adapterIdentifier returns the string key the Adapter tracks this session
// under: its JobID for a Scheduler Adapter session, or its ProcessPID for a
// Process Adapter session.
func adapterIdentifier(s sessionstore.Session) string {
	if s.JobID != "" {
		return s.JobID
	}
	return strconv.Itoa(s.ProcessPID)
}

func (e *Engine) markFailed(ctx context.Context, sessionID string) {
	_, err := e.sessions.Update(ctx, sessionID, func(s *sessionstore.Session) error {
		s.Status = sessionstore.StatusFailed
		return nil
	})
	if err != nil {
		logger.Engine().Warn().Str("session_id", sessionID).Err(err).Msg("failed to persist FAILED status")
	}
}

// QueryStatus drives forward progress through the lifecycle graph. It is
// idempotent per call: each invocation advances at most one stage.
//
// A non-nil error from a failed adapter transport call is non-terminal: the
// returned StatusResponse still reflects the last-persisted state, and the
// caller should surface it as a 503 hint rather than discard the response.
func (e *Engine) QueryStatus(ctx context.Context, sessionID string) (StatusResponse, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return StatusResponse{}, err
	}

	switch session.Status {
	case sessionstore.StatusScheduling:
		return responseFor(session, session.Status.Describe(session.ConfigurationID)), nil

	case sessionstore.StatusScheduled, sessionstore.StatusGettingHostname:
		return e.advanceHostDiscovery(ctx, session)

	case sessionstore.StatusStarting:
		return e.advanceStarting(ctx, session)

	case sessionstore.StatusRunning:
		return e.advanceRunning(ctx, session)

	case sessionstore.StatusBusy:
		return e.advanceBusy(ctx, session)

	case sessionstore.StatusStopping, sessionstore.StatusStopped, sessionstore.StatusFailed:
		return responseFor(session, session.Status.Describe(session.ConfigurationID)), nil

	default:
		return responseFor(session, "undefined"), nil
	}
}

func (e *Engine) advanceHostDiscovery(ctx context.Context, session sessionstore.Session) (StatusResponse, error) {
	resolution, err := e.adapter.ResolveHost(ctx, adapterIdentifier(session))
	if err != nil {
		return responseFor(session, session.Status.Describe(session.ConfigurationID)), apierr.Unavailable("scheduler unreachable: " + err.Error())
	}

	if resolution.State == adapter.HostFailed {
		e.markFailed(ctx, session.ID)
		session.Status = sessionstore.StatusFailed
		return responseFor(session, session.Status.Describe(session.ConfigurationID)), nil
	}

	if resolution.State == adapter.HostRunning && resolution.Hostname != "" {
		updated, err := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.HTTPHost = resolution.Hostname
			if resolution.Port != 0 {
				s.HTTPPort = resolution.Port
			}
			s.Status = sessionstore.StatusStarting
			return nil
		})
		if err != nil {
			return StatusResponse{}, err
		}
		return responseFor(updated, updated.ConfigurationID+" is starting"), nil
	}

	if session.Status == sessionstore.StatusScheduled {
		updated, err := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusGettingHostname
			return nil
		})
		if err != nil {
			return StatusResponse{}, err
		}
		session = updated
	}
	return responseFor(session, session.ConfigurationID+" is scheduled"), nil
}

func (e *Engine) advanceStarting(ctx context.Context, session sessionstore.Session) (StatusResponse, error) {
	cfg, err := config.GetLowercased(ctx, e.configs, session.ConfigurationID)
	if err != nil {
		return StatusResponse{}, err
	}

	if !cfg.WaitUntilRunning {
		updated, err := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusRunning
			return nil
		})
		if err != nil {
			return StatusResponse{}, err
		}
		return responseFor(updated, updated.ConfigurationID+" is up and running"), nil
	}

	code, err := e.probeVocabulary(ctx, session)
	switch {
	case err == nil && code == http.StatusOK:
		updated, err := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusRunning
			return nil
		})
		if err != nil {
			return StatusResponse{}, err
		}
		return responseFor(updated, updated.ConfigurationID+" is up and running"), nil
	case err == nil && code == http.StatusNotFound:
		updated, uerr := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusStopped
			return nil
		})
		if uerr != nil {
			return StatusResponse{}, uerr
		}
		return responseFor(updated, "job has been cancelled"), nil
	default:
		return responseFor(session, session.ConfigurationID+" is starting but the HTTP interface is not yet available"), nil
	}
}

func (e *Engine) advanceRunning(ctx context.Context, session sessionstore.Session) (StatusResponse, error) {
	if time.Now().UTC().After(session.ValidUntil) {
		pol, err := e.policies.Get(ctx)
		if err != nil {
			return StatusResponse{}, err
		}
		updated, err := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.ValidUntil = time.Now().UTC().Add(time.Duration(pol.KeepAliveTimeoutSeconds) * time.Second)
			return nil
		})
		if err != nil {
			return StatusResponse{}, err
		}
		session = updated
	}

	code, err := e.probeVocabulary(ctx, session)
	switch {
	case err == nil && code == http.StatusOK:
		return responseFor(session, session.ConfigurationID+" is up and running"), nil
	case err == nil && code == http.StatusNotFound:
		updated, uerr := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusStopped
			return nil
		})
		if uerr != nil {
			return StatusResponse{}, uerr
		}
		return responseFor(updated, "job has been cancelled"), nil
	default:
		updated, uerr := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusBusy
			return nil
		})
		if uerr != nil {
			return StatusResponse{}, uerr
		}
		return responseFor(updated, updated.ConfigurationID+" is busy"), nil
	}
}

func (e *Engine) advanceBusy(ctx context.Context, session sessionstore.Session) (StatusResponse, error) {
	code, err := e.probeVocabulary(ctx, session)
	switch {
	case err == nil && code == http.StatusOK:
		updated, uerr := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusRunning
			return nil
		})
		if uerr != nil {
			return StatusResponse{}, uerr
		}
		return responseFor(updated, updated.ConfigurationID+" is up and running"), nil
	case err == nil && code == http.StatusNotFound:
		updated, uerr := e.sessions.Update(ctx, session.ID, func(s *sessionstore.Session) error {
			s.Status = sessionstore.StatusStopped
			return nil
		})
		if uerr != nil {
			return StatusResponse{}, uerr
		}
		return responseFor(updated, "job has been cancelled"), nil
	default:
		return responseFor(session, session.ConfigurationID+" is busy"), nil
	}
}

// probeVocabulary issues the renderer readiness probe and returns its HTTP
// status code. A transport-level error (host unreachable) is reported
// through err, distinct from a well-formed non-200/404 response.
func (e *Engine) probeVocabulary(ctx context.Context, session sessionstore.Session) (int, error) {
	url := fmt.Sprintf("http://%s:%d%s", session.HTTPHost, session.HTTPPort, vocabularyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// KeepAlive extends a session's valid_until. It never advances status, and
// has no effect on a session already in a terminal state: a terminal
// session accepts the call but silently leaves valid_until untouched.
func (e *Engine) KeepAlive(ctx context.Context, sessionID string) (sessionstore.Session, error) {
	pol, err := e.policies.Get(ctx)
	if err != nil {
		return sessionstore.Session{}, err
	}

	return e.sessions.Update(ctx, sessionID, func(s *sessionstore.Session) error {
		if s.Status.IsTerminal() {
			return nil
		}
		s.ValidUntil = time.Now().UTC().Add(time.Duration(pol.KeepAliveTimeoutSeconds) * time.Second)
		return nil
	})
}

// DeleteSession sets STOPPING, best-effort stops and kills the underlying
// job/process, then removes the row. Adapter errors during teardown are
// logged but never block row removal, guaranteeing deletion idempotence
// from the client's perspective.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := e.sessions.Update(ctx, sessionID, func(s *sessionstore.Session) error {
		s.Status = sessionstore.StatusStopping
		return nil
	})
	if err != nil {
		return err
	}

	if session.JobID != "" || session.ProcessPID != sessionstore.ProcessPIDUnset {
		cfg, cfgErr := config.GetLowercased(ctx, e.configs, session.ConfigurationID)
		if cfgErr != nil {
			logger.Engine().Warn().Str("session_id", sessionID).Err(cfgErr).Msg("could not resolve config for teardown, skipping graceful cancel")
		} else {
			cancelErr := e.adapter.Cancel(ctx, adapter.CancelRequest{Config: cfg, Session: session})
			if cancelErr != nil {
				logger.Engine().Warn().Str("session_id", sessionID).Err(cancelErr).Msg("cancel failed, falling back to kill")
				if killErr := e.adapter.Kill(ctx, adapterIdentifier(session)); killErr != nil {
					logger.Engine().Warn().Str("session_id", sessionID).Err(killErr).Msg("kill failed")
				}
			}
		}
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		logger.Engine().Warn().Str("session_id", sessionID).Err(err).Msg("row already removed")
	}

	logger.Engine().Info().Str("session_id", sessionID).Msg("session destroyed")
	return nil
}

// ListSessions returns every session row.
func (e *Engine) ListSessions(ctx context.Context) ([]sessionstore.Session, error) {
	return e.sessions.List(ctx)
}

// ClearAll removes every session row without invoking the adapter, mirroring
// the original's administrative "nuke the index" escape hatch
// (SessionManager.clear_sessions bypasses cancel/kill entirely).
func (e *Engine) ClearAll(ctx context.Context) error {
	sessions, err := e.sessions.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := e.sessions.Delete(ctx, s.ID); err != nil {
			logger.Engine().Warn().Str("session_id", s.ID).Err(err).Msg("failed to clear session")
		}
	}
	return nil
}
