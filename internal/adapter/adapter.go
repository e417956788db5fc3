// Package adapter defines the shared contract implemented by the Scheduler
// Adapter (C3, cluster jobs) and the Process Adapter (C4, local forks), so
// the Session Engine can drive either without knowing which backend a given
// session was scheduled onto.
package adapter

import (
	"context"

	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

// HostState describes the outcome of a ResolveHost call.
type HostState int

const (
	// HostScheduled means the job/process exists but has no batch host yet.
	HostScheduled HostState = iota
	// HostRunning means a batch host has been assigned.
	HostRunning
	// HostFailed means the job/process no longer exists or failed terminally.
	HostFailed
)

// HostResolution is the result of resolving a job's batch host.
type HostResolution struct {
	State    HostState
	Hostname string
	// Port is the bound port to probe at Hostname, when the backend tracks
	// one per job. Zero means "use the Engine's default port" (the Scheduler
	// Adapter never sets this: cluster jobs share one well-known port).
	Port int
}

// SubmitResult is the identifier Submit hands back for a launched renderer.
// Exactly one of JobID/ProcessPID is populated, matching which backend
// launched it: the Scheduler Adapter sets JobID, the Process Adapter sets
// ProcessPID.
type SubmitResult struct {
	JobID      string
	ProcessPID int
}

// SubmitRequest carries everything an adapter needs to launch one renderer
// instance for a session.
type SubmitRequest struct {
	Config      config.RendererConfig
	Session     sessionstore.Session
	ExtraParams string
	ExtraEnv    string
}

// CancelRequest carries everything an adapter needs to tear a session's
// renderer down.
type CancelRequest struct {
	Config  config.RendererConfig
	Session sessionstore.Session
}

// Adapter is the shared scheduling contract for both cluster jobs and local
// processes: the Session Engine drives either one through the same four
// calls without knowing which backend a session landed on.
type Adapter interface {
	// Submit launches the renderer and returns its job/process identifier.
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	// ResolveHost resolves the batch host/local bind address for jobID.
	ResolveHost(ctx context.Context, jobID string) (HostResolution, error)
	// Cancel gracefully stops the renderer named by req, issuing the
	// configured graceful-exit probe first when req.Config.GracefulExit.
	Cancel(ctx context.Context, req CancelRequest) error
	// Kill forcibly terminates jobID. Used only after a failed Cancel.
	Kill(ctx context.Context, jobID string) error
}
