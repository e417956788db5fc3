// Package scheduler implements the Scheduler Adapter (C3): submission,
// querying, cancellation and host resolution of cluster jobs via Slurm's
// REST API daemon, slurmrestd.
package scheduler

import "time"

// Config carries the SLURM_* process configuration recognized by the core.
type Config struct {
	// ServiceURL is the base URL of slurmrestd, e.g. "http://slurm-head:6820".
	ServiceURL string
	// Username/Password authenticate against slurmrestd's auth/jwt plugin;
	// exchanged for the X-SLURM-USER-NAME/X-SLURM-USER-TOKEN headers.
	Username string
	Password string
	// Host is the cluster head node used for narrow interoperability
	// helpers; HostDomain is appended to bare hostnames missing it.
	Host       string
	HostDomain string
	// Queue/Project/DefaultModule/JobNamePrefix feed job submission.
	Queue         string
	Project       string
	DefaultModule string
	JobNamePrefix string
	// OutputPrefix/OutFile/ErrFile build stdout/stderr paths.
	OutputPrefix string
	OutFile      string
	ErrFile      string
	// RequestTimeout bounds renderer probes (vocabulary, EXIT).
	RequestTimeout time.Duration
}
