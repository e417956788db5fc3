package scheduler

import "time"

// jobSubmitRequest is the slurmrestd /job/submit request body. Field names
// and shapes mirror slurmrestd's job submission schema (v0.0.40).
type jobSubmitRequest struct {
	Script string         `json:"script"`
	Job    jobDescription `json:"job"`
}

// jobDescription is the subset of slurmrestd's job description object this
// adapter populates, corresponding field-for-field to the sbatch script
// directives the original SAGA-based job description set (job_manager.py:
// name, queue/partition, project/account, output/error paths, environment).
type jobDescription struct {
	Name                string            `json:"name"`
	Partition           string            `json:"partition,omitempty"`
	Account             string            `json:"account,omitempty"`
	StandardOutput      string            `json:"standard_output,omitempty"`
	StandardError       string            `json:"standard_error,omitempty"`
	Environment         map[string]string `json:"environment,omitempty"`
	CurrentWorkingDir   string            `json:"current_working_directory,omitempty"`
}

type jobSubmitResponse struct {
	JobID  interface{}    `json:"job_id"`
	Errors []slurmAPIError `json:"errors,omitempty"`
}

type slurmAPIError struct {
	Error       string `json:"error"`
	ErrorNumber int    `json:"error_number"`
}

// jobQueryResponse is the slurmrestd GET /job/{id} response shape.
type jobQueryResponse struct {
	Jobs   []jobInfo      `json:"jobs"`
	Errors []slurmAPIError `json:"errors,omitempty"`
}

type jobInfo struct {
	JobID     interface{} `json:"job_id"`
	JobState  []string    `json:"job_state"`
	BatchHost string      `json:"batch_host"`
}

// terminalFailedStates are job_state values meaning the job no longer
// exists or ended without ever producing a usable renderer endpoint.
var terminalFailedStates = map[string]bool{
	"FAILED":    true,
	"CANCELLED": true,
	"TIMEOUT":   true,
	"NODE_FAIL": true,
	"DEADLINE":  true,
	"BOOT_FAIL": true,
	"OUT_OF_MEMORY": true,
}

const cancelPollInterval = 200 * time.Millisecond
