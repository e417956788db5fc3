package scheduler

import (
	"regexp"
	"strings"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// bracketedJobID matches the integer array-task id classic sbatch embeds in
// job ids of the form "<name>-[<id>]". slurmrestd itself returns a plain
// numeric job id, so this helper exists only to interoperate with ids
// formatted this way by external tooling.
var bracketedJobID = regexp.MustCompile(`-\[(\d+)\]`)

// normalizeJobID extracts the bare numeric id from a bracketed job id, or
// returns jobID unchanged if it carries no bracket suffix. A malformed
// bracketed id (bracket present but unparsable) is an Internal error.
func normalizeJobID(jobID string) (string, error) {
	if !strings.Contains(jobID, "-[") {
		return jobID, nil
	}
	match := bracketedJobID.FindStringSubmatch(jobID)
	if len(match) != 2 || match[1] == "" {
		return "", apierr.Internal("malformed job id: " + jobID)
	}
	return match[1], nil
}
