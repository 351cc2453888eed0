package suite

import (
	"fmt"
	"strings"
	"time"

	"github.com/anggasct/fsmtester/pkg/utils"
)

// Result is the outcome of a single case
type Result struct {
	Case     string        `json:"case"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Trace    []string      `json:"trace,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates the results of one suite run
type Report struct {
	SessionID      string        `json:"session_id,omitempty"`
	Suite          string        `json:"suite"`
	FailureMessage string        `json:"failure_message"`
	Results        []Result      `json:"results"`
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration"`
	Aborted        bool          `json:"aborted,omitempty"`
}

// Passed reports whether no case failed and the run was not aborted
func (r *Report) Passed() bool {
	return !r.Aborted && len(r.Failures()) == 0
}

// Failures returns the failed results in run order
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many results have the given status
func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Summary returns "[<failure message>]: " followed by every failing case,
// or an empty string when the suite passed
func (r *Report) Summary() string {
	failures := r.Failures()
	if len(failures) == 0 {
		return ""
	}

	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		part := fmt.Sprintf("%s: %s", f.Case, f.Message)
		if len(f.Trace) > 0 {
			part += fmt.Sprintf(" (trace: %s)", strings.Join(f.Trace, " -> "))
		}
		parts = append(parts, part)
	}

	return fmt.Sprintf("[%s]: %s", r.FailureMessage, strings.Join(parts, "; "))
}

// Err returns a verification error carrying the summary, or nil
func (r *Report) Err() error {
	if r.Passed() {
		return nil
	}
	summary := r.Summary()
	if summary == "" {
		summary = fmt.Sprintf("[%s]: run aborted", r.FailureMessage)
	}
	return utils.NewVerificationError([]string{summary}).
		WithDetail("suite", r.Suite)
}
