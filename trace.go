package planloop

import "time"

// VerificationStatus classifies the supervisor's verdict on one executed
// executor after the main task reaches Done.
type VerificationStatus string

const (
	// VerificationVerified means the executor confirmed its own outcome.
	VerificationVerified VerificationStatus = "executed_and_verified"

	// VerificationUnverified means the executor had no means to confirm the
	// outcome, e.g. it used no tools or was unreachable. Not a failure.
	VerificationUnverified VerificationStatus = "executed_but_unverified"

	// VerificationFailed means the executor found evidence its outcome does
	// not hold.
	VerificationFailed VerificationStatus = "verification_failed"
)

// Overall verification outcome of a completed instance. The run fails iff at
// least one executor verdict is verification_failed.
const (
	OverallPassed  = "passed"
	OverallFailed  = "failed"
	OverallUnknown = "unknown"
)

// ChecklistEntry is one executed executor and the supervisor's verdict on it.
// An executor counts as executed when the target task of its listener's
// success output is Done.
type ChecklistEntry struct {
	ExecutorID string             `json:"executor_id"`
	TaskID     string             `json:"task_id"`
	TaskName   string             `json:"task_name"`
	Status     VerificationStatus `json:"status"`
	ToolsUsed  []string           `json:"tools_used,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

// Verification is the supervisor's aggregate verdict on a completed instance.
type Verification struct {
	OverallStatus string           `json:"overall_status"`
	Checklist     []ChecklistEntry `json:"checklist"`
	At            time.Time        `json:"at"`
}

// TraceSummary aggregates the per-executor verdicts.
type TraceSummary struct {
	OverallStatus       string `json:"overall_status"`
	VerifiedCount       int    `json:"verified_count"`
	UnableToVerifyCount int    `json:"unable_to_verify_count"`
	FailedCount         int    `json:"failed_count"`
	TotalCount          int    `json:"total_count"`
}

// ExecutionTrace is the human-oriented progress view of an instance: the
// per-executor verification checklist and its summary. Before the supervisor
// has produced verdicts the checklist is empty and the overall status is
// unknown.
type ExecutionTrace struct {
	InstanceID            string           `json:"instance_id"`
	PlanID                string           `json:"plan_id"`
	Status                InstanceStatus   `json:"status"`
	Checklist             []ChecklistEntry `json:"checklist"`
	Summary               TraceSummary     `json:"summary"`
	VerificationCompleted bool             `json:"verification_completed"`
}

func buildExecutionTrace(st *InstanceState, verification *Verification) *ExecutionTrace {
	trace := &ExecutionTrace{
		InstanceID: st.InstanceID,
		PlanID:     st.PlanID,
		Status:     st.Status,
		Summary:    TraceSummary{OverallStatus: OverallUnknown},
	}
	if verification == nil {
		return trace
	}

	trace.Checklist = verification.Checklist
	trace.VerificationCompleted = true
	trace.Summary.OverallStatus = verification.OverallStatus
	for _, entry := range verification.Checklist {
		trace.Summary.TotalCount++
		switch entry.Status {
		case VerificationVerified:
			trace.Summary.VerifiedCount++
		case VerificationFailed:
			trace.Summary.FailedCount++
		default:
			trace.Summary.UnableToVerifyCount++
		}
	}
	return trace
}
