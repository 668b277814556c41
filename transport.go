package planloop

import "context"

//go:generate go run github.com/matryer/moq -out mock/mocks.go -pkg mock . Transport PlanRepository Journal

// Reserved result reasons with engine-level semantics.
const (
	// ReasonMissingParams marks a dispatch that could not proceed because the
	// executor lacked required input. The engine routes it to Pause/Continue
	// instead of the error path.
	ReasonMissingParams = "missing_params"
)

// Transport invokes a remote executor. It is used both for ordinary listener
// dispatch and for the supervisor's completion-verification requests; the
// engine never depends on a concrete protocol.
//
// Implementations live under executor/ (claude, openai, mcp). An invocation
// error is treated as a failed dispatch, not as an engine failure.
type Transport interface {
	Invoke(ctx context.Context, executorID, instruction string, params map[string]any) (*Result, error)
}

// Result is the uniform envelope every executor invocation returns.
type Result struct {
	// Success reports whether the executor completed its work.
	Success bool `json:"success"`

	// Reason qualifies a failure. ReasonMissingParams has reserved semantics.
	Reason string `json:"reason,omitempty"`

	// Data is the business payload. Output context templates reference it
	// with {result.field} placeholders.
	Data map[string]any `json:"data,omitempty"`

	// TaskUpdates are explicit status updates requested by the executor. On
	// failure, their absence (together with a missing failure output on the
	// listener) activates the default error rule.
	TaskUpdates []TaskUpdate `json:"task_updates,omitempty"`

	// RequiredParams describes missing input when Reason is ReasonMissingParams.
	RequiredParams []ParamSpec `json:"required_params,omitempty"`

	// ToolsUsed lists the executor-side tools invoked while handling the
	// request. The supervisor uses it during verification: an executor that
	// invoked no tool is classified as unable to verify, not as failed.
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// TaskUpdate is a single task status/context change requested by an executor
// or derived from a listener output.
type TaskUpdate struct {
	TaskID  string         `json:"task_id"`
	Status  TaskStatus     `json:"status"`
	Context map[string]any `json:"context,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// ParamSpec is the structured description of one missing parameter: enough
// for a caller to render an input form and for the engine to validate the
// provided value.
type ParamSpec struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Label   string   `json:"label,omitempty"`
	Options []string `json:"options,omitempty"`

	// Validation is a JSON Schema fragment applied to the provided value.
	Validation map[string]any `json:"validation,omitempty"`
}

// ScriptRunner executes the source body of a code listener. The yaegi-backed
// implementation lives in executor/script.
type ScriptRunner interface {
	RunScript(ctx context.Context, source string, env map[string]any) (map[string]any, error)
}
