package planloop

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultMainTaskID is the conventional id of the main task. It is a fixed
// sentinel so that default error handling and completion verification can
// always locate the main task without per-plan configuration.
const DefaultMainTaskID = "001"

// Plan is an immutable workflow template: an ordered set of tasks plus the
// listeners that advance them. A Plan is never mutated at runtime; every
// execution creates a PlanInstance.
type Plan struct {
	ID          string
	Name        string
	Description string

	// MainTaskID designates the task whose Done/Error transitions are observed
	// by the supervisor. Empty means DefaultMainTaskID.
	MainTaskID string

	Tasks     []Task
	Listeners []Listener
}

// Task is a template slot in the workflow. Description is passed to the
// executor as natural-language guidance when a listener dispatches work
// toward this task.
type Task struct {
	ID          string
	Name        string
	Description string
}

// Listener binds a task-status trigger and an action condition to an executor
// dispatch and the task updates that follow it.
type Listener struct {
	ID string

	// TriggerTaskIDs are the tasks whose transitions wake this listener. A
	// listener waiting on the conjunction of several upstream tasks lists all
	// of them here so that any of their transitions re-evaluates the condition.
	TriggerTaskIDs []string

	// TriggerStatus is the status the triggering task must have reached.
	// StatusAny wakes the listener on every transition.
	TriggerStatus TaskStatus

	// ActionCondition is a boolean expression over task statuses, evaluated
	// against the whole instance at trigger time. Empty means always eligible.
	ActionCondition string

	// Action is what the listener executes once eligible.
	Action Action

	// SuccessOutput is applied when the dispatch succeeds.
	SuccessOutput *Output

	// FailureOutput, when set, is applied verbatim on dispatch failure and
	// bypasses the supervisor's automatic retry. When nil, a failed dispatch
	// falls back to the default error rule (main task to Error).
	FailureOutput *Output

	// PollInterval turns the listener into a polling listener: when its
	// trigger fires but the action condition is unsatisfied, the condition is
	// re-checked on this interval instead of waiting for the next transition.
	PollInterval time.Duration
}

// CodeFunc is the inline-code executor shape: the instance context in, a
// result payload out.
type CodeFunc func(ctx context.Context, env map[string]any) (map[string]any, error)

// Action is a tagged variant: exactly one of Agent or Code is set.
type Action struct {
	Agent *AgentAction
	Code  *CodeAction
}

// AgentAction dispatches to a remote executor through the engine's Transport.
type AgentAction struct {
	// AgentID identifies the executor at the transport.
	AgentID string

	// Prompt is the natural-language instruction. It may reference instance
	// state with {taskID.context.field} and {values.key} placeholders.
	Prompt string
}

// CodeAction runs inline logic. Func takes precedence; Source is an
// interpreted snippet handed to the engine's script runner.
type CodeAction struct {
	Func   CodeFunc
	Source string
}

// Output describes a task update produced by a listener outcome. Context
// values are templates: a value may reference the execution result with
// {result.field} and other tasks with {taskID.context.field}.
type Output struct {
	TaskID  string
	Status  TaskStatus
	Context map[string]string
}

// mainTaskID returns the effective main task id.
func (p *Plan) mainTaskID() string {
	if p.MainTaskID != "" {
		return p.MainTaskID
	}
	return DefaultMainTaskID
}

// task returns the task definition for id, or nil.
func (p *Plan) task(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// listener returns the listener definition for id, or nil.
func (p *Plan) listener(id string) *Listener {
	for i := range p.Listeners {
		if p.Listeners[i].ID == id {
			return &p.Listeners[i]
		}
	}
	return nil
}

// Validate checks the structural integrity of the plan template. It is called
// by the engine before an instance is created, so configuration mistakes
// surface at start time rather than mid-run.
func (p *Plan) Validate() error {
	eb := goerr.NewBuilder(goerr.V("plan_id", p.ID))

	if p.ID == "" {
		return eb.Wrap(ErrInvalidPlan, "plan id is required")
	}
	if len(p.Tasks) == 0 {
		return eb.Wrap(ErrInvalidPlan, "plan has no tasks")
	}

	taskIDs := make(map[string]struct{}, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ID == "" {
			return eb.Wrap(ErrInvalidPlan, "task id is required")
		}
		if _, ok := taskIDs[t.ID]; ok {
			return eb.Wrap(ErrInvalidPlan, "duplicated task id", goerr.V("task_id", t.ID))
		}
		taskIDs[t.ID] = struct{}{}
	}

	if _, ok := taskIDs[p.mainTaskID()]; !ok {
		return eb.Wrap(ErrInvalidPlan, "main task is not defined", goerr.V("main_task_id", p.mainTaskID()))
	}

	listenerIDs := make(map[string]struct{}, len(p.Listeners))
	for i := range p.Listeners {
		l := &p.Listeners[i]
		if l.ID == "" {
			return eb.Wrap(ErrInvalidPlan, "listener id is required")
		}
		if _, ok := listenerIDs[l.ID]; ok {
			return eb.Wrap(ErrInvalidPlan, "duplicated listener id", goerr.V("listener_id", l.ID))
		}
		listenerIDs[l.ID] = struct{}{}

		if len(l.TriggerTaskIDs) == 0 {
			return eb.Wrap(ErrInvalidPlan, "listener has no trigger task", goerr.V("listener_id", l.ID))
		}
		for _, tid := range l.TriggerTaskIDs {
			if _, ok := taskIDs[tid]; !ok {
				return eb.Wrap(ErrInvalidPlan, "trigger task is not defined",
					goerr.V("listener_id", l.ID), goerr.V("task_id", tid))
			}
		}
		if l.TriggerStatus != StatusAny && !l.TriggerStatus.Valid() {
			return eb.Wrap(ErrInvalidPlan, "invalid trigger status",
				goerr.V("listener_id", l.ID), goerr.V("status", l.TriggerStatus))
		}

		if (l.Action.Agent == nil) == (l.Action.Code == nil) {
			return eb.Wrap(ErrInvalidPlan, "listener must have exactly one of agent or code action",
				goerr.V("listener_id", l.ID))
		}
		if l.Action.Agent != nil && l.Action.Agent.AgentID == "" {
			return eb.Wrap(ErrInvalidPlan, "agent action requires agent id", goerr.V("listener_id", l.ID))
		}
		if l.Action.Code != nil && l.Action.Code.Func == nil && strings.TrimSpace(l.Action.Code.Source) == "" {
			return eb.Wrap(ErrInvalidPlan, "code action requires func or source", goerr.V("listener_id", l.ID))
		}

		if l.SuccessOutput == nil {
			return eb.Wrap(ErrInvalidPlan, "listener requires success output", goerr.V("listener_id", l.ID))
		}
		for _, out := range []*Output{l.SuccessOutput, l.FailureOutput} {
			if out == nil {
				continue
			}
			if _, ok := taskIDs[out.TaskID]; !ok {
				return eb.Wrap(ErrInvalidPlan, "output task is not defined",
					goerr.V("listener_id", l.ID), goerr.V("task_id", out.TaskID))
			}
			if !out.Status.Valid() {
				return eb.Wrap(ErrInvalidPlan, "invalid output status",
					goerr.V("listener_id", l.ID), goerr.V("status", out.Status))
			}
		}

		if l.ActionCondition != "" {
			if _, err := parseCondition(l.ActionCondition); err != nil {
				return eb.Wrap(err, "invalid action condition", goerr.V("listener_id", l.ID))
			}
		}
	}

	return nil
}
