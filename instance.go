package planloop

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Control fields stored in task contexts. They are cleared by reset-for-retry;
// business values produced by successful listeners are not.
const (
	ctxKeyFailedListener = "failed_listener_id"
	ctxKeyError          = "error"
	ctxKeyPausedListener = "paused_listener_id"
	ctxKeyRequiredParams = "required_params"
	ctxKeyVerification   = "verification"
)

// valuesKeyProvidedParams is where Continue merges caller-supplied parameters
// within the instance values map.
const valuesKeyProvidedParams = "provided_params"

// PlanInstance is one running execution of a Plan. All mutable state of a run
// is owned by its instance; nothing is shared across instances.
type PlanInstance struct {
	id   string
	plan *Plan

	status InstanceStatus

	// context tree: business values and bookkeeping metadata
	values   map[string]any
	metadata map[string]any

	tasks map[string]*TaskInstance

	// executed holds listener instance ids that have been dispatched. It is
	// the sole idempotency guard against double-firing a listener whose
	// prerequisites complete near-simultaneously.
	executed map[string]struct{}

	// retryCount tracks supervisor retries per listener id.
	retryCount map[string]int

	pause   *pauseState
	waiting *resumeState

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

// pauseState records a suspension for missing parameters.
type pauseState struct {
	ListenerID string
	Required   []ParamSpec
}

// resumeState is the waiting_for_resume marker set on retry exhaustion.
type resumeState struct {
	ListenerID string
	Retries    int
}

// TaskInstance is the runtime state of one task slot within an instance.
type TaskInstance struct {
	TaskID  string
	Name    string
	Status  TaskStatus
	Context map[string]any
	Trace   []TransitionRecord
}

// TransitionRecord is one entry of a task's status history.
type TransitionRecord struct {
	From   TaskStatus
	To     TaskStatus
	Reason string
	At     time.Time
}

func newPlanInstance(id string, plan *Plan, initial map[string]any) *PlanInstance {
	now := time.Now()

	inst := &PlanInstance{
		id:         id,
		plan:       plan,
		status:     InstanceStatusNotStarted,
		values:     map[string]any{},
		metadata:   map[string]any{"created_at": now.Format(time.RFC3339)},
		tasks:      make(map[string]*TaskInstance, len(plan.Tasks)),
		executed:   map[string]struct{}{},
		retryCount: map[string]int{},
		createdAt:  now,
	}
	for k, v := range initial {
		inst.values[k] = v
	}
	for _, t := range plan.Tasks {
		inst.tasks[t.ID] = &TaskInstance{
			TaskID:  t.ID,
			Name:    t.Name,
			Status:  TaskStatusNotStarted,
			Context: map[string]any{},
		}
	}
	return inst
}

func (x *PlanInstance) mainTask() *TaskInstance {
	return x.tasks[x.plan.mainTaskID()]
}

// listenerInstanceID is the instance-scoped id of a listener, used for the
// executed-set and for failed_listener_id markers.
func listenerInstanceID(instanceID, listenerID string) string {
	return instanceID + "_" + listenerID
}

func (x *PlanInstance) listenerInstanceID(listenerID string) string {
	return listenerInstanceID(x.id, listenerID)
}

// listenerIDFromInstanceID strips the instance prefix.
func (x *PlanInstance) listenerIDFromInstanceID(instanceID string) string {
	return strings.TrimPrefix(instanceID, x.id+"_")
}

// transition applies a status change to a task and records it. It returns the
// previous status and whether the status actually changed; same-status calls
// are no-ops and must not wake listeners.
func (x *PlanInstance) transition(taskID string, to TaskStatus, reason string) (TaskStatus, bool) {
	task, ok := x.tasks[taskID]
	if !ok {
		return "", false
	}
	from := task.Status
	if from == to {
		return from, false
	}
	task.Status = to
	task.Trace = append(task.Trace, TransitionRecord{From: from, To: to, Reason: reason, At: time.Now()})
	return from, true
}

// mergeTaskContext accretes values into a task's context. Contexts grow
// monotonically; nothing is removed outside reset-for-retry.
func (x *PlanInstance) mergeTaskContext(taskID string, updates map[string]any) {
	task, ok := x.tasks[taskID]
	if !ok || len(updates) == 0 {
		return
	}
	for k, v := range updates {
		task.Context[k] = v
	}
}

// resetForRetry clears only the control fields of the main task, keeping the
// business values already produced by earlier successful listeners.
func (x *PlanInstance) resetForRetry() {
	main := x.mainTask()
	if main == nil {
		return
	}
	delete(main.Context, ctxKeyFailedListener)
	delete(main.Context, ctxKeyError)
	delete(main.Context, ctxKeyPausedListener)
	delete(main.Context, ctxKeyRequiredParams)
}

// providedParams returns the accumulated Continue-supplied parameters.
func (x *PlanInstance) providedParams() map[string]any {
	if m, ok := x.values[valuesKeyProvidedParams].(map[string]any); ok {
		return m
	}
	return nil
}

func (x *PlanInstance) mergeProvidedParams(params map[string]any) {
	current := x.providedParams()
	if current == nil {
		current = map[string]any{}
		x.values[valuesKeyProvidedParams] = current
	}
	for k, v := range params {
		current[k] = v
	}
}

// Snapshot is a consistent, immutable view of the instance state, taken
// inside the instance's serialization point. Condition evaluation and
// instruction rendering use snapshots so that a dispatch in flight never
// observes partially applied updates.
type Snapshot struct {
	InstanceID string
	PlanID     string
	MainTaskID string
	Status     InstanceStatus
	Tasks      map[string]TaskSnapshot
	Values     map[string]any
}

// TaskSnapshot is the per-task portion of a Snapshot.
type TaskSnapshot struct {
	Name    string
	Status  TaskStatus
	Context map[string]any
}

func (x *PlanInstance) snapshot() *Snapshot {
	snap := &Snapshot{
		InstanceID: x.id,
		PlanID:     x.plan.ID,
		MainTaskID: x.plan.mainTaskID(),
		Status:     x.status,
		Tasks:      make(map[string]TaskSnapshot, len(x.tasks)),
		Values:     make(map[string]any, len(x.values)),
	}
	for k, v := range x.values {
		snap.Values[k] = v
	}
	for id, task := range x.tasks {
		ctx := make(map[string]any, len(task.Context))
		for k, v := range task.Context {
			ctx[k] = v
		}
		snap.Tasks[id] = TaskSnapshot{Name: task.Name, Status: task.Status, Context: ctx}
	}
	return snap
}

// Resolve resolves a dotted path against the snapshot. Supported forms:
//
//	values.<key>              instance context value
//	<taskID>.status           task status
//	<taskID>.context.<path>   task context value, nested maps allowed
//
// An unresolved path is an explicit error, never a silent empty value.
func (s *Snapshot) Resolve(path string) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "path too short", goerr.V("path", path))
	}

	if parts[0] == "values" {
		return resolveMapPath(s.Values, parts[1:], path)
	}

	task, ok := s.Tasks[parts[0]]
	if !ok {
		return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "unknown task", goerr.V("path", path))
	}
	switch parts[1] {
	case "status":
		if len(parts) != 2 {
			return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "status takes no sub-path", goerr.V("path", path))
		}
		return string(task.Status), nil
	case "context":
		if len(parts) < 3 {
			return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "context requires a field", goerr.V("path", path))
		}
		return resolveMapPath(task.Context, parts[2:], path)
	default:
		return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "unknown task attribute", goerr.V("path", path))
	}
}

func resolveMapPath(m map[string]any, parts []string, full string) (any, error) {
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "path traverses non-map value", goerr.V("path", full))
		}
		cur, ok = mm[p]
		if !ok {
			return nil, goerr.Wrap(ErrUnresolvedPlaceholder, "missing field", goerr.V("path", full), goerr.V("field", p))
		}
	}
	return cur, nil
}

// InstanceState is the external view returned by Engine.GetInstance.
type InstanceState struct {
	InstanceID string
	PlanID     string
	Status     InstanceStatus

	// Tasks maps task id to its current state including transition history.
	Tasks map[string]TaskState

	Values   map[string]any
	Metadata map[string]any

	// Retries counts supervisor retries per listener id. Listeners that never
	// failed are absent.
	Retries map[string]int

	// WaitingForResume is set when the instance suspended on retry exhaustion.
	WaitingForResume *ResumeInfo

	// RequiredParams is set while the instance is paused for missing input.
	RequiredParams []ParamSpec
}

// TaskState is the external per-task view.
type TaskState struct {
	TaskID  string
	Name    string
	Status  TaskStatus
	Context map[string]any
	Trace   []TransitionRecord
}

// ResumeInfo describes a waiting_for_resume suspension.
type ResumeInfo struct {
	FailedListenerID string
	Retries          int
}

func (x *PlanInstance) state() *InstanceState {
	st := &InstanceState{
		InstanceID: x.id,
		PlanID:     x.plan.ID,
		Status:     x.status,
		Tasks:      make(map[string]TaskState, len(x.tasks)),
		Values:     make(map[string]any, len(x.values)),
		Metadata:   make(map[string]any, len(x.metadata)),
		Retries:    make(map[string]int, len(x.retryCount)),
	}
	for k, v := range x.retryCount {
		st.Retries[k] = v
	}
	for k, v := range x.values {
		st.Values[k] = v
	}
	for k, v := range x.metadata {
		st.Metadata[k] = v
	}
	for id, task := range x.tasks {
		ctx := make(map[string]any, len(task.Context))
		for k, v := range task.Context {
			ctx[k] = v
		}
		st.Tasks[id] = TaskState{
			TaskID:  task.TaskID,
			Name:    task.Name,
			Status:  task.Status,
			Context: ctx,
			Trace:   append([]TransitionRecord(nil), task.Trace...),
		}
	}
	if x.waiting != nil {
		st.WaitingForResume = &ResumeInfo{
			FailedListenerID: x.waiting.ListenerID,
			Retries:          x.waiting.Retries,
		}
	}
	if x.pause != nil {
		st.RequiredParams = append([]ParamSpec(nil), x.pause.Required...)
	}
	return st
}
