package planloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Engine runs plan instances. It owns one serialized event loop per instance;
// instances share nothing beyond the plan repository and the transport.
type Engine struct {
	repo      PlanRepository
	transport Transport
	cfg       *engineConfig

	mu      sync.RWMutex
	runners map[string]*instanceRunner
}

// New creates an Engine on top of a plan repository and an executor
// transport.
func New(repo PlanRepository, transport Transport, options ...Option) *Engine {
	cfg := newEngineConfig()
	for _, opt := range options {
		opt(cfg)
	}
	return &Engine{
		repo:      repo,
		transport: transport,
		cfg:       cfg,
		runners:   map[string]*instanceRunner{},
	}
}

// StartInstance creates a new instance of the plan and kicks off its event
// loop by moving the main task to Running. It returns the instance id without
// waiting for the run to settle.
func (x *Engine) StartInstance(ctx context.Context, planID string, initial map[string]any) (string, error) {
	plan, err := x.repo.GetPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	if err := plan.Validate(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate instance id")
	}
	instanceID := id.String()

	inst := newPlanInstance(instanceID, plan, initial)
	runner := newInstanceRunner(x, inst)

	x.mu.Lock()
	x.runners[instanceID] = runner
	x.mu.Unlock()

	runner.start()
	return instanceID, nil
}

func (x *Engine) runner(instanceID string) (*instanceRunner, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	runner, ok := x.runners[instanceID]
	if !ok {
		return nil, goerr.Wrap(ErrInstanceNotFound, "no such instance", goerr.V("instance_id", instanceID))
	}
	return runner, nil
}

// GetInstance returns the current state of an instance.
func (x *Engine) GetInstance(ctx context.Context, instanceID string) (*InstanceState, error) {
	runner, err := x.runner(instanceID)
	if err != nil {
		return nil, err
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return runner.inst.state(), nil
}

// GetExecutionTrace returns the checklist-and-summary progress view.
func (x *Engine) GetExecutionTrace(ctx context.Context, instanceID string) (*ExecutionTrace, error) {
	runner, err := x.runner(instanceID)
	if err != nil {
		return nil, err
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return buildExecutionTrace(runner.inst.state(), runner.verification), nil
}

// Resume restarts an instance suspended in waiting_for_resume. Only the
// listener that exhausted its retries is replayed; completed work stays
// untouched. The retry counter of that listener starts over.
func (x *Engine) Resume(ctx context.Context, instanceID string) error {
	runner, err := x.runner(instanceID)
	if err != nil {
		return err
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()

	if runner.inst.status == InstanceStatusCancelled {
		return goerr.Wrap(ErrInstanceCancelled, "cannot resume", goerr.V("instance_id", instanceID))
	}
	if runner.inst.waiting == nil {
		return goerr.Wrap(ErrNotWaitingResume, "resume rejected",
			goerr.V("instance_id", instanceID), goerr.V("status", runner.inst.status))
	}

	listenerID := runner.inst.waiting.ListenerID
	runner.inst.waiting = nil
	runner.inst.retryCount[listenerID] = 0
	runner.inst.status = InstanceStatusRunning
	runner.inst.resetForRetry()
	runner.applyTransitionLocked(runner.inst.plan.mainTaskID(), TaskStatusRetrying, "resumed by caller", true)
	runner.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.ListenerID = listenerID
		rec.Reason = "resumed"
	})
	runner.replayListenerLocked(listenerID)
	runner.startLoopLocked()
	return nil
}

// Cancel stops an instance. In-flight dispatch results are discarded; the
// instance becomes terminal and further Resume/Continue calls fail.
func (x *Engine) Cancel(ctx context.Context, instanceID string) error {
	runner, err := x.runner(instanceID)
	if err != nil {
		return err
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()

	if runner.inst.status.Terminal() {
		return nil
	}
	runner.inst.status = InstanceStatusCancelled
	runner.inst.completedAt = time.Now()
	runner.inst.pause = nil
	runner.inst.waiting = nil
	runner.queue = nil
	runner.cancel()
	runner.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.Reason = "cancelled"
	})
	runner.notifyWaitersLocked()
	return nil
}

// Wait blocks until the instance settles: terminal, suspended for input or
// resume, or quiescent with nothing left to do. It returns the state at that
// point.
func (x *Engine) Wait(ctx context.Context, instanceID string) (*InstanceState, error) {
	runner, err := x.runner(instanceID)
	if err != nil {
		return nil, err
	}

	for {
		runner.mu.Lock()
		if runner.settledLocked() {
			st := runner.inst.state()
			runner.mu.Unlock()
			return st, nil
		}
		ch := make(chan struct{})
		runner.waiters = append(runner.waiters, ch)
		runner.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "wait aborted", goerr.V("instance_id", instanceID))
		case <-ch:
		}
	}
}

// instanceRunner serializes all state changes of one instance. Every mutation
// happens under mu, almost always from the loop goroutine; dispatches run
// outside the lock and funnel their results back as events.
type instanceRunner struct {
	engine *Engine
	inst   *PlanInstance
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	queue    []event
	running  bool
	inflight int

	// pollActive tracks listeners with an armed poll timer.
	pollActive map[string]struct{}

	// verifying is set while per-executor verification requests are out;
	// verdicts collects their replies until verifyPending reaches zero.
	verifying     bool
	verifyPending int
	verdicts      []ChecklistEntry
	verification  *Verification

	waiters []chan struct{}
}

type event interface{ isEvent() }

// transitionEvent reconsiders listeners after a task status change.
type transitionEvent struct {
	taskID string
	to     TaskStatus
}

// resultEvent carries a finished dispatch back into the loop.
type resultEvent struct {
	listenerID string
	snap       *Snapshot
	result     *Result
}

// pollEvent re-checks a polling listener's condition.
type pollEvent struct {
	listenerID string
}

// verifyResultEvent carries one executor's verification response.
type verifyResultEvent struct {
	index     int
	target    verifyTarget
	result    *Result
	invokeErr error
}

func (transitionEvent) isEvent()   {}
func (resultEvent) isEvent()       {}
func (pollEvent) isEvent()         {}
func (verifyResultEvent) isEvent() {}

func newInstanceRunner(engine *Engine, inst *PlanInstance) *instanceRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &instanceRunner{
		engine:     engine,
		inst:       inst,
		logger:     engine.cfg.logger.With("planloop.instance_id", inst.id, "planloop.plan_id", inst.plan.ID),
		baseCtx:    ctx,
		cancel:     cancel,
		pollActive: map[string]struct{}{},
	}
}

func (r *instanceRunner) start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inst.status = InstanceStatusRunning
	r.inst.startedAt = time.Now()
	r.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.Reason = "started"
	})
	r.applyTransitionLocked(r.inst.plan.mainTaskID(), TaskStatusRunning, "instance started", true)
	r.startLoopLocked()
}

func (r *instanceRunner) startLoopLocked() {
	if r.running || len(r.queue) == 0 {
		return
	}
	r.running = true
	go r.loop()
}

func (r *instanceRunner) loop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 {
		ev := r.queue[0]
		r.queue = r.queue[1:]
		r.handleLocked(ev)
	}
	r.running = false
	r.notifyWaitersLocked()
}

// settledLocked reports whether the instance can make no progress without an
// external call: no queued events, no dispatch in flight, no armed poll.
func (r *instanceRunner) settledLocked() bool {
	return !r.running && len(r.queue) == 0 && r.inflight == 0 && len(r.pollActive) == 0
}

func (r *instanceRunner) notifyWaitersLocked() {
	if !r.settledLocked() {
		return
	}
	for _, ch := range r.waiters {
		close(ch)
	}
	r.waiters = nil
}

func (r *instanceRunner) journal(kind JournalKind, fill func(*JournalRecord)) {
	rec := newJournalRecord(r.inst.id, kind)
	if fill != nil {
		fill(rec)
	}
	if err := r.engine.cfg.journal.Append(r.baseCtx, rec); err != nil {
		r.logger.Warn("failed to append journal record", "kind", kind, "error", err)
	}
}

func (r *instanceRunner) handleLocked(ev event) {
	if r.inst.status == InstanceStatusCancelled {
		return
	}

	switch e := ev.(type) {
	case transitionEvent:
		if e.taskID == r.inst.plan.mainTaskID() {
			switch e.to {
			case TaskStatusError:
				r.supervisorOnErrorLocked()
			case TaskStatusDone:
				r.supervisorOnDoneLocked()
			}
		}
		for i := range r.inst.plan.Listeners {
			l := &r.inst.plan.Listeners[i]
			if !listenerTriggered(l, e.taskID, e.to) {
				continue
			}
			r.considerListenerLocked(l)
		}

	case pollEvent:
		if l := r.inst.plan.listener(e.listenerID); l != nil {
			r.considerListenerLocked(l)
		}

	case resultEvent:
		r.handleResultLocked(e)

	case verifyResultEvent:
		r.handleVerifyResultLocked(e)
	}
}

func listenerTriggered(l *Listener, taskID string, to TaskStatus) bool {
	for _, tid := range l.TriggerTaskIDs {
		if tid != taskID {
			continue
		}
		return l.TriggerStatus == StatusAny || l.TriggerStatus == to
	}
	return false
}

// considerListenerLocked evaluates a woken listener and dispatches it when
// eligible. The executed-set mark happens before the dispatch goroutine
// starts, so two near-simultaneous wakes can never double-fire.
func (r *instanceRunner) considerListenerLocked(l *Listener) {
	if r.inst.status != InstanceStatusRunning {
		return
	}
	if _, done := r.inst.executed[r.inst.listenerInstanceID(l.ID)]; done {
		return
	}

	snap := r.inst.snapshot()
	if l.ActionCondition != "" {
		ok, err := EvalCondition(l.ActionCondition, snap)
		if err != nil {
			r.logger.Warn("malformed action condition", "listener_id", l.ID, "error", err)
			r.journal(JournalConfigErr, func(rec *JournalRecord) {
				rec.ListenerID = l.ID
				rec.Error = err.Error()
			})
			return
		}
		if !ok {
			if l.PollInterval > 0 {
				r.armPollLocked(l)
			}
			return
		}
	}

	r.dispatchListenerLocked(l, snap)
}

func (r *instanceRunner) armPollLocked(l *Listener) {
	if _, armed := r.pollActive[l.ID]; armed {
		return
	}
	interval := l.PollInterval
	if interval < r.engine.cfg.minPollInterval {
		interval = r.engine.cfg.minPollInterval
	}
	r.pollActive[l.ID] = struct{}{}

	listenerID := l.ID
	time.AfterFunc(interval, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.pollActive, listenerID)
		if r.inst.status != InstanceStatusRunning {
			r.notifyWaitersLocked()
			return
		}
		r.queue = append(r.queue, pollEvent{listenerID: listenerID})
		r.startLoopLocked()
	})
}

func (r *instanceRunner) dispatchListenerLocked(l *Listener, snap *Snapshot) {
	r.inst.executed[r.inst.listenerInstanceID(l.ID)] = struct{}{}
	r.inflight++
	r.journal(JournalDispatch, func(rec *JournalRecord) {
		rec.ListenerID = l.ID
	})

	go func() {
		ctx := ctxWithLogger(r.baseCtx, r.logger.With("planloop.listener_id", l.ID))
		result := r.engine.dispatch(ctx, r.inst.plan, l, snap)
		if err := r.engine.cfg.dispatchResultHook(ctx, snap.InstanceID, l.ID, result); err != nil {
			LoggerFromContext(ctx).Warn("dispatch result hook failed", "error", err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.inflight--
		if r.inst.status == InstanceStatusCancelled {
			r.notifyWaitersLocked()
			return
		}
		r.queue = append(r.queue, resultEvent{listenerID: l.ID, snap: snap, result: result})
		r.startLoopLocked()
	}()
}

// replayListenerLocked re-dispatches a listener regardless of its executed
// mark, against a fresh snapshot. Used by retry, Resume and Continue.
func (r *instanceRunner) replayListenerLocked(listenerID string) {
	l := r.inst.plan.listener(listenerID)
	if l == nil {
		r.logger.Warn("cannot replay unknown listener", "listener_id", listenerID)
		return
	}
	delete(r.inst.executed, r.inst.listenerInstanceID(listenerID))
	r.dispatchListenerLocked(l, r.inst.snapshot())
}

func (r *instanceRunner) handleResultLocked(e resultEvent) {
	r.journal(JournalResult, func(rec *JournalRecord) {
		rec.ListenerID = e.listenerID
		if !e.result.Success {
			rec.Error = e.result.Reason
		}
	})

	if !e.result.Success && e.result.Reason == ReasonMissingParams {
		r.pauseLocked(e.listenerID, e.result.RequiredParams)
		return
	}

	l := r.inst.plan.listener(e.listenerID)
	if l == nil {
		return
	}

	updates, err := determineTaskUpdates(r.inst.plan, l, e.snap, e.result)
	if err != nil {
		// A broken output template is a dispatch failure from the instance's
		// point of view; route it through the default error rule.
		r.logger.Warn("failed to derive task updates", "listener_id", e.listenerID, "error", err)
		updates = []TaskUpdate{{
			TaskID: r.inst.plan.mainTaskID(),
			Status: TaskStatusError,
			Context: map[string]any{
				ctxKeyFailedListener: r.inst.listenerInstanceID(e.listenerID),
				ctxKeyError:          err.Error(),
			},
			Reason: "listener " + e.listenerID + " output failed",
		}}
	}

	r.applyUpdatesLocked(updates)
}

// applyUpdatesLocked merges contexts, applies status transitions and enqueues
// a transition event for every actual change, which is what re-enters the
// listener evaluation.
func (r *instanceRunner) applyUpdatesLocked(updates []TaskUpdate) {
	for _, u := range updates {
		r.inst.mergeTaskContext(u.TaskID, u.Context)
		r.applyTransitionLocked(u.TaskID, u.Status, u.Reason, true)
	}
}

func (r *instanceRunner) applyTransitionLocked(taskID string, to TaskStatus, reason string, enqueue bool) {
	from, changed := r.inst.transition(taskID, to, reason)
	if !changed {
		return
	}

	r.logger.Debug("task transition", "task_id", taskID, "from", from, "to", to, "reason", reason)
	r.journal(JournalTransition, func(rec *JournalRecord) {
		rec.TaskID = taskID
		rec.From = from
		rec.To = to
		rec.Reason = reason
	})

	// Hooks run on the instance loop; they must not call back into the Engine.
	if err := r.engine.cfg.transitionHook(r.baseCtx, r.inst.id, taskID, from, to, reason); err != nil {
		r.logger.Warn("transition hook failed", "task_id", taskID, "error", err)
	}

	if enqueue {
		r.queue = append(r.queue, transitionEvent{taskID: taskID, to: to})
	}
}
