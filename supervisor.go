package planloop

import (
	"bytes"
	"fmt"
	"time"
)

// The supervisor is a pair of built-in listeners on the main task: one on its
// Error transition (bounded retry, then waiting_for_resume) and one on its
// Done transition (semantic completion verification). Both run inside the
// instance loop like any other listener wake.

// supervisorOnErrorLocked reacts to the main task entering Error. The failed
// listener is identified by the failed_listener_id control field that the
// default error rule (or an explicit failure output) wrote into the main
// task's context.
func (r *instanceRunner) supervisorOnErrorLocked() {
	main := r.inst.mainTask()
	failedInstanceID, _ := main.Context[ctxKeyFailedListener].(string)
	failedID := r.inst.listenerIDFromInstanceID(failedInstanceID)
	if failedID == "" {
		// An error that names no listener cannot be retried.
		r.inst.status = InstanceStatusError
		r.inst.completedAt = time.Now()
		r.journal(JournalLifecycle, func(rec *JournalRecord) {
			rec.Reason = "failed without attributable listener"
		})
		return
	}

	count := r.inst.retryCount[failedID] + 1
	r.inst.retryCount[failedID] = count

	if count > r.engine.cfg.maxRetryCount {
		r.inst.status = InstanceStatusError
		r.inst.waiting = &resumeState{ListenerID: failedID, Retries: count - 1}
		r.journal(JournalLifecycle, func(rec *JournalRecord) {
			rec.ListenerID = failedID
			rec.Reason = "waiting_for_resume"
		})
		r.logger.Warn("retry budget exhausted, waiting for resume",
			"listener_id", failedID, "failures", count)
		return
	}

	r.logger.Info("retrying failed listener",
		"listener_id", failedID, "attempt", count, "max", r.engine.cfg.maxRetryCount)
	r.inst.resetForRetry()
	r.applyTransitionLocked(r.inst.plan.mainTaskID(), TaskStatusRetrying,
		fmt.Sprintf("retry %d/%d of listener %s", count, r.engine.cfg.maxRetryCount, failedID), true)
	r.replayListenerLocked(failedID)
}

// verifyTarget is one executed executor and the task it was responsible for.
type verifyTarget struct {
	ExecutorID      string
	TaskID          string
	TaskName        string
	TaskDescription string
}

// executedExecutors derives the verification targets from the plan's listener
// definitions alone: every agent listener whose success output's target task
// is now Done has executed its bound executor.
func executedExecutors(plan *Plan, tasks map[string]*TaskInstance) []verifyTarget {
	var targets []verifyTarget
	for i := range plan.Listeners {
		l := &plan.Listeners[i]
		if l.Action.Agent == nil || l.SuccessOutput == nil {
			continue
		}
		task, ok := tasks[l.SuccessOutput.TaskID]
		if !ok || task.Status != TaskStatusDone {
			continue
		}
		tgt := verifyTarget{
			ExecutorID: l.Action.Agent.AgentID,
			TaskID:     task.TaskID,
			TaskName:   task.Name,
		}
		if pt := plan.task(task.TaskID); pt != nil {
			tgt.TaskDescription = pt.Description
		}
		targets = append(targets, tgt)
	}
	return targets
}

// supervisorOnDoneLocked reacts to the main task entering Done: the instance
// completes, but only after each executed executor has been asked to verify
// its own outcome. The requests run concurrently; verdicts funnel back into
// the loop and the instance finishes once all are in.
func (r *instanceRunner) supervisorOnDoneLocked() {
	if r.verifying || r.verification != nil {
		return
	}
	r.verifying = true

	targets := executedExecutors(r.inst.plan, r.inst.tasks)
	if len(targets) == 0 {
		r.finishLocked(&Verification{OverallStatus: OverallPassed, At: time.Now()})
		return
	}

	r.verdicts = make([]ChecklistEntry, len(targets))
	r.verifyPending = len(targets)

	for i, tgt := range targets {
		instruction, err := buildVerificationInstruction(r.inst.plan, tgt)
		if err != nil {
			r.verdicts[i] = ChecklistEntry{
				ExecutorID: tgt.ExecutorID,
				TaskID:     tgt.TaskID,
				TaskName:   tgt.TaskName,
				Status:     VerificationUnverified,
				Reason:     "failed to build verification request: " + err.Error(),
			}
			r.verifyPending--
			continue
		}

		r.inflight++
		go func(index int, tgt verifyTarget, instruction string) {
			ctx := ctxWithLogger(r.baseCtx, r.logger.With("planloop.verify_executor_id", tgt.ExecutorID))
			result, invokeErr := r.engine.transport.Invoke(ctx, tgt.ExecutorID, instruction, nil)

			r.mu.Lock()
			defer r.mu.Unlock()
			r.inflight--
			if r.inst.status == InstanceStatusCancelled {
				r.notifyWaitersLocked()
				return
			}
			r.queue = append(r.queue, verifyResultEvent{
				index:     index,
				target:    tgt,
				result:    result,
				invokeErr: invokeErr,
			})
			r.startLoopLocked()
		}(i, tgt, instruction)
	}

	if r.verifyPending == 0 {
		r.finishVerificationLocked()
	}
}

func (r *instanceRunner) handleVerifyResultLocked(e verifyResultEvent) {
	status, reason := classifyVerification(e.result, e.invokeErr)
	entry := ChecklistEntry{
		ExecutorID: e.target.ExecutorID,
		TaskID:     e.target.TaskID,
		TaskName:   e.target.TaskName,
		Status:     status,
		Reason:     reason,
	}
	if e.result != nil {
		entry.ToolsUsed = e.result.ToolsUsed
	}
	r.verdicts[e.index] = entry

	r.verifyPending--
	if r.verifyPending == 0 {
		r.finishVerificationLocked()
	}
}

// finishVerificationLocked aggregates the collected verdicts. The run fails
// iff at least one executor produced negative evidence; inability to verify
// never fails a run.
func (r *instanceRunner) finishVerificationLocked() {
	overall := OverallPassed
	for _, entry := range r.verdicts {
		if entry.Status == VerificationFailed {
			overall = OverallFailed
		}
	}
	r.finishLocked(&Verification{
		OverallStatus: overall,
		Checklist:     r.verdicts,
		At:            time.Now(),
	})
}

// classifyVerification maps an executor's verification response to a verdict.
// Only concrete negative evidence yields verification_failed; an unreachable
// executor or one that checked nothing leaves it executed_but_unverified.
func classifyVerification(result *Result, invokeErr error) (VerificationStatus, string) {
	switch {
	case invokeErr != nil:
		return VerificationUnverified, "executor unreachable: " + invokeErr.Error()
	case result == nil:
		return VerificationUnverified, "executor returned no result"
	case !result.Success:
		return VerificationUnverified, "executor did not complete verification: " + result.Reason
	case len(result.ToolsUsed) == 0:
		return VerificationUnverified, "executor used no tools"
	}

	verified, ok := result.Data["verified"].(bool)
	evidence, _ := result.Data["evidence"].(string)
	switch {
	case !ok:
		return VerificationUnverified, "executor gave no verdict"
	case verified:
		return VerificationVerified, evidence
	default:
		return VerificationFailed, evidence
	}
}

// finishLocked records the verification verdict and completes the instance.
func (r *instanceRunner) finishLocked(v *Verification) {
	r.verification = v
	r.verifying = false
	r.verdicts = nil
	r.inst.mergeTaskContext(r.inst.plan.mainTaskID(), map[string]any{
		ctxKeyVerification: v.OverallStatus,
	})
	r.inst.status = InstanceStatusDone
	r.inst.completedAt = v.At

	r.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.Reason = "verification " + v.OverallStatus
	})
	if err := r.engine.cfg.verificationHook(r.baseCtx, r.inst.id, v); err != nil {
		r.logger.Warn("verification hook failed", "error", err)
	}
	r.logger.Info("instance completed", "verification", v.OverallStatus)
}

func buildVerificationInstruction(plan *Plan, tgt verifyTarget) (string, error) {
	data := verificationTemplateData{
		PlanName:        plan.Name,
		TaskID:          tgt.TaskID,
		TaskName:        tgt.TaskName,
		TaskDescription: tgt.TaskDescription,
	}
	if main := plan.task(plan.mainTaskID()); main != nil {
		data.MainTaskName = main.Name
		data.MainTaskDescription = main.Description
	}

	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
