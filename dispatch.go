package planloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// placeholderPattern matches {dotted.path} references inside prompts and
// output context templates.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_][a-zA-Z0-9_.]*)\}`)

// resultPathPrefix routes a placeholder to the dispatch result instead of the
// instance snapshot.
const resultPathPrefix = "result."

// renderPlaceholders substitutes every {path} reference in s. Paths starting
// with "result." resolve against the dispatch result data; everything else
// resolves against the snapshot. The first unresolved reference aborts the
// rendering.
func renderPlaceholders(s string, snap *Snapshot, result *Result) (string, error) {
	var resolveErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		path := match[1 : len(match)-1]

		var v any
		var err error
		if rest, ok := strings.CutPrefix(path, resultPathPrefix); ok {
			if result == nil {
				err = goerr.Wrap(ErrUnresolvedPlaceholder, "no result in scope", goerr.V("path", path))
			} else {
				v, err = resolveMapPath(result.Data, strings.Split(rest, "."), path)
			}
		} else {
			v, err = snap.Resolve(path)
		}
		if err != nil {
			resolveErr = err
			return match
		}
		return stringifyValue(v)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		if raw, err := json.Marshal(t); err == nil {
			return string(raw)
		}
	}
	return fmt.Sprint(v)
}

// buildInstruction renders a listener's prompt against the snapshot and wraps
// it in the instruction template together with the target task description
// and the parameters collected so far.
func buildInstruction(plan *Plan, listener *Listener, snap *Snapshot) (string, error) {
	prompt, err := renderPlaceholders(listener.Action.Agent.Prompt, snap, nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to render prompt", goerr.V("listener_id", listener.ID))
	}

	data := instructionTemplateData{Instruction: prompt}
	if out := listener.SuccessOutput; out != nil {
		if task := plan.task(out.TaskID); task != nil {
			data.TaskID = task.ID
			data.TaskName = task.Name
			data.TaskDescription = task.Description
		}
	}
	if params, ok := snap.Values[valuesKeyProvidedParams]; ok {
		if raw, err := json.Marshal(params); err == nil {
			data.Params = string(raw)
		}
	}

	var buf bytes.Buffer
	if err := instructionTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to build instruction", goerr.V("listener_id", listener.ID))
	}
	return buf.String(), nil
}

// codeEnv is the environment handed to inline-code listeners: the instance
// values plus every task's context keyed by task id.
func codeEnv(snap *Snapshot) map[string]any {
	tasks := make(map[string]any, len(snap.Tasks))
	for id, ts := range snap.Tasks {
		tasks[id] = map[string]any{
			"status":  string(ts.Status),
			"context": ts.Context,
		}
	}
	return map[string]any{
		"values": snap.Values,
		"tasks":  tasks,
	}
}

// dispatch executes a listener's action and always produces a Result
// envelope. Transport and script errors become failed results; the engine
// never distinguishes an unreachable executor from one that reported failure.
func (x *Engine) dispatch(ctx context.Context, plan *Plan, listener *Listener, snap *Snapshot) *Result {
	logger := LoggerFromContext(ctx)

	switch {
	case listener.Action.Agent != nil:
		instruction, err := buildInstruction(plan, listener, snap)
		if err != nil {
			return &Result{Success: false, Reason: err.Error()}
		}
		if err := x.cfg.dispatchHook(ctx, snap.InstanceID, listener.ID, instruction); err != nil {
			return &Result{Success: false, Reason: err.Error()}
		}

		params, _ := snap.Values[valuesKeyProvidedParams].(map[string]any)
		result, err := x.transport.Invoke(ctx, listener.Action.Agent.AgentID, instruction, params)
		if err != nil {
			logger.Warn("executor invocation failed",
				"listener_id", listener.ID, "agent_id", listener.Action.Agent.AgentID, "error", err)
			return &Result{Success: false, Reason: err.Error()}
		}
		return result

	case listener.Action.Code != nil:
		env := codeEnv(snap)

		var data map[string]any
		var err error
		if fn := listener.Action.Code.Func; fn != nil {
			data, err = fn(ctx, env)
		} else if x.cfg.scriptRunner != nil {
			data, err = x.cfg.scriptRunner.RunScript(ctx, listener.Action.Code.Source, env)
		} else {
			err = goerr.Wrap(ErrNoScriptRunner, "code listener has source body", goerr.V("listener_id", listener.ID))
		}
		if err != nil {
			logger.Warn("code listener failed", "listener_id", listener.ID, "error", err)
			return &Result{Success: false, Reason: err.Error()}
		}
		return &Result{Success: true, Data: data}
	}

	// Unreachable for validated plans.
	return &Result{Success: false, Reason: "listener has no action"}
}

// renderOutput turns a listener output into a concrete task update, resolving
// {result.field} and snapshot references in its context templates.
func renderOutput(out *Output, snap *Snapshot, result *Result, reason string) (*TaskUpdate, error) {
	update := &TaskUpdate{TaskID: out.TaskID, Status: out.Status, Reason: reason}
	if len(out.Context) > 0 {
		update.Context = make(map[string]any, len(out.Context))
		for k, tmpl := range out.Context {
			v, err := renderPlaceholders(tmpl, snap, result)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to render output context",
					goerr.V("task_id", out.TaskID), goerr.V("field", k))
			}
			update.Context[k] = v
		}
	}
	return update, nil
}

// determineTaskUpdates maps a dispatch result to the task updates to apply.
//
// Success applies the executor's explicit updates followed by the listener's
// success output. Failure applies the listener's failure output when one is
// defined; otherwise the default error rule routes the failure to the main
// task so the supervisor sees it. A missing_params failure produces no
// updates at all; the engine pauses instead.
func determineTaskUpdates(plan *Plan, listener *Listener, snap *Snapshot, result *Result) ([]TaskUpdate, error) {
	if !result.Success && result.Reason == ReasonMissingParams {
		return nil, nil
	}

	if result.Success {
		updates := make([]TaskUpdate, 0, len(result.TaskUpdates)+1)
		updates = append(updates, result.TaskUpdates...)
		if listener.SuccessOutput != nil {
			update, err := renderOutput(listener.SuccessOutput, snap, result, "listener "+listener.ID+" succeeded")
			if err != nil {
				return nil, err
			}
			updates = append(updates, *update)
		}
		return updates, nil
	}

	if listener.FailureOutput != nil {
		update, err := renderOutput(listener.FailureOutput, snap, result, "listener "+listener.ID+" failed: "+result.Reason)
		if err != nil {
			return nil, err
		}
		return []TaskUpdate{*update}, nil
	}

	if len(result.TaskUpdates) > 0 {
		return result.TaskUpdates, nil
	}

	return []TaskUpdate{{
		TaskID: plan.mainTaskID(),
		Status: TaskStatusError,
		Context: map[string]any{
			ctxKeyFailedListener: listenerInstanceID(snap.InstanceID, listener.ID),
			ctxKeyError:          result.Reason,
		},
		Reason: "listener " + listener.ID + " failed",
	}}, nil
}
