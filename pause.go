package planloop

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// pauseLocked suspends the instance on a missing_params result. The required
// parameter specs are surfaced both through GetInstance and as control fields
// on the main task's context.
func (r *instanceRunner) pauseLocked(listenerID string, required []ParamSpec) {
	r.inst.status = InstanceStatusPause
	r.inst.pause = &pauseState{ListenerID: listenerID, Required: required}

	names := make([]string, 0, len(required))
	for _, p := range required {
		names = append(names, p.Name)
	}
	r.inst.mergeTaskContext(r.inst.plan.mainTaskID(), map[string]any{
		ctxKeyPausedListener: listenerID,
		ctxKeyRequiredParams: names,
	})

	r.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.ListenerID = listenerID
		rec.Reason = "paused for missing params"
	})
	r.logger.Info("instance paused for missing params",
		"listener_id", listenerID, "required", names)
}

// Continue supplies parameters to a paused instance. Values are validated
// against each parameter's JSON Schema fragment and merged into the
// instance's provided_params. When every required parameter is present the
// paused listener is re-dispatched; otherwise the instance stays paused on
// the remaining ones. The returned state reflects which of the two happened.
func (x *Engine) Continue(ctx context.Context, instanceID string, params map[string]any) (*InstanceState, error) {
	runner, err := x.runner(instanceID)
	if err != nil {
		return nil, err
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()

	if runner.inst.status == InstanceStatusCancelled {
		return nil, goerr.Wrap(ErrInstanceCancelled, "cannot continue", goerr.V("instance_id", instanceID))
	}
	if runner.inst.pause == nil {
		return nil, goerr.Wrap(ErrNotPaused, "continue rejected",
			goerr.V("instance_id", instanceID), goerr.V("status", runner.inst.status))
	}

	if err := validateParams(runner.inst.pause.Required, params); err != nil {
		return nil, err
	}
	runner.inst.mergeProvidedParams(params)

	provided := runner.inst.providedParams()
	var missing []ParamSpec
	for _, spec := range runner.inst.pause.Required {
		if _, ok := provided[spec.Name]; !ok {
			missing = append(missing, spec)
		}
	}

	if len(missing) > 0 {
		runner.inst.pause.Required = missing
		names := make([]string, 0, len(missing))
		for _, p := range missing {
			names = append(names, p.Name)
		}
		runner.inst.mergeTaskContext(runner.inst.plan.mainTaskID(), map[string]any{
			ctxKeyRequiredParams: names,
		})
		runner.logger.Info("continue left params missing", "missing", names)
		return runner.inst.state(), nil
	}

	listenerID := runner.inst.pause.ListenerID
	runner.inst.pause = nil
	runner.inst.status = InstanceStatusRunning
	main := runner.inst.mainTask()
	delete(main.Context, ctxKeyPausedListener)
	delete(main.Context, ctxKeyRequiredParams)

	runner.journal(JournalLifecycle, func(rec *JournalRecord) {
		rec.ListenerID = listenerID
		rec.Reason = "continued"
	})
	runner.replayListenerLocked(listenerID)
	return runner.inst.state(), nil
}

// validateParams checks every provided value against the validation schema of
// its parameter spec. Unknown parameter names are accepted; downstream
// executors may use more than what they declared missing.
func validateParams(specs []ParamSpec, params map[string]any) error {
	for _, spec := range specs {
		value, ok := params[spec.Name]
		if !ok {
			continue
		}
		if len(spec.Options) > 0 {
			if err := validateOption(spec, value); err != nil {
				return err
			}
		}
		if len(spec.Validation) == 0 {
			continue
		}

		compiler := jsonschema.NewCompiler()
		url := fmt.Sprintf("param://%s/%d.json", spec.Name, time.Now().UnixNano())
		if err := compiler.AddResource(url, map[string]any(spec.Validation)); err != nil {
			return goerr.Wrap(err, "invalid param validation schema", goerr.V("param", spec.Name))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return goerr.Wrap(err, "invalid param validation schema", goerr.V("param", spec.Name))
		}
		if err := schema.Validate(value); err != nil {
			return goerr.Wrap(err, "param validation failed",
				goerr.V("param", spec.Name), goerr.V("value", value))
		}
	}
	return nil
}

func validateOption(spec ParamSpec, value any) error {
	s, ok := value.(string)
	if !ok {
		return goerr.New("param with options must be a string",
			goerr.V("param", spec.Name), goerr.V("value", value))
	}
	for _, opt := range spec.Options {
		if opt == s {
			return nil
		}
	}
	return goerr.New("param value is not an allowed option",
		goerr.V("param", spec.Name), goerr.V("value", s), goerr.V("options", spec.Options))
}
