package planloop

import "context"

type (
	// TransitionHook is called after a task status change is applied.
	TransitionHook func(ctx context.Context, instanceID, taskID string, from, to TaskStatus, reason string) error

	// DispatchHook is called just before a listener's action is dispatched.
	DispatchHook func(ctx context.Context, instanceID, listenerID, instruction string) error

	// DispatchResultHook is called with the result envelope of a dispatch.
	DispatchResultHook func(ctx context.Context, instanceID, listenerID string, result *Result) error

	// VerificationHook is called when the supervisor finishes completion
	// verification of an instance.
	VerificationHook func(ctx context.Context, instanceID string, verification *Verification) error
)

func defaultTransitionHook(ctx context.Context, instanceID, taskID string, from, to TaskStatus, reason string) error {
	return nil
}

func defaultDispatchHook(ctx context.Context, instanceID, listenerID, instruction string) error {
	return nil
}

func defaultDispatchResultHook(ctx context.Context, instanceID, listenerID string, result *Result) error {
	return nil
}

func defaultVerificationHook(ctx context.Context, instanceID string, verification *Verification) error {
	return nil
}
