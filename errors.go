package planloop

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrInvalidPlan is returned when a plan template fails validation.
	ErrInvalidPlan = goerr.New("invalid plan")

	// ErrPlanNotFound is returned when the plan repository has no plan for the given id.
	ErrPlanNotFound = goerr.New("plan not found")

	// ErrInstanceNotFound is returned when no plan instance exists for the given id.
	ErrInstanceNotFound = goerr.New("plan instance not found")

	// ErrMalformedCondition is returned when a condition expression cannot be parsed.
	// The engine treats a malformed condition as false (fail closed) and reports it.
	ErrMalformedCondition = goerr.New("malformed condition expression")

	// ErrUnresolvedPlaceholder is returned when a context path referenced by a
	// prompt or output template does not resolve against the instance state.
	ErrUnresolvedPlaceholder = goerr.New("unresolved context placeholder")

	// ErrUnknownExecutor is returned when a listener references an executor the
	// transport cannot serve. Treated as a transient executor failure.
	ErrUnknownExecutor = goerr.New("unknown executor")

	// ErrNoScriptRunner is returned when a plan carries script-bodied code
	// listeners but the engine has no script runner configured.
	ErrNoScriptRunner = goerr.New("no script runner configured")

	// ErrNotWaitingResume is the precondition failure for Resume: the instance
	// is not suspended in the waiting_for_resume state.
	ErrNotWaitingResume = goerr.New("instance is not waiting for resume")

	// ErrNotPaused is the precondition failure for Continue: the instance is
	// not paused for missing parameters.
	ErrNotPaused = goerr.New("instance is not paused")

	// ErrInstanceCancelled is returned by operations on a cancelled instance.
	ErrInstanceCancelled = goerr.New("instance is cancelled")
)
