package planloop

// Internal functions exposed for testing
var (
	RenderPlaceholders   = renderPlaceholders
	DetermineTaskUpdates = determineTaskUpdates
	BuildInstruction     = buildInstruction
	ClassifyVerification = classifyVerification
	ValidateParams       = validateParams
	CtxWithLogger        = ctxWithLogger
)

// NewTestSnapshot builds a snapshot directly for unit tests.
func NewTestSnapshot(mainTaskID string, tasks map[string]TaskSnapshot, values map[string]any) *Snapshot {
	if values == nil {
		values = map[string]any{}
	}
	return &Snapshot{
		InstanceID: "test-instance",
		PlanID:     "test-plan",
		MainTaskID: mainTaskID,
		Status:     InstanceStatusRunning,
		Tasks:      tasks,
		Values:     values,
	}
}
