package planloop

// TaskStatus represents the runtime status of a task within a plan instance.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "NotStarted"
	TaskStatusRunning    TaskStatus = "Running"
	TaskStatusDone       TaskStatus = "Done"
	TaskStatusError      TaskStatus = "Error"
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusRetrying   TaskStatus = "Retrying"

	// StatusAny is the wildcard status. A listener whose trigger status is
	// StatusAny wakes on every transition of its trigger task, and a
	// condition term comparing against StatusAny is always true.
	StatusAny TaskStatus = "Any"
)

// Valid reports whether s is one of the defined task statuses.
// StatusAny is valid only as a trigger/condition wildcard, not as a stored status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusRunning, TaskStatusDone,
		TaskStatusError, TaskStatusPending, TaskStatusRetrying:
		return true
	}
	return false
}

// InstanceStatus represents the overall status of a plan instance.
type InstanceStatus string

const (
	InstanceStatusNotStarted InstanceStatus = "not_started"
	InstanceStatusRunning    InstanceStatus = "running"
	InstanceStatusPause      InstanceStatus = "pause"
	InstanceStatusError      InstanceStatus = "error"
	InstanceStatusDone       InstanceStatus = "done"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// Terminal reports whether the instance can make no further progress without
// an external Resume or Continue call.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusDone, InstanceStatusCancelled:
		return true
	}
	return false
}
