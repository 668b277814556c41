package planloop_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
)

func snapshotWithStatuses(statuses map[string]planloop.TaskStatus) *planloop.Snapshot {
	tasks := map[string]planloop.TaskSnapshot{}
	for id, s := range statuses {
		tasks[id] = planloop.TaskSnapshot{Status: s, Context: map[string]any{}}
	}
	return planloop.NewTestSnapshot("001", tasks, nil)
}

func TestEvalCondition(t *testing.T) {
	snap := snapshotWithStatuses(map[string]planloop.TaskStatus{
		"001": planloop.TaskStatusRunning,
		"002": planloop.TaskStatusDone,
		"003": planloop.TaskStatusDone,
		"004": planloop.TaskStatusError,
	})

	testCases := map[string]struct {
		expr string
		want bool
	}{
		"single match":           {"002.status == Done", true},
		"single mismatch":        {"002.status == Error", false},
		"and both true":          {"002.status == Done && 003.status == Done", true},
		"and one false":          {"002.status == Done && 004.status == Done", false},
		"or first true":          {"002.status == Done || 004.status == Done", true},
		"or both false":          {"002.status == Error || 003.status == Error", false},
		"any wildcard":           {"004.status == Any", true},
		"empty is true":          {"", true},
		"whitespace tolerated":   {"  002.status  ==  Done  ", true},
		"unknown task is false":  {"999.status == Done", false},
		"unknown task under any": {"999.status == Any", false},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			ok, err := planloop.EvalCondition(tc.expr, snap)
			gt.NoError(t, err)
			gt.Equal(t, ok, tc.want)
		})
	}
}

func TestEvalConditionLeftToRight(t *testing.T) {
	snap := snapshotWithStatuses(map[string]planloop.TaskStatus{
		"002": planloop.TaskStatusDone,
		"003": planloop.TaskStatusError,
		"004": planloop.TaskStatusDone,
	})

	// ((002==Done || 003==Done) && 004==Done) with no precedence:
	// true || false -> true, then true && true -> true
	ok, err := planloop.EvalCondition("002.status == Done || 003.status == Done && 004.status == Done", snap)
	gt.NoError(t, err)
	gt.True(t, ok)

	// ((003==Done || 002==Done) && 003==Done) -> true && false -> false
	ok, err = planloop.EvalCondition("003.status == Done || 002.status == Done && 003.status == Done", snap)
	gt.NoError(t, err)
	gt.False(t, ok)
}

func TestEvalConditionMalformed(t *testing.T) {
	snap := snapshotWithStatuses(map[string]planloop.TaskStatus{
		"002": planloop.TaskStatusDone,
	})

	testCases := map[string]string{
		"no operator":       "002.status",
		"bad attribute":     "002.state == Done",
		"unknown status":    "002.status == Finished",
		"trailing operator": "002.status == Done &&",
		"missing left side":  ".status == Done",
	}

	for name, expr := range testCases {
		t.Run(name, func(t *testing.T) {
			ok, err := planloop.EvalCondition(expr, snap)
			gt.Error(t, err)
			gt.False(t, ok)
		})
	}
}
