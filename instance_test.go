package planloop_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
)

func TestSnapshotResolve(t *testing.T) {
	snap := planloop.NewTestSnapshot("001", map[string]planloop.TaskSnapshot{
		"001": {Status: planloop.TaskStatusRunning, Context: map[string]any{}},
		"002": {
			Status: planloop.TaskStatusDone,
			Context: map[string]any{
				"report": "weekly.pdf",
				"meta":   map[string]any{"pages": 12},
			},
		},
	}, map[string]any{
		"user": "alice",
	})

	t.Run("task status", func(t *testing.T) {
		v := gt.R1(snap.Resolve("002.status")).NoError(t)
		gt.Equal(t, v, "Done")
	})

	t.Run("task context field", func(t *testing.T) {
		v := gt.R1(snap.Resolve("002.context.report")).NoError(t)
		gt.Equal(t, v, "weekly.pdf")
	})

	t.Run("nested context field", func(t *testing.T) {
		v := gt.R1(snap.Resolve("002.context.meta.pages")).NoError(t)
		gt.Equal(t, v, 12)
	})

	t.Run("instance value", func(t *testing.T) {
		v := gt.R1(snap.Resolve("values.user")).NoError(t)
		gt.Equal(t, v, "alice")
	})

	t.Run("unknown task fails", func(t *testing.T) {
		_, err := snap.Resolve("999.status")
		gt.Error(t, err)
	})

	t.Run("missing context field fails", func(t *testing.T) {
		_, err := snap.Resolve("002.context.missing")
		gt.Error(t, err)
	})

	t.Run("missing value fails", func(t *testing.T) {
		_, err := snap.Resolve("values.missing")
		gt.Error(t, err)
	})

	t.Run("traversal through scalar fails", func(t *testing.T) {
		_, err := snap.Resolve("002.context.report.deeper")
		gt.Error(t, err)
	})

	t.Run("unknown attribute fails", func(t *testing.T) {
		_, err := snap.Resolve("002.name")
		gt.Error(t, err)
	})

	t.Run("bare task id fails", func(t *testing.T) {
		_, err := snap.Resolve("002")
		gt.Error(t, err)
	})
}
