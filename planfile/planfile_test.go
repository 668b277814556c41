package planfile_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/planfile"
)

func TestLoadFile(t *testing.T) {
	plan := gt.R1(planfile.LoadFile("testdata/release.yml")).NoError(t)

	gt.Equal(t, plan.ID, "release")
	gt.A(t, plan.Tasks).Length(3)
	gt.A(t, plan.Listeners).Length(3)

	build := plan.Listeners[0]
	gt.Equal(t, build.ID, "build")
	gt.Equal(t, build.TriggerTaskIDs, []string{"001"})
	gt.Equal(t, build.TriggerStatus, planloop.TaskStatusRunning)
	gt.NotNil(t, build.Action.Agent)
	gt.Equal(t, build.Action.Agent.AgentID, "builder")
	gt.Equal(t, build.SuccessOutput.Context["artifact"], "{result.artifact}")

	publish := plan.Listeners[1]
	gt.NotNil(t, publish.FailureOutput)
	gt.Equal(t, publish.FailureOutput.Status, planloop.TaskStatusPending)

	announce := plan.Listeners[2]
	gt.Equal(t, announce.TriggerTaskIDs, []string{"002", "003"})
	gt.Equal(t, announce.ActionCondition, "002.status == Done && 003.status == Done")
	gt.Equal(t, announce.PollInterval, 30*time.Second)
	gt.NotNil(t, announce.Action.Code)
	gt.True(t, announce.Action.Code.Source != "")
}

func TestLoadErrors(t *testing.T) {
	t.Run("broken yaml", func(t *testing.T) {
		_, err := planfile.Load(strings.NewReader("tasks: ["))
		gt.Error(t, err)
	})

	t.Run("invalid plan", func(t *testing.T) {
		_, err := planfile.Load(strings.NewReader(`
id: broken
tasks:
  - id: "002"
listeners: []
`))
		gt.Error(t, err)
	})

	t.Run("invalid trigger status", func(t *testing.T) {
		_, err := planfile.Load(strings.NewReader(`
id: broken
tasks:
  - id: "001"
listeners:
  - id: L1
    trigger_task_ids: "001"
    trigger_status: Finished
    agent:
      agent_id: worker
      prompt: go
    success_output:
      task_id: "001"
      status: Done
`))
		gt.Error(t, err)
	})

	t.Run("invalid poll interval", func(t *testing.T) {
		_, err := planfile.Load(strings.NewReader(`
id: broken
tasks:
  - id: "001"
listeners:
  - id: L1
    trigger_task_ids: "001"
    trigger_status: Running
    poll_interval: soon
    agent:
      agent_id: worker
      prompt: go
    success_output:
      task_id: "001"
      status: Done
`))
		gt.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := planfile.LoadFile("testdata/no-such-file.yml")
		gt.Error(t, err)
	})
}
