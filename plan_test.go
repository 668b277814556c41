package planloop_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
)

func validPlan() *planloop.Plan {
	return &planloop.Plan{
		ID:   "test",
		Name: "test plan",
		Tasks: []planloop.Task{
			{ID: "001", Name: "main"},
			{ID: "002", Name: "work"},
		},
		Listeners: []planloop.Listener{
			{
				ID:             "L1",
				TriggerTaskIDs: []string{"001"},
				TriggerStatus:  planloop.TaskStatusRunning,
				Action: planloop.Action{
					Agent: &planloop.AgentAction{AgentID: "worker", Prompt: "do the work"},
				},
				SuccessOutput: &planloop.Output{TaskID: "002", Status: planloop.TaskStatusDone},
			},
		},
	}
}

func TestPlanValidate(t *testing.T) {
	t.Run("valid plan passes", func(t *testing.T) {
		gt.NoError(t, validPlan().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		p := validPlan()
		p.ID = ""
		gt.Error(t, p.Validate())
	})

	t.Run("missing main task", func(t *testing.T) {
		p := validPlan()
		p.Tasks = p.Tasks[1:]
		gt.Error(t, p.Validate())
	})

	t.Run("custom main task id", func(t *testing.T) {
		p := validPlan()
		p.MainTaskID = "002"
		gt.NoError(t, p.Validate())
		p.MainTaskID = "999"
		gt.Error(t, p.Validate())
	})

	t.Run("duplicated task id", func(t *testing.T) {
		p := validPlan()
		p.Tasks = append(p.Tasks, planloop.Task{ID: "002"})
		gt.Error(t, p.Validate())
	})

	t.Run("listener without trigger", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].TriggerTaskIDs = nil
		gt.Error(t, p.Validate())
	})

	t.Run("trigger on undefined task", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].TriggerTaskIDs = []string{"999"}
		gt.Error(t, p.Validate())
	})

	t.Run("both agent and code action", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].Action.Code = &planloop.CodeAction{Source: "x"}
		gt.Error(t, p.Validate())
	})

	t.Run("neither action", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].Action = planloop.Action{}
		gt.Error(t, p.Validate())
	})

	t.Run("missing success output", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].SuccessOutput = nil
		gt.Error(t, p.Validate())
	})

	t.Run("output to undefined task", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].SuccessOutput.TaskID = "999"
		gt.Error(t, p.Validate())
	})

	t.Run("malformed action condition", func(t *testing.T) {
		p := validPlan()
		p.Listeners[0].ActionCondition = "002.status = Done"
		gt.Error(t, p.Validate())
	})
}

func TestMemoryPlanRepository(t *testing.T) {
	ctx := context.Background()

	repo := gt.R1(planloop.NewMemoryPlanRepository(validPlan())).NoError(t)

	plan := gt.R1(repo.GetPlan(ctx, "test")).NoError(t)
	gt.Equal(t, plan.ID, "test")

	_, err := repo.GetPlan(ctx, "missing")
	gt.Error(t, err)

	// Duplicate registration is rejected.
	gt.Error(t, repo.Register(validPlan()))

	// Broken plans never enter the repository.
	broken := validPlan()
	broken.ID = "broken"
	broken.Listeners[0].SuccessOutput = nil
	gt.Error(t, repo.Register(broken))
}
