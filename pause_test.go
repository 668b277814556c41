package planloop_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/mock"
)

func TestValidateParams(t *testing.T) {
	specs := []planloop.ParamSpec{
		{
			Name:       "approver",
			Type:       "string",
			Validation: map[string]any{"type": "string"},
		},
		{
			Name:    "environment",
			Type:    "string",
			Options: []string{"staging", "production"},
		},
	}

	t.Run("valid values pass", func(t *testing.T) {
		gt.NoError(t, planloop.ValidateParams(specs, map[string]any{
			"approver":    "alice@example.com",
			"environment": "staging",
		}))
	})

	t.Run("schema violation fails", func(t *testing.T) {
		gt.Error(t, planloop.ValidateParams(specs, map[string]any{
			"approver": 42.0,
		}))
	})

	t.Run("value outside options fails", func(t *testing.T) {
		gt.Error(t, planloop.ValidateParams(specs, map[string]any{
			"environment": "qa",
		}))
	})

	t.Run("partial input is allowed", func(t *testing.T) {
		gt.NoError(t, planloop.ValidateParams(specs, map[string]any{
			"environment": "production",
		}))
	})

	t.Run("undeclared params pass through", func(t *testing.T) {
		gt.NoError(t, planloop.ValidateParams(specs, map[string]any{
			"extra": true,
		}))
	})
}

func TestEnginePauseAndContinue(t *testing.T) {
	ctx := context.Background()

	plan := &planloop.Plan{
		ID:    "deploy",
		Tasks: []planloop.Task{{ID: "001", Name: "deploy"}},
		Listeners: []planloop.Listener{
			{
				ID:             "L1",
				TriggerTaskIDs: []string{"001"},
				TriggerStatus:  planloop.TaskStatusRunning,
				Action:         planloop.Action{Agent: &planloop.AgentAction{AgentID: "deployer", Prompt: "deploy"}},
				SuccessOutput:  &planloop.Output{TaskID: "001", Status: planloop.TaskStatusDone},
			},
		},
	}

	var attempts atomic.Int32
	transport := &mock.TransportMock{
		InvokeFunc: func(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
			if isVerifyRequest(instruction) {
				return verifiedResult("deployment visible"), nil
			}
			if attempts.Add(1) == 1 {
				return &planloop.Result{
					Success: false,
					Reason:  planloop.ReasonMissingParams,
					RequiredParams: []planloop.ParamSpec{
						{Name: "approver", Type: "string", Validation: map[string]any{"type": "string"}},
						{Name: "environment", Type: "string", Options: []string{"staging", "production"}},
					},
				}, nil
			}
			// The re-dispatch must carry the collected parameters.
			gt.Equal(t, params["approver"], "alice@example.com")
			gt.Equal(t, params["environment"], "production")
			return okResult(), nil
		},
	}

	engine := newTestEngine(t, plan, transport)

	instanceID := gt.R1(engine.StartInstance(ctx, "deploy", nil)).NoError(t)
	st := gt.R1(engine.Wait(ctx, instanceID)).NoError(t)

	gt.Equal(t, st.Status, planloop.InstanceStatusPause)
	gt.A(t, st.RequiredParams).Length(2)
	gt.Equal(t, st.Tasks["001"].Context["paused_listener_id"], "L1")

	// Resume does not apply to a pause.
	gt.Error(t, engine.Resume(ctx, instanceID))

	// Invalid input is rejected without changing the pause.
	_, err := engine.Continue(ctx, instanceID, map[string]any{"approver": 42.0})
	gt.Error(t, err)

	// Partial input keeps the instance paused on the rest.
	st = gt.R1(engine.Continue(ctx, instanceID, map[string]any{
		"approver": "alice@example.com",
	})).NoError(t)
	gt.Equal(t, st.Status, planloop.InstanceStatusPause)
	gt.A(t, st.RequiredParams).Length(1)
	gt.Equal(t, st.RequiredParams[0].Name, "environment")

	// The final parameter releases the pause and replays the listener.
	st = gt.R1(engine.Continue(ctx, instanceID, map[string]any{
		"environment": "production",
	})).NoError(t)
	gt.Equal(t, st.Status, planloop.InstanceStatusRunning)

	st = gt.R1(engine.Wait(ctx, instanceID)).NoError(t)
	gt.Equal(t, st.Status, planloop.InstanceStatusDone)
	gt.Equal(t, st.Tasks["001"].Status, planloop.TaskStatusDone)
	gt.Equal(t, attempts.Load(), int32(2))

	// Continue has nothing to do once the run completed.
	_, err = engine.Continue(ctx, instanceID, map[string]any{"x": "y"})
	gt.Error(t, err)
}
