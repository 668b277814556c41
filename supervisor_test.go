package planloop_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/mock"
)

func TestClassifyVerification(t *testing.T) {
	testCases := map[string]struct {
		result *planloop.Result
		err    error
		want   planloop.VerificationStatus
	}{
		"transport error": {
			err:  errors.New("connection refused"),
			want: planloop.VerificationUnverified,
		},
		"executor reported failure": {
			result: &planloop.Result{Success: false, Reason: "timeout"},
			want:   planloop.VerificationUnverified,
		},
		"no tools used": {
			result: &planloop.Result{
				Success: true,
				Data:    map[string]any{"verified": true},
			},
			want: planloop.VerificationUnverified,
		},
		"no verdict": {
			result: &planloop.Result{
				Success:   true,
				Data:      map[string]any{"evidence": "looked around"},
				ToolsUsed: []string{"fetch"},
			},
			want: planloop.VerificationUnverified,
		},
		"positive with evidence": {
			result: &planloop.Result{
				Success:   true,
				Data:      map[string]any{"verified": true, "evidence": "artifact exists"},
				ToolsUsed: []string{"fetch"},
			},
			want: planloop.VerificationVerified,
		},
		"negative with evidence": {
			result: &planloop.Result{
				Success:   true,
				Data:      map[string]any{"verified": false, "evidence": "artifact missing"},
				ToolsUsed: []string{"fetch"},
			},
			want: planloop.VerificationFailed,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			status, reason := planloop.ClassifyVerification(tc.result, tc.err)
			gt.Equal(t, status, tc.want)
			if tc.want != planloop.VerificationVerified {
				gt.True(t, reason != "")
			}
		})
	}
}

// twoAgentPlan chains two agent listeners so both executors have run when the
// main task completes.
func twoAgentPlan() *planloop.Plan {
	return &planloop.Plan{
		ID:   "onboard",
		Name: "Employee onboarding",
		Tasks: []planloop.Task{
			{ID: "001", Name: "employee onboarded", Description: "all systems provisioned"},
			{ID: "002", Name: "account created", Description: "directory account exists"},
		},
		Listeners: []planloop.Listener{
			{
				ID:             "L1",
				TriggerTaskIDs: []string{"001"},
				TriggerStatus:  planloop.TaskStatusRunning,
				Action:         planloop.Action{Agent: &planloop.AgentAction{AgentID: "agentA", Prompt: "create the account"}},
				SuccessOutput:  &planloop.Output{TaskID: "002", Status: planloop.TaskStatusDone},
			},
			{
				ID:             "L2",
				TriggerTaskIDs: []string{"002"},
				TriggerStatus:  planloop.TaskStatusDone,
				Action:         planloop.Action{Agent: &planloop.AgentAction{AgentID: "agentB", Prompt: "grant building access"}},
				SuccessOutput:  &planloop.Output{TaskID: "001", Status: planloop.TaskStatusDone},
			},
		},
	}
}

func TestSupervisorVerifiesEachExecutedExecutor(t *testing.T) {
	ctx := context.Background()

	transport := &mock.TransportMock{
		InvokeFunc: func(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
			if isVerifyRequest(instruction) {
				return verifiedResult("record found for " + executorID), nil
			}
			return okResult(), nil
		},
	}
	engine := newTestEngine(t, twoAgentPlan(), transport)

	instanceID := gt.R1(engine.StartInstance(ctx, "onboard", nil)).NoError(t)
	st := gt.R1(engine.Wait(ctx, instanceID)).NoError(t)
	gt.Equal(t, st.Status, planloop.InstanceStatusDone)

	// Every executed executor received its own verification request.
	verified := map[string]int{}
	for _, call := range transport.InvokeCalls() {
		if isVerifyRequest(call.Instruction) {
			verified[call.ExecutorID]++
		}
	}
	gt.Equal(t, verified, map[string]int{"agentA": 1, "agentB": 1})

	trace := gt.R1(engine.GetExecutionTrace(ctx, instanceID)).NoError(t)
	gt.True(t, trace.VerificationCompleted)
	gt.Equal(t, trace.Summary.OverallStatus, planloop.OverallPassed)
	gt.Equal(t, trace.Summary.VerifiedCount, 2)
	gt.Equal(t, trace.Summary.TotalCount, 2)
	gt.A(t, trace.Checklist).Length(2)
	gt.Equal(t, trace.Checklist[0].ExecutorID, "agentA")
	gt.Equal(t, trace.Checklist[0].TaskID, "002")
	gt.Equal(t, trace.Checklist[1].ExecutorID, "agentB")
	gt.Equal(t, trace.Checklist[1].TaskID, "001")
}

func TestSupervisorVerification(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, verify func(executorID string) (*planloop.Result, error)) *planloop.ExecutionTrace {
		t.Helper()

		transport := &mock.TransportMock{
			InvokeFunc: func(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
				if isVerifyRequest(instruction) {
					return verify(executorID)
				}
				return okResult(), nil
			},
		}
		engine := newTestEngine(t, twoAgentPlan(), transport)

		instanceID := gt.R1(engine.StartInstance(ctx, "onboard", nil)).NoError(t)
		st := gt.R1(engine.Wait(ctx, instanceID)).NoError(t)
		gt.Equal(t, st.Status, planloop.InstanceStatusDone)

		return gt.R1(engine.GetExecutionTrace(ctx, instanceID)).NoError(t)
	}

	t.Run("negative evidence fails the run", func(t *testing.T) {
		trace := run(t, func(executorID string) (*planloop.Result, error) {
			if executorID == "agentB" {
				return &planloop.Result{
					Success:   true,
					Data:      map[string]any{"verified": false, "evidence": "no access record"},
					ToolsUsed: []string{"query_access"},
				}, nil
			}
			return verifiedResult("account present"), nil
		})

		gt.Equal(t, trace.Summary.OverallStatus, planloop.OverallFailed)
		gt.Equal(t, trace.Summary.VerifiedCount, 1)
		gt.Equal(t, trace.Summary.FailedCount, 1)
		gt.Equal(t, trace.Checklist[1].Status, planloop.VerificationFailed)
		gt.Equal(t, trace.Checklist[1].Reason, "no access record")
	})

	t.Run("unreachable executor leaves the run passed but unverified", func(t *testing.T) {
		trace := run(t, func(executorID string) (*planloop.Result, error) {
			if executorID == "agentA" {
				return nil, errors.New("connection refused")
			}
			return verifiedResult("access granted"), nil
		})

		gt.Equal(t, trace.Summary.OverallStatus, planloop.OverallPassed)
		gt.Equal(t, trace.Summary.VerifiedCount, 1)
		gt.Equal(t, trace.Summary.UnableToVerifyCount, 1)
		gt.Equal(t, trace.Checklist[0].Status, planloop.VerificationUnverified)
	})

	t.Run("executor that checked nothing stays unverified", func(t *testing.T) {
		trace := run(t, func(executorID string) (*planloop.Result, error) {
			return &planloop.Result{
				Success: true,
				Data:    map[string]any{"verified": true},
			}, nil
		})

		gt.Equal(t, trace.Summary.OverallStatus, planloop.OverallPassed)
		gt.Equal(t, trace.Summary.UnableToVerifyCount, 2)
	})
}

func TestSupervisorVerificationRequestContext(t *testing.T) {
	ctx := context.Background()

	transport := &mock.TransportMock{
		InvokeFunc: func(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
			if isVerifyRequest(instruction) {
				return verifiedResult("checked"), nil
			}
			return okResult(), nil
		},
	}
	engine := newTestEngine(t, twoAgentPlan(), transport)

	instanceID := gt.R1(engine.StartInstance(ctx, "onboard", nil)).NoError(t)
	gt.R1(engine.Wait(ctx, instanceID)).NoError(t)

	// The request to agentA describes the task it was responsible for and the
	// overall goal, never any concrete capability name.
	for _, call := range transport.InvokeCalls() {
		if !isVerifyRequest(call.Instruction) || call.ExecutorID != "agentA" {
			continue
		}
		gt.S(t, call.Instruction).
			Contains("account created").
			Contains("directory account exists").
			Contains("employee onboarded")
		return
	}
	t.Fatal("no verification request reached agentA")
}
