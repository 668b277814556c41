// Package planfile loads plan templates from YAML files. The file format
// mirrors the in-memory model; trigger_task_ids additionally accepts a
// comma-separated string so a listener can watch several tasks.
package planfile

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"gopkg.in/yaml.v3"
)

type planDoc struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	MainTaskID  string        `yaml:"main_task_id"`
	Tasks       []taskDoc     `yaml:"tasks"`
	Listeners   []listenerDoc `yaml:"listeners"`
}

type taskDoc struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type listenerDoc struct {
	ID              string     `yaml:"id"`
	TriggerTaskIDs  string     `yaml:"trigger_task_ids"`
	TriggerStatus   string     `yaml:"trigger_status"`
	ActionCondition string     `yaml:"action_condition"`
	Agent           *agentDoc  `yaml:"agent"`
	Code            *codeDoc   `yaml:"code"`
	SuccessOutput   *outputDoc `yaml:"success_output"`
	FailureOutput   *outputDoc `yaml:"failure_output"`
	PollInterval    string     `yaml:"poll_interval"`
}

type agentDoc struct {
	AgentID string `yaml:"agent_id"`
	Prompt  string `yaml:"prompt"`
}

type codeDoc struct {
	Source string `yaml:"source"`
}

type outputDoc struct {
	TaskID  string            `yaml:"task_id"`
	Status  string            `yaml:"status"`
	Context map[string]string `yaml:"context"`
}

// Load parses and validates a plan definition from r.
func Load(r io.Reader) (*planloop.Plan, error) {
	var doc planDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode plan file")
	}

	plan, err := doc.toPlan()
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// LoadFile parses and validates a plan definition from a YAML file.
func LoadFile(path string) (*planloop.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open plan file", goerr.V("path", path))
	}
	defer f.Close()

	plan, err := Load(f)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid plan file", goerr.V("path", path))
	}
	return plan, nil
}

func (d *planDoc) toPlan() (*planloop.Plan, error) {
	plan := &planloop.Plan{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		MainTaskID:  d.MainTaskID,
	}

	for _, t := range d.Tasks {
		plan.Tasks = append(plan.Tasks, planloop.Task{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
		})
	}

	for _, l := range d.Listeners {
		listener, err := l.toListener()
		if err != nil {
			return nil, err
		}
		plan.Listeners = append(plan.Listeners, *listener)
	}

	return plan, nil
}

func (d *listenerDoc) toListener() (*planloop.Listener, error) {
	listener := &planloop.Listener{
		ID:              d.ID,
		TriggerStatus:   planloop.TaskStatus(d.TriggerStatus),
		ActionCondition: d.ActionCondition,
	}

	for _, tid := range strings.Split(d.TriggerTaskIDs, ",") {
		if tid = strings.TrimSpace(tid); tid != "" {
			listener.TriggerTaskIDs = append(listener.TriggerTaskIDs, tid)
		}
	}

	if d.Agent != nil {
		listener.Action.Agent = &planloop.AgentAction{
			AgentID: d.Agent.AgentID,
			Prompt:  d.Agent.Prompt,
		}
	}
	if d.Code != nil {
		listener.Action.Code = &planloop.CodeAction{Source: d.Code.Source}
	}

	var err error
	if listener.SuccessOutput, err = d.SuccessOutput.toOutput(); err != nil {
		return nil, goerr.Wrap(err, "invalid success output", goerr.V("listener_id", d.ID))
	}
	if listener.FailureOutput, err = d.FailureOutput.toOutput(); err != nil {
		return nil, goerr.Wrap(err, "invalid failure output", goerr.V("listener_id", d.ID))
	}

	if d.PollInterval != "" {
		interval, err := time.ParseDuration(d.PollInterval)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid poll interval",
				goerr.V("listener_id", d.ID), goerr.V("poll_interval", d.PollInterval))
		}
		listener.PollInterval = interval
	}

	return listener, nil
}

func (d *outputDoc) toOutput() (*planloop.Output, error) {
	if d == nil {
		return nil, nil
	}
	return &planloop.Output{
		TaskID:  d.TaskID,
		Status:  planloop.TaskStatus(d.Status),
		Context: d.Context,
	}, nil
}
