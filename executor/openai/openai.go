// Package openai implements the executor transport over the OpenAI chat
// API with the same agent-registry contract as executor/claude.
package openai

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/executor/internal/envelope"
	"github.com/sashabaranov/go-openai"
)

// Transport is a planloop.Transport backed by the OpenAI chat API.
type Transport struct {
	client       *openai.Client
	defaultModel string

	// agents maps executor ids to their system prompts.
	agents map[string]string

	temperature float32
}

var _ planloop.Transport = &Transport{}

// Option is a function that configures a Transport.
type Option func(*Transport)

// WithModel sets the model used for chat completions.
// Default: openai.GPT4oMini
func WithModel(modelName string) Option {
	return func(t *Transport) {
		t.defaultModel = modelName
	}
}

// WithTemperature sets the sampling temperature.
// Default: 0.2
func WithTemperature(temp float32) Option {
	return func(t *Transport) {
		t.temperature = temp
	}
}

// WithAgent registers an executor id with its system prompt.
func WithAgent(executorID, systemPrompt string) Option {
	return func(t *Transport) {
		t.agents[executorID] = systemPrompt
	}
}

// New creates a new transport for the OpenAI API.
func New(ctx context.Context, apiKey string, options ...Option) (*Transport, error) {
	transport := &Transport{
		defaultModel: openai.GPT4oMini,
		agents:       map[string]string{},
		temperature:  0.2,
	}

	for _, option := range options {
		option(transport)
	}

	config := openai.DefaultConfig(apiKey)
	transport.client = openai.NewClientWithConfig(config)

	return transport, nil
}

// Invoke sends the instruction to the executor's agent and decodes the
// result envelope from the response.
func (t *Transport) Invoke(ctx context.Context, executorID, instruction string, params map[string]any) (*planloop.Result, error) {
	systemPrompt, ok := t.agents[executorID]
	if !ok {
		return nil, goerr.Wrap(planloop.ErrUnknownExecutor, "no agent registered",
			goerr.V("executor_id", executorID))
	}

	content := instruction
	if len(params) > 0 {
		if raw, err := json.Marshal(params); err == nil {
			content += "\n\nParameters:\n" + string(raw)
		}
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.defaultModel,
		Temperature: t.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion", goerr.V("executor_id", executorID))
	}
	if len(resp.Choices) == 0 {
		return nil, goerr.New("empty chat completion response", goerr.V("executor_id", executorID))
	}

	result, err := envelope.ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid executor response", goerr.V("executor_id", executorID))
	}
	return result, nil
}
