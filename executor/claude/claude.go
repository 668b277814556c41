// Package claude implements the executor transport on top of Anthropic's
// Claude API. Each executor id is registered with a system prompt describing
// the agent's role; the instruction built by the engine becomes the user
// message, and the response is decoded as a result envelope.
package claude

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/executor/internal/envelope"
)

// generationParameters represents the parameters for text generation.
type generationParameters struct {
	// Temperature controls randomness in the output.
	Temperature float64

	// MaxTokens limits the number of tokens to generate.
	MaxTokens int64
}

// Transport is a planloop.Transport backed by the Claude API.
type Transport struct {
	// client is the underlying Claude client.
	client *anthropic.Client

	// defaultModel is the model to use for completions.
	// It can be overridden using WithModel option.
	defaultModel string

	// agents maps executor ids to their system prompts.
	agents map[string]string

	params generationParameters
}

var _ planloop.Transport = &Transport{}

// Option is a function that configures a Transport.
type Option func(*Transport)

// WithModel sets the model used for completions.
// Default: anthropic.ModelClaude3_5SonnetLatest
func WithModel(modelName string) Option {
	return func(t *Transport) {
		t.defaultModel = modelName
	}
}

// WithTemperature sets the temperature parameter for text generation.
// Range: 0.0 to 1.0
// Default: 0.2
func WithTemperature(temp float64) Option {
	return func(t *Transport) {
		t.params.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
// Default: 4096
func WithMaxTokens(maxTokens int64) Option {
	return func(t *Transport) {
		t.params.MaxTokens = maxTokens
	}
}

// WithAgent registers an executor id with its system prompt. Invocations of
// unregistered ids fail with planloop.ErrUnknownExecutor.
func WithAgent(executorID, systemPrompt string) Option {
	return func(t *Transport) {
		t.agents[executorID] = systemPrompt
	}
}

// New creates a new transport for the Claude API.
func New(ctx context.Context, apiKey string, options ...Option) (*Transport, error) {
	transport := &Transport{
		defaultModel: anthropic.ModelClaude3_5SonnetLatest,
		agents:       map[string]string{},
		params: generationParameters{
			Temperature: 0.2,
			MaxTokens:   4096,
		},
	}

	for _, option := range options {
		option(transport)
	}

	newClient := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	transport.client = &newClient

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

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(systemPrompt + "\n\n" + content)),
	}

	resp, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       t.defaultModel,
		MaxTokens:   t.params.MaxTokens,
		Temperature: anthropic.Float(t.params.Temperature),
		Messages:    messages,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create message", goerr.V("executor_id", executorID))
	}

	var text string
	for _, block := range resp.Content {
		textBlock := block.AsResponseTextBlock()
		if textBlock.Type == "text" {
			text += textBlock.Text
		}
	}

	result, err := envelope.ParseResult(text)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid executor response", goerr.V("executor_id", executorID))
	}
	return result, nil
}
