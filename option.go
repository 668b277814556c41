package planloop

import (
	"log/slog"
	"time"
)

// engineConfig carries everything configurable about an Engine.
type engineConfig struct {
	logger       *slog.Logger
	journal      Journal
	scriptRunner ScriptRunner

	maxRetryCount   int
	minPollInterval time.Duration

	transitionHook     TransitionHook
	dispatchHook       DispatchHook
	dispatchResultHook DispatchResultHook
	verificationHook   VerificationHook
}

const (
	// DefaultMaxRetryCount bounds supervisor retries per listener. The first
	// execution does not count; an instance gives up after the counter passes
	// this limit.
	DefaultMaxRetryCount = 3

	defaultMinPollInterval = 100 * time.Millisecond
)

func newEngineConfig() *engineConfig {
	return &engineConfig{
		logger:             defaultLogger,
		journal:            NewMemoryJournal(),
		maxRetryCount:      DefaultMaxRetryCount,
		minPollInterval:    defaultMinPollInterval,
		transitionHook:     defaultTransitionHook,
		dispatchHook:       defaultDispatchHook,
		dispatchResultHook: defaultDispatchResultHook,
		verificationHook:   defaultVerificationHook,
	}
}

type Option func(*engineConfig)

// WithLogger sets the structured logger. The engine derives a per-instance
// logger from it and binds it to dispatch contexts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithJournal sets the execution record sink.
func WithJournal(journal Journal) Option {
	return func(c *engineConfig) {
		c.journal = journal
	}
}

// WithScriptRunner enables code listeners whose body is an interpreted
// source snippet.
func WithScriptRunner(runner ScriptRunner) Option {
	return func(c *engineConfig) {
		c.scriptRunner = runner
	}
}

// WithMaxRetryCount overrides the per-listener retry bound.
func WithMaxRetryCount(n int) Option {
	return func(c *engineConfig) {
		if n >= 0 {
			c.maxRetryCount = n
		}
	}
}

// WithMinPollInterval sets the floor applied to listener poll intervals.
func WithMinPollInterval(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.minPollInterval = d
		}
	}
}

func WithTransitionHook(hook TransitionHook) Option {
	return func(c *engineConfig) {
		c.transitionHook = hook
	}
}

func WithDispatchHook(hook DispatchHook) Option {
	return func(c *engineConfig) {
		c.dispatchHook = hook
	}
}

func WithDispatchResultHook(hook DispatchResultHook) Option {
	return func(c *engineConfig) {
		c.dispatchResultHook = hook
	}
}

func WithVerificationHook(hook VerificationHook) Option {
	return func(c *engineConfig) {
		c.verificationHook = hook
	}
}
