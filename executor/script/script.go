// Package script runs inline-code listener bodies through the yaegi
// interpreter. A snippet must evaluate to
//
//	func(env map[string]any) (map[string]any, error)
//
// where env carries the instance values and task contexts. A fresh
// interpreter is created per run, so snippets cannot leak state into each
// other.
package script

import (
	"context"
	"reflect"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptFunc is the shape a snippet must evaluate to.
type ScriptFunc = func(env map[string]any) (map[string]any, error)

// Runner implements planloop.ScriptRunner.
type Runner struct {
	// useStdlib exposes the Go standard library to snippets.
	useStdlib bool
}

var _ planloop.ScriptRunner = &Runner{}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithoutStdlib hides the standard library from snippets.
func WithoutStdlib() Option {
	return func(r *Runner) {
		r.useStdlib = false
	}
}

// New creates a snippet runner.
func New(options ...Option) *Runner {
	r := &Runner{useStdlib: true}
	for _, option := range options {
		option(r)
	}
	return r
}

// RunScript evaluates source and calls the resulting function with env. The
// call runs on its own goroutine so a cancelled context returns promptly,
// though the snippet itself keeps running until it finishes.
func (r *Runner) RunScript(ctx context.Context, source string, env map[string]any) (map[string]any, error) {
	i := interp.New(interp.Options{})
	if r.useStdlib {
		if err := i.Use(stdlib.Symbols); err != nil {
			return nil, goerr.Wrap(err, "failed to load stdlib symbols")
		}
	}

	v, err := i.EvalWithContext(ctx, source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate script")
	}

	if !v.IsValid() {
		return nil, goerr.New("script evaluated to no value")
	}
	fn, ok := v.Interface().(ScriptFunc)
	if !ok {
		return nil, goerr.New("script must evaluate to func(map[string]any) (map[string]any, error)",
			goerr.V("got", reflect.TypeOf(v.Interface()).String()))
	}

	type outcome struct {
		data map[string]any
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		data, err := fn(env)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "script aborted")
	case out := <-ch:
		if out.err != nil {
			return nil, goerr.Wrap(out.err, "script failed")
		}
		return out.data, nil
	}
}
