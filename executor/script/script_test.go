package script_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop/executor/script"
)

func TestRunScript(t *testing.T) {
	ctx := context.Background()
	runner := script.New()

	t.Run("returns data from env", func(t *testing.T) {
		src := `
func(env map[string]any) (map[string]any, error) {
	values := env["values"].(map[string]any)
	return map[string]any{"greeting": "hello " + values["user"].(string)}, nil
}`
		data := gt.R1(runner.RunScript(ctx, src, map[string]any{
			"values": map[string]any{"user": "alice"},
		})).NoError(t)
		gt.Equal(t, data["greeting"], "hello alice")
	})

	t.Run("stdlib is available", func(t *testing.T) {
		src := `
import "strings"

func(env map[string]any) (map[string]any, error) {
	return map[string]any{"upper": strings.ToUpper("ok")}, nil
}`
		data := gt.R1(runner.RunScript(ctx, src, nil)).NoError(t)
		gt.Equal(t, data["upper"], "OK")
	})

	t.Run("script error is returned", func(t *testing.T) {
		src := `
import "errors"

func(env map[string]any) (map[string]any, error) {
	return nil, errors.New("nope")
}`
		_, err := runner.RunScript(ctx, src, nil)
		gt.Error(t, err)
	})

	t.Run("wrong shape is rejected", func(t *testing.T) {
		_, err := runner.RunScript(ctx, `func() {}`, nil)
		gt.Error(t, err)
	})

	t.Run("syntax error is rejected", func(t *testing.T) {
		_, err := runner.RunScript(ctx, `func(env map[string]any) (`, nil)
		gt.Error(t, err)
	})
}
