package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
	"github.com/m-mizutani/planloop/executor/claude"
	"github.com/m-mizutani/planloop/executor/mcp"
	"github.com/m-mizutani/planloop/executor/openai"
	"github.com/m-mizutani/planloop/executor/script"
	"github.com/m-mizutani/planloop/planfile"
	"github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a plan file and print the execution trace",
		ArgsUsage: "<plan.yml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Value:   "claude",
				Sources: cli.EnvVars("PLANLOOP_TRANSPORT"),
				Usage:   "Executor transport: claude, openai or mcp",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Sources: cli.EnvVars("PLANLOOP_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"),
				Usage:   "API key for the LLM transport",
			},
			&cli.StringFlag{
				Name:    "model",
				Sources: cli.EnvVars("PLANLOOP_MODEL"),
				Usage:   "Model name for the LLM transport",
			},
			&cli.StringFlag{
				Name:    "mcp-url",
				Sources: cli.EnvVars("PLANLOOP_MCP_URL"),
				Usage:   "Base URL of a remote MCP server",
			},
			&cli.StringFlag{
				Name:    "mcp-cmd",
				Sources: cli.EnvVars("PLANLOOP_MCP_CMD"),
				Usage:   "Path to a local MCP server executable",
			},
			&cli.StringSliceFlag{
				Name:  "agent",
				Usage: "Agent registration as id=system-prompt (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "value",
				Usage: "Initial instance value as key=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging to stderr",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			planPath := cmd.Args().First()
			if planPath == "" {
				return fmt.Errorf("plan file argument is required")
			}

			plan, err := planfile.LoadFile(planPath)
			if err != nil {
				return err
			}

			repo, err := planloop.NewMemoryPlanRepository(plan)
			if err != nil {
				return err
			}

			transport, err := buildTransport(ctx, cmd)
			if err != nil {
				return err
			}

			options := []planloop.Option{
				planloop.WithScriptRunner(script.New()),
			}
			if cmd.Bool("verbose") {
				options = append(options, planloop.WithLogger(
					slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
			}
			engine := planloop.New(repo, transport, options...)

			instanceID, err := engine.StartInstance(ctx, plan.ID, parsePairs(cmd.StringSlice("value")))
			if err != nil {
				return err
			}

			if _, err := engine.Wait(ctx, instanceID); err != nil {
				return err
			}

			trace, err := engine.GetExecutionTrace(ctx, instanceID)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(trace, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to render execution trace")
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func buildTransport(ctx context.Context, cmd *cli.Command) (planloop.Transport, error) {
	switch cmd.String("transport") {
	case "claude":
		options := agentOptions(cmd, claude.WithAgent)
		if model := cmd.String("model"); model != "" {
			options = append(options, claude.WithModel(model))
		}
		return claude.New(ctx, cmd.String("api-key"), options...)

	case "openai":
		options := agentOptions(cmd, openai.WithAgent)
		if model := cmd.String("model"); model != "" {
			options = append(options, openai.WithModel(model))
		}
		return openai.New(ctx, cmd.String("api-key"), options...)

	case "mcp":
		if url := cmd.String("mcp-url"); url != "" {
			return mcp.NewSSE(url), nil
		}
		if path := cmd.String("mcp-cmd"); path != "" {
			return mcp.NewStdio(path, nil), nil
		}
		return nil, fmt.Errorf("mcp transport requires --mcp-url or --mcp-cmd")

	default:
		return nil, fmt.Errorf("unknown transport: %s", cmd.String("transport"))
	}
}

func agentOptions[T any](cmd *cli.Command, register func(id, prompt string) T) []T {
	var options []T
	for id, prompt := range parseStringPairs(cmd.StringSlice("agent")) {
		options = append(options, register(id, prompt))
	}
	return options
}

func parseStringPairs(pairs []string) map[string]string {
	out := map[string]string{}
	for _, p := range pairs {
		if k, v, ok := strings.Cut(p, "="); ok {
			out[k] = v
		}
	}
	return out
}

func parsePairs(pairs []string) map[string]any {
	out := map[string]any{}
	for k, v := range parseStringPairs(pairs) {
		out[k] = v
	}
	return out
}
