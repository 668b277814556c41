package main

import (
	"context"
	"fmt"

	"github.com/m-mizutani/planloop/planfile"
	"github.com/urfave/cli/v3"
)

func lintCommand() *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Validate plan files",
		ArgsUsage: "<plan.yml>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return fmt.Errorf("at least one plan file argument is required")
			}

			for _, path := range cmd.Args().Slice() {
				plan, err := planfile.LoadFile(path)
				if err != nil {
					return err
				}
				fmt.Printf("%s: OK (%s, %d tasks, %d listeners)\n",
					path, plan.ID, len(plan.Tasks), len(plan.Listeners))
			}
			return nil
		},
	}
}
