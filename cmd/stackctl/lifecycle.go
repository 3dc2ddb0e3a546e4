package main

import (
	"github.com/urfave/cli/v2"
)

// start, stop and restart act on individual services (or the whole stack
// when no service is named) without touching their neighbors.

type startCmd struct{}

func newStartCmd() startCmd {
	return startCmd{}
}

func (s startCmd) build() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start stopped services",
		ArgsUsage: "[SERVICE...]",
		Action: func(cliCtx *cli.Context) error {
			setupLogger(cliCtx)

			sc, err := newStackContext(cliCtx)
			if err != nil {
				return err
			}
			return sc.orch.Start(cliCtx.Context, cliCtx.Args().Slice()...)
		},
	}
}

type stopCmd struct{}

func newStopCmd() stopCmd {
	return stopCmd{}
}

func (s stopCmd) build() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Deliberately stop services; they stay down until started again",
		ArgsUsage: "[SERVICE...]",
		Action: func(cliCtx *cli.Context) error {
			setupLogger(cliCtx)

			sc, err := newStackContext(cliCtx)
			if err != nil {
				return err
			}
			return sc.orch.Stop(cliCtx.Context, cliCtx.Args().Slice()...)
		},
	}
}

type restartCmd struct{}

func newRestartCmd() restartCmd {
	return restartCmd{}
}

func (r restartCmd) build() *cli.Command {
	return &cli.Command{
		Name:      "restart",
		Usage:     "Restart services",
		ArgsUsage: "[SERVICE...]",
		Action: func(cliCtx *cli.Context) error {
			setupLogger(cliCtx)

			sc, err := newStackContext(cliCtx)
			if err != nil {
				return err
			}
			return sc.orch.Restart(cliCtx.Context, cliCtx.Args().Slice()...)
		},
	}
}
