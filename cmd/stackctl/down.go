package main

import (
	"github.com/urfave/cli/v2"
)

type downCmd struct{}

func newDownCmd() downCmd {
	return downCmd{}
}

func (d downCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "down",
		Usage:  "Stop and remove the stack containers",
		Action: d.run,
	}
}

func (d downCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)

	sc, err := newStackContext(cliCtx)
	if err != nil {
		return err
	}

	return sc.orch.Down(cliCtx.Context)
}
