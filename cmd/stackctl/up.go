package main

import (
	"github.com/dartlab/stackctl/pkg/orchestrator"
	"github.com/urfave/cli/v2"
)

const (
	flagBuild         = "build"
	flagWait          = "wait"
	flagRemoveOrphans = "remove-orphans"
)

type upCmd struct {
	flags []cli.Flag
}

func newUpCmd() upCmd {
	return upCmd{
		flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagBuild,
				Usage:   "Build service images even when they already exist",
				EnvVars: envVars(flagBuild),
			},
			&cli.BoolFlag{
				Name:    flagWait,
				Usage:   "Wait until started services answer their readiness probe",
				EnvVars: envVars(flagWait),
			},
			&cli.BoolFlag{
				Name:    flagRemoveOrphans,
				Usage:   "Remove containers of services no longer in the manifest",
				EnvVars: envVars(flagRemoveOrphans),
			},
		},
	}
}

func (u upCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "up",
		Usage:  "Create and start the stack declared by the manifest",
		Flags:  u.flags,
		Action: u.run,
	}
}

func (u upCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)

	sc, err := newStackContext(cliCtx)
	if err != nil {
		return err
	}

	return sc.orch.Up(cliCtx.Context, sc.manifest, orchestrator.UpOptions{
		Build:         cliCtx.Bool(flagBuild),
		Wait:          cliCtx.Bool(flagWait),
		RemoveOrphans: cliCtx.Bool(flagRemoveOrphans),
	})
}
