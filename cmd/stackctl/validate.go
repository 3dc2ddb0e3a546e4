package main

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

type validateCmd struct{}

func newValidateCmd() validateCmd {
	return validateCmd{}
}

func (v validateCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check the manifest against the orchestration contract without touching the engine",
		Action: v.run,
	}
}

func (v validateCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)

	manifest, baseDir, err := loadManifest(cliCtx)
	if err != nil {
		return err
	}

	if err = manifest.Validate(baseDir); err != nil {
		return err
	}

	log.Info().Int("services", len(manifest.Services)).Msg("Manifest is valid")

	return nil
}
