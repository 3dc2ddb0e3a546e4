package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dartlab/stackctl/pkg/version"
	"github.com/ettle/strcase"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const (
	flagFile           = "file"
	flagStack          = "stack"
	flagDockerEndpoint = "docker-endpoint"
	flagDockerTimeout  = "docker-timeout"
	flagDockerTLSCA    = "docker-tls-ca"
	flagDockerTLSCert  = "docker-tls-cert"
	flagDockerTLSKey   = "docker-tls-key"
	flagDockerInsecure = "docker-tls-insecure"
	flagLogLevel       = "log-level"
	flagLogFormat      = "log-format"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error while executing command")
	}
}

func run() error {
	app := &cli.App{
		Name:  "stackctl",
		Usage: "Reconcile a Docker engine against a declarative stack manifest",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			newUpCmd().build(),
			newDownCmd().build(),
			newStartCmd().build(),
			newStopCmd().build(),
			newRestartCmd().build(),
			newPsCmd().build(),
			newValidateCmd().build(),
			newWatchCmd().build(),
			newStatsCmd().build(),
			newVersionCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return app.RunContext(ctx, os.Args)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagFile,
			Aliases: []string{"f"},
			Usage:   "Path of the stack manifest",
			EnvVars: envVars(flagFile),
			Value:   "stack.yml",
		},
		&cli.StringFlag{
			Name:    flagStack,
			Usage:   "Stack name. Defaults to the manifest directory name",
			EnvVars: envVars(flagStack),
		},
		&cli.StringFlag{
			Name:    flagDockerEndpoint,
			Usage:   "Address of the Docker engine",
			EnvVars: envVars(flagDockerEndpoint),
			Value:   "unix:///var/run/docker.sock",
		},
		&cli.DurationFlag{
			Name:    flagDockerTimeout,
			Usage:   "Timeout of Docker engine API calls",
			EnvVars: envVars(flagDockerTimeout),
			Value:   defaultDockerTimeout,
		},
		&cli.StringFlag{
			Name:    flagDockerTLSCA,
			Usage:   "Path of the CA certificate for a TLS-protected Docker engine",
			EnvVars: envVars(flagDockerTLSCA),
		},
		&cli.StringFlag{
			Name:    flagDockerTLSCert,
			Usage:   "Path of the client certificate for a TLS-protected Docker engine",
			EnvVars: envVars(flagDockerTLSCert),
		},
		&cli.StringFlag{
			Name:    flagDockerTLSKey,
			Usage:   "Path of the client key for a TLS-protected Docker engine",
			EnvVars: envVars(flagDockerTLSKey),
		},
		&cli.BoolFlag{
			Name:    flagDockerInsecure,
			Usage:   "Skip verification of the Docker engine certificate",
			EnvVars: envVars(flagDockerInsecure),
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Usage:   "Log level to use (debug, info, warn, error or fatal)",
			EnvVars: envVars(flagLogLevel),
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    flagLogFormat,
			Usage:   "Log format to use (json or console)",
			EnvVars: envVars(flagLogFormat),
			Value:   "console",
		},
	}
}

func envVars(flagName string) []string {
	return []string{"STACKCTL_" + strcase.ToSNAKE(flagName)}
}

func newVersionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(*cli.Context) error {
			return version.Print(os.Stdout)
		},
	}
}
