package main

import (
	"path/filepath"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/health"
	"github.com/dartlab/stackctl/pkg/logger"
	"github.com/dartlab/stackctl/pkg/orchestrator"
	"github.com/dartlab/stackctl/pkg/provider"
	"github.com/dartlab/stackctl/pkg/state"
	"github.com/urfave/cli/v2"
)

const defaultDockerTimeout = 30 * time.Second

// probeHost is where published ports are reachable from the tool.
const probeHost = "127.0.0.1"

// stackContext bundles everything a command needs to act on a stack.
type stackContext struct {
	manifestPath string
	baseDir      string
	stack        string

	manifest compose.Manifest

	engine  *provider.Engine
	fetcher *state.Fetcher
	orch    *orchestrator.Orchestrator
}

func setupLogger(cliCtx *cli.Context) {
	logger.Setup(cliCtx.String(flagLogLevel), cliCtx.String(flagLogFormat))
}

// loadManifest reads the manifest without touching the engine. Used by
// commands that only need the desired state.
func loadManifest(cliCtx *cli.Context) (compose.Manifest, string, error) {
	manifestPath := cliCtx.String(flagFile)

	manifest, err := compose.Load(manifestPath)
	if err != nil {
		return compose.Manifest{}, "", err
	}

	return manifest, filepath.Dir(manifestPath), nil
}

func tlsClientConfig(cliCtx *cli.Context) *provider.ClientTLS {
	ca := cliCtx.String(flagDockerTLSCA)
	cert := cliCtx.String(flagDockerTLSCert)
	key := cliCtx.String(flagDockerTLSKey)
	insecure := cliCtx.Bool(flagDockerInsecure)

	if ca == "" && cert == "" && key == "" && !insecure {
		return nil
	}

	return &provider.ClientTLS{
		CA:                 ca,
		Cert:               cert,
		Key:                key,
		InsecureSkipVerify: insecure,
	}
}

// newStackContext wires the engine, state fetcher and orchestrator for the
// manifest the command line points at.
func newStackContext(cliCtx *cli.Context) (*stackContext, error) {
	manifest, baseDir, err := loadManifest(cliCtx)
	if err != nil {
		return nil, err
	}

	manifestPath := cliCtx.String(flagFile)

	stack := cliCtx.String(flagStack)
	if stack == "" {
		stack = compose.StackName(manifestPath)
	}

	dockerClient, err := provider.CreateDockerClient(provider.DockerClientOpts{
		Endpoint:          cliCtx.String(flagDockerEndpoint),
		HTTPClientTimeout: cliCtx.Duration(flagDockerTimeout),
		TLSClientConfig:   tlsClientConfig(cliCtx),
	})
	if err != nil {
		return nil, err
	}

	engine := provider.NewEngine(dockerClient)
	fetcher := state.NewFetcher(stack, engine)
	orch := orchestrator.New(stack, baseDir, engine, fetcher, health.NewChecker(probeHost))

	return &stackContext{
		manifestPath: manifestPath,
		baseDir:      baseDir,
		stack:        stack,
		manifest:     manifest,
		engine:       engine,
		fetcher:      fetcher,
		orch:         orch,
	}, nil
}
