package orchestrator

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/envfile"
	"github.com/dartlab/stackctl/pkg/provider"
	"github.com/dartlab/stackctl/pkg/state"
	"github.com/rs/zerolog/log"
)

// Engine is the subset of the provider surface the orchestrator drives.
type Engine interface {
	BuildImage(ctx context.Context, contextDir, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)
	CreateContainer(ctx context.Context, spec provider.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout *time.Duration) error
	RestartContainer(ctx context.Context, id string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
}

// StateFetcher provides the observed stack state.
type StateFetcher interface {
	FetchState(ctx context.Context) (*state.Stack, error)
}

// ReadinessWaiter blocks until a freshly started service answers on its
// published port.
type ReadinessWaiter interface {
	WaitReady(ctx context.Context, service string, hostPort int, hc *compose.Healthcheck) error
}

// UpOptions tunes a stack-up run.
type UpOptions struct {
	// Build forces an image build for services with a build context even
	// when the image already exists.
	Build bool
	// Wait blocks until started services answer their readiness probe.
	Wait bool
	// RemoveOrphans removes containers of services no longer in the
	// manifest.
	RemoveOrphans bool
}

// Orchestrator reconciles a Docker engine against a stack manifest. Each
// service is handled independently: a failure on one never rolls back or
// blocks another.
type Orchestrator struct {
	stack   string
	baseDir string

	engine  Engine
	fetcher StateFetcher
	waiter  ReadinessWaiter

	stopTimeout time.Duration
}

// New returns a new Orchestrator. waiter may be nil when readiness waiting
// is not wanted.
func New(stack, baseDir string, engine Engine, fetcher StateFetcher, waiter ReadinessWaiter) *Orchestrator {
	return &Orchestrator{
		stack:       stack,
		baseDir:     baseDir,
		engine:      engine,
		fetcher:     fetcher,
		waiter:      waiter,
		stopTimeout: 10 * time.Second,
	}
}

// Up brings the stack to the state the manifest declares. Re-running it
// with unchanged content is a no-op: running containers whose config
// fingerprint matches are left alone.
func (o *Orchestrator) Up(ctx context.Context, manifest compose.Manifest, opts UpOptions) error {
	if err := manifest.Validate(o.baseDir); err != nil {
		return err
	}

	desiredHashes, envs, err := o.resolveServices(manifest)
	if err != nil {
		return err
	}

	observed, err := o.fetcher.FetchState(ctx)
	if err != nil {
		return err
	}

	actions := Plan(manifest, observed, desiredHashes)

	var errs []string
	for _, action := range actions {
		logger := log.With().Str("service", action.Service).Str("action", string(action.Type)).Logger()

		switch action.Type {
		case ActionNone:
			logger.Debug().Msg("Service is up to date")
			continue

		case ActionRemove:
			if !opts.RemoveOrphans {
				logger.Info().Msg("Orphan service container left running, use remove-orphans to delete it")
				continue
			}
			if err = o.removeService(ctx, observed.Services[action.Service]); err != nil {
				errs = append(errs, err.Error())
			}
			continue

		case ActionStart:
			logger.Info().Str("reason", action.Reason).Msg("Starting service")
			if err = o.engine.StartContainer(ctx, observed.Services[action.Service].ContainerID); err != nil {
				errs = append(errs, fmt.Sprintf("service %q: %s", action.Service, err))
				continue
			}

		case ActionCreate, ActionRecreate:
			logger.Info().Str("reason", action.Reason).Msg("Deploying service")

			svc := manifest.Services[action.Service]
			if err = o.deployService(ctx, action.Service, svc, desiredHashes[action.Service], envs[action.Service], observed.Services[action.Service], opts); err != nil {
				errs = append(errs, fmt.Sprintf("service %q: %s", action.Service, err))
				continue
			}
		}

		if opts.Wait && o.waiter != nil {
			svc := manifest.Services[action.Service]
			if err = o.waitReady(ctx, action.Service, svc); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("stack up: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Down stops and removes every container of the stack. This is the explicit
// teardown: restart policies do not resurrect removed containers.
func (o *Orchestrator) Down(ctx context.Context) error {
	observed, err := o.fetcher.FetchState(ctx)
	if err != nil {
		return err
	}

	var errs []string
	for _, name := range serviceNames(observed) {
		if err = o.removeService(ctx, observed.Services[name]); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("stack down: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Stop deliberately stops the given services, or all of them when none are
// named. A stopped service stays down until explicitly started again,
// whatever its restart policy.
func (o *Orchestrator) Stop(ctx context.Context, services ...string) error {
	return o.forEachService(ctx, services, func(ctx context.Context, svcState *state.ServiceState) error {
		log.Info().Str("service", svcState.Service).Msg("Stopping service")
		timeout := o.stopTimeout
		return o.engine.StopContainer(ctx, svcState.ContainerID, &timeout)
	})
}

// Start starts the given stopped services, or all of them.
func (o *Orchestrator) Start(ctx context.Context, services ...string) error {
	return o.forEachService(ctx, services, func(ctx context.Context, svcState *state.ServiceState) error {
		log.Info().Str("service", svcState.Service).Msg("Starting service")
		return o.engine.StartContainer(ctx, svcState.ContainerID)
	})
}

// Restart restarts the given services, or all of them.
func (o *Orchestrator) Restart(ctx context.Context, services ...string) error {
	return o.forEachService(ctx, services, func(ctx context.Context, svcState *state.ServiceState) error {
		log.Info().Str("service", svcState.Service).Msg("Restarting service")
		timeout := o.stopTimeout
		return o.engine.RestartContainer(ctx, svcState.ContainerID, &timeout)
	})
}

func (o *Orchestrator) forEachService(ctx context.Context, services []string, fn func(context.Context, *state.ServiceState) error) error {
	observed, err := o.fetcher.FetchState(ctx)
	if err != nil {
		return err
	}

	if len(services) == 0 {
		services = serviceNames(observed)
	}

	var errs []string
	for _, name := range services {
		svcState, ok := observed.Services[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("service %q: no container", name))
			continue
		}

		if err = fn(ctx, svcState); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// resolveServices computes per-service env pairs and config fingerprints.
func (o *Orchestrator) resolveServices(manifest compose.Manifest) (hashes map[string]string, envs map[string][]string, err error) {
	hashes = make(map[string]string, len(manifest.Services))
	envs = make(map[string][]string, len(manifest.Services))

	for _, name := range manifest.ServiceNames() {
		svc := manifest.Services[name]

		var envChecksum string
		if svc.EnvFile != "" {
			path := compose.ResolvePath(o.baseDir, svc.EnvFile)

			envChecksum, err = envfile.Checksum(path)
			if err != nil {
				return nil, nil, fmt.Errorf("service %q: %w", name, err)
			}

			envs[name], err = envfile.Load(path)
			if err != nil {
				return nil, nil, fmt.Errorf("service %q: %w", name, err)
			}
		}

		hashes[name] = svc.ConfigHash(envChecksum)
	}

	return hashes, envs, nil
}

func (o *Orchestrator) deployService(ctx context.Context, name string, svc compose.Service, configHash string, env []string, previous *state.ServiceState, opts UpOptions) error {
	image := svc.Image
	if image == "" {
		image = provider.ContainerName(o.stack, name) + ":latest"
	}

	if svc.Build != "" {
		if err := o.buildService(ctx, name, svc, image, opts); err != nil {
			return err
		}
	}

	mappings, err := svc.PortMappings()
	if err != nil {
		return err
	}

	if previous != nil {
		if err = o.removeService(ctx, previous); err != nil {
			return err
		}
	}

	if err = checkPortsFree(mappings); err != nil {
		return err
	}

	id, err := o.engine.CreateContainer(ctx, provider.ContainerSpec{
		Stack:         o.stack,
		Service:       name,
		Image:         image,
		Cmd:           svc.CommandArgs(),
		Env:           env,
		RestartPolicy: svc.Restart,
		ConfigHash:    configHash,
		PortMappings:  mappings,
	})
	if err != nil {
		return err
	}

	return o.engine.StartContainer(ctx, id)
}

func (o *Orchestrator) buildService(ctx context.Context, name string, svc compose.Service, image string, opts UpOptions) error {
	exists, err := o.engine.ImageExists(ctx, image)
	if err != nil {
		return err
	}

	if exists && !opts.Build {
		return nil
	}

	if exists {
		// An existing versioned tag is about to be overwritten by a new
		// build: the version should have been bumped.
		if _, verErr := svc.TagVersion(); verErr == nil {
			log.Warn().Str("service", name).Str("image", image).Msg("Rebuilding over an existing version tag, bump the tag on behavioral change")
		}
	}

	log.Info().Str("service", name).Str("image", image).Msg("Building image")

	return o.engine.BuildImage(ctx, compose.ResolvePath(o.baseDir, svc.Build), image)
}

func (o *Orchestrator) removeService(ctx context.Context, svcState *state.ServiceState) error {
	log.Info().Str("service", svcState.Service).Msg("Removing service container")

	if svcState.Running() {
		timeout := o.stopTimeout
		if err := o.engine.StopContainer(ctx, svcState.ContainerID, &timeout); err != nil {
			return err
		}
	}

	return o.engine.RemoveContainer(ctx, svcState.ContainerID, true)
}

func (o *Orchestrator) waitReady(ctx context.Context, name string, svc compose.Service) error {
	mappings, err := svc.PortMappings()
	if err != nil || len(mappings) == 0 {
		return nil
	}

	hostPort := mappings[0].HostPort
	if svc.Healthcheck != nil && svc.Healthcheck.Port != 0 {
		for _, pm := range mappings {
			if pm.ContainerPort == svc.Healthcheck.Port {
				hostPort = pm.HostPort
				break
			}
		}
	}

	return o.waiter.WaitReady(ctx, name, hostPort, svc.Healthcheck)
}

// checkPortsFree detects published ports already bound by a foreign process
// before the engine does, to fail with a configuration error instead of a
// container start error.
func checkPortsFree(mappings []compose.PortMapping) error {
	for _, pm := range mappings {
		addr := net.JoinHostPort(pm.HostIP, strconv.Itoa(pm.HostPort))

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("published port %d is already bound: %w", pm.HostPort, err)
		}
		_ = ln.Close()
	}

	return nil
}

func serviceNames(observed *state.Stack) []string {
	names := make([]string, 0, len(observed.Services))
	for name := range observed.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
