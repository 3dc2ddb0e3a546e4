package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	eventtypes "github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Labels attached to every container managed by the tool. The config hash
// label carries the fingerprint of the service definition the container was
// created from, which makes stack-up idempotent.
const (
	LabelStack      = "io.stackctl.stack"
	LabelService    = "io.stackctl.service"
	LabelConfigHash = "io.stackctl.config-hash"
)

// ContainerSpec describes the container to create for a service.
type ContainerSpec struct {
	Stack         string
	Service       string
	Image         string
	Cmd           []string
	Env           []string
	RestartPolicy string
	ConfigHash    string
	PortMappings  []compose.PortMapping
}

// Engine exposes the subset of the Docker engine API the orchestrator
// needs, scoped to one stack through labels.
type Engine struct {
	client client.APIClient
}

// NewEngine creates an Engine.
func NewEngine(dockerClient client.APIClient) *Engine {
	return &Engine{client: dockerClient}
}

// ContainerName returns the engine-side name of a service container.
func ContainerName(stack, service string) string {
	return stack + "_" + service
}

// ListStackContainers lists all containers belonging to the stack,
// including stopped ones.
func (e *Engine) ListStackContainers(ctx context.Context, stack string) ([]types.Container, error) {
	f := filters.NewArgs(filters.Arg("label", LabelStack+"="+stack))

	containers, err := e.client.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	return containers, nil
}

// InspectContainer inspects a single container.
func (e *Engine) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	containerInspect, err := e.client.ContainerInspect(ctx, id)
	if err != nil {
		return types.ContainerJSON{}, fmt.Errorf("inspect container %s: %w", id, err)
	}

	return containerInspect, nil
}

// CreateContainer creates the container for a service without starting it.
func (e *Engine) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}

	for _, pm := range spec.PortMappings {
		proto := pm.Protocol
		if proto == "" {
			proto = "tcp"
		}

		port, err := nat.NewPort(proto, strconv.Itoa(pm.ContainerPort))
		if err != nil {
			return "", fmt.Errorf("container port %d: %w", pm.ContainerPort, err)
		}

		exposedPorts[port] = struct{}{}
		portBindings[port] = append(portBindings[port], nat.PortBinding{
			HostIP:   pm.HostIP,
			HostPort: strconv.Itoa(pm.HostPort),
		})
	}

	config := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		ExposedPorts: exposedPorts,
		Labels: map[string]string{
			LabelStack:      spec.Stack,
			LabelService:    spec.Service,
			LabelConfigHash: spec.ConfigHash,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		RestartPolicy: container.RestartPolicy{
			Name: spec.RestartPolicy,
		},
	}

	resp, err := e.client.ContainerCreate(ctx, config, hostConfig, nil, nil, ContainerName(spec.Stack, spec.Service))
	if err != nil {
		return "", fmt.Errorf("create container for service %q: %w", spec.Service, err)
	}

	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (e *Engine) StartContainer(ctx context.Context, id string) error {
	if err := e.client.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}
	return nil
}

// StopContainer stops a running container. A stop issued here is a
// deliberate operator stop: the engine will not restart the container until
// it is explicitly started again, whatever its restart policy says.
func (e *Engine) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	if err := e.client.ContainerStop(ctx, id, timeout); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// RestartContainer restarts a container.
func (e *Engine) RestartContainer(ctx context.Context, id string, timeout *time.Duration) error {
	if err := e.client.ContainerRestart(ctx, id, timeout); err != nil {
		return fmt.Errorf("restart container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer removes a container.
func (e *Engine) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := e.client.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// ImageExists reports whether the image is present on the engine.
func (e *Engine) ImageExists(ctx context.Context, image string) (bool, error) {
	f := filters.NewArgs(filters.Arg("reference", image))

	images, err := e.client.ImageList(ctx, types.ImageListOptions{Filters: f})
	if err != nil {
		return false, fmt.Errorf("list images: %w", err)
	}

	return len(images) > 0, nil
}

// Events streams container events for the stack.
func (e *Engine) Events(ctx context.Context, stack string) (<-chan eventtypes.Message, <-chan error) {
	f := filters.NewArgs(
		filters.Arg("type", "container"),
		filters.Arg("label", LabelStack+"="+stack),
	)

	return e.client.Events(ctx, types.EventsOptions{Filters: f})
}
