package state

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dartlab/stackctl/pkg/provider"
	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog/log"
)

// Docker is the engine surface the fetcher reads from.
type Docker interface {
	ListStackContainers(ctx context.Context, stack string) ([]types.Container, error)
	InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error)
}

// Fetcher assembles a filtered, simplified snapshot of the stack from the
// engine's view of its containers.
type Fetcher struct {
	stack  string
	docker Docker
}

// NewFetcher returns a new Fetcher.
func NewFetcher(stack string, docker Docker) *Fetcher {
	return &Fetcher{
		stack:  stack,
		docker: docker,
	}
}

// FetchState assembles the stack state snapshot.
func (f *Fetcher) FetchState(ctx context.Context) (*Stack, error) {
	containers, err := f.docker.ListStackContainers(ctx, f.stack)
	if err != nil {
		return nil, fmt.Errorf("list stack containers: %w", err)
	}

	stack := &Stack{
		Name:     f.stack,
		Services: make(map[string]*ServiceState),
	}

	for _, c := range containers {
		service := c.Labels[provider.LabelService]
		if service == "" {
			log.Debug().Str("container_id", c.ID).Msg("Skipping container without a service label")
			continue
		}

		containerInspect, err := f.docker.InspectContainer(ctx, c.ID)
		if err != nil {
			return nil, err
		}

		stack.Services[service] = buildServiceState(service, c, containerInspect)
	}

	return stack, nil
}

func buildServiceState(service string, c types.Container, containerInspect types.ContainerJSON) *ServiceState {
	svcState := &ServiceState{
		Service:       service,
		ContainerID:   c.ID,
		ContainerName: strings.TrimPrefix(c.Names[0], "/"),
		Image:         c.Image,
		Status:        c.State,
		ConfigHash:    c.Labels[provider.LabelConfigHash],
	}

	if containerInspect.State != nil {
		svcState.Status = containerInspect.State.Status
		svcState.ExitCode = containerInspect.State.ExitCode
		if containerInspect.State.Health != nil {
			svcState.Health = containerInspect.State.Health.Status
		}
	}

	for _, port := range c.Ports {
		if port.PublicPort == 0 {
			continue
		}
		svcState.Ports = append(svcState.Ports, PublishedPort{
			HostPort:      int(port.PublicPort),
			ContainerPort: int(port.PrivatePort),
			Protocol:      port.Type,
		})
	}

	sort.Slice(svcState.Ports, func(i, j int) bool {
		return svcState.Ports[i].HostPort < svcState.Ports[j].HostPort
	})

	return svcState
}
