package state

import (
	"context"
	"errors"
	"testing"

	"github.com/dartlab/stackctl/pkg/provider"
	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dockerMock struct {
	listStackContainers func(stack string) ([]types.Container, error)
	inspectContainer    func(id string) (types.ContainerJSON, error)
}

func (d dockerMock) ListStackContainers(_ context.Context, stack string) ([]types.Container, error) {
	return d.listStackContainers(stack)
}

func (d dockerMock) InspectContainer(_ context.Context, id string) (types.ContainerJSON, error) {
	return d.inspectContainer(id)
}

func TestFetcher_FetchState(t *testing.T) {
	containers := []types.Container{
		{
			ID:    "aaa",
			Names: []string{"/example_auth_server"},
			Image: "auth_server:1.0.0",
			State: "running",
			Labels: map[string]string{
				provider.LabelStack:      "example",
				provider.LabelService:    "auth_server",
				provider.LabelConfigHash: "hash-auth",
			},
			Ports: []types.Port{
				{PrivatePort: 8000, PublicPort: 8499, Type: "tcp"},
			},
		},
		{
			ID:    "bbb",
			Names: []string{"/example_ai_dart_scraper"},
			Image: "ai_dart_scraper:1.0.0",
			State: "running",
			Labels: map[string]string{
				provider.LabelStack:      "example",
				provider.LabelService:    "ai_dart_scraper",
				provider.LabelConfigHash: "hash-scraper",
			},
			Ports: []types.Port{
				{PrivatePort: 8080, PublicPort: 8502, Type: "tcp"},
				// Unpublished ports are dropped from the snapshot.
				{PrivatePort: 9090, Type: "tcp"},
			},
		},
		{
			// Containers without a service label are not part of the stack.
			ID:     "ccc",
			Names:  []string{"/stray"},
			Labels: map[string]string{},
		},
	}

	inspects := map[string]types.ContainerJSON{
		"aaa": {
			ContainerJSONBase: &types.ContainerJSONBase{
				State: &types.ContainerState{
					Status:   "exited",
					ExitCode: 137,
				},
			},
		},
		"bbb": {
			ContainerJSONBase: &types.ContainerJSONBase{
				State: &types.ContainerState{
					Status: "running",
					Health: &types.Health{Status: "healthy"},
				},
			},
		},
	}

	docker := dockerMock{
		listStackContainers: func(stack string) ([]types.Container, error) {
			assert.Equal(t, "example", stack)
			return containers, nil
		},
		inspectContainer: func(id string) (types.ContainerJSON, error) {
			inspect, ok := inspects[id]
			require.True(t, ok, "unexpected inspect for %q", id)
			return inspect, nil
		},
	}

	fetcher := NewFetcher("example", docker)

	stack, err := fetcher.FetchState(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "example", stack.Name)
	require.Len(t, stack.Services, 2)

	authServer := stack.Services["auth_server"]
	require.NotNil(t, authServer)
	assert.Equal(t, "aaa", authServer.ContainerID)
	assert.Equal(t, "example_auth_server", authServer.ContainerName)
	assert.Equal(t, StatusExited, authServer.Status)
	assert.Equal(t, 137, authServer.ExitCode)
	assert.Equal(t, "hash-auth", authServer.ConfigHash)
	assert.False(t, authServer.Running())

	scraper := stack.Services["ai_dart_scraper"]
	require.NotNil(t, scraper)
	assert.Equal(t, StatusRunning, scraper.Status)
	assert.Equal(t, "healthy", scraper.Health)
	assert.True(t, scraper.Running())
	assert.Equal(t, []PublishedPort{
		{HostPort: 8502, ContainerPort: 8080, Protocol: "tcp"},
	}, scraper.Ports)
}

func TestFetcher_FetchState_listError(t *testing.T) {
	docker := dockerMock{
		listStackContainers: func(string) ([]types.Container, error) {
			return nil, errors.New("boom")
		},
	}

	fetcher := NewFetcher("example", docker)

	_, err := fetcher.FetchState(context.Background())
	assert.Error(t, err)
}

func TestServiceState_Running(t *testing.T) {
	tests := []struct {
		desc     string
		status   string
		expected bool
	}{
		{desc: "running", status: StatusRunning, expected: true},
		{desc: "restarting", status: StatusRestarting, expected: true},
		{desc: "exited", status: StatusExited, expected: false},
		{desc: "created", status: StatusCreated, expected: false},
		{desc: "paused", status: StatusPaused, expected: false},
		{desc: "dead", status: StatusDead, expected: false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.desc, func(t *testing.T) {
			svcState := ServiceState{Status: test.status}
			assert.Equal(t, test.expected, svcState.Running())
		})
	}
}
