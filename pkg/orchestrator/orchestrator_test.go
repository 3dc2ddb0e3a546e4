package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/envfile"
	"github.com/dartlab/stackctl/pkg/provider"
	"github.com/dartlab/stackctl/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineMock struct {
	buildImage      func(contextDir, image string) error
	imageExists     func(image string) (bool, error)
	createContainer func(spec provider.ContainerSpec) (string, error)
	startContainer  func(id string) error
	stopContainer   func(id string) error
	restart         func(id string) error
	removeContainer func(id string, force bool) error
}

func (e engineMock) BuildImage(_ context.Context, contextDir, image string) error {
	return e.buildImage(contextDir, image)
}

func (e engineMock) ImageExists(_ context.Context, image string) (bool, error) {
	return e.imageExists(image)
}

func (e engineMock) CreateContainer(_ context.Context, spec provider.ContainerSpec) (string, error) {
	return e.createContainer(spec)
}

func (e engineMock) StartContainer(_ context.Context, id string) error {
	return e.startContainer(id)
}

func (e engineMock) StopContainer(_ context.Context, id string, _ *time.Duration) error {
	return e.stopContainer(id)
}

func (e engineMock) RestartContainer(_ context.Context, id string, _ *time.Duration) error {
	return e.restart(id)
}

func (e engineMock) RemoveContainer(_ context.Context, id string, force bool) error {
	return e.removeContainer(id, force)
}

type fetcherMock struct {
	fetchState func() (*state.Stack, error)
}

func (f fetcherMock) FetchState(_ context.Context) (*state.Stack, error) {
	return f.fetchState()
}

func testManifest() compose.Manifest {
	return compose.Manifest{
		Services: map[string]compose.Service{
			"auth_server":     {Image: "auth_server:1.0.0", Restart: compose.RestartUnlessStopped},
			"ai_dart_scraper": {Image: "ai_dart_scraper:1.0.0", Restart: compose.RestartUnlessStopped},
		},
	}
}

// reservePort grabs an ephemeral port on the loopback interface. The
// returned closer keeps the port bound until called.
func reservePort(t *testing.T) (port int, release func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port = ln.Addr().(*net.TCPAddr).Port
	return port, func() { _ = ln.Close() }
}

func runningStack(manifest compose.Manifest) *state.Stack {
	services := map[string]*state.ServiceState{}
	for name, svc := range manifest.Services {
		services[name] = &state.ServiceState{
			Service:     name,
			ContainerID: "id-" + name,
			Status:      state.StatusRunning,
			ConfigHash:  svc.ConfigHash(""),
		}
	}
	return &state.Stack{Name: "example", Services: services}
}

func TestOrchestrator_Up_createsMissingServices(t *testing.T) {
	manifest := testManifest()

	var created []provider.ContainerSpec
	var started []string

	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			created = append(created, spec)
			return "id-" + spec.Service, nil
		},
		startContainer: func(id string) error {
			started = append(started, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return &state.Stack{Name: "example", Services: map[string]*state.ServiceState{}}, nil
		},
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	err := orch.Up(context.Background(), manifest, UpOptions{})
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.Equal(t, "ai_dart_scraper", created[0].Service)
	assert.Equal(t, "ai_dart_scraper:1.0.0", created[0].Image)
	assert.Equal(t, compose.RestartUnlessStopped, created[0].RestartPolicy)
	assert.Equal(t, "auth_server", created[1].Service)
	assert.Equal(t, compose.RestartUnlessStopped, created[1].RestartPolicy)
	assert.Equal(t, []string{"id-ai_dart_scraper", "id-auth_server"}, started)
}

func TestOrchestrator_Up_propagatesServiceSpec(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, ".env"), []byte("DART_API_KEY=secret\n"), 0o600))

	port, release := reservePort(t)
	release()

	svc := compose.Service{
		Image:   "auth_server:1.0.0",
		Restart: compose.RestartUnlessStopped,
		EnvFile: "./.env",
		Ports:   []string{fmt.Sprintf("127.0.0.1:%d:8000", port)},
		Command: "uvicorn app.main:app --host 0.0.0.0 --port 8000 --workers 1",
	}
	manifest := compose.Manifest{Services: map[string]compose.Service{"auth_server": svc}}

	envChecksum, err := envfile.Checksum(filepath.Join(baseDir, ".env"))
	require.NoError(t, err)

	var created []provider.ContainerSpec
	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			created = append(created, spec)
			return "id-" + spec.Service, nil
		},
		startContainer: func(string) error { return nil },
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return &state.Stack{Name: "example", Services: map[string]*state.ServiceState{}}, nil
		},
	}

	orch := New("example", baseDir, engine, fetcher, nil)

	require.NoError(t, orch.Up(context.Background(), manifest, UpOptions{}))

	require.Len(t, created, 1)
	spec := created[0]
	assert.Equal(t, "example", spec.Stack)
	assert.Equal(t, "auth_server:1.0.0", spec.Image)
	assert.Equal(t, compose.RestartUnlessStopped, spec.RestartPolicy)
	assert.Equal(t, []string{"DART_API_KEY=secret"}, spec.Env)
	assert.Equal(t, svc.CommandArgs(), spec.Cmd)
	assert.Equal(t, svc.ConfigHash(envChecksum), spec.ConfigHash)
	assert.Equal(t, []compose.PortMapping{
		{HostIP: "127.0.0.1", HostPort: port, ContainerPort: 8000, Protocol: "tcp"},
	}, spec.PortMappings)
}

func TestOrchestrator_Up_boundPortIsFatalForThatService(t *testing.T) {
	port, release := reservePort(t)
	defer release()

	manifest := testManifest()
	svc := manifest.Services["auth_server"]
	svc.Ports = []string{fmt.Sprintf("127.0.0.1:%d:8000", port)}
	manifest.Services["auth_server"] = svc

	var created []string
	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			created = append(created, spec.Service)
			return "id-" + spec.Service, nil
		},
		startContainer: func(string) error { return nil },
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return &state.Stack{Name: "example", Services: map[string]*state.ServiceState{}}, nil
		},
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	err := orch.Up(context.Background(), manifest, UpOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "auth_server"`)
	assert.Contains(t, err.Error(), fmt.Sprintf("published port %d is already bound", port))

	// The port conflict is detected before any engine call for the service,
	// and its neighbor still deploys.
	assert.Equal(t, []string{"ai_dart_scraper"}, created)
}

func TestOrchestrator_Up_startFailureNamesService(t *testing.T) {
	manifest := testManifest()

	observed := runningStack(manifest)
	observed.Services["auth_server"].Status = state.StatusExited

	engine := engineMock{
		startContainer: func(string) error { return errors.New("boom") },
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	err := orch.Up(context.Background(), manifest, UpOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "auth_server": boom`)
}

func TestOrchestrator_Up_isIdempotent(t *testing.T) {
	manifest := testManifest()

	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			t.Errorf("unexpected create for %q", spec.Service)
			return "", nil
		},
		startContainer: func(id string) error {
			t.Errorf("unexpected start for %q", id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return runningStack(manifest), nil
		},
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	require.NoError(t, orch.Up(context.Background(), manifest, UpOptions{}))
}

func TestOrchestrator_Up_recreatesOnConfigDrift(t *testing.T) {
	manifest := testManifest()

	observed := runningStack(manifest)
	observed.Services["auth_server"].ConfigHash = "stale"

	var stopped, removed, started []string
	var created []provider.ContainerSpec

	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			created = append(created, spec)
			return "new-" + spec.Service, nil
		},
		startContainer: func(id string) error {
			started = append(started, id)
			return nil
		},
		stopContainer: func(id string) error {
			stopped = append(stopped, id)
			return nil
		},
		removeContainer: func(id string, force bool) error {
			assert.True(t, force)
			removed = append(removed, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	require.NoError(t, orch.Up(context.Background(), manifest, UpOptions{}))

	// Only the drifted service is touched.
	assert.Equal(t, []string{"id-auth_server"}, stopped)
	assert.Equal(t, []string{"id-auth_server"}, removed)
	require.Len(t, created, 1)
	assert.Equal(t, "auth_server", created[0].Service)
	assert.Equal(t, []string{"new-auth_server"}, started)
}

func TestOrchestrator_Up_servicesFailIndependently(t *testing.T) {
	manifest := testManifest()

	var created []string

	engine := engineMock{
		createContainer: func(spec provider.ContainerSpec) (string, error) {
			if spec.Service == "ai_dart_scraper" {
				return "", errors.New("boom")
			}
			created = append(created, spec.Service)
			return "id-" + spec.Service, nil
		},
		startContainer: func(string) error { return nil },
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return &state.Stack{Name: "example", Services: map[string]*state.ServiceState{}}, nil
		},
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	err := orch.Up(context.Background(), manifest, UpOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "ai_dart_scraper"`)

	// The failure on one service does not block the other.
	assert.Equal(t, []string{"auth_server"}, created)
}

func TestOrchestrator_Up_orphans(t *testing.T) {
	tests := []struct {
		desc            string
		removeOrphans   bool
		expectedRemoved []string
	}{
		{
			desc:            "orphans left alone by default",
			expectedRemoved: nil,
		},
		{
			desc:            "orphans removed on request",
			removeOrphans:   true,
			expectedRemoved: []string{"id-legacy_worker"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.desc, func(t *testing.T) {
			manifest := testManifest()

			observed := runningStack(manifest)
			observed.Services["legacy_worker"] = &state.ServiceState{
				Service:     "legacy_worker",
				ContainerID: "id-legacy_worker",
				Status:      state.StatusExited,
				ConfigHash:  "whatever",
			}

			var removed []string
			engine := engineMock{
				removeContainer: func(id string, _ bool) error {
					removed = append(removed, id)
					return nil
				},
			}
			fetcher := fetcherMock{
				fetchState: func() (*state.Stack, error) { return observed, nil },
			}

			orch := New("example", t.TempDir(), engine, fetcher, nil)

			err := orch.Up(context.Background(), manifest, UpOptions{RemoveOrphans: test.removeOrphans})
			require.NoError(t, err)
			assert.Equal(t, test.expectedRemoved, removed)
		})
	}
}

func TestOrchestrator_Down(t *testing.T) {
	manifest := testManifest()
	observed := runningStack(manifest)

	var stopped, removed []string
	engine := engineMock{
		stopContainer: func(id string) error {
			stopped = append(stopped, id)
			return nil
		},
		removeContainer: func(id string, _ bool) error {
			removed = append(removed, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	require.NoError(t, orch.Down(context.Background()))

	assert.Equal(t, []string{"id-ai_dart_scraper", "id-auth_server"}, stopped)
	assert.Equal(t, []string{"id-ai_dart_scraper", "id-auth_server"}, removed)
}

func TestOrchestrator_Down_continuesPastFailures(t *testing.T) {
	manifest := testManifest()

	observed := runningStack(manifest)
	for _, svcState := range observed.Services {
		svcState.Status = state.StatusExited
	}

	var removed []string
	engine := engineMock{
		removeContainer: func(id string, _ bool) error {
			if id == "id-ai_dart_scraper" {
				return errors.New("boom")
			}
			removed = append(removed, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	err := orch.Down(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"id-auth_server"}, removed)
}

func TestOrchestrator_Stop(t *testing.T) {
	manifest := testManifest()
	observed := runningStack(manifest)

	var stopped []string
	engine := engineMock{
		stopContainer: func(id string) error {
			stopped = append(stopped, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	require.NoError(t, orch.Stop(context.Background(), "auth_server"))
	assert.Equal(t, []string{"id-auth_server"}, stopped)

	stopped = nil
	require.NoError(t, orch.Stop(context.Background()))
	assert.Equal(t, []string{"id-ai_dart_scraper", "id-auth_server"}, stopped)
}

func TestOrchestrator_Start_unknownService(t *testing.T) {
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) {
			return &state.Stack{Name: "example", Services: map[string]*state.ServiceState{}}, nil
		},
	}

	orch := New("example", t.TempDir(), engineMock{}, fetcher, nil)

	err := orch.Start(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `service "ghost": no container`)
}

func TestOrchestrator_Restart(t *testing.T) {
	manifest := testManifest()
	observed := runningStack(manifest)

	var restarted []string
	engine := engineMock{
		restart: func(id string) error {
			restarted = append(restarted, id)
			return nil
		},
	}
	fetcher := fetcherMock{
		fetchState: func() (*state.Stack, error) { return observed, nil },
	}

	orch := New("example", t.TempDir(), engine, fetcher, nil)

	require.NoError(t, orch.Restart(context.Background(), "ai_dart_scraper"))
	assert.Equal(t, []string{"id-ai_dart_scraper"}, restarted)
}
