package state

// Container statuses as reported by the engine.
const (
	StatusCreated    = "created"
	StatusRunning    = "running"
	StatusRestarting = "restarting"
	StatusExited     = "exited"
	StatusPaused     = "paused"
	StatusDead       = "dead"
)

// PublishedPort is an external:internal port association of a running
// container.
type PublishedPort struct {
	HostPort      int
	ContainerPort int
	Protocol      string
}

// ServiceState is the observed state of one service of the stack.
type ServiceState struct {
	Service       string
	ContainerID   string
	ContainerName string
	Image         string
	Status        string
	Health        string
	ExitCode      int
	ConfigHash    string
	Ports         []PublishedPort
}

// Running reports whether the service container is up.
func (s *ServiceState) Running() bool {
	return s.Status == StatusRunning || s.Status == StatusRestarting
}

// Stack is a point-in-time snapshot of the observed stack state, keyed by
// service name.
type Stack struct {
	Name     string
	Services map[string]*ServiceState
}
