package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	goversion "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v2"
)

// Restart policies accepted in a service definition.
const (
	RestartNo            = "no"
	RestartAlways        = "always"
	RestartOnFailure     = "on-failure"
	RestartUnlessStopped = "unless-stopped"
)

// Manifest describes the desired state of a stack: a set of named services,
// each with a build source, published network surface, restart behavior,
// external configuration source and startup command.
type Manifest struct {
	Version  string             `yaml:"version,omitempty"`
	Services map[string]Service `yaml:"services"`
}

// Service is a single deployable unit of the stack. Its runtime is a black
// box; only the deployment surface is described here.
type Service struct {
	Build       string       `yaml:"build,omitempty"`
	Image       string       `yaml:"image,omitempty"`
	Restart     string       `yaml:"restart,omitempty"`
	EnvFile     string       `yaml:"env_file,omitempty"`
	Ports       []string     `yaml:"ports,omitempty"`
	Command     string       `yaml:"command,omitempty"`
	Healthcheck *Healthcheck `yaml:"healthcheck,omitempty"`
	Metrics     *Metrics     `yaml:"x-metrics,omitempty"`
}

// Healthcheck configures the readiness probe ran after a service starts.
type Healthcheck struct {
	Path    string `yaml:"path,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Retries int    `yaml:"retries,omitempty"`
}

// Metrics configures the Prometheus endpoint scraped from a service.
type Metrics struct {
	Path string `yaml:"path,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// PortMapping associates an externally published port with the port the
// service process binds to inside its container.
type PortMapping struct {
	HostIP        string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// Load reads and deserializes a manifest file.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %q: %w", path, err)
	}

	var m Manifest
	if err = yaml.UnmarshalStrict(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("deserialize manifest %q: %w", path, err)
	}

	for name, svc := range m.Services {
		if svc.Restart == "" {
			svc.Restart = RestartNo
			m.Services[name] = svc
		}
	}

	return m, nil
}

// StackName derives a stack name from the manifest location, the way the
// manifest's directory names the project.
func StackName(manifestPath string) string {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		abs = manifestPath
	}
	return filepath.Base(filepath.Dir(abs))
}

// ServiceNames returns the service names in deterministic order.
func (m Manifest) ServiceNames() []string {
	names := make([]string, 0, len(m.Services))
	for name := range m.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PortMappings parses the service port specs.
func (s Service) PortMappings() ([]PortMapping, error) {
	var mappings []PortMapping
	for _, spec := range s.Ports {
		parsed, err := nat.ParsePortSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("parse port spec %q: %w", spec, err)
		}

		for _, pm := range parsed {
			hostPort, err := strconv.Atoi(pm.Binding.HostPort)
			if err != nil {
				return nil, fmt.Errorf("parse host port %q: %w", pm.Binding.HostPort, err)
			}

			mappings = append(mappings, PortMapping{
				HostIP:        pm.Binding.HostIP,
				HostPort:      hostPort,
				ContainerPort: pm.Port.Int(),
				Protocol:      pm.Port.Proto(),
			})
		}
	}

	return mappings, nil
}

// ImageName returns the image repository part of the image reference.
func (s Service) ImageName() string {
	name, _ := splitImageRef(s.Image)
	return name
}

// ImageTag returns the tag part of the image reference, defaulting to latest.
func (s Service) ImageTag() string {
	_, tag := splitImageRef(s.Image)
	if tag == "" {
		return "latest"
	}
	return tag
}

// TagVersion parses the image tag as a semantic version. Callers use it to
// detect rebuilds that reuse an already published version tag.
func (s Service) TagVersion() (*goversion.Version, error) {
	tag := s.ImageTag()
	if tag == "latest" {
		return nil, fmt.Errorf("tag %q is not a version", tag)
	}
	return goversion.NewVersion(tag)
}

// CommandArgs returns the startup command split into process arguments.
func (s Service) CommandArgs() []string {
	return strings.Fields(s.Command)
}

// CommandPort extracts the port the startup command explicitly binds to, or
// zero when the command does not declare one.
func (s Service) CommandPort() int {
	args := s.CommandArgs()
	for i, arg := range args {
		switch {
		case arg == "--port" && i+1 < len(args):
			if port, err := strconv.Atoi(args[i+1]); err == nil {
				return port
			}
		case strings.HasPrefix(arg, "--port="):
			if port, err := strconv.Atoi(strings.TrimPrefix(arg, "--port=")); err == nil {
				return port
			}
		}
	}
	return 0
}

func splitImageRef(image string) (name, tag string) {
	i := strings.LastIndex(image, ":")
	// A colon inside the last path component is a tag separator; a colon
	// before a slash belongs to a registry host:port.
	if i < 0 || strings.Contains(image[i:], "/") {
		return image, ""
	}
	return image[:i], image[i+1:]
}
