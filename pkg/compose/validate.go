package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var serviceNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Validate checks the manifest against the orchestration contract. All
// violations are configuration errors detected before any container is
// touched, not runtime errors. Relative build context and env file paths are
// resolved against baseDir.
func (m Manifest) Validate(baseDir string) error {
	if len(m.Services) == 0 {
		return fmt.Errorf("manifest declares no services")
	}

	var errs []string
	seenHostPorts := map[int]string{}

	for _, name := range m.ServiceNames() {
		svc := m.Services[name]

		if !serviceNameRe.MatchString(name) {
			errs = append(errs, fmt.Sprintf("service %q: invalid name", name))
		}

		if svc.Build == "" && svc.Image == "" {
			errs = append(errs, fmt.Sprintf("service %q: requires a build context or an image", name))
		}

		if svc.Build != "" {
			if err := checkDir(ResolvePath(baseDir, svc.Build)); err != nil {
				errs = append(errs, fmt.Sprintf("service %q: build context: %s", name, err))
			}
		}

		if err := validateRestartPolicy(svc.Restart); err != nil {
			errs = append(errs, fmt.Sprintf("service %q: %s", name, err))
		}

		if svc.EnvFile != "" {
			if err := checkFile(ResolvePath(baseDir, svc.EnvFile)); err != nil {
				errs = append(errs, fmt.Sprintf("service %q: env file: %s", name, err))
			}
		}

		mappings, err := svc.PortMappings()
		if err != nil {
			errs = append(errs, fmt.Sprintf("service %q: %s", name, err))
			continue
		}

		for _, pm := range mappings {
			if owner, ok := seenHostPorts[pm.HostPort]; ok {
				errs = append(errs, fmt.Sprintf("service %q: published port %d already used by service %q", name, pm.HostPort, owner))
				continue
			}
			seenHostPorts[pm.HostPort] = name
		}

		if port := svc.CommandPort(); port != 0 && !bindsContainerPort(mappings, port) {
			errs = append(errs, fmt.Sprintf("service %q: command binds port %d which is not a declared container port", name, port))
		}

		if svc.Image != "" && svc.ImageTag() != "latest" {
			if _, err = svc.TagVersion(); err != nil {
				log.Warn().Str("service", name).Str("tag", svc.ImageTag()).Msg("Image tag is not a semantic version, rebuild detection will be disabled")
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid manifest: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateRestartPolicy(policy string) error {
	switch policy {
	case "", RestartNo, RestartAlways, RestartOnFailure, RestartUnlessStopped:
		return nil
	default:
		return fmt.Errorf("unknown restart policy %q", policy)
	}
}

func bindsContainerPort(mappings []PortMapping, port int) bool {
	for _, pm := range mappings {
		if pm.ContainerPort == port {
			return true
		}
	}
	return false
}

// ResolvePath resolves a manifest-relative path against the manifest
// directory.
func ResolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%q does not exist", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", path)
	}
	return nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%q does not exist", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", path)
	}
	return nil
}
