package supervisor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dartlab/stackctl/pkg/provider"
	eventtypes "github.com/docker/docker/api/types/events"
	"github.com/rs/zerolog/log"
)

// Docker is the engine event surface the supervisor consumes.
type Docker interface {
	Events(ctx context.Context, stack string) (<-chan eventtypes.Message, <-chan error)
}

// Supervisor observes the lifecycle of the stack containers. Restart
// execution belongs to the engine's restart policy; the supervisor only
// surfaces what happens, and warns when a service is crash looping.
type Supervisor struct {
	stack  string
	docker Docker

	window    time.Duration
	threshold int

	nowFunc func() time.Time
	deaths  map[string][]time.Time
}

// NewSupervisor returns a new Supervisor. A service dying threshold times
// within window is reported as a crash loop.
func NewSupervisor(stack string, docker Docker, window time.Duration, threshold int) *Supervisor {
	return &Supervisor{
		stack:     stack,
		docker:    docker,
		window:    window,
		threshold: threshold,
		nowFunc:   time.Now,
		deaths:    make(map[string][]time.Time),
	}
}

// Run consumes the engine event stream until the context is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info().Str("stack", s.stack).Msg("Starting stack supervisor")

	eventsc, errc := s.docker.Events(ctx, s.stack)
	for {
		select {
		case event := <-eventsc:
			s.handleEvent(event)

		case err := <-errc:
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("Engine event stream closed")
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) handleEvent(event eventtypes.Message) {
	service := event.Actor.Attributes[provider.LabelService]
	if service == "" {
		return
	}

	logger := log.With().Str("service", service).Str("action", event.Action).Logger()

	switch event.Action {
	case "die":
		exitCode := event.Actor.Attributes["exitCode"]
		logger.Warn().Str("exit_code", exitCode).Msg("Service container died")

		if s.recordDeath(service) {
			logger.Error().
				Int("threshold", s.threshold).
				Dur("window", s.window).
				Msg("Service is crash looping, the engine keeps restarting it per its restart policy")
		}

	case "start", "restart", "stop", "destroy":
		logger.Info().Msg("Service container lifecycle event")

	default:
		logger.Debug().Msg("Ignoring container event")
	}
}

// recordDeath registers a die event and reports whether the service crossed
// the crash loop threshold within the sliding window.
func (s *Supervisor) recordDeath(service string) bool {
	now := s.nowFunc()
	cutoff := now.Add(-s.window)

	kept := s.deaths[service][:0]
	for _, t := range s.deaths[service] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.deaths[service] = append(kept, now)

	return len(s.deaths[service]) >= s.threshold
}
