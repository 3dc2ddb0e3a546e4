package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/envfile"
	"github.com/rs/zerolog/log"
)

// ApplyFunc is a function called when the manifest or an env file changes.
type ApplyFunc func(ctx context.Context, manifest compose.Manifest) error

// Watcher watches a stack manifest and its env files and calls the apply
// functions when their content changes. The first tick always applies.
type Watcher struct {
	refreshInterval time.Duration
	manifestPath    string

	applyFuncs []ApplyFunc
}

// NewWatcher returns a new watcher on the given manifest.
func NewWatcher(manifestPath string, refreshInterval time.Duration, applyFuncs ...ApplyFunc) *Watcher {
	return &Watcher{
		refreshInterval: refreshInterval,
		manifestPath:    manifestPath,
		applyFuncs:      applyFuncs,
	}
}

type snapshot struct {
	manifest     compose.Manifest
	envChecksums map[string]string
}

// Run runs the watcher until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.refreshInterval)
	defer t.Stop()

	var previous *snapshot

	log.Info().Str("manifest", w.manifestPath).Msg("Starting manifest watcher")

	for {
		select {
		case <-t.C:
			current, err := w.read()
			if err != nil {
				log.Error().Err(err).Str("manifest", w.manifestPath).Msg("Unable to read manifest")
				continue
			}

			if previous != nil && reflect.DeepEqual(*previous, *current) {
				continue
			}

			log.Debug().Msg("Executing manifest watcher callbacks")

			var errs []error
			for _, fn := range w.applyFuncs {
				if err = fn(ctx, current.manifest); err != nil {
					errs = append(errs, err)
					continue
				}
			}

			if len(errs) > 0 {
				log.Error().Errs("errors", errs).Msg("Unable to execute manifest watcher callbacks")
				continue
			}

			previous = current

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) read() (*snapshot, error) {
	manifest, err := compose.Load(w.manifestPath)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(w.manifestPath)

	checksums := make(map[string]string)
	for _, name := range manifest.ServiceNames() {
		svc := manifest.Services[name]
		if svc.EnvFile == "" {
			continue
		}

		sum, err := envfile.Checksum(compose.ResolvePath(baseDir, svc.EnvFile))
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		checksums[name] = sum
	}

	return &snapshot{manifest: manifest, envChecksums: checksums}, nil
}
