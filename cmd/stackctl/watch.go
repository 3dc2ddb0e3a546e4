package main

import (
	"context"
	"time"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/metrics"
	"github.com/dartlab/stackctl/pkg/orchestrator"
	"github.com/dartlab/stackctl/pkg/supervisor"
	"github.com/dartlab/stackctl/pkg/version"
	"github.com/dartlab/stackctl/pkg/watcher"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const flagInterval = "interval"

const (
	scrapeInterval = time.Minute

	// A service dying this many times within the window is a crash loop.
	crashLoopWindow    = 2 * time.Minute
	crashLoopThreshold = 5
)

type watchCmd struct {
	flags []cli.Flag
}

func newWatchCmd() watchCmd {
	return watchCmd{
		flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    flagInterval,
				Usage:   "Interval between manifest checks",
				EnvVars: envVars(flagInterval),
				Value:   15 * time.Second,
			},
			&cli.BoolFlag{
				Name:    flagRemoveOrphans,
				Usage:   "Remove containers of services no longer in the manifest",
				EnvVars: envVars(flagRemoveOrphans),
			},
		},
	}
}

func (w watchCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Keep the stack reconciled with the manifest and supervise its containers",
		Flags:  w.flags,
		Action: w.run,
	}
}

func (w watchCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)
	version.Log()

	sc, err := newStackContext(cliCtx)
	if err != nil {
		return err
	}

	upOpts := orchestrator.UpOptions{
		RemoveOrphans: cliCtx.Bool(flagRemoveOrphans),
	}

	manifestWatcher := watcher.NewWatcher(sc.manifestPath, cliCtx.Duration(flagInterval), func(ctx context.Context, manifest compose.Manifest) error {
		return sc.orch.Up(ctx, manifest, upOpts)
	})

	stackSupervisor := supervisor.NewSupervisor(sc.stack, sc.engine, crashLoopWindow, crashLoopThreshold)

	scraper := metrics.NewScraper(probeHost)
	store := metrics.NewStore()

	group, ctx := errgroup.WithContext(cliCtx.Context)
	group.Go(func() error {
		manifestWatcher.Run(ctx)
		return nil
	})

	group.Go(func() error {
		return stackSupervisor.Run(ctx)
	})

	group.Go(func() error {
		w.runScrapeLoop(ctx, sc, scraper, store)
		return nil
	})

	return group.Wait()
}

func (w watchCmd) runScrapeLoop(ctx context.Context, sc *stackContext, scraper *metrics.Scraper, store *metrics.Store) {
	t := time.NewTicker(scrapeInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if err := scrapeStack(ctx, sc.manifestPath, scraper, store); err != nil {
				log.Error().Err(err).Msg("Unable to scrape stack metrics")
			}

		case <-ctx.Done():
			return
		}
	}
}

// scrapeStack refreshes the store from the services' metrics endpoints and
// reports the last observation held for each service. A service that fails
// to answer keeps its previous observation.
func scrapeStack(ctx context.Context, manifestPath string, scraper *metrics.Scraper, store *metrics.Store) error {
	manifest, err := compose.Load(manifestPath)
	if err != nil {
		return err
	}

	for service, observed := range scraper.Scrape(ctx, manifest) {
		store.Set(service, observed)
	}

	for _, service := range manifest.ServiceNames() {
		obs, ok := store.Get(service)
		if !ok {
			continue
		}
		log.Info().
			Str("service", service).
			Int("metrics", len(obs.Metrics)).
			Time("scraped_at", obs.At).
			Msg("Service metrics observation")
	}

	return nil
}
