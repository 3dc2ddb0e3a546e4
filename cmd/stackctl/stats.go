package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dartlab/stackctl/pkg/metrics"
	"github.com/urfave/cli/v2"
)

type statsCmd struct{}

func newStatsCmd() statsCmd {
	return statsCmd{}
}

func (s statsCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Scrape and print the metrics the services expose",
		Action: s.run,
	}
}

func (s statsCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)

	manifest, baseDir, err := loadManifest(cliCtx)
	if err != nil {
		return err
	}

	if err = manifest.Validate(baseDir); err != nil {
		return err
	}

	scraper := metrics.NewScraper(probeHost)
	observed := scraper.Scrape(cliCtx.Context, manifest)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tMETRIC\tVALUE")

	for _, service := range manifest.ServiceNames() {
		for _, metric := range observed[service] {
			fmt.Fprintf(w, "%s\t%s\t%s\n", service, metric.MetricName(), formatMetric(metric))
		}
	}

	return w.Flush()
}

func formatMetric(metric metrics.Metric) string {
	switch m := metric.(type) {
	case metrics.Counter:
		return fmt.Sprintf("%d", m.Value)
	case metrics.Gauge:
		return fmt.Sprintf("%g", m.Value)
	case metrics.Histogram:
		return fmt.Sprintf("count=%d sum=%g", m.Count, m.Sum)
	default:
		return ""
	}
}
