package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dartlab/stackctl/pkg/state"
	"github.com/urfave/cli/v2"
)

type psCmd struct{}

func newPsCmd() psCmd {
	return psCmd{}
}

func (p psCmd) build() *cli.Command {
	return &cli.Command{
		Name:   "ps",
		Usage:  "List the stack services and their observed state",
		Action: p.run,
	}
}

func (p psCmd) run(cliCtx *cli.Context) error {
	setupLogger(cliCtx)

	sc, err := newStackContext(cliCtx)
	if err != nil {
		return err
	}

	observed, err := sc.fetcher.FetchState(cliCtx.Context)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(observed.Services))
	for name := range observed.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tCONTAINER\tIMAGE\tSTATUS\tPORTS")

	for _, name := range names {
		svcState := observed.Services[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			svcState.Service,
			svcState.ContainerName,
			svcState.Image,
			formatStatus(svcState),
			formatPorts(svcState.Ports),
		)
	}

	return w.Flush()
}

func formatStatus(svcState *state.ServiceState) string {
	status := svcState.Status
	if svcState.Health != "" {
		status += " (" + svcState.Health + ")"
	}
	if svcState.Status == state.StatusExited {
		status += fmt.Sprintf(" (%d)", svcState.ExitCode)
	}
	return status
}

func formatPorts(ports []state.PublishedPort) string {
	specs := make([]string, 0, len(ports))
	for _, port := range ports {
		specs = append(specs, fmt.Sprintf("%d->%d/%s", port.HostPort, port.ContainerPort, port.Protocol))
	}
	return strings.Join(specs, ", ")
}
