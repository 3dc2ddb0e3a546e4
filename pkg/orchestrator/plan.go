package orchestrator

import (
	"sort"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/state"
)

// ActionType is the reconcile decision for one service.
type ActionType string

// Reconcile decisions.
const (
	ActionNone     ActionType = "none"
	ActionCreate   ActionType = "create"
	ActionRecreate ActionType = "recreate"
	ActionStart    ActionType = "start"
	ActionRemove   ActionType = "remove"
)

// Action pairs a service with the decision taken for it.
type Action struct {
	Service string
	Type    ActionType
	Reason  string
}

// Plan diffs the desired manifest against the observed stack state.
// desiredHashes carries the config fingerprint per manifest service. The
// returned actions are ordered by service name; orphan removals come last.
func Plan(manifest compose.Manifest, observed *state.Stack, desiredHashes map[string]string) []Action {
	var actions []Action

	for _, name := range manifest.ServiceNames() {
		svcState, ok := observed.Services[name]
		if !ok {
			actions = append(actions, Action{Service: name, Type: ActionCreate, Reason: "no container"})
			continue
		}

		if svcState.ConfigHash != desiredHashes[name] {
			actions = append(actions, Action{Service: name, Type: ActionRecreate, Reason: "configuration changed"})
			continue
		}

		if !svcState.Running() {
			actions = append(actions, Action{Service: name, Type: ActionStart, Reason: "container stopped"})
			continue
		}

		actions = append(actions, Action{Service: name, Type: ActionNone, Reason: "up to date"})
	}

	var orphans []string
	for name := range observed.Services {
		if _, ok := manifest.Services[name]; !ok {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)

	for _, name := range orphans {
		actions = append(actions, Action{Service: name, Type: ActionRemove, Reason: "not in manifest"})
	}

	return actions
}
