package orchestrator

import (
	"testing"

	"github.com/dartlab/stackctl/pkg/compose"
	"github.com/dartlab/stackctl/pkg/state"
	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	manifest := compose.Manifest{
		Services: map[string]compose.Service{
			"auth_server":     {Image: "auth_server:1.0.0"},
			"ai_dart_scraper": {Image: "ai_dart_scraper:1.0.0"},
		},
	}

	desiredHashes := map[string]string{
		"auth_server":     "hash-auth",
		"ai_dart_scraper": "hash-scraper",
	}

	tests := []struct {
		desc     string
		observed *state.Stack
		expected []Action
	}{
		{
			desc:     "empty engine creates everything",
			observed: &state.Stack{Services: map[string]*state.ServiceState{}},
			expected: []Action{
				{Service: "ai_dart_scraper", Type: ActionCreate, Reason: "no container"},
				{Service: "auth_server", Type: ActionCreate, Reason: "no container"},
			},
		},
		{
			desc: "matching running stack is a no-op",
			observed: &state.Stack{Services: map[string]*state.ServiceState{
				"auth_server":     {Service: "auth_server", Status: state.StatusRunning, ConfigHash: "hash-auth"},
				"ai_dart_scraper": {Service: "ai_dart_scraper", Status: state.StatusRunning, ConfigHash: "hash-scraper"},
			}},
			expected: []Action{
				{Service: "ai_dart_scraper", Type: ActionNone, Reason: "up to date"},
				{Service: "auth_server", Type: ActionNone, Reason: "up to date"},
			},
		},
		{
			desc: "hash drift recreates only the drifted service",
			observed: &state.Stack{Services: map[string]*state.ServiceState{
				"auth_server":     {Service: "auth_server", Status: state.StatusRunning, ConfigHash: "stale"},
				"ai_dart_scraper": {Service: "ai_dart_scraper", Status: state.StatusRunning, ConfigHash: "hash-scraper"},
			}},
			expected: []Action{
				{Service: "ai_dart_scraper", Type: ActionNone, Reason: "up to date"},
				{Service: "auth_server", Type: ActionRecreate, Reason: "configuration changed"},
			},
		},
		{
			desc: "stopped container with matching hash is started",
			observed: &state.Stack{Services: map[string]*state.ServiceState{
				"auth_server":     {Service: "auth_server", Status: state.StatusExited, ConfigHash: "hash-auth"},
				"ai_dart_scraper": {Service: "ai_dart_scraper", Status: state.StatusRunning, ConfigHash: "hash-scraper"},
			}},
			expected: []Action{
				{Service: "ai_dart_scraper", Type: ActionNone, Reason: "up to date"},
				{Service: "auth_server", Type: ActionStart, Reason: "container stopped"},
			},
		},
		{
			desc: "orphan container is flagged for removal",
			observed: &state.Stack{Services: map[string]*state.ServiceState{
				"auth_server":     {Service: "auth_server", Status: state.StatusRunning, ConfigHash: "hash-auth"},
				"ai_dart_scraper": {Service: "ai_dart_scraper", Status: state.StatusRunning, ConfigHash: "hash-scraper"},
				"legacy_worker":   {Service: "legacy_worker", Status: state.StatusRunning, ConfigHash: "whatever"},
			}},
			expected: []Action{
				{Service: "ai_dart_scraper", Type: ActionNone, Reason: "up to date"},
				{Service: "auth_server", Type: ActionNone, Reason: "up to date"},
				{Service: "legacy_worker", Type: ActionRemove, Reason: "not in manifest"},
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.desc, func(t *testing.T) {
			actions := Plan(manifest, test.observed, desiredHashes)
			assert.Equal(t, test.expected, actions)
		})
	}
}
