package translator

import (
	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// State is the translator's serializable form, persisted next to the graph
// blob so plan and apply runs can resolve names without refetching.
type State struct {
	Prefixes map[connectors.Namespace]string `json:"prefixes"`
	Entries  []StateEntry                    `json:"entries"`
}

// StateEntry is one local -> canonical binding.
type StateEntry struct {
	Connector connectors.Namespace `json:"connector"`
	Kind      graph.NodeKind       `json:"kind"`
	Local     string               `json:"local"`
	Canonical graph.NodeName       `json:"canonical"`
}

// ExportState snapshots the bijections.
func (t *Translator) ExportState() State {
	state := State{Prefixes: map[connectors.Namespace]string{}}
	for ns, prefix := range t.prefixes {
		state.Prefixes[ns] = prefix
	}
	for ns, bindings := range t.localToCanonical {
		for key, canonical := range bindings {
			state.Entries = append(state.Entries, StateEntry{
				Connector: ns,
				Kind:      key.kind,
				Local:     key.local,
				Canonical: canonical,
			})
		}
	}
	return state
}

// FromState rebuilds a translator from a snapshot.
func FromState(state State) *Translator {
	t := &Translator{
		prefixes:         map[connectors.Namespace]string{},
		localToCanonical: map[connectors.Namespace]map[refKey]graph.NodeName{},
		canonicalToLocal: map[connectors.Namespace]map[graph.NodeName]string{},
	}
	for ns, prefix := range state.Prefixes {
		t.prefixes[ns] = prefix
	}
	for _, e := range state.Entries {
		t.record(e.Connector, e.Kind, e.Local, e.Canonical)
	}
	return t
}
