package graph

import (
	"encoding/json"
	"fmt"
	"sort"
)

// The graph persists between runs as one blob. The envelope keys each node
// by its kind so the union can round-trip through JSON.

type nodeEnvelope struct {
	Kind  NodeKind        `json:"kind"`
	Attrs json.RawMessage `json:"attrs"`
}

type graphBlob struct {
	Nodes []nodeEnvelope `json:"nodes"`
	Edges []JettyEdge    `json:"edges"`
}

// MarshalBlob serializes the graph. Output is deterministic: nodes sort by
// canonical name, edges by (from, relation, to).
func (g *Graph) MarshalBlob() ([]byte, error) {
	blob := graphBlob{}
	for _, name := range g.SortedNames() {
		idx := g.names[name]
		attrs, err := json.Marshal(g.nodes[idx])
		if err != nil {
			return nil, fmt.Errorf("marshaling node %s: %w", name, err)
		}
		blob.Nodes = append(blob.Nodes, nodeEnvelope{Kind: name.Kind, Attrs: attrs})
	}
	for e := range g.edges {
		blob.Edges = append(blob.Edges, e)
	}
	sort.Slice(blob.Edges, func(i, j int) bool {
		a, b := blob.Edges[i], blob.Edges[j]
		if a.From != b.From {
			return a.From.String() < b.From.String()
		}
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return a.To.String() < b.To.String()
	})
	return json.Marshal(blob)
}

// FromBlob reconstructs a graph serialized by MarshalBlob.
func FromBlob(data []byte) (*Graph, error) {
	var blob graphBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("unmarshaling graph blob: %w", err)
	}
	g := New()
	for _, env := range blob.Nodes {
		node, err := decodeNode(env)
		if err != nil {
			return nil, err
		}
		if _, err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, e := range blob.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func decodeNode(env nodeEnvelope) (Node, error) {
	var node Node
	switch env.Kind {
	case KindUser:
		node = &UserAttributes{}
	case KindGroup:
		node = &GroupAttributes{}
	case KindAsset:
		node = &AssetAttributes{}
	case KindTag:
		node = &TagAttributes{}
	case KindPolicy:
		node = &PolicyAttributes{}
	case KindDefaultPolicy:
		node = &DefaultPolicyAttributes{}
	default:
		return nil, fmt.Errorf("unknown node kind %q in graph blob", env.Kind)
	}
	if err := json.Unmarshal(env.Attrs, node); err != nil {
		return nil, fmt.Errorf("unmarshaling %s node: %w", env.Kind, err)
	}
	return node, nil
}
