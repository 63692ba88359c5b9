// Package translator reconciles each connector's local identifiers into the
// graph's canonical names and back. It owns user entity resolution: the one
// place where the same person on two platforms becomes one node.
package translator

import (
	"fmt"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// Frame is one connector's raw fetch output plus its namespace.
type Frame struct {
	Connector connectors.Namespace
	Data      connectors.ConnectorData
}

type refKey struct {
	kind  graph.NodeKind
	local string
}

// Translator holds the per-connector bijections between local strings and
// canonical names. Build it from every connector's frame before processing
// any of them: an edge in one connector may reference a node contributed by
// another.
type Translator struct {
	// prefixes maps each connector to its CUAL prefix ("scheme://host").
	prefixes map[connectors.Namespace]string

	localToCanonical map[connectors.Namespace]map[refKey]graph.NodeName
	canonicalToLocal map[connectors.Namespace]map[graph.NodeName]string
}

// New builds the bijections from all connectors' frames.
func New(frames []Frame) (*Translator, error) {
	t := &Translator{
		prefixes:         map[connectors.Namespace]string{},
		localToCanonical: map[connectors.Namespace]map[refKey]graph.NodeName{},
		canonicalToLocal: map[connectors.Namespace]map[graph.NodeName]string{},
	}
	for _, f := range frames {
		t.prefixes[f.Connector] = f.Data.CualPrefix
		t.resolveUsers(f)
		t.resolveGroups(f)
		t.resolvePolicies(f)
	}
	return t, nil
}

// resolveUsers is entity resolution for users: an email identifier becomes
// the canonical name, so the same address on two platforms becomes one
// node; a user with no email keeps their local name.
func (t *Translator) resolveUsers(f Frame) {
	for _, u := range f.Data.Users {
		canonical := graph.UserName(u.Name)
		for _, id := range u.Identifiers {
			if id.Kind == connectors.IdentifierEmail && id.Value != "" {
				canonical = graph.UserName(id.Value)
				break
			}
		}
		t.record(f.Connector, graph.KindUser, u.Name, canonical)
	}
}

// resolveGroups scopes each group to its origin connector. Groups are never
// unified across connectors.
func (t *Translator) resolveGroups(f Frame) {
	for _, g := range f.Data.Groups {
		t.record(f.Connector, graph.KindGroup, g.Name, graph.GroupName(g.Name, f.Connector))
	}
}

// resolvePolicies scopes each policy to its origin connector, like groups.
func (t *Translator) resolvePolicies(f Frame) {
	for _, p := range f.Data.Policies {
		t.record(f.Connector, graph.KindPolicy, p.Name, graph.PolicyName(p.Name, f.Connector))
	}
}

func (t *Translator) record(ns connectors.Namespace, kind graph.NodeKind, local string, canonical graph.NodeName) {
	if t.localToCanonical[ns] == nil {
		t.localToCanonical[ns] = map[refKey]graph.NodeName{}
	}
	if t.canonicalToLocal[ns] == nil {
		t.canonicalToLocal[ns] = map[graph.NodeName]string{}
	}
	t.localToCanonical[ns][refKey{kind: kind, local: local}] = canonical
	t.canonicalToLocal[ns][canonical] = local
}

// LocalToCanonical resolves a connector-local name of the given kind.
func (t *Translator) LocalToCanonical(ns connectors.Namespace, kind graph.NodeKind, local string) (graph.NodeName, error) {
	canonical, ok := t.localToCanonical[ns][refKey{kind: kind, local: local}]
	if !ok {
		return graph.NodeName{}, fmt.Errorf("connector %s has no %s named %q", ns, kind, local)
	}
	return canonical, nil
}

// CanonicalToLocal resolves a canonical name back to the connector's local
// string.
func (t *Translator) CanonicalToLocal(ns connectors.Namespace, canonical graph.NodeName) (string, error) {
	local, ok := t.canonicalToLocal[ns][canonical]
	if !ok {
		return "", fmt.Errorf("connector %s has no local name for %s", ns, canonical)
	}
	return local, nil
}

// RewireUser re-points a connector-local user name at a different canonical
// user. Used by identity-diff application when the config assigns a local
// account to another person.
func (t *Translator) RewireUser(ns connectors.Namespace, local string, oldCanonical, newCanonical graph.NodeName) error {
	key := refKey{kind: graph.KindUser, local: local}
	current, ok := t.localToCanonical[ns][key]
	if !ok {
		return fmt.Errorf("connector %s has no user named %q", ns, local)
	}
	if current != oldCanonical {
		return fmt.Errorf("connector %s user %q maps to %s, not %s", ns, local, current, oldCanonical)
	}
	delete(t.canonicalToLocal[ns], oldCanonical)
	t.record(ns, graph.KindUser, local, newCanonical)
	return nil
}

// CualToAssetName decomposes a CUAL into a canonical asset name, assigning
// the owning connector by prefix. CUALs that match no registered prefix are
// an error: an unregistered platform cannot own assets.
func (t *Translator) CualToAssetName(cual connectors.Cual) (graph.NodeName, error) {
	parts, err := cual.Parse()
	if err != nil {
		return graph.NodeName{}, err
	}
	for ns, prefix := range t.prefixes {
		if prefix != "" && prefix == parts.Prefix {
			return graph.AssetName(ns, parts.AssetType, parts.Path), nil
		}
	}
	return graph.NodeName{}, fmt.Errorf("cual %s matches no registered connector prefix", cual.URI())
}

// AssetNameToCual reassembles the CUAL for a canonical asset name.
func (t *Translator) AssetNameToCual(name graph.NodeName) (connectors.Cual, error) {
	if name.Kind != graph.KindAsset {
		return connectors.Cual{}, fmt.Errorf("%s is not an asset name", name)
	}
	prefix, ok := t.prefixes[name.Connector]
	if !ok || prefix == "" {
		return connectors.Cual{}, fmt.Errorf("connector %s has no registered cual prefix", name.Connector)
	}
	return connectors.AssembleCual(prefix, name.PathSegments(), name.AssetType), nil
}
