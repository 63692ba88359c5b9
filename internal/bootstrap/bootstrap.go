// Package bootstrap writes a declarative config tree from a live graph:
// the starting point a first fetch hands the user. Regular grants that a
// default policy already reproduces are compacted away, and defaults that
// would land where the platform has no grant get an empty policy pinned in
// so applying the bootstrap is a no-op.
package bootstrap

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/queries"
	"github.com/jettylabs/jetty/internal/translator"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// Tree builds the full configuration from the graph.
func Tree(g *graph.Graph, tr *translator.Translator) (*yamlconfig.Tree, error) {
	tree := &yamlconfig.Tree{Assets: map[string]yamlconfig.AssetDoc{}}

	users, err := userEntries(g, tr)
	if err != nil {
		return nil, err
	}
	tree.Users = users

	groups, groupNames := groupEntries(g)
	tree.Groups = groups

	if err := assetDocs(g, tr, tree, groupNames); err != nil {
		return nil, err
	}

	tree.Normalize()
	return tree, nil
}

func userEntries(g *graph.Graph, tr *translator.Translator) ([]yamlconfig.UserEntry, error) {
	var out []yamlconfig.UserEntry
	for _, idx := range g.UserIndices() {
		user := g.UserAt(idx)
		entry := yamlconfig.UserEntry{
			Name:       user.Name.Name,
			Identities: map[connectors.Namespace]string{},
		}
		for _, ns := range user.Connectors.Sorted() {
			local, err := tr.CanonicalToLocal(ns, user.Name)
			if err != nil {
				return nil, fmt.Errorf("user %s on %s: %w", user.Name, ns, err)
			}
			entry.Identities[ns] = local
		}
		out = append(out, entry)
	}
	return out, nil
}

// groupEntries derives the Jetty-level group names: the local name when it
// is unique across connectors, otherwise prefixed with the origin. Returns
// the entries plus the canonical-name lookup used by grantee rendering.
func groupEntries(g *graph.Graph) ([]yamlconfig.GroupEntry, map[graph.NodeName]string) {
	indices := g.GroupIndices()

	localCount := map[string]int{}
	for _, idx := range indices {
		localCount[g.GroupAt(idx).Name.Name]++
	}

	names := map[graph.NodeName]string{}
	for _, idx := range indices {
		name := g.GroupAt(idx).Name
		if localCount[name.Name] > 1 {
			names[name] = string(name.Origin) + "::" + name.Name
		} else {
			names[name] = name.Name
		}
	}

	var out []yamlconfig.GroupEntry
	for _, idx := range indices {
		attrs := g.GroupAt(idx)
		entry := yamlconfig.GroupEntry{
			Name:      names[attrs.Name],
			Connector: attrs.Name.Origin,
		}
		if entry.Name != attrs.Name.Name {
			entry.Names = map[connectors.Namespace]string{attrs.Name.Origin: attrs.Name.Name}
		}
		for _, e := range g.Outgoing(idx.Idx()) {
			if e.Relation != graph.Includes {
				continue
			}
			member, ok := g.NameOf(e.To)
			if !ok {
				continue
			}
			switch member.Kind {
			case graph.KindUser:
				entry.IncludesUsers = append(entry.IncludesUsers, member.Name)
			case graph.KindGroup:
				entry.IncludesGroups = append(entry.IncludesGroups, names[member])
			}
		}
		sort.Strings(entry.IncludesUsers)
		sort.Strings(entry.IncludesGroups)
		out = append(out, entry)
	}
	return out, names
}

func assetDocs(g *graph.Graph, tr *translator.Translator, tree *yamlconfig.Tree, groupNames map[graph.NodeName]string) error {
	regular := queries.RegularGrants(g)
	defaults := queries.ExpandDefaults(g)
	compacted := queries.Compact(regular, defaults)

	// Every asset gets a document, grants or not; a later fetch prunes
	// documents whose assets disappeared.
	docs := map[graph.NodeName]*yamlconfig.AssetDoc{}
	for _, idx := range g.AssetIndices() {
		name := g.AssetAt(idx).Name
		cual, err := tr.AssetNameToCual(name)
		if err != nil {
			return fmt.Errorf("asset %s: %w", name, err)
		}
		docs[name] = &yamlconfig.AssetDoc{Identifier: cual.URI()}
	}

	// Group compacted grants per asset, merging grantees that share a
	// privilege set into one policy entry.
	type grantBucket struct {
		privileges []string
		users      []string
		groups     []string
	}
	buckets := map[graph.NodeName]map[string]*grantBucket{}
	keys := make([]queries.GrantKey, 0, len(compacted))
	for key := range compacted {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Asset != keys[j].Asset {
			return keys[i].Asset.String() < keys[j].Asset.String()
		}
		return keys[i].Grantee.String() < keys[j].Grantee.String()
	})
	for _, key := range keys {
		privileges := compacted[key].Sorted()
		signature := strings.Join(privileges, ";")
		if buckets[key.Asset] == nil {
			buckets[key.Asset] = map[string]*grantBucket{}
		}
		bucket, ok := buckets[key.Asset][signature]
		if !ok {
			bucket = &grantBucket{privileges: privileges}
			buckets[key.Asset][signature] = bucket
		}
		switch key.Grantee.Kind {
		case graph.KindUser:
			bucket.users = append(bucket.users, key.Grantee.Name)
		case graph.KindGroup:
			bucket.groups = append(bucket.groups, groupNames[key.Grantee])
		}
	}
	for asset, assetBuckets := range buckets {
		doc, ok := docs[asset]
		if !ok {
			continue
		}
		signatures := make([]string, 0, len(assetBuckets))
		for s := range assetBuckets {
			signatures = append(signatures, s)
		}
		sort.Strings(signatures)
		for _, s := range signatures {
			bucket := assetBuckets[s]
			doc.Policies = append(doc.Policies, yamlconfig.PolicyEntry{
				Privileges: bucket.privileges,
				Users:      bucket.users,
				Groups:     bucket.groups,
			})
		}
	}

	// Default policies live on their root asset's document.
	for _, idx := range g.DefaultPolicyIndices() {
		dp := g.DefaultPolicyAt(idx)
		doc, ok := docs[dp.Root]
		if !ok {
			continue
		}
		entry := yamlconfig.DefaultPolicyEntry{
			Path:       dp.MatchingPath,
			TargetType: string(dp.TargetType),
			Privileges: dp.Privileges.Sorted(),
			Metadata:   dp.Metadata,
		}
		switch dp.Grantee.Kind {
		case graph.KindUser:
			entry.Users = []string{dp.Grantee.Name}
		case graph.KindGroup:
			entry.Groups = []string{groupNames[dp.Grantee]}
		}
		doc.DefaultPolicies = append(doc.DefaultPolicies, entry)
	}

	for _, doc := range docs {
		tree.Assets[doc.Identifier] = *doc
	}
	return nil
}

// AssetPathFor lays out asset documents on disk mirroring the hierarchy:
// assets/<connector>/<segment>/.../<leaf>.yaml.
func AssetPathFor(tr *translator.Translator) func(identifier string) (string, error) {
	return func(identifier string) (string, error) {
		name, err := tr.CualToAssetName(connectors.NewCual(identifier))
		if err != nil {
			return "", err
		}
		segments := name.PathSegments()
		if len(segments) == 0 {
			return "", fmt.Errorf("asset %q has an empty path", identifier)
		}
		parts := append([]string{string(name.Connector)}, segments...)
		return filepath.Join(parts...) + ".yaml", nil
	}
}
