package yamlconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/errors"
	"github.com/jettylabs/jetty/internal/graph"
)

// ConnectorManifest is what a connector declares at registration: which
// privileges each of its asset types accepts, and whether it supports
// nesting groups from other connectors.
type ConnectorManifest struct {
	Namespace         connectors.Namespace
	AllowedPrivileges map[connectors.AssetType]connectors.StringSet
	NestedGroups      bool
}

// ValidationError locates one problem in the config tree.
type ValidationError struct {
	File    string
	Line    int
	Message string
}

func (e ValidationError) String() string {
	if e.File == "" {
		return e.Message
	}
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// ValidationResult collects every problem found; validation never stops at
// the first. A non-valid result is a hard gate for diff, plan, and apply.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Err folds the result into one error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	lines := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		lines = append(lines, e.String())
	}
	return errors.ValidationErrorf("configuration invalid:\n  %s", strings.Join(lines, "\n  "))
}

// Validator checks a parsed tree against the graph and the registered
// connectors' manifests.
type Validator struct {
	graph     *graph.Graph
	manifests map[connectors.Namespace]ConnectorManifest
	// resolveCual maps an asset identifier to its canonical name.
	resolveCual func(cual connectors.Cual) (graph.NodeName, error)
}

// NewValidator wires a validator. resolveCual is the translator's
// CualToAssetName.
func NewValidator(g *graph.Graph, manifests []ConnectorManifest, resolveCual func(connectors.Cual) (graph.NodeName, error)) *Validator {
	byNS := make(map[connectors.Namespace]ConnectorManifest, len(manifests))
	for _, m := range manifests {
		byNS[m.Namespace] = m
	}
	return &Validator{graph: g, manifests: byNS, resolveCual: resolveCual}
}

// Validate runs every check and collects the failures.
func (v *Validator) Validate(tree *Tree) ValidationResult {
	var errs []ValidationError

	errs = append(errs, v.validateUsers(tree)...)
	errs = append(errs, v.validateGroups(tree)...)
	errs = append(errs, v.validateAssets(tree)...)

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].File != errs[j].File {
			return errs[i].File < errs[j].File
		}
		return errs[i].Line < errs[j].Line
	})
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// validateUsers checks that every configured user exists in the graph and
// references only registered connectors.
func (v *Validator) validateUsers(tree *Tree) []ValidationError {
	var errs []ValidationError
	for _, u := range tree.Users {
		if _, ok := v.graph.UserIndexOf(graph.UserName(u.Name)); !ok {
			errs = append(errs, ValidationError{
				File: UsersFileName, Line: u.Line,
				Message: fmt.Sprintf("user %q does not exist in the graph", u.Name),
			})
		}
		for ns := range u.Identities {
			if _, ok := v.manifests[ns]; !ok {
				errs = append(errs, ValidationError{
					File: UsersFileName, Line: u.Line,
					Message: fmt.Sprintf("user %q references unknown connector %q", u.Name, ns),
				})
			}
		}
	}
	return errs
}

// validateGroups checks connector existence and the cross-connector
// nesting rule: a group may contain a group from another connector only
// when its own connector advertises nested groups.
func (v *Validator) validateGroups(tree *Tree) []ValidationError {
	var errs []ValidationError
	for _, g := range tree.Groups {
		manifest, ok := v.manifests[g.Connector]
		if !ok {
			errs = append(errs, ValidationError{
				File: GroupsFileName, Line: g.Line,
				Message: fmt.Sprintf("group %q references unknown connector %q", g.Name, g.Connector),
			})
			continue
		}
		for ns := range g.Names {
			if _, ok := v.manifests[ns]; !ok {
				errs = append(errs, ValidationError{
					File: GroupsFileName, Line: g.Line,
					Message: fmt.Sprintf("group %q has a local name for unknown connector %q", g.Name, ns),
				})
			}
		}
		for _, member := range g.IncludesGroups {
			child, declared := tree.GroupNamed(member)
			if !declared {
				errs = append(errs, ValidationError{
					File: GroupsFileName, Line: g.Line,
					Message: fmt.Sprintf("group %q includes undeclared group %q", g.Name, member),
				})
				continue
			}
			if child.Connector != g.Connector && !manifest.NestedGroups {
				errs = append(errs, ValidationError{
					File: GroupsFileName, Line: g.Line,
					Message: fmt.Sprintf("group %q nests group %q from connector %q, but connector %q does not support nested groups", g.Name, member, child.Connector, g.Connector),
				})
			}
		}
		for _, member := range g.IncludesUsers {
			if _, declared := tree.UserNamed(member); !declared {
				if _, inGraph := v.graph.UserIndexOf(graph.UserName(member)); !inGraph {
					errs = append(errs, ValidationError{
						File: GroupsFileName, Line: g.Line,
						Message: fmt.Sprintf("group %q includes unknown user %q", g.Name, member),
					})
				}
			}
		}
	}
	return errs
}

// validateAssets checks each asset document: the identifier must resolve
// to a registered connector, privileges must be allowed for the asset
// type, referenced users and groups must be known, and matching paths must
// conform to the supported grammar.
func (v *Validator) validateAssets(tree *Tree) []ValidationError {
	var errs []ValidationError
	for _, id := range tree.SortedAssetIdentifiers() {
		doc := tree.Assets[id]
		name, err := v.resolveCual(connectors.NewCual(id))
		if err != nil {
			errs = append(errs, ValidationError{
				File: doc.File, Line: doc.Line,
				Message: fmt.Sprintf("identifier %q: %v", id, err),
			})
			continue
		}
		manifest := v.manifests[name.Connector]

		for _, p := range doc.Policies {
			errs = append(errs, v.validateGrant(tree, doc, name, manifest, p.Privileges, p.Users, p.Groups, p.Line, name.AssetType)...)
		}
		for _, dp := range doc.DefaultPolicies {
			errs = append(errs, v.validateGrant(tree, doc, name, manifest, dp.Privileges, dp.Users, dp.Groups, dp.Line, connectors.AssetType(dp.TargetType))...)
			// Only the trailing-everything path is supported by the
			// connectors in this release; the matcher understands more,
			// the gate stays narrow.
			if dp.Path != "/**" {
				errs = append(errs, ValidationError{
					File: doc.File, Line: dp.Line,
					Message: fmt.Sprintf("default policy path %q is not supported; only \"/**\" is accepted", dp.Path),
				})
			}
			if dp.TargetType == "" {
				errs = append(errs, ValidationError{
					File: doc.File, Line: dp.Line,
					Message: "default policy must declare a target_type",
				})
			}
		}
	}
	return errs
}

func (v *Validator) validateGrant(
	tree *Tree,
	doc AssetDoc,
	asset graph.NodeName,
	manifest ConnectorManifest,
	privileges, users, groups []string,
	line int,
	assetType connectors.AssetType,
) []ValidationError {
	var errs []ValidationError

	allowed := manifest.AllowedPrivileges[assetType]
	for _, privilege := range privileges {
		if !allowed.Contains(privilege) {
			errs = append(errs, ValidationError{
				File: doc.File, Line: line,
				Message: fmt.Sprintf("privilege %q is not allowed for %s assets of type %q", privilege, asset.Connector, assetType),
			})
		}
	}

	for _, user := range users {
		if _, ok := v.graph.UserIndexOf(graph.UserName(user)); ok {
			continue
		}
		if _, declared := tree.UserNamed(user); declared {
			continue
		}
		errs = append(errs, ValidationError{
			File: doc.File, Line: line,
			Message: fmt.Sprintf("policy references unknown user %q", user),
		})
	}

	for _, group := range groups {
		entry, declared := tree.GroupNamed(group)
		if !declared {
			errs = append(errs, ValidationError{
				File: doc.File, Line: line,
				Message: fmt.Sprintf("policy references undeclared group %q", group),
			})
			continue
		}
		if entry.Connector != asset.Connector && !manifest.NestedGroups {
			errs = append(errs, ValidationError{
				File: doc.File, Line: line,
				Message: fmt.Sprintf("policy grants to group %q on connector %q, but the group lives on %q", group, asset.Connector, entry.Connector),
			})
		}
	}
	return errs
}
