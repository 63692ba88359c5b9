package yamlconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseTree(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, AssetsDirName, "wh", "db", "t.yaml"), `
identifier: "wh://a/db/t?type=table"
policies:
  - privileges: [SELECT]
    groups: [analysts]
default_policies:
  - path: "/**"
    target_type: table
    privileges: [SELECT]
    groups: [analysts]
`)
	writeFile(t, filepath.Join(root, GroupsFileName), `
- name: analysts
  connector: wh
  names:
    wh: ANALYSTS
  member_users: [alice@x]
`)
	writeFile(t, filepath.Join(root, UsersFileName), `
- name: alice@x
  identities:
    wh: ALICE
`)

	tree, err := ParseTree(root)
	require.NoError(t, err)

	require.Len(t, tree.Assets, 1)
	doc := tree.Assets["wh://a/db/t?type=table"]
	require.Len(t, doc.Policies, 1)
	assert.Equal(t, []string{"analysts"}, doc.Policies[0].Groups)
	assert.NotZero(t, doc.Policies[0].Line)
	require.Len(t, doc.DefaultPolicies, 1)
	assert.Equal(t, "/**", doc.DefaultPolicies[0].Path)

	require.Len(t, tree.Groups, 1)
	assert.Equal(t, "ANALYSTS", tree.Groups[0].LocalName("wh"))
	assert.Equal(t, "analysts", tree.Groups[0].LocalName("bi"))

	require.Len(t, tree.Users, 1)
	assert.Equal(t, "ALICE", tree.Users[0].Identities["wh"])
}

func TestParseTreeRejectsDuplicateAsset(t *testing.T) {
	root := t.TempDir()
	doc := "identifier: \"wh://a/db/t?type=table\"\n"
	writeFile(t, filepath.Join(root, AssetsDirName, "one.yaml"), doc)
	writeFile(t, filepath.Join(root, AssetsDirName, "two.yaml"), doc)

	_, err := ParseTree(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured twice")
}

func validatorFixture(t *testing.T) (*Validator, *Tree) {
	t.Helper()
	g := graph.New()
	_, err := g.AddNode(&graph.UserAttributes{Name: graph.UserName("alice@x"), Connectors: graph.NewNamespaceSet("wh")})
	require.NoError(t, err)
	_, err = g.AddNode(&graph.AssetAttributes{
		Name:       graph.AssetName("wh", "table", []string{"db", "t"}),
		AssetType:  "table",
		Connectors: graph.NewNamespaceSet("wh"),
	})
	require.NoError(t, err)

	manifests := []ConnectorManifest{
		{
			Namespace: "wh",
			AllowedPrivileges: map[connectors.AssetType]connectors.StringSet{
				"table": connectors.NewStringSet("SELECT", "INSERT"),
			},
		},
		{Namespace: "bi", NestedGroups: true},
	}
	resolve := func(cual connectors.Cual) (graph.NodeName, error) {
		parts, err := cual.Parse()
		if err != nil {
			return graph.NodeName{}, err
		}
		ns := connectors.Namespace("wh")
		if parts.Prefix == "bi://s" {
			ns = "bi"
		}
		return graph.AssetName(ns, parts.AssetType, parts.Path), nil
	}
	v := NewValidator(g, manifests, resolve)

	tree := &Tree{
		Assets: map[string]AssetDoc{
			"wh://a/db/t?type=table": {
				Identifier: "wh://a/db/t?type=table",
				File:       "assets/wh/db/t.yaml",
				Policies: []PolicyEntry{{
					Privileges: []string{"SELECT"},
					Users:      []string{"alice@x"},
					Groups:     []string{"analysts"},
				}},
				DefaultPolicies: []DefaultPolicyEntry{{
					Path:       "/**",
					TargetType: "table",
					Privileges: []string{"SELECT"},
					Groups:     []string{"analysts"},
				}},
			},
		},
		Groups: []GroupEntry{{Name: "analysts", Connector: "wh"}},
		Users:  []UserEntry{{Name: "alice@x", Identities: map[connectors.Namespace]string{"wh": "ALICE"}}},
	}
	return v, tree
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	v, tree := validatorFixture(t)
	result := v.Validate(tree)
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	v, tree := validatorFixture(t)

	doc := tree.Assets["wh://a/db/t?type=table"]
	doc.Policies = append(doc.Policies, PolicyEntry{
		Privileges: []string{"DROP"},     // not allowed for tables
		Users:      []string{"nobody@x"}, // unknown user
		Groups:     []string{"missing"},  // undeclared group
	})
	doc.DefaultPolicies = append(doc.DefaultPolicies, DefaultPolicyEntry{
		Path:       "*/t", // only /** passes the gate
		TargetType: "table",
	})
	tree.Assets["wh://a/db/t?type=table"] = doc
	tree.Users = append(tree.Users, UserEntry{Name: "ghost@x"}) // not in graph

	result := v.Validate(tree)
	require.False(t, result.Valid)

	var messages []string
	for _, e := range result.Errors {
		messages = append(messages, e.Message)
	}
	assert.Len(t, messages, 5)
	assert.Contains(t, result.Err().Error(), "DROP")
}

func TestValidateCrossConnectorNesting(t *testing.T) {
	v, tree := validatorFixture(t)
	tree.Groups = append(tree.Groups,
		GroupEntry{Name: "bi-team", Connector: "bi", IncludesGroups: []string{"analysts"}},
		GroupEntry{Name: "wh-team", Connector: "wh", IncludesGroups: []string{"bi-team"}},
	)

	result := v.Validate(tree)
	require.False(t, result.Valid)

	// bi nests wh groups fine (nested: true); wh nesting bi groups fails.
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "wh-team")
}

func TestWriteTreeRoundTrip(t *testing.T) {
	root := t.TempDir()
	_, tree := validatorFixture(t)

	pathFor := func(identifier string) (string, error) {
		parts, err := connectors.NewCual(identifier).Parse()
		if err != nil {
			return "", err
		}
		return filepath.Join(append([]string{"wh"}, parts.Path...)...) + ".yaml", nil
	}
	require.NoError(t, WriteTree(root, tree, pathFor))

	parsed, err := ParseTree(root)
	require.NoError(t, err)

	assert.Equal(t, tree.Users, stripLines(parsed).Users)
	assert.Equal(t, tree.Groups, stripLines(parsed).Groups)
	require.Len(t, parsed.Assets, 1)
	got := parsed.Assets["wh://a/db/t?type=table"]
	want := tree.Assets["wh://a/db/t?type=table"]
	assert.Equal(t, want.Policies[0].Privileges, got.Policies[0].Privileges)
	assert.Equal(t, want.DefaultPolicies[0].Path, got.DefaultPolicies[0].Path)
}

func stripLines(t *Tree) *Tree {
	for i := range t.Groups {
		t.Groups[i].Line = 0
	}
	for i := range t.Users {
		t.Users[i].Line = 0
	}
	return t
}
