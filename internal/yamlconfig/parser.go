package yamlconfig

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Standard file names inside a project directory.
const (
	AssetsDirName  = "assets"
	GroupsFileName = "groups.yaml"
	UsersFileName  = "users.yaml"
)

// ParseTree reads the whole configuration from a project directory: every
// *.yaml under assets/, plus groups.yaml and users.yaml.
func ParseTree(root string) (*Tree, error) {
	tree := &Tree{Assets: map[string]AssetDoc{}}

	assetsDir := filepath.Join(root, AssetsDirName)
	if _, err := os.Stat(assetsDir); err == nil {
		err := filepath.WalkDir(assetsDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
				return nil
			}
			doc, err := parseAssetFile(path)
			if err != nil {
				return err
			}
			if existing, dup := tree.Assets[doc.Identifier]; dup {
				return fmt.Errorf("asset %q configured twice: %s and %s", doc.Identifier, existing.File, path)
			}
			tree.Assets[doc.Identifier] = doc
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	groups, err := parseGroupsFile(filepath.Join(root, GroupsFileName))
	if err != nil {
		return nil, err
	}
	tree.Groups = groups

	users, err := parseUsersFile(filepath.Join(root, UsersFileName))
	if err != nil {
		return nil, err
	}
	tree.Users = users

	tree.Normalize()
	return tree, nil
}

func parseAssetFile(path string) (AssetDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AssetDoc{}, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return AssetDoc{}, fmt.Errorf("%s: %w", path, err)
	}
	var doc AssetDoc
	if err := node.Decode(&doc); err != nil {
		return AssetDoc{}, fmt.Errorf("%s: %w", path, err)
	}
	doc.File = path
	doc.Line = node.Line
	if doc.Identifier == "" {
		return AssetDoc{}, fmt.Errorf("%s: missing identifier", path)
	}
	annotateAssetLines(&node, &doc)
	return doc, nil
}

// annotateAssetLines attaches source lines to the policy entries so
// validation errors can point at them.
func annotateAssetLines(root *yaml.Node, doc *AssetDoc) {
	mapping := documentMapping(root)
	if mapping == nil {
		return
	}
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		switch key.Value {
		case "policies":
			for j, item := range value.Content {
				if j < len(doc.Policies) {
					doc.Policies[j].Line = item.Line
				}
			}
		case "default_policies":
			for j, item := range value.Content {
				if j < len(doc.DefaultPolicies) {
					doc.DefaultPolicies[j].Line = item.Line
				}
			}
		}
	}
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	return root
}

func parseGroupsFile(path string) ([]GroupEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var groups []GroupEntry
	if err := node.Decode(&groups); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	annotateSequenceLines(&node, func(i, line int) {
		if i < len(groups) {
			groups[i].Line = line
		}
	})
	return groups, nil
}

func parseUsersFile(path string) ([]UserEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var users []UserEntry
	if err := node.Decode(&users); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	annotateSequenceLines(&node, func(i, line int) {
		if i < len(users) {
			users[i].Line = line
		}
	})
	return users, nil
}

func annotateSequenceLines(root *yaml.Node, set func(i, line int)) {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.SequenceNode {
		return
	}
	for i, item := range node.Content {
		set(i, item.Line)
	}
}

// WriteTree serializes a configuration to disk in the canonical layout:
// assets/<connector>/<path...>.yaml mirroring each asset's hierarchy.
// AssetPathFor decides the file location.
func WriteTree(root string, tree *Tree, pathFor func(identifier string) (string, error)) error {
	tree.Normalize()

	for _, id := range tree.SortedAssetIdentifiers() {
		doc := tree.Assets[id]
		rel, err := pathFor(id)
		if err != nil {
			return err
		}
		path := filepath.Join(root, AssetsDirName, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		data, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}

	if err := writeYAMLFile(filepath.Join(root, GroupsFileName), tree.Groups); err != nil {
		return err
	}
	return writeYAMLFile(filepath.Join(root, UsersFileName), tree.Users)
}

func writeYAMLFile(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
