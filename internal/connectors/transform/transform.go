// Package transform is the transformation-tool connector. The tool has no
// access API of its own: it compiles models into warehouse relations. The
// connector ingests the project's manifest file and contributes the model
// assets, their lineage into the warehouse, and any tags declared on
// models. It plans and applies nothing.
package transform

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/plan"
	"github.com/jettylabs/jetty/internal/yamlconfig"
)

// AssetTypeModel is the connector's single asset type.
const AssetTypeModel connectors.AssetType = "model"

// Config wires one transform connector.
type Config struct {
	Namespace connectors.Namespace
	// Project namespaces CUALs ("transform://<project>").
	Project string
	// ManifestPath is the compiled manifest file.
	ManifestPath string
}

// Manifest is the transform tool's compiled project description.
type Manifest struct {
	Project string  `yaml:"project"`
	Models  []Model `yaml:"models"`
}

// Model is one transformation: a named select over upstream sources that
// materializes into a warehouse relation.
type Model struct {
	// Name is the model's path inside the project ("staging/orders").
	Name string `yaml:"name"`
	// Materializes is the CUAL of the warehouse relation the model builds.
	Materializes string `yaml:"materializes"`
	// DependsOn lists upstream model names.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Sources lists upstream warehouse CUALs read directly.
	Sources []string `yaml:"sources,omitempty"`
	// Tags declared on the model propagate through lineage.
	Tags []string `yaml:"tags,omitempty"`
}

// Connector implements fetch for the transform tool.
type Connector struct {
	cfg Config
}

// New builds the connector.
func New(cfg Config) *Connector { return &Connector{cfg: cfg} }

// Namespace implements the fetch and plan interfaces.
func (c *Connector) Namespace() connectors.Namespace { return c.cfg.Namespace }

// CualPrefix is the prefix namespacing this project's assets.
func (c *Connector) CualPrefix() string { return "transform://" + c.cfg.Project }

// Manifest declares no grantable privileges; policies cannot target models.
func (c *Connector) Manifest() yamlconfig.ConnectorManifest {
	return yamlconfig.ConnectorManifest{
		Namespace:         c.cfg.Namespace,
		AllowedPrivileges: map[connectors.AssetType]connectors.StringSet{},
	}
}

// Fetch parses the manifest into assets, lineage, and tags.
func (c *Connector) Fetch(ctx context.Context) (connectors.ConnectorData, error) {
	data := connectors.ConnectorData{CualPrefix: c.CualPrefix()}

	raw, err := os.ReadFile(c.cfg.ManifestPath)
	if err != nil {
		return data, fmt.Errorf("reading manifest %s: %w", c.cfg.ManifestPath, err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return data, fmt.Errorf("parsing manifest %s: %w", c.cfg.ManifestPath, err)
	}

	byName := map[string]Model{}
	for _, m := range manifest.Models {
		byName[m.Name] = m
	}

	tags := map[string]connectors.StringSet{} // tag -> applied-to cuals
	referenced := connectors.StringSet{}      // warehouse cuals we link to

	for _, m := range manifest.Models {
		cual := c.modelCual(m.Name)
		asset := connectors.RawAsset{
			Cual:        cual,
			Name:        m.Name,
			AssetType:   AssetTypeModel,
			DerivedFrom: connectors.StringSet{},
			DerivedTo:   connectors.StringSet{},
		}
		for _, upstream := range m.DependsOn {
			if _, ok := byName[upstream]; !ok {
				return data, fmt.Errorf("model %q depends on unknown model %q", m.Name, upstream)
			}
			asset.DerivedFrom.Add(c.modelCual(upstream).URI())
		}
		for _, source := range m.Sources {
			asset.DerivedFrom.Add(source)
			referenced.Add(source)
		}
		if m.Materializes != "" {
			asset.DerivedTo.Add(m.Materializes)
			referenced.Add(m.Materializes)
		}
		data.Assets = append(data.Assets, asset)

		for _, tag := range m.Tags {
			if tags[tag] == nil {
				tags[tag] = connectors.StringSet{}
			}
			tags[tag].Add(cual.URI())
		}
	}
	sort.Slice(data.Assets, func(i, j int) bool { return data.Assets[i].Cual.URI() < data.Assets[j].Cual.URI() })

	for _, cual := range referenced.Sorted() {
		data.AssetReferences = append(data.AssetReferences, connectors.RawAssetReference{
			Cual: connectors.NewCual(cual),
		})
	}

	for _, tag := range sortedKeys(tags) {
		data.Tags = append(data.Tags, connectors.RawTag{
			Name:               tag,
			PassThroughLineage: true,
			AppliedTo:          tags[tag],
		})
	}

	return data, nil
}

func sortedKeys(m map[string]connectors.StringSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Connector) modelCual(name string) connectors.Cual {
	return connectors.AssembleCual(c.CualPrefix(), []string{name}, AssetTypeModel)
}

// Plan reports that the tool manages no access itself.
func (c *Connector) Plan(diffs diff.LocalDiffs) []string {
	if diffs.Empty() {
		return nil
	}
	return []string{"  (transform tool manages no access; nothing to apply)"}
}

// PrepareApply returns empty batches: there is no API to converge.
func (c *Connector) PrepareApply(diffs diff.LocalDiffs, ids *plan.GroupIDMap) (plan.Batches, error) {
	return plan.Batches{}, nil
}
