package connectors

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cual is a Connector Universal Asset Locator: a URL-like string of the form
//
//	scheme://host[/path]?type=<asset_type>
//
// where scheme names the platform, host is the account or server identifier,
// path is a /-joined list of URL-encoded hierarchy segments (top parent
// first), and the type query argument ties the locator to one of the
// connector's declared asset types. CUALs are the wire format for
// cross-connector asset references; inside the graph they are decomposed
// into canonical asset names.
type Cual struct {
	uri string
}

// NewCual wraps a raw CUAL string without validating it. Parse validates.
func NewCual(uri string) Cual { return Cual{uri: uri} }

// URI returns the raw CUAL string.
func (c Cual) URI() string { return c.uri }

// IsZero reports whether the locator is empty.
func (c Cual) IsZero() bool { return c.uri == "" }

// MarshalJSON encodes the locator as its raw string.
func (c Cual) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.uri)
}

// UnmarshalJSON decodes the locator from its raw string.
func (c *Cual) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.uri)
}

// MarshalYAML encodes the locator as its raw string.
func (c Cual) MarshalYAML() (interface{}, error) { return c.uri, nil }

// UnmarshalYAML decodes the locator from its raw string.
func (c *Cual) UnmarshalYAML(value *yaml.Node) error {
	return value.Decode(&c.uri)
}

// CualParts is a decomposed CUAL.
type CualParts struct {
	// Prefix is "scheme://host", the portion that namespaces the owning
	// connector.
	Prefix string
	// Path holds the decoded hierarchy segments, top parent first.
	Path []string
	// AssetType is the value of the type query argument; empty if absent.
	AssetType AssetType
}

// Parse decomposes the locator into its connector prefix, hierarchy path,
// and asset type.
func (c Cual) Parse() (CualParts, error) {
	u, err := url.Parse(c.uri)
	if err != nil {
		return CualParts{}, fmt.Errorf("parsing cual %q: %w", c.uri, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return CualParts{}, fmt.Errorf("parsing cual %q: missing scheme or host", c.uri)
	}

	var segments []string
	for _, seg := range strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/") {
		if seg == "" {
			continue
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return CualParts{}, fmt.Errorf("parsing cual %q: segment %q: %w", c.uri, seg, err)
		}
		segments = append(segments, decoded)
	}

	return CualParts{
		Prefix:    u.Scheme + "://" + u.Host,
		Path:      segments,
		AssetType: AssetType(u.Query().Get("type")),
	}, nil
}

// AssembleCual builds a locator from a connector prefix, hierarchy segments,
// and an asset type. The inverse of Parse.
func AssembleCual(prefix string, path []string, assetType AssetType) Cual {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(prefix, "/"))
	for _, seg := range path {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if assetType != "" {
		b.WriteString("?type=")
		b.WriteString(url.QueryEscape(string(assetType)))
	}
	return Cual{uri: b.String()}
}
