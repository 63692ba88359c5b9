package connectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCualParse(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		wantErr   bool
		prefix    string
		path      []string
		assetType AssetType
	}{
		{
			name:      "full locator",
			uri:       "warehouse://acct-1/db/schema/table_a?type=table",
			prefix:    "warehouse://acct-1",
			path:      []string{"db", "schema", "table_a"},
			assetType: "table",
		},
		{
			name:      "no path",
			uri:       "bi://server.example.com?type=site",
			prefix:    "bi://server.example.com",
			path:      nil,
			assetType: "site",
		},
		{
			name:      "encoded segment",
			uri:       "warehouse://acct-1/db/my%20schema/t?type=table",
			prefix:    "warehouse://acct-1",
			path:      []string{"db", "my schema", "t"},
			assetType: "table",
		},
		{
			name:   "no type argument",
			uri:    "transform://proj/models/staging",
			prefix: "transform://proj",
			path:   []string{"models", "staging"},
		},
		{
			name:    "missing scheme",
			uri:     "/db/schema/t",
			wantErr: true,
		},
		{
			name:    "empty",
			uri:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := NewCual(tt.uri).Parse()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, parts.Prefix)
			assert.Equal(t, tt.path, parts.Path)
			assert.Equal(t, tt.assetType, parts.AssetType)
		})
	}
}

func TestCualRoundTrip(t *testing.T) {
	c := AssembleCual("warehouse://acct-1", []string{"db", "my schema", "t"}, "table")
	parts, err := c.Parse()
	require.NoError(t, err)
	assert.Equal(t, "warehouse://acct-1", parts.Prefix)
	assert.Equal(t, []string{"db", "my schema", "t"}, parts.Path)
	assert.Equal(t, AssetType("table"), parts.AssetType)
}
