package wildcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	valid := []string{"/**", "**", "*", "a/b/**", "*/t", "a/*/c", ""}
	for _, raw := range valid {
		_, err := Parse(raw)
		assert.NoError(t, err, "pattern %q", raw)
	}

	invalid := []string{"**/a", "a/**/b", "a//b", "a*b"}
	for _, raw := range invalid {
		_, err := Parse(raw)
		assert.Error(t, err, "pattern %q", raw)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		path    []string
		want    bool
	}{
		{"/**", []string{"schema"}, true},
		{"/**", []string{"schema", "table"}, true},
		{"/**", nil, false},
		{"*", []string{"schema"}, true},
		{"*", []string{"schema", "table"}, false},
		{"*/t", []string{"schema", "t"}, true},
		{"*/t", []string{"schema", "u"}, false},
		{"schema/**", []string{"schema", "table"}, true},
		{"schema/**", []string{"other", "table"}, false},
		{"schema/**", []string{"schema"}, false},
		{"", nil, true},
		{"", []string{"schema"}, false},
	}
	for _, tt := range tests {
		p, err := Parse(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Matches(tt.path), "pattern %q path %v", tt.pattern, tt.path)
	}
}

func TestSpecificityOrdering(t *testing.T) {
	literal, _ := Parse("schema/**")
	star, _ := Parse("*/**")
	doubleStar, _ := Parse("/**")

	assert.Greater(t, literal.Specificity(), star.Specificity())
	assert.Greater(t, star.Specificity(), doubleStar.Specificity())
}
