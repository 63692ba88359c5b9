// Package wildcard implements the matching-path language default policies
// use to select descendant assets: "*" matches exactly one hierarchy
// segment, "**" matches one or more remaining segments and is only legal as
// the last segment.
package wildcard

import (
	"fmt"
	"strings"
)

// Pattern is a parsed matching path.
type Pattern struct {
	segments []string
	raw      string
}

// Parse validates and compiles a matching path. The empty path is legal and
// matches only the root itself.
func Parse(raw string) (Pattern, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return Pattern{raw: raw}, nil
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("invalid matching path %q: empty segment", raw)
		}
		if seg == "**" && i != len(segments)-1 {
			return Pattern{}, fmt.Errorf("invalid matching path %q: ** is only legal as the last segment", raw)
		}
		if strings.Contains(seg, "*") && seg != "*" && seg != "**" {
			return Pattern{}, fmt.Errorf("invalid matching path %q: segment %q mixes literals and wildcards", raw, seg)
		}
	}
	return Pattern{segments: segments, raw: raw}, nil
}

// String returns the pattern as written.
func (p Pattern) String() string { return p.raw }

// Matches reports whether the relative path (hierarchy segments below the
// pattern's root, top first) is selected by the pattern.
func (p Pattern) Matches(relative []string) bool {
	return matchSegments(p.segments, relative)
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		// Terminal by construction; matches one or more remaining segments.
		return len(path) >= 1
	}
	if len(path) == 0 {
		return false
	}
	if pattern[0] != "*" && pattern[0] != path[0] {
		return false
	}
	return matchSegments(pattern[1:], path[1:])
}

// Specificity scores a pattern for default-policy prioritization: literal
// segments outrank "*", which outranks "**". Higher wins among defaults
// rooted at the same depth.
func (p Pattern) Specificity() int {
	score := 0
	for _, seg := range p.segments {
		switch seg {
		case "**":
			score += 1
		case "*":
			score += 10
		default:
			score += 100
		}
	}
	return score
}
