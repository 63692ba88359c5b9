package connectors

import "strings"

// PermissionMode is the resolution of a single privilege for a (user, asset)
// pair: allowed, denied, unset, or a platform-specific mode Jetty passes
// through untouched.
type PermissionMode string

const (
	ModeAllow PermissionMode = "allow"
	ModeDeny  PermissionMode = "deny"
	ModeNone  PermissionMode = "none"
)

// ModeFromString maps a platform's capability string onto a PermissionMode.
// Anything that isn't allow/deny/none is carried through as-is so connectors
// can surface platform modes Jetty doesn't model.
func ModeFromString(s string) PermissionMode {
	switch strings.ToLower(s) {
	case "allow":
		return ModeAllow
	case "deny":
		return ModeDeny
	case "none", "":
		return ModeNone
	default:
		return PermissionMode(strings.ToLower(s))
	}
}

// EffectivePermission is the resolved state of one privilege for a
// (user, asset) pair, with the human-readable reasons it ended up that way.
//
// Identity is the privilege ALONE. Two effective permissions with the same
// privilege are "the same permission" regardless of mode or reasons; the
// collision is expected and resolved by Merge. EffectivePermissionSet
// encodes this by keying on the privilege, and any alternative container
// must preserve the same contract or the matrix-merge algorithm breaks.
type EffectivePermission struct {
	Privilege string         `json:"privilege" yaml:"privilege"`
	Mode      PermissionMode `json:"mode" yaml:"mode"`
	Reasons   []string       `json:"reasons" yaml:"reasons"`
}

// NewEffectivePermission is the basic constructor.
func NewEffectivePermission(privilege string, mode PermissionMode, reasons ...string) EffectivePermission {
	return EffectivePermission{Privilege: privilege, Mode: mode, Reasons: reasons}
}

// Merge combines an incoming permission for the same privilege into p.
// Same mode: the reasons concatenate, giving a comprehensive explanation.
// Different mode: the incoming permission's mode and reasons win.
func (p *EffectivePermission) Merge(incoming EffectivePermission) error {
	if p.Privilege != incoming.Privilege {
		return &MergeMismatchError{Existing: p.Privilege, Incoming: incoming.Privilege}
	}
	if p.Mode == incoming.Mode {
		p.Reasons = append(p.Reasons, incoming.Reasons...)
		return nil
	}
	p.Mode = incoming.Mode
	p.Reasons = incoming.Reasons
	return nil
}

// MergeMismatchError is returned when Merge is called across privileges.
type MergeMismatchError struct {
	Existing, Incoming string
}

func (e *MergeMismatchError) Error() string {
	return "effective permission privileges didn't match: " + e.Existing + ", " + e.Incoming
}

// EffectivePermissionSet holds at most one EffectivePermission per privilege,
// keyed by the privilege. The key IS the identity.
type EffectivePermissionSet map[string]EffectivePermission

// NewEffectivePermissionSet builds a set, merging any same-privilege inputs.
func NewEffectivePermissionSet(perms ...EffectivePermission) EffectivePermissionSet {
	s := make(EffectivePermissionSet, len(perms))
	s.InsertOrMerge(perms...)
	return s
}

// InsertOrMerge inserts each permission, merging on privilege collision.
func (s EffectivePermissionSet) InsertOrMerge(perms ...EffectivePermission) {
	for _, p := range perms {
		existing, ok := s[p.Privilege]
		if !ok {
			s[p.Privilege] = p
			continue
		}
		// Same privilege: merge never fails.
		_ = existing.Merge(p)
		s[p.Privilege] = existing
	}
}

// EffectivePermissionMatrix maps local user name -> asset CUAL -> the
// per-privilege permission set. This is the shape connectors hand to the
// core at fetch time.
type EffectivePermissionMatrix map[string]map[Cual]EffectivePermissionSet

// InsertOrMerge folds another matrix into m. The incoming matrix takes
// precedence when a (user, asset, privilege) cell clashes on mode.
func (m EffectivePermissionMatrix) InsertOrMerge(other EffectivePermissionMatrix) {
	for user, assets := range other {
		existing, ok := m[user]
		if !ok {
			m[user] = assets
			continue
		}
		for cual, perms := range assets {
			set, ok := existing[cual]
			if !ok {
				existing[cual] = perms
				continue
			}
			for _, p := range perms {
				set.InsertOrMerge(p)
			}
		}
	}
}

// Set inserts one cell, allocating inner maps as needed.
func (m EffectivePermissionMatrix) Set(user string, cual Cual, perms ...EffectivePermission) {
	assets, ok := m[user]
	if !ok {
		assets = make(map[Cual]EffectivePermissionSet)
		m[user] = assets
	}
	set, ok := assets[cual]
	if !ok {
		set = make(EffectivePermissionSet)
		assets[cual] = set
	}
	set.InsertOrMerge(perms...)
}
