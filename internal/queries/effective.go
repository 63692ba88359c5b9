package queries

import (
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/graph"
)

// PermissionMatrix maps canonical user name -> canonical asset name -> the
// per-privilege effective permissions. Each connector resolves its own
// platform's privilege semantics; the core only composes the matrices.
type PermissionMatrix map[graph.NodeName]map[graph.NodeName]connectors.EffectivePermissionSet

// Merge folds an incoming matrix into m. Where a (user, asset, privilege)
// cell exists on both sides, the permissions merge: agreeing modes
// concatenate reasons, a disagreeing incoming mode wins outright. Callers
// therefore compose sources from lowest to highest precedence.
func (m PermissionMatrix) Merge(incoming PermissionMatrix) {
	for user, assets := range incoming {
		existing, ok := m[user]
		if !ok {
			m[user] = assets
			continue
		}
		for asset, perms := range assets {
			set, ok := existing[asset]
			if !ok {
				existing[asset] = perms
				continue
			}
			for _, p := range perms {
				set.InsertOrMerge(p)
			}
		}
	}
}

// CombineMatrices builds the global matrix from every connector's processed
// contribution. Connectors never overlap on assets they own, so merge order
// across connectors is immaterial; within a connector the matrix already
// arrived composed by precedence.
func CombineMatrices(processed []graph.ProcessedConnectorData) PermissionMatrix {
	out := PermissionMatrix{}
	for _, pcd := range processed {
		out.Merge(pcd.EffectivePermissions)
	}
	return out
}

// PermissionsForUser returns the user's row of the matrix. The typed index
// guarantees the node is a user; a user absent from the matrix simply has
// no resolved permissions.
func (m PermissionMatrix) PermissionsForUser(g *graph.Graph, user graph.UserIndex) map[graph.NodeName]connectors.EffectivePermissionSet {
	return m[g.UserAt(user).Name]
}

// PermissionsOn returns the resolved permissions for one (user, asset)
// cell, sorted by privilege so output is stable.
func (m PermissionMatrix) PermissionsOn(g *graph.Graph, user graph.UserIndex, asset graph.AssetIndex) []connectors.EffectivePermission {
	row := m[g.UserAt(user).Name]
	if row == nil {
		return nil
	}
	set := row[g.AssetAt(asset).Name]
	if len(set) == 0 {
		return nil
	}
	privileges := make([]string, 0, len(set))
	for privilege := range set {
		privileges = append(privileges, privilege)
	}
	sort.Strings(privileges)
	out := make([]connectors.EffectivePermission, 0, len(set))
	for _, privilege := range privileges {
		out = append(out, set[privilege])
	}
	return out
}

// AllowedOn reports whether the user holds the privilege on the asset with
// mode allow.
func (m PermissionMatrix) AllowedOn(g *graph.Graph, user graph.UserIndex, asset graph.AssetIndex, privilege string) bool {
	row := m[g.UserAt(user).Name]
	if row == nil {
		return false
	}
	p, ok := row[g.AssetAt(asset).Name][privilege]
	return ok && p.Mode == connectors.ModeAllow
}
