package bi

import (
	"context"
	"fmt"
	"sort"

	"github.com/jettylabs/jetty/internal/connectors"
)

// fetchPermissions reads every workbook's permission rules and composes
// the effective-permission matrix from three sources, lowest precedence
// first:
//
//  1. explicit per-grant rules, expanded through group membership;
//  2. implicit ownership and project-leader permissions, found by walking
//     the project chain;
//  3. site-role blankets (administrators allow everything, unlicensed
//     users deny everything).
//
// Later sources override earlier ones cell by cell; agreeing sources
// accumulate their reasons so any cell can be explained.
func (c *Connector) fetchPermissions(ctx context.Context, env *environment, workbooks []apiWorkbook) ([]connectors.RawPolicy, connectors.EffectivePermissionMatrix, error) {
	var policies []connectors.RawPolicy
	explicit := connectors.EffectivePermissionMatrix{}

	for _, w := range workbooks {
		perms, err := c.client.workbookPermissions(ctx, w.ID)
		if err != nil {
			return nil, nil, err
		}
		cual := env.workbookCual(w)

		for _, rule := range perms.Rules {
			policy, granteeUsers, err := env.policyFromRule(w, cual, rule)
			if err != nil {
				return nil, nil, err
			}
			policies = append(policies, policy)

			for _, capability := range rule.Capabilities {
				mode := connectors.ModeFromString(capability.Mode)
				for _, user := range granteeUsers {
					reason := fmt.Sprintf("explicit %s rule for %s", capability.Mode, ruleGranteeDescription(env, rule))
					explicit.Set(user, cual, connectors.NewEffectivePermission(capability.Name, mode, reason))
				}
			}
		}
	}

	matrix := explicit
	matrix.InsertOrMerge(c.implicitPermissions(env))
	matrix.InsertOrMerge(c.siteRolePermissions(env))

	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, matrix, nil
}

// policyFromRule converts one permission rule into a raw policy and
// resolves the user names it ultimately reaches.
func (e *environment) policyFromRule(w apiWorkbook, cual connectors.Cual, rule apiPermissionRule) (connectors.RawPolicy, []string, error) {
	privileges := connectors.StringSet{}
	for _, capability := range rule.Capabilities {
		privileges.Add(capability.Name)
	}
	policy := connectors.RawPolicy{
		Privileges:    privileges,
		GovernsAssets: connectors.NewStringSet(cual.URI()),
	}

	var users []string
	switch rule.GranteeType {
	case "user":
		name, ok := e.userName[rule.GranteeID]
		if !ok {
			return policy, nil, fmt.Errorf("workbook %s rule references unknown user %s", w.ID, rule.GranteeID)
		}
		policy.Name = fmt.Sprintf("workbook-%s-user-%s", w.ID, rule.GranteeID)
		policy.GrantedToUsers = connectors.NewStringSet(name)
		users = append(users, name)
	case "group":
		name, ok := e.groupName[rule.GranteeID]
		if !ok {
			return policy, nil, fmt.Errorf("workbook %s rule references unknown group %s", w.ID, rule.GranteeID)
		}
		policy.Name = fmt.Sprintf("workbook-%s-group-%s", w.ID, rule.GranteeID)
		policy.GrantedToGroups = connectors.NewStringSet(name)
		for uid, memberOf := range e.groupsOfUser {
			if memberOf.Contains(name) {
				if userName, ok := e.userName[uid]; ok {
					users = append(users, userName)
				}
			}
		}
	default:
		return policy, nil, fmt.Errorf("workbook %s rule has unknown grantee type %q", w.ID, rule.GranteeType)
	}
	sort.Strings(users)
	return policy, users, nil
}

func ruleGranteeDescription(env *environment, rule apiPermissionRule) string {
	switch rule.GranteeType {
	case "user":
		return "user " + env.userName[rule.GranteeID]
	case "group":
		return "group " + env.groupName[rule.GranteeID]
	}
	return "unknown grantee"
}

// implicitPermissions grants owners and project leaders everything on the
// assets under them, found by walking each workbook's parent chain.
func (c *Connector) implicitPermissions(env *environment) connectors.EffectivePermissionMatrix {
	matrix := connectors.EffectivePermissionMatrix{}
	for _, w := range env.workbooks {
		cual := env.workbookCual(w)

		if owner, ok := env.userName[w.OwnerID]; ok {
			for _, capability := range workbookCapabilities.Sorted() {
				matrix.Set(owner, cual, connectors.NewEffectivePermission(
					capability, connectors.ModeAllow, "owns the workbook"))
			}
		}

		for id := w.ProjectID; id != ""; {
			p, ok := env.projects[id]
			if !ok {
				break
			}
			for _, leaderID := range p.LeaderIDs {
				leader, ok := env.userName[leaderID]
				if !ok {
					continue
				}
				for _, capability := range workbookCapabilities.Sorted() {
					matrix.Set(leader, cual, connectors.NewEffectivePermission(
						capability, connectors.ModeAllow,
						fmt.Sprintf("project leader on %s", p.Name)))
				}
			}
			id = p.ParentID
		}
	}
	return matrix
}

// siteRolePermissions is the highest-precedence source: administrators
// hold every capability everywhere, unlicensed users hold none anywhere.
func (c *Connector) siteRolePermissions(env *environment) connectors.EffectivePermissionMatrix {
	matrix := connectors.EffectivePermissionMatrix{}
	for uid, role := range env.siteRole {
		user, ok := env.userName[uid]
		if !ok {
			continue
		}
		var mode connectors.PermissionMode
		var reason string
		switch role {
		case siteRoleServerAdmin, siteRoleSiteAdmin:
			mode, reason = connectors.ModeAllow, "site role "+role
		case siteRoleUnlicensed:
			mode, reason = connectors.ModeDeny, "unlicensed site role"
		default:
			continue
		}
		for _, w := range env.workbooks {
			cual := env.workbookCual(w)
			for _, capability := range workbookCapabilities.Sorted() {
				matrix.Set(user, cual, connectors.NewEffectivePermission(capability, mode, reason))
			}
		}
	}
	return matrix
}
