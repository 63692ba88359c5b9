package bi

import (
	"context"
	"fmt"

	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/plan"
)

// Plan renders the REST calls the local diff would make.
func (c *Connector) Plan(diffs diff.LocalDiffs) []string {
	batches, err := c.PrepareApply(diffs, plan.NewGroupIDMap())
	if err != nil {
		return []string{"  error: " + err.Error()}
	}
	var out []string
	for _, batch := range [][]plan.Request{batches.Prelude, batches.Main, batches.Epilogue} {
		for _, r := range batch {
			out = append(out, "  "+r.Description)
		}
	}
	return out
}

// PrepareApply converts the local diff into REST request batches. Group
// creations go in the prelude and record their server-assigned IDs in the
// shared map; membership and permission changes in main resolve grantee
// IDs through that map at run time, because a just-created group has no ID
// until its prelude request completes. Group deletions go last.
func (c *Connector) PrepareApply(diffs diff.LocalDiffs, ids *plan.GroupIDMap) (plan.Batches, error) {
	var batches plan.Batches

	// Groups already on the server resolve immediately; seed the map so
	// main requests don't care which kind of group they're granting to.
	knownGroups, knownUsers, err := c.snapshotIDs(context.Background())
	if err != nil {
		return batches, err
	}
	for name, id := range knownGroups {
		ids.Set(name, id)
	}

	for _, gd := range diffs.Groups {
		gd := gd
		groupName := gd.Name.Name
		switch gd.Kind {
		case diff.Add:
			batches.Prelude = append(batches.Prelude, plan.Request{
				Description: fmt.Sprintf("create group %q", groupName),
				Do: func(ctx context.Context) error {
					id, err := c.client.createGroup(ctx, groupName)
					if err != nil {
						return err
					}
					ids.Set(groupName, id)
					return nil
				},
			})
			for _, member := range gd.AddedMembers {
				batches.Main = append(batches.Main, c.membershipRequest(groupName, member, knownUsers, ids, true))
			}
		case diff.Remove:
			batches.Epilogue = append(batches.Epilogue, plan.Request{
				Description: fmt.Sprintf("delete group %q", groupName),
				Do: func(ctx context.Context) error {
					id, ok := ids.Get(groupName)
					if !ok {
						return fmt.Errorf("no id for group %q", groupName)
					}
					return c.client.deleteGroup(ctx, id)
				},
			})
		case diff.Modify:
			for _, member := range gd.AddedMembers {
				batches.Main = append(batches.Main, c.membershipRequest(groupName, member, knownUsers, ids, true))
			}
			for _, member := range gd.RemovedMembers {
				batches.Main = append(batches.Main, c.membershipRequest(groupName, member, knownUsers, ids, false))
			}
		}
	}

	for _, pd := range diffs.Policies {
		pd := pd
		assetID := assetIDFromName(pd.Asset)
		granteeType, granteeName := granteeParts(pd.Grantee)

		if len(pd.AddedPrivileges) > 0 {
			privileges := append([]string(nil), pd.AddedPrivileges...)
			batches.Main = append(batches.Main, plan.Request{
				Description: fmt.Sprintf("allow %v for %s %q on %s", privileges, granteeType, granteeName, pd.Asset.Path),
				Do: func(ctx context.Context) error {
					granteeID, err := resolveGrantee(granteeType, granteeName, knownUsers, ids)
					if err != nil {
						return err
					}
					rule := apiPermissionRule{GranteeType: granteeType, GranteeID: granteeID}
					for _, p := range privileges {
						rule.Capabilities = append(rule.Capabilities, apiCapability{Name: p, Mode: "Allow"})
					}
					return c.client.putPermissionRule(ctx, assetID, rule)
				},
			})
		}
		if len(pd.RemovedPrivileges) > 0 {
			privileges := append([]string(nil), pd.RemovedPrivileges...)
			batches.Main = append(batches.Main, plan.Request{
				Description: fmt.Sprintf("revoke %v from %s %q on %s", privileges, granteeType, granteeName, pd.Asset.Path),
				Do: func(ctx context.Context) error {
					granteeID, err := resolveGrantee(granteeType, granteeName, knownUsers, ids)
					if err != nil {
						return err
					}
					for _, p := range privileges {
						if err := c.client.deletePermissionCapability(ctx, assetID, granteeType, granteeID, p); err != nil {
							return err
						}
					}
					return nil
				},
			})
		}
	}

	return batches, nil
}

func (c *Connector) membershipRequest(groupName string, member graph.NodeName, users map[string]string, ids *plan.GroupIDMap, add bool) plan.Request {
	verb := "add"
	if !add {
		verb = "remove"
	}
	return plan.Request{
		Description: fmt.Sprintf("%s %q in group %q", verb, member.Name, groupName),
		Do: func(ctx context.Context) error {
			groupID, ok := ids.Get(groupName)
			if !ok {
				return fmt.Errorf("no id for group %q", groupName)
			}
			userID, ok := users[member.Name]
			if !ok {
				return fmt.Errorf("no id for user %q", member.Name)
			}
			if add {
				return c.client.addGroupMember(ctx, groupID, userID)
			}
			return c.client.removeGroupMember(ctx, groupID, userID)
		},
	}
}

// snapshotIDs reads the server's current name -> id maps for groups and
// users.
func (c *Connector) snapshotIDs(ctx context.Context) (groups, users map[string]string, err error) {
	apiGroups, err := c.client.listGroups(ctx)
	if err != nil {
		return nil, nil, err
	}
	apiUsers, err := c.client.listUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	groups = map[string]string{}
	for _, g := range apiGroups {
		groups[g.Name] = g.ID
	}
	users = map[string]string{}
	for _, u := range apiUsers {
		users[u.Name] = u.ID
	}
	return groups, users, nil
}

func resolveGrantee(granteeType, name string, users map[string]string, ids *plan.GroupIDMap) (string, error) {
	if granteeType == "user" {
		id, ok := users[name]
		if !ok {
			return "", fmt.Errorf("no id for user %q", name)
		}
		return id, nil
	}
	id, ok := ids.Get(name)
	if !ok {
		return "", fmt.Errorf("no id for group %q", name)
	}
	return id, nil
}

func granteeParts(grantee graph.NodeName) (granteeType, name string) {
	if grantee.Kind == graph.KindUser {
		return "user", grantee.Name
	}
	return "group", grantee.Name
}

// assetIDFromName recovers the server-side asset ID. Workbook paths embed
// the hierarchy; the server accepts path-addressed permission endpoints.
func assetIDFromName(asset graph.NodeName) string {
	return asset.Path
}
