package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/graph"
	"github.com/jettylabs/jetty/internal/plan"
)

// Plan renders the SQL each local diff would execute.
func (c *Connector) Plan(diffs diff.LocalDiffs) []string {
	var out []string
	collect := func(b plan.Batches) {
		for _, batch := range [][]plan.Request{b.Prelude, b.Main, b.Epilogue} {
			for _, r := range batch {
				out = append(out, "  "+r.Description)
			}
		}
	}
	batches, err := c.PrepareApply(diffs, plan.NewGroupIDMap())
	if err != nil {
		return []string{"  error: " + err.Error()}
	}
	collect(batches)
	return out
}

// PrepareApply converts the local diff into SQL request batches: role
// creations in the prelude, membership and grant changes in main, role
// drops in the epilogue. Warehouse roles are addressed by name, so the
// deferred-ID map resolves trivially, but grants still go through it: the
// planner's ordering contract is the same for every connector.
func (c *Connector) PrepareApply(diffs diff.LocalDiffs, ids *plan.GroupIDMap) (plan.Batches, error) {
	var batches plan.Batches

	for _, gd := range diffs.Groups {
		gd := gd
		role := gd.Name.Name
		switch gd.Kind {
		case diff.Add:
			batches.Prelude = append(batches.Prelude, c.sqlRequest(
				fmt.Sprintf("CREATE ROLE %s", quoteIdent(role)),
				func(context.Context) { ids.Set(role, role) },
			))
			for _, member := range gd.AddedMembers {
				batches.Main = append(batches.Main, c.memberRequest(role, member, true))
			}
		case diff.Remove:
			for _, member := range gd.RemovedMembers {
				batches.Main = append(batches.Main, c.memberRequest(role, member, false))
			}
			batches.Epilogue = append(batches.Epilogue, c.sqlRequest(
				fmt.Sprintf("DROP ROLE %s", quoteIdent(role)), nil))
		case diff.Modify:
			for _, member := range gd.AddedMembers {
				batches.Main = append(batches.Main, c.memberRequest(role, member, true))
			}
			for _, member := range gd.RemovedMembers {
				batches.Main = append(batches.Main, c.memberRequest(role, member, false))
			}
		}
	}

	for _, pd := range diffs.Policies {
		pd := pd
		relation := qualifiedRelation(pd.Asset.PathSegments())
		grantee := granteeRole(pd.Grantee)
		if len(pd.AddedPrivileges) > 0 {
			statement := fmtGrant(pd.AddedPrivileges, relation, grantee)
			batches.Main = append(batches.Main, plan.Request{
				Description: statement,
				Do: func(ctx context.Context) error {
					if pd.Grantee.Kind == graph.KindGroup {
						// A brand-new role's create must have landed first.
						if _, ok := ids.Get(grantee); !ok && granteeIsNew(diffs, pd.Grantee) {
							return fmt.Errorf("role %s not yet created", grantee)
						}
					}
					return c.exec(ctx, statement)
				},
			})
		}
		if len(pd.RemovedPrivileges) > 0 {
			batches.Main = append(batches.Main, c.sqlRequest(fmtRevoke(pd.RemovedPrivileges, relation, grantee), nil))
		}
	}

	for _, dpd := range diffs.DefaultPolicies {
		dpd := dpd
		schema := qualifiedRelation(dpd.Root.PathSegments())
		grantee := granteeRole(dpd.Grantee)
		if len(dpd.AddedPrivileges) > 0 {
			batches.Main = append(batches.Main, c.sqlRequest(fmt.Sprintf(
				"ALTER DEFAULT PRIVILEGES IN SCHEMA %s GRANT %s ON TABLES TO %s",
				schema, strings.Join(dpd.AddedPrivileges, ", "), quoteIdent(grantee)), nil))
		}
		if len(dpd.RemovedPrivileges) > 0 {
			batches.Main = append(batches.Main, c.sqlRequest(fmt.Sprintf(
				"ALTER DEFAULT PRIVILEGES IN SCHEMA %s REVOKE %s ON TABLES FROM %s",
				schema, strings.Join(dpd.RemovedPrivileges, ", "), quoteIdent(grantee)), nil))
		}
	}

	return batches, nil
}

func granteeIsNew(diffs diff.LocalDiffs, grantee graph.NodeName) bool {
	for _, gd := range diffs.Groups {
		if gd.Kind == diff.Add && gd.Name == grantee {
			return true
		}
	}
	return false
}

func granteeRole(grantee graph.NodeName) string {
	return grantee.Name
}

func (c *Connector) memberRequest(role string, member graph.NodeName, add bool) plan.Request {
	statement := fmt.Sprintf("GRANT %s TO %s", quoteIdent(role), quoteIdent(member.Name))
	if !add {
		statement = fmt.Sprintf("REVOKE %s FROM %s", quoteIdent(role), quoteIdent(member.Name))
	}
	return c.sqlRequest(statement, nil)
}

// sqlRequest wraps one statement; after hooks run on success only.
func (c *Connector) sqlRequest(statement string, after func(context.Context)) plan.Request {
	return plan.Request{
		Description: statement,
		Do: func(ctx context.Context) error {
			if err := c.exec(ctx, statement); err != nil {
				return err
			}
			if after != nil {
				after(ctx)
			}
			return nil
		},
	}
}

func (c *Connector) exec(ctx context.Context, statement string) error {
	_, err := c.db.ExecContext(ctx, statement)
	return err
}
