package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/graph"
)

// fakeConnector creates groups in the prelude and grants policies in main.
type fakeConnector struct {
	ns         connectors.Namespace
	failGrants bool
}

func newFakeConnector(ns connectors.Namespace) *fakeConnector {
	return &fakeConnector{ns: ns}
}

func (f *fakeConnector) Namespace() connectors.Namespace { return f.ns }

func (f *fakeConnector) Plan(diffs diff.LocalDiffs) []string {
	var out []string
	for _, g := range diffs.Groups {
		out = append(out, fmt.Sprintf("%s group %s", g.Kind, g.Name))
	}
	for _, p := range diffs.Policies {
		out = append(out, fmt.Sprintf("%s policy %s -> %s", p.Kind, p.Asset, p.Grantee))
	}
	return out
}

func (f *fakeConnector) PrepareApply(diffs diff.LocalDiffs, ids *GroupIDMap) (Batches, error) {
	var batches Batches
	for _, gd := range diffs.Groups {
		gd := gd
		switch gd.Kind {
		case diff.Add:
			desc := "create group " + gd.Name.Name
			batches.Prelude = append(batches.Prelude, f.request(desc, func() error {
				ids.Set(gd.Name.Name, "id-"+gd.Name.Name)
				return nil
			}))
		case diff.Remove:
			batches.Epilogue = append(batches.Epilogue, f.request("delete group "+gd.Name.Name, func() error { return nil }))
		}
	}
	for _, pd := range diffs.Policies {
		pd := pd
		desc := "grant " + pd.Grantee.Name + " on " + pd.Asset.Path
		batches.Main = append(batches.Main, f.request(desc, func() error {
			if f.failGrants {
				return fmt.Errorf("api rejected %s", desc)
			}
			if pd.Grantee.Kind == graph.KindGroup {
				if _, ok := ids.Get(pd.Grantee.Name); !ok {
					return fmt.Errorf("no id for group %s", pd.Grantee.Name)
				}
			}
			return nil
		}))
	}
	return batches, nil
}

// request builds a Request whose closure runs do; the planner assigns Seq
// and records it in the request's result.
func (f *fakeConnector) request(desc string, do func() error) Request {
	r := Request{Description: desc}
	r.Do = func(ctx context.Context) error {
		if err := do(); err != nil {
			return err
		}
		return nil
	}
	return r
}

func whTable(name string) graph.NodeName {
	return graph.AssetName("wh", "table", []string{"db", name})
}

func newGroupAndGrantDiff() diff.GlobalDiffs {
	group := graph.GroupName("analysts", "wh")
	return diff.GlobalDiffs{
		Groups: []diff.GroupDiff{{Name: group, Kind: diff.Add}},
		Policies: []diff.PolicyDiff{{
			Asset:           whTable("t"),
			Grantee:         group,
			Kind:            diff.Add,
			AddedPrivileges: []string{"SELECT"},
		}},
	}
}

// A new group's create request sequences before the policy add that
// references it.
func TestApplyOrdersGroupCreateBeforeGrant(t *testing.T) {
	conn := newFakeConnector("wh")
	p := NewPlanner([]Connector{conn}, 4)

	summary, err := p.Apply(context.Background(), newGroupAndGrantDiff())
	require.NoError(t, err)
	require.Len(t, summary.Connectors, 1)
	assert.Equal(t, 2, summary.Connectors[0].Succeeded)
	assert.Equal(t, 0, summary.Connectors[0].Failed)

	results := summary.Connectors[0].Results
	require.Len(t, results, 2)
	var createSeq, grantSeq int
	for _, r := range results {
		if r.Description == "create group analysts" {
			createSeq = r.Seq
		} else {
			grantSeq = r.Seq
		}
	}
	assert.Less(t, createSeq, grantSeq)
}

// The grant resolves the group ID written by the prelude task.
func TestApplyResolvesDeferredGroupIDs(t *testing.T) {
	conn := newFakeConnector("wh")
	p := NewPlanner([]Connector{conn}, 1)

	summary, err := p.Apply(context.Background(), newGroupAndGrantDiff())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.FailedCount())
}

// A failed request is recorded; its batch siblings still run.
func TestApplyRecordsPartialFailure(t *testing.T) {
	conn := newFakeConnector("wh")
	conn.failGrants = true
	p := NewPlanner([]Connector{conn}, 2)

	group := graph.GroupName("analysts", "wh")
	diffs := diff.GlobalDiffs{
		Groups: []diff.GroupDiff{{Name: group, Kind: diff.Add}},
		Policies: []diff.PolicyDiff{
			{Asset: whTable("t1"), Grantee: group, Kind: diff.Add},
			{Asset: whTable("t2"), Grantee: group, Kind: diff.Add},
		},
	}

	summary, err := p.Apply(context.Background(), diffs)
	require.NoError(t, err)
	require.Len(t, summary.Connectors, 1)
	assert.Equal(t, 1, summary.Connectors[0].Succeeded) // the group create
	assert.Equal(t, 2, summary.Connectors[0].Failed)
	assert.Equal(t, 2, summary.FailedCount())
}

func TestApplyStopsAtBatchBoundaryOnCancel(t *testing.T) {
	conn := newFakeConnector("wh")
	p := NewPlanner([]Connector{conn}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Apply(ctx, newGroupAndGrantDiff())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanRendersPerConnector(t *testing.T) {
	wh := newFakeConnector("wh")
	bi := newFakeConnector("bi")
	p := NewPlanner([]Connector{wh, bi}, 1)

	lines := p.Plan(newGroupAndGrantDiff())
	require.NotEmpty(t, lines)
	assert.Equal(t, "connector wh:", lines[0])
	// bi has nothing to do and is omitted.
	for _, l := range lines {
		assert.NotContains(t, l, "connector bi")
	}
}
