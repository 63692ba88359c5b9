// Package plan turns a global diff into per-connector, ordered request
// batches and executes them. Prelude requests create things other requests
// will reference (new groups), main requests mutate, epilogue requests
// delete; batches run strictly in that order, with bounded concurrency
// inside each batch.
package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jettylabs/jetty/internal/connectors"
	"github.com/jettylabs/jetty/internal/diff"
	"github.com/jettylabs/jetty/internal/logging"
)

// GroupIDMap is the one piece of cross-task mutable state during apply:
// connector-local group IDs, written by the prelude tasks that create the
// groups and read by main tasks granting to them. IDs are unknowable at
// plan time for groups that don't exist yet, which is why apply requests
// are closures resolving through this map rather than prebuilt calls.
type GroupIDMap struct {
	mu  sync.Mutex
	ids map[string]string
}

// NewGroupIDMap returns an empty map.
func NewGroupIDMap() *GroupIDMap {
	return &GroupIDMap{ids: map[string]string{}}
}

// Set records a group's connector-local ID.
func (m *GroupIDMap) Set(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[name] = id
}

// Get looks up a group's connector-local ID.
func (m *GroupIDMap) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[name]
	return id, ok
}

// Request is one deferred connector API call.
type Request struct {
	// Seq is the global sequence number the planner assigns; a request
	// never runs before one in an earlier batch.
	Seq int
	// Description is the human-readable line `jetty plan` prints.
	Description string
	// Do performs the call. Closures resolve deferred IDs at run time.
	Do func(ctx context.Context) error
}

// Batches is the ordered request triple a connector prepares from its
// local diff.
type Batches struct {
	Prelude  []Request
	Main     []Request
	Epilogue []Request
}

// Connector is what the planner needs from each platform integration.
type Connector interface {
	// Namespace identifies the connector.
	Namespace() connectors.Namespace
	// Plan renders human-readable descriptions of the local diff.
	Plan(diffs diff.LocalDiffs) []string
	// PrepareApply converts the local diff into request batches. ids is
	// shared: prelude group creations populate it, main grants read it.
	PrepareApply(diffs diff.LocalDiffs, ids *GroupIDMap) (Batches, error)
}

// RequestResult records one request's outcome.
type RequestResult struct {
	Seq         int
	Description string
	Err         error
}

// ConnectorSummary is one connector's apply outcome.
type ConnectorSummary struct {
	Connector connectors.Namespace
	Succeeded int
	Failed    int
	Results   []RequestResult
}

// Summary is the whole apply outcome.
type Summary struct {
	Connectors []ConnectorSummary
}

// FailedCount sums failures across connectors.
func (s Summary) FailedCount() int {
	total := 0
	for _, c := range s.Connectors {
		total += c.Failed
	}
	return total
}

// Planner drives plan and apply across the registered connectors.
type Planner struct {
	connectors  map[connectors.Namespace]Connector
	parallelism int
}

// NewPlanner registers the connectors. parallelism bounds in-flight
// requests within one batch; values below one collapse to serial.
func NewPlanner(conns []Connector, parallelism int) *Planner {
	if parallelism < 1 {
		parallelism = 1
	}
	byNS := make(map[connectors.Namespace]Connector, len(conns))
	for _, c := range conns {
		byNS[c.Namespace()] = c
	}
	return &Planner{connectors: byNS, parallelism: parallelism}
}

func (p *Planner) sortedNamespaces() []connectors.Namespace {
	out := make([]connectors.Namespace, 0, len(p.connectors))
	for ns := range p.connectors {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Plan renders the per-connector descriptions for a global diff.
func (p *Planner) Plan(global diff.GlobalDiffs) []string {
	split := global.SplitByConnector()
	var out []string
	for _, ns := range p.sortedNamespaces() {
		local, ok := split[ns]
		if !ok || local.Empty() {
			continue
		}
		out = append(out, fmt.Sprintf("connector %s:", ns))
		out = append(out, p.connectors[ns].Plan(local)...)
	}
	return out
}

// Apply executes a global diff. Connectors run one after another; within a
// connector the three batches run strictly in order, and requests inside a
// batch run with bounded concurrency. A failed request is recorded and the
// rest of its batch still runs; the graph on disk is only refreshed by the
// next fetch, so a partial failure is surfaced, not papered over.
func (p *Planner) Apply(ctx context.Context, global diff.GlobalDiffs) (Summary, error) {
	split := global.SplitByConnector()
	summary := Summary{}
	seq := 0

	for _, ns := range p.sortedNamespaces() {
		local, ok := split[ns]
		if !ok || local.Empty() {
			continue
		}
		conn := p.connectors[ns]

		ids := NewGroupIDMap()
		batches, err := conn.PrepareApply(local, ids)
		if err != nil {
			return summary, err
		}

		cs := ConnectorSummary{Connector: ns}
		for _, batch := range [][]Request{batches.Prelude, batches.Main, batches.Epilogue} {
			if ctx.Err() != nil {
				// Cancellation is cooperative at batch boundaries.
				return summary, ctx.Err()
			}
			for i := range batch {
				batch[i].Seq = seq
				seq++
			}
			results := runBatch(ctx, batch, p.parallelism)
			for _, r := range results {
				if r.Err != nil {
					cs.Failed++
					logging.Error("apply request failed", "connector", ns, "request", r.Description, "error", r.Err)
				} else {
					cs.Succeeded++
				}
			}
			cs.Results = append(cs.Results, results...)
		}
		summary.Connectors = append(summary.Connectors, cs)
	}
	return summary, nil
}

// runBatch executes one batch with bounded concurrency, recording each
// request's outcome. Failures don't cancel siblings.
func runBatch(ctx context.Context, batch []Request, parallelism int) []RequestResult {
	results := make([]RequestResult, len(batch))
	group := errgroup.Group{}
	group.SetLimit(parallelism)
	for i, req := range batch {
		i, req := i, req
		group.Go(func() error {
			err := req.Do(ctx)
			results[i] = RequestResult{Seq: req.Seq, Description: req.Description, Err: err}
			return nil
		})
	}
	// The closures never return errors; Wait is just the barrier.
	_ = group.Wait()
	return results
}
