// Package actiongraph builds the action graph (C6): a DAG of ActionNode
// variants derived from a workspace graph, a set of requested targets, and
// build options (affected-only, touched files, interactive, persistent).
//
// Grounded on the original core.Engine (dag.AcyclicGraph field, Add/Connect
// wiring, BFS traversalQueue over task dependencies in Prepare), generalized
// from turbo's single "package#task" vertex kind to moon's six ActionNode
// variants and wired to github.com/pyr-sh/dag the same way: vertices keyed
// by a stable identity string, edges added with dag.BasicEdge(to, from)
// meaning "to depends on from".
package actiongraph

import (
	"sort"

	"github.com/pyr-sh/dag"

	"github.com/moonrepo/moon/internal/action"
)

// Graph is the built action graph: a dag.AcyclicGraph of node-identity
// strings plus the Action payload each identity maps to.
type Graph struct {
	dag     dag.AcyclicGraph
	actions map[string]*action.Action
}

func newGraph() *Graph {
	return &Graph{actions: make(map[string]*action.Action)}
}

// insert adds node to the graph, deduplicating by Identity (spec rule 9):
// inserting a node whose identity already exists returns the existing
// action's id unchanged.
func (g *Graph) insert(node action.Node, allowFailure bool) (id string, isNew bool) {
	id = node.Identity()
	if _, ok := g.actions[id]; ok {
		return id, false
	}
	g.actions[id] = action.NewAction(node, allowFailure)
	g.dag.Add(id)
	return id, true
}

// addEdge records that the node identified by toID depends on the node
// identified by fromID. Connecting the same pair twice is a no-op — the
// underlying dag is edge-set based.
func (g *Graph) addEdge(toID, fromID string) {
	if toID == fromID {
		return
	}
	g.dag.Connect(dag.BasicEdge(toID, fromID))
}

// Action returns the action registered under id.
func (g *Graph) Action(id string) (*action.Action, bool) {
	a, ok := g.actions[id]
	return a, ok
}

// Len returns the number of distinct nodes in the graph.
func (g *Graph) Len() int {
	return len(g.actions)
}

// DependenciesOf returns the identities of nodes that id directly depends
// on (its down-edges).
func (g *Graph) DependenciesOf(id string) []string {
	var out []string
	for v := range g.dag.DownEdges(id) {
		out = append(out, v.(string))
	}
	return out
}

// DependentsOf returns the identities of nodes that directly depend on id
// (its up-edges).
func (g *Graph) DependentsOf(id string) []string {
	var out []string
	for v := range g.dag.UpEdges(id) {
		out = append(out, v.(string))
	}
	return out
}

// OrderedIDs returns every node identity, stable-sorted by
// (node_kind_rank, project_id, target_id) per its contract "Ordering
// rule for equal-priority siblings" so that plan output is reproducible.
func (g *Graph) OrderedIDs() []string {
	ids := make([]string, 0, len(g.actions))
	for id := range g.actions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := g.actions[ids[i]].Node, g.actions[ids[j]].Node
		ki, pi, ti := ni.SiblingRank()
		kj, pj, tj := nj.SiblingRank()
		if ki != kj {
			return ki < kj
		}
		if pi != pj {
			return pi < pj
		}
		if ti != tj {
			return ti < tj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Walk invokes visit once per node in a topologically-valid order (every
// predecessor visited before its dependents), using the underlying dag's
// own traversal. Distinct from the builder's cycle detection: by the time
// Walk is reachable, Build has already rejected cyclic graphs.
func (g *Graph) Walk(visit func(id string, a *action.Action) error) error {
	return g.dag.Walk(func(v dag.Vertex) error {
		id := v.(string)
		a, ok := g.actions[id]
		if !ok {
			return nil
		}
		return visit(id, a)
	})
}
