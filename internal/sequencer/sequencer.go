// Package sequencer derives a single linear execution order from a pipeline graph.
//
// The walk starts at the first node without an incoming edge and follows the
// first outgoing edge (in edge-list order) of each visited node. It stops at a
// node with no outgoing edge, at an edge pointing to an unknown node, or at the
// first revisit. Branches therefore collapse to one path and cycles terminate.
// A full topological sort is intentionally not attempted.
package sequencer

import "github.com/flexinfer/agentmarket/pkg/types"

// Sequence returns the ordered nodes to execute. An empty result means no
// sequence could be determined.
func Sequence(nodes []types.Node, edges []types.Edge) []types.Node {
	if len(nodes) == 0 {
		return nil
	}

	entries := Entries(nodes, edges)
	if len(entries) == 0 {
		// No clear entry point (e.g. every node sits on a cycle).
		return []types.Node{nodes[0]}
	}

	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := byID[n.ID]; !dup {
			byID[n.ID] = i
		}
	}

	current := entries[0]
	sequence := []types.Node{current}
	visited := map[string]bool{current.ID: true}

	for {
		next, ok := firstTarget(edges, current.ID)
		if !ok {
			break
		}
		idx, known := byID[next]
		if !known || visited[next] {
			break
		}
		current = nodes[idx]
		sequence = append(sequence, current)
		visited[next] = true
	}

	return sequence
}

// Entries returns the nodes that have no incoming edge, in node order.
func Entries(nodes []types.Node, edges []types.Edge) []types.Node {
	hasIncoming := make(map[string]bool, len(edges))
	for _, e := range edges {
		hasIncoming[e.Target] = true
	}
	var out []types.Node
	for _, n := range nodes {
		if !hasIncoming[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// Branches reports nodes with more than one outgoing edge. Only the first of
// those edges is ever followed by Sequence.
func Branches(edges []types.Edge) []string {
	count := make(map[string]int)
	var order []string
	for _, e := range edges {
		if count[e.Source] == 0 {
			order = append(order, e.Source)
		}
		count[e.Source]++
	}
	var out []string
	for _, id := range order {
		if count[id] > 1 {
			out = append(out, id)
		}
	}
	return out
}

func firstTarget(edges []types.Edge, source string) (string, bool) {
	for _, e := range edges {
		if e.Source == source {
			return e.Target, true
		}
	}
	return "", false
}

// IDs is a convenience for logging and events.
func IDs(nodes []types.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
