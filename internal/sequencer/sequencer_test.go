package sequencer

import (
	"reflect"
	"testing"

	"github.com/flexinfer/agentmarket/pkg/types"
)

func node(id string) types.Node {
	return types.Node{ID: id, Agent: types.AgentRef{ID: "agent-" + id}}
}

func edge(from, to string) types.Edge {
	return types.Edge{Source: from, Target: to}
}

func TestSequence(t *testing.T) {
	tests := []struct {
		name  string
		nodes []types.Node
		edges []types.Edge
		want  []string
	}{
		{
			name: "empty graph",
			want: []string{},
		},
		{
			name:  "single node",
			nodes: []types.Node{node("A")},
			want:  []string{"A"},
		},
		{
			name:  "linear chain",
			nodes: []types.Node{node("A"), node("B"), node("C")},
			edges: []types.Edge{edge("A", "B"), edge("B", "C")},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "linear chain supplied out of order",
			nodes: []types.Node{node("C"), node("A"), node("B")},
			edges: []types.Edge{edge("B", "C"), edge("A", "B")},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "two node cycle falls back to first node",
			nodes: []types.Node{node("A"), node("B")},
			edges: []types.Edge{edge("A", "B"), edge("B", "A")},
			want:  []string{"A"},
		},
		{
			name:  "cycle after entry stops at first repeat",
			nodes: []types.Node{node("S"), node("A"), node("B")},
			edges: []types.Edge{edge("S", "A"), edge("A", "B"), edge("B", "A")},
			want:  []string{"S", "A", "B"},
		},
		{
			name:  "isolated entry node",
			nodes: []types.Node{node("A"), node("B"), node("C")},
			edges: []types.Edge{edge("B", "C")},
			want:  []string{"A"},
		},
		{
			name:  "branch follows first edge in list order",
			nodes: []types.Node{node("A"), node("B"), node("C")},
			edges: []types.Edge{edge("A", "C"), edge("A", "B")},
			want:  []string{"A", "C"},
		},
		{
			name:  "edge to unknown node stops the walk",
			nodes: []types.Node{node("A"), node("B")},
			edges: []types.Edge{edge("A", "ghost"), edge("A", "B")},
			want:  []string{"A"},
		},
		{
			name:  "self loop",
			nodes: []types.Node{node("A")},
			edges: []types.Edge{edge("A", "A")},
			want:  []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IDs(Sequence(tt.nodes, tt.edges))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sequence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSequence_TerminatesOnCycle(t *testing.T) {
	nodes := []types.Node{node("A"), node("B"), node("C")}
	edges := []types.Edge{edge("X", "A"), edge("A", "B"), edge("B", "C"), edge("C", "A")}

	// Every node has an incoming edge, so only the first node is returned.
	got := IDs(Sequence(nodes, edges))
	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("expected [A], got %v", got)
	}
}

func TestSequence_PreservesNodeData(t *testing.T) {
	a := types.Node{ID: "A", Position: types.Position{X: 10, Y: 20}, Agent: types.AgentRef{ID: "seo", Name: "SEO Optimizer"}}
	got := Sequence([]types.Node{a}, nil)
	if len(got) != 1 || got[0] != a {
		t.Errorf("expected node to be returned unchanged, got %+v", got)
	}
}

func TestEntries(t *testing.T) {
	nodes := []types.Node{node("A"), node("B"), node("C")}
	got := IDs(Entries(nodes, []types.Edge{edge("B", "C")}))
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Entries() = %v, want [A B]", got)
	}
}

func TestSequence_StartsAtFirstEntry(t *testing.T) {
	nodes := []types.Node{node("C"), node("B"), node("A"), node("D")}
	edges := []types.Edge{edge("A", "C"), edge("D", "A")}

	entries := Entries(nodes, edges)
	got := Sequence(nodes, edges)
	if len(entries) == 0 || len(got) == 0 || got[0].ID != entries[0].ID {
		t.Fatalf("Sequence() starts at %v, entries are %v", IDs(got), IDs(entries))
	}
	if !reflect.DeepEqual(IDs(got), []string{"B"}) {
		t.Errorf("Sequence() = %v, want [B]", IDs(got))
	}
}

func TestBranches(t *testing.T) {
	edges := []types.Edge{edge("A", "B"), edge("A", "C"), edge("B", "C"), edge("C", "D"), edge("C", "E")}
	got := Branches(edges)
	if !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("Branches() = %v, want [A C]", got)
	}
}
