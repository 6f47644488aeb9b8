package types

// Position is a node's location on the editor canvas. It has no effect on
// execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AgentRef is the agent a node was created from. Only ID is authoritative;
// the remaining fields are a display snapshot taken when the node was placed.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Node is a placed instance of an agent on the pipeline canvas.
// IDs are unique per canvas, not globally.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Agent    AgentRef `json:"agent"`
}

// Edge connects the output of Source to the input of Target.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the user-authored pipeline.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsEmpty reports whether the graph has no nodes.
func (g *Graph) IsEmpty() bool {
	return g == nil || len(g.Nodes) == 0
}

// Clone returns a deep copy so callers can hold an immutable snapshot.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}

// NodeByID returns the node with the given id, if present.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
