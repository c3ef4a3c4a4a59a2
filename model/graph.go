package model

// Node is one executable step in an automation graph.
type Node struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	PositionHint int            `json:"position_hint"`
}

// Edge is a directed connection between two nodes, optionally labelled with a
// condition.
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Graph is a directed graph of executable steps. Exactly one node is the
// entry (the trigger); a graph that passed validation is immutable and any
// further change produces a new Graph with a bumped Version.
type Graph struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the graph. Node parameter maps are copied one
// level deep, which covers the flat parameter shapes the designer emits.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Version: g.Version,
		Nodes:   make([]Node, len(g.Nodes)),
		Edges:   make([]Edge, len(g.Edges)),
	}
	copy(out.Edges, g.Edges)
	for i, n := range g.Nodes {
		cp := n
		if n.Parameters != nil {
			cp.Parameters = make(map[string]any, len(n.Parameters))
			for k, v := range n.Parameters {
				cp.Parameters[k] = v
			}
		}
		out.Nodes[i] = cp
	}
	return out
}
