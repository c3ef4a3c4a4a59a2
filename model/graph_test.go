package model

import "testing"

func TestGraph_Node(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{ID: "schedule-1", Kind: "schedule"},
			{ID: "fetch-2", Kind: "fetch"},
		},
	}
	if n := g.Node("fetch-2"); n == nil || n.Kind != "fetch" {
		t.Errorf("Node(fetch-2) = %v, want fetch node", n)
	}
	if n := g.Node("absent"); n != nil {
		t.Errorf("Node(absent) = %v, want nil", n)
	}
}

func TestGraph_Clone_independent(t *testing.T) {
	g := &Graph{
		Version: 2,
		Nodes: []Node{
			{ID: "webhook-1", Kind: "webhook", Parameters: map[string]any{"path": "/hook"}},
			{ID: "notify-2", Kind: "notify", Parameters: map[string]any{"channel": "ops"}},
		},
		Edges: []Edge{{From: "webhook-1", To: "notify-2"}},
	}

	cp := g.Clone()
	if cp.Version != 2 || len(cp.Nodes) != 2 || len(cp.Edges) != 1 {
		t.Fatalf("Clone() = %+v, want structural copy", cp)
	}

	cp.Nodes[0].Parameters["path"] = "/changed"
	cp.Edges[0].To = "elsewhere"
	cp.Nodes[1].ID = "renamed"

	if g.Nodes[0].Parameters["path"] != "/hook" {
		t.Error("mutating clone parameters leaked into original")
	}
	if g.Edges[0].To != "notify-2" {
		t.Error("mutating clone edges leaked into original")
	}
	if g.Nodes[1].ID != "notify-2" {
		t.Error("mutating clone nodes leaked into original")
	}
}

func TestNamespacePrefix_deterministic(t *testing.T) {
	if got := NamespacePrefix(3, 7); got != "clx-b03s07" {
		t.Errorf("NamespacePrefix(3, 7) = %q, want clx-b03s07", got)
	}
	if NamespacePrefix(0, 0) != NamespacePrefix(0, 0) {
		t.Error("NamespacePrefix not deterministic")
	}
}
