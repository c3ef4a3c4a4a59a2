package deploy

import (
	"fmt"
	"sort"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Translate converts a validated graph into the engine's artifact shape. The
// artifact name is the tenant's namespace prefix joined with the session tag,
// which is how the shared engine instance stays partitioned per tenant.
// Node order follows PositionHint so the layout is deterministic.
func Translate(graph *model.Graph, ns *model.NamespaceAssignment, sessionID string) engine.Artifact {
	nodes := make([]model.Node, len(graph.Nodes))
	copy(nodes, graph.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].PositionHint < nodes[j].PositionHint
	})

	artifact := engine.Artifact{
		Name:        ArtifactName(ns, sessionID),
		Nodes:       make([]engine.ArtifactNode, 0, len(nodes)),
		Connections: make([]engine.Connection, 0, len(graph.Edges)),
	}

	for _, n := range nodes {
		artifact.Nodes = append(artifact.Nodes, engine.ArtifactNode{
			Name:       n.ID,
			Kind:       n.Kind,
			Parameters: n.Parameters,
			Position:   [2]int{n.PositionHint * 220, 0},
		})
	}
	for _, e := range graph.Edges {
		artifact.Connections = append(artifact.Connections, engine.Connection{
			From:  e.From,
			To:    e.To,
			Label: e.Condition,
		})
	}
	return artifact
}

// ArtifactName derives the namespaced artifact name for a session.
func ArtifactName(ns *model.NamespaceAssignment, sessionID string) string {
	tag := sessionID
	if len(tag) > 12 {
		tag = tag[:12]
	}
	return fmt.Sprintf("%s-%s", ns.Prefix, tag)
}

// StructurallyEquivalent reports whether the fetched artifact still carries
// the deployed graph's shape: same node kind multiset and the same connection
// count. Engines are free to rename or reposition nodes, so the comparison
// ignores names and layout.
func StructurallyEquivalent(graph *model.Graph, artifact engine.Artifact) bool {
	if len(graph.Nodes) != len(artifact.Nodes) {
		return false
	}
	if len(graph.Edges) != len(artifact.Connections) {
		return false
	}
	want := make(map[string]int, len(graph.Nodes))
	for _, n := range graph.Nodes {
		want[n.Kind]++
	}
	for _, n := range artifact.Nodes {
		want[n.Kind]--
		if want[n.Kind] < 0 {
			return false
		}
	}
	return true
}
