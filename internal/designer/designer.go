package designer

import (
	"fmt"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Designer produces candidate graphs from intents using an ordered template
// library with a direct-composition fallback.
type Designer struct {
	library *Library
}

// New creates a Designer over the given library.
func New(library *Library) *Designer {
	return &Designer{library: library}
}

// LibraryVersion returns the version string of the template library in use.
func (d *Designer) LibraryVersion() string {
	return d.library.Version()
}

// Design converts an intent into an unvalidated graph. It is a pure function
// of the intent and the library version; it has no side effects and no
// randomness. Template matching is first-match-wins in declaration order;
// with no match, nodes are composed directly: one entry node for the
// trigger, one node per step in declared order, connected linearly.
func (d *Designer) Design(intent *model.Intent) (*model.Graph, error) {
	entryKind := model.TriggerKindFor(intent.Trigger)
	if entryKind == "" {
		return nil, model.NewDesignError(
			fmt.Sprintf("unknown trigger %q", intent.Trigger))
	}

	if len(intent.Steps) == 0 && intent.Trigger != model.TriggerManual {
		return nil, model.NewDesignError("no steps to execute")
	}

	if err := checkIntegrations(intent); err != nil {
		return nil, err
	}

	var graph *model.Graph
	var err error
	if tpl := d.matchTemplate(intent); tpl != nil {
		graph, err = instantiate(tpl, intent, entryKind)
	} else {
		graph, err = compose(intent, entryKind)
	}
	if err != nil {
		return nil, err
	}

	if max := intent.Constraints.MaxNodes; max > 0 && len(graph.Nodes) > max {
		return nil, model.NewDesignError(
			fmt.Sprintf("graph needs %d nodes but the intent allows at most %d", len(graph.Nodes), max))
	}

	graph.Version = 1
	return graph, nil
}

// matchTemplate returns the first template matching the intent, or nil.
// Declaration order is the only tie-break.
func (d *Designer) matchTemplate(intent *model.Intent) *Template {
	templates := d.library.Templates()
	for i := range templates {
		if templates[i].Matches(intent) {
			return &templates[i]
		}
	}
	return nil
}

// instantiate builds a graph from a matched template. Template steps map
// positionally onto intent steps; intent parameters override template
// defaults, which override kind defaults.
func instantiate(tpl *Template, intent *model.Intent, entryKind string) (*model.Graph, error) {
	nodes := make([]model.Node, 0, len(tpl.Steps)+1)
	nodes = append(nodes, newNode(entryKind, 1, nil, nil))

	for i, step := range tpl.Steps {
		if _, ok := model.KindSpecs[step.Kind]; !ok {
			return nil, model.NewDesignError(
				fmt.Sprintf("template %q uses unknown kind %q", tpl.Name, step.Kind))
		}
		var stepParams map[string]any
		if i < len(intent.Steps) {
			stepParams = intent.Steps[i].Parameters
		}
		nodes = append(nodes, newNode(step.Kind, i+2, step.Parameters, stepParams))
	}

	return &model.Graph{Nodes: nodes, Edges: linearEdges(nodes)}, nil
}

// compose is the direct-composition fallback: entry node, one node per step
// in declared order, linear edges.
func compose(intent *model.Intent, entryKind string) (*model.Graph, error) {
	nodes := make([]model.Node, 0, len(intent.Steps)+1)
	nodes = append(nodes, newNode(entryKind, 1, nil, nil))

	for i, step := range intent.Steps {
		kind := step.Action
		if _, ok := model.KindSpecs[kind]; !ok || model.IsTriggerKind(kind) {
			return nil, model.NewDesignError(
				fmt.Sprintf("no node kind implements action %q", step.Action))
		}
		nodes = append(nodes, newNode(kind, i+2, nil, step.Parameters))
	}

	return &model.Graph{Nodes: nodes, Edges: linearEdges(nodes)}, nil
}

// checkIntegrations enforces the allowed-integrations constraint: when the
// list is non-empty every step action must appear in it.
func checkIntegrations(intent *model.Intent) error {
	allowed := intent.Constraints.AllowedIntegrations
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	for _, step := range intent.Steps {
		if !set[step.Action] {
			return model.NewDesignError(
				fmt.Sprintf("action %q is not among the allowed integrations", step.Action))
		}
	}
	return nil
}

// newNode builds a node with a stable id derived from kind and ordinal
// position, parameters layered kind defaults < template defaults < step
// parameters, and the ordinal as position hint.
func newNode(kind string, ordinal int, templateParams, stepParams map[string]any) model.Node {
	params := make(map[string]any)
	for _, p := range model.KindSpecs[kind].Params {
		params[p.Name] = p.Default
	}
	for k, v := range templateParams {
		params[k] = v
	}
	for k, v := range stepParams {
		params[k] = v
	}
	if len(params) == 0 {
		params = nil
	}
	return model.Node{
		ID:           fmt.Sprintf("%s-%d", kind, ordinal),
		Kind:         kind,
		Parameters:   params,
		PositionHint: ordinal,
	}
}

// linearEdges connects nodes in sequence.
func linearEdges(nodes []model.Node) []model.Edge {
	if len(nodes) < 2 {
		return nil
	}
	edges := make([]model.Edge, 0, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		edges = append(edges, model.Edge{From: nodes[i].ID, To: nodes[i+1].ID})
	}
	return edges
}
