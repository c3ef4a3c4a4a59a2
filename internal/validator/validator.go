// Package validator runs the ordered structural, node-level, connectivity,
// and external-compatibility checks over a candidate graph. Checks accumulate
// every issue they find so one result tells the caller everything that needs
// fixing; fixable issues are auto-repaired up to a budget.
package validator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// KindCatalog is the last-known set of node kinds the external engine
// supports. The external-compatibility check reads it; it is never a live
// engine call.
type KindCatalog interface {
	Known(kind string) bool
}

// Validator checks candidate graphs against the structural invariants and
// the cached engine catalog.
type Validator struct {
	catalog      KindCatalog
	autoFixLimit int
	logger       *zap.Logger
}

// New creates a Validator. autoFixLimit bounds how many auto-fixes one pass
// may apply before the result is declared fatal, preventing fix loops.
func New(catalog KindCatalog, autoFixLimit int, logger *zap.Logger) *Validator {
	if autoFixLimit <= 0 {
		autoFixLimit = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{catalog: catalog, autoFixLimit: autoFixLimit, logger: logger}
}

// Validate runs all checks over the graph and returns the (possibly
// auto-fixed) graph plus the accumulated result. The input graph is never
// mutated; when fixes were applied the returned graph carries a bumped
// version. A graph with any fatal issue cannot proceed to deployment.
func (v *Validator) Validate(graph *model.Graph) (*model.Graph, *model.ValidationResult) {
	work := graph.Clone()
	result := &model.ValidationResult{}

	v.checkStructural(work, result)
	v.checkNodes(work, result)
	v.checkConnectivity(work, result)
	v.checkCompatibility(work, result)

	if len(result.AutoFixesApplied) > v.autoFixLimit {
		result.Issues = append(result.Issues, model.Issue{
			Severity: model.SeverityFatal,
			Code:     model.IssueFixBudgetExhausted,
			Message: fmt.Sprintf("%d auto-fixes needed in one pass, budget is %d",
				len(result.AutoFixesApplied), v.autoFixLimit),
		})
	}

	result.Passed = len(result.FatalIssues()) == 0

	if result.Passed && len(result.AutoFixesApplied) > 0 {
		work.Version = graph.Version + 1
	}
	return work, result
}

// checkStructural verifies entry-node existence and uniqueness, edge
// referential integrity, and reachability from the entry. Unreachable nodes
// are fatal unless the kind is optional, in which case they are removed.
func (v *Validator) checkStructural(graph *model.Graph, result *model.ValidationResult) {
	ids := make(map[string]bool, len(graph.Nodes))
	var entries []string
	for _, n := range graph.Nodes {
		if ids[n.ID] {
			result.Issues = append(result.Issues, model.Issue{
				Severity: model.SeverityFatal,
				Code:     model.IssueDuplicateNodeID,
				Message:  fmt.Sprintf("node id %q appears more than once", n.ID),
				NodeID:   n.ID,
			})
		}
		ids[n.ID] = true
		if model.IsTriggerKind(n.Kind) {
			entries = append(entries, n.ID)
		}
	}

	switch {
	case len(entries) == 0:
		result.Issues = append(result.Issues, model.Issue{
			Severity: model.SeverityFatal,
			Code:     model.IssueNoEntry,
			Message:  "graph has no trigger node",
		})
	case len(entries) > 1:
		for _, id := range entries[1:] {
			result.Issues = append(result.Issues, model.Issue{
				Severity: model.SeverityFatal,
				Code:     model.IssueMultipleEntries,
				Message:  fmt.Sprintf("extra trigger node %q; exactly one entry is allowed", id),
				NodeID:   id,
			})
		}
	}

	for _, e := range graph.Edges {
		for _, ref := range []string{e.From, e.To} {
			if !ids[ref] {
				result.Issues = append(result.Issues, model.Issue{
					Severity: model.SeverityFatal,
					Code:     model.IssueDanglingEdge,
					Message:  fmt.Sprintf("edge %s->%s references missing node %q", e.From, e.To, ref),
					NodeID:   ref,
				})
			}
		}
	}

	if len(entries) != 1 {
		return
	}

	reachable := reachableFrom(graph, entries[0])
	var removed []string
	for _, n := range graph.Nodes {
		if reachable[n.ID] {
			continue
		}
		if model.KindSpecs[n.Kind].Optional {
			result.Issues = append(result.Issues, model.Issue{
				Severity: model.SeverityFixable,
				Code:     model.IssueUnreachableNode,
				Message:  fmt.Sprintf("optional node %q is unreachable; removed", n.ID),
				NodeID:   n.ID,
			})
			removed = append(removed, n.ID)
			v.recordFix(result, model.IssueUnreachableNode, n.ID)
		} else {
			result.Issues = append(result.Issues, model.Issue{
				Severity: model.SeverityFatal,
				Code:     model.IssueUnreachableNode,
				Message:  fmt.Sprintf("node %q is not reachable from the trigger", n.ID),
				NodeID:   n.ID,
			})
		}
	}
	if len(removed) > 0 {
		removeNodes(graph, removed)
	}
}

// checkNodes verifies required parameters are present and correctly typed.
// Missing optional parameters are filled with kind defaults.
func (v *Validator) checkNodes(graph *model.Graph, result *model.ValidationResult) {
	for i := range graph.Nodes {
		n := &graph.Nodes[i]
		spec, ok := model.KindSpecs[n.Kind]
		if !ok {
			// Unknown kinds are reported by the compatibility check.
			continue
		}
		for _, p := range spec.Params {
			val, present := n.Parameters[p.Name]
			if !present {
				if p.Required {
					result.Issues = append(result.Issues, model.Issue{
						Severity: model.SeverityFatal,
						Code:     model.IssueMissingParameter,
						Message:  fmt.Sprintf("node %q is missing required parameter %q", n.ID, p.Name),
						NodeID:   n.ID,
					})
					continue
				}
				result.Issues = append(result.Issues, model.Issue{
					Severity: model.SeverityFixable,
					Code:     model.IssueMissingParameter,
					Message:  fmt.Sprintf("node %q parameter %q filled with default", n.ID, p.Name),
					NodeID:   n.ID,
				})
				if n.Parameters == nil {
					n.Parameters = make(map[string]any)
				}
				n.Parameters[p.Name] = p.Default
				v.recordFix(result, model.IssueMissingParameter, n.ID)
				continue
			}
			if !typeMatches(p.Type, val) {
				result.Issues = append(result.Issues, model.Issue{
					Severity: model.SeverityFatal,
					Code:     model.IssueWrongParameterType,
					Message: fmt.Sprintf("node %q parameter %q must be a %s",
						n.ID, p.Name, p.Type),
					NodeID: n.ID,
				})
			}
		}
	}
}

// checkConnectivity verifies every non-terminal node has an outgoing edge
// (fixable by attaching a default terminal node) and that the graph is
// acyclic (cycles are fatal; the execution model is acyclic).
func (v *Validator) checkConnectivity(graph *model.Graph, result *model.ValidationResult) {
	outgoing := make(map[string]int, len(graph.Nodes))
	for _, e := range graph.Edges {
		outgoing[e.From]++
	}

	var dangling []string
	for _, n := range graph.Nodes {
		if outgoing[n.ID] > 0 || model.KindSpecs[n.Kind].Terminal {
			continue
		}
		result.Issues = append(result.Issues, model.Issue{
			Severity: model.SeverityFixable,
			Code:     model.IssueNoOutgoingEdge,
			Message:  fmt.Sprintf("node %q has no outgoing edge; attached a terminal node", n.ID),
			NodeID:   n.ID,
		})
		dangling = append(dangling, n.ID)
		v.recordFix(result, model.IssueNoOutgoingEdge, n.ID)
	}
	for _, id := range dangling {
		term := model.Node{
			ID:           fmt.Sprintf("%s-%d", model.KindTerminal, len(graph.Nodes)+1),
			Kind:         model.KindTerminal,
			PositionHint: len(graph.Nodes) + 1,
		}
		graph.Nodes = append(graph.Nodes, term)
		graph.Edges = append(graph.Edges, model.Edge{From: id, To: term.ID})
	}

	if cycleNode := findCycle(graph); cycleNode != "" {
		result.Issues = append(result.Issues, model.Issue{
			Severity: model.SeverityFatal,
			Code:     model.IssueCycle,
			Message:  fmt.Sprintf("cycle detected through node %q; graphs must be acyclic", cycleNode),
			NodeID:   cycleNode,
		})
	}
}

// checkCompatibility verifies every node kind against the cached engine
// catalog. Unknown kinds are fatal here so the failure is actionable instead
// of surfacing as an opaque deployment error downstream.
func (v *Validator) checkCompatibility(graph *model.Graph, result *model.ValidationResult) {
	for _, n := range graph.Nodes {
		if v.catalog.Known(n.Kind) {
			continue
		}
		result.Issues = append(result.Issues, model.Issue{
			Severity: model.SeverityFatal,
			Code:     model.IssueUnknownKind,
			Message:  fmt.Sprintf("node kind %q is not supported by the automation engine", n.Kind),
			NodeID:   n.ID,
		})
	}
}

// recordFix logs and records one applied auto-fix so the decision is
// auditable.
func (v *Validator) recordFix(result *model.ValidationResult, code, nodeID string) {
	v.logger.Debug("auto-fix applied", zap.String("code", code), zap.String("node_id", nodeID))
	result.AutoFixesApplied = append(result.AutoFixesApplied, code)
}

// reachableFrom returns the set of node ids reachable from start.
func reachableFrom(graph *model.Graph, start string) map[string]bool {
	adj := make(map[string][]string, len(graph.Nodes))
	for _, e := range graph.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// findCycle returns the id of a node on a cycle, or "" when the graph is
// acyclic. Standard three-color depth-first search.
func findCycle(graph *model.Graph) string {
	adj := make(map[string][]string, len(graph.Nodes))
	for _, e := range graph.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return next
			case white:
				if hit := visit(next); hit != "" {
					return hit
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, n := range graph.Nodes {
		if color[n.ID] == white {
			if hit := visit(n.ID); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// removeNodes drops the given nodes and any edges touching them.
func removeNodes(graph *model.Graph, ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	nodes := graph.Nodes[:0]
	for _, n := range graph.Nodes {
		if !drop[n.ID] {
			nodes = append(nodes, n)
		}
	}
	graph.Nodes = nodes
	edges := graph.Edges[:0]
	for _, e := range graph.Edges {
		if !drop[e.From] && !drop[e.To] {
			edges = append(edges, e)
		}
	}
	graph.Edges = edges
}

// typeMatches checks a parameter value against its declared type. JSON
// round-trips deliver numbers as float64 and objects as map[string]any.
func typeMatches(paramType string, val any) bool {
	switch paramType {
	case model.ParamString:
		_, ok := val.(string)
		return ok
	case model.ParamNumber:
		switch val.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case model.ParamBool:
		_, ok := val.(bool)
		return ok
	case model.ParamObject:
		_, ok := val.(map[string]any)
		return ok
	}
	return true
}
