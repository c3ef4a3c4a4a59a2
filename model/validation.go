package model

// Issue severities.
const (
	SeverityFatal   = "fatal"
	SeverityFixable = "fixable"
)

// Validation issue codes.
const (
	IssueNoEntry            = "no-entry-node"
	IssueMultipleEntries    = "multiple-entry-nodes"
	IssueDuplicateNodeID    = "duplicate-node-id"
	IssueDanglingEdge       = "dangling-edge"
	IssueUnreachableNode    = "unreachable-node"
	IssueMissingParameter   = "missing-parameter"
	IssueWrongParameterType = "wrong-parameter-type"
	IssueNoOutgoingEdge     = "no-outgoing-edge"
	IssueCycle              = "cycle"
	IssueUnknownKind        = "unknown-kind"
	IssueFixBudgetExhausted = "fix-budget-exhausted"
)

// Issue is one finding from a validation check.
type Issue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	NodeID   string `json:"node_id,omitempty"`
}

// ValidationResult accumulates every issue found across all checks, so a
// single result tells the caller everything that needs fixing.
type ValidationResult struct {
	Passed           bool     `json:"passed"`
	Issues           []Issue  `json:"issues"`
	AutoFixesApplied []string `json:"auto_fixes_applied,omitempty"`
}

// FatalIssues returns the subset of issues with fatal severity.
func (r *ValidationResult) FatalIssues() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityFatal {
			out = append(out, issue)
		}
	}
	return out
}
