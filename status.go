package devutils

import "strings"

// Status classifies the outcome of checking one file against one tool.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusIssue   Status = "issue"
	StatusError   Status = "error"
)

// String implements the Stringer interface for Status
func (s Status) String() string {
	return string(s)
}

// severityRank orders statuses for aggregation. Higher values win.
func (s Status) severityRank() int {
	switch s {
	case StatusError:
		return 4
	case StatusIssue:
		return 3
	case StatusWarning:
		return 2
	case StatusOK:
		return 1
	default:
		return 0
	}
}

// ParseStatus converts a cache string back to a Status. The license cache
// overloads the status field with issue subtypes, so "missing" and
// "incorrect" map to StatusIssue. Unrecognized values map to StatusError
// so a corrupt entry is never trusted as clean.
func ParseStatus(s string) Status {
	switch s {
	case "ok":
		return StatusOK
	case "warning":
		return StatusWarning
	case "issue", "missing", "incorrect":
		return StatusIssue
	case "error":
		return StatusError
	case "unknown":
		return StatusUnknown
	default:
		return StatusError
	}
}

// ToolResult is the verdict of one tool for one file.
type ToolResult struct {
	Tool    string // tool name, used for cache keys and message tags
	Status  Status
	Message string // combined diagnostic output, empty when clean
	Detail  string // issue subtype (e.g. "missing", "incorrect"), optional
	Year    int    // resolved copyright year, license checks only
}

// FileResult is the aggregated verdict for one file across all tools.
type FileResult struct {
	Path    string
	Status  Status
	Message string
	Detail  string
}

// AggregateResults combines the ordered per-tool results for a single file.
// The aggregate status is the highest-severity individual status, while the
// diagnostics of every non-clean tool are kept, each tagged with the tool
// that produced it. A user fixing issue-level findings should also see
// warning-level notes from other tools.
func AggregateResults(path string, results []ToolResult) FileResult {
	final := FileResult{Path: path, Status: StatusOK}
	if len(results) == 0 {
		final.Status = StatusUnknown
		return final
	}

	var messages []string
	for _, res := range results {
		if res.Status.severityRank() > final.Status.severityRank() {
			final.Status = res.Status
			final.Detail = res.Detail
		}
		if res.Status != StatusOK && res.Message != "" {
			messages = append(messages, "["+res.Tool+"]\n"+res.Message)
		}
	}

	final.Message = strings.Join(messages, "\n")
	return final
}
