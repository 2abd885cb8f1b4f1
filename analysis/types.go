// Package analysis runs external static-analysis tools against a single file
// and normalizes their output into a canonical issue schema.
package analysis

// Issue is one normalized finding emitted by an analysis tool.
type Issue struct {
	// Tool is the name of the tool that reported the issue.
	Tool Tool `json:"tool"`

	// Line is 1-based; 0 means unknown.
	Line int `json:"line"`

	// Column is 0 when unknown.
	Column int `json:"column"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Code is the tool-specific rule code (e.g. "F401"), if any.
	Code string `json:"code,omitempty"`
}

// String renders the issue as "[code] message", or just the message when the
// tool reported no code.
func (i Issue) String() string {
	if i.Code != "" {
		return "[" + i.Code + "] " + i.Message
	}
	return i.Message
}

// Result is the outcome of running one tool against one file.
type Result struct {
	Tool    Tool    `json:"tool"`
	Success bool    `json:"success"`
	Issues  []Issue `json:"issues"`
	Stdout  string  `json:"stdout"`
	Stderr  string  `json:"stderr"`
}

// Flatten returns one display string per issue across all results, in result
// order and then issue order.
func Flatten(results []Result) []string {
	var out []string
	for _, r := range results {
		for _, issue := range r.Issues {
			out = append(out, issue.String())
		}
	}
	return out
}

// CountIssues returns the total number of issues across results.
func CountIssues(results []Result) int {
	n := 0
	for _, r := range results {
		n += len(r.Issues)
	}
	return n
}
