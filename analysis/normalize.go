package analysis

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Normalize decodes raw tool output into issues using the tool's adapter.
// Unknown tools fall back to free-text decoding.
func Normalize(tool Tool, stdout, stderr string) []Issue {
	entry, ok := catalog[tool]
	if !ok || entry.adapter == nil {
		return normalizeText(tool, stdout, stderr)
	}
	return entry.adapter(tool, stdout, stderr)
}

// ruffFinding is one entry of `ruff check --output-format=json`.
type ruffFinding struct {
	Code     *string `json:"code"`
	Message  string  `json:"message"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
}

func normalizeRuff(tool Tool, stdout, _ string) []Issue {
	if strings.TrimSpace(stdout) == "" {
		return nil
	}

	var findings []ruffFinding
	if err := json.Unmarshal([]byte(stdout), &findings); err != nil {
		return linesAsIssues(tool, stdout)
	}

	issues := make([]Issue, 0, len(findings))
	for _, f := range findings {
		issue := Issue{
			Tool:    tool,
			Line:    f.Location.Row,
			Column:  f.Location.Column,
			Message: f.Message,
		}
		if f.Code != nil {
			issue.Code = *f.Code
		}
		issues = append(issues, issue)
	}
	return issues
}

// mypyFinding is one record of `mypy --output-format=json`.
type mypyFinding struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
}

// normalizeMypy accepts both the JSON-lines stream mypy emits and a single
// JSON array.
func normalizeMypy(tool Tool, stdout, _ string) []Issue {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil
	}

	var findings []mypyFinding
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &findings); err != nil {
			return linesAsIssues(tool, stdout)
		}
	} else {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		for {
			var f mypyFinding
			err := dec.Decode(&f)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return linesAsIssues(tool, stdout)
			}
			findings = append(findings, f)
		}
	}

	issues := make([]Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, Issue{
			Tool:    tool,
			Line:    f.Line,
			Column:  f.Column,
			Message: f.Message,
			Code:    f.Code,
		})
	}
	return issues
}

// normalizeText treats each non-empty, non-separator line of combined output
// as one issue.
func normalizeText(tool Tool, stdout, stderr string) []Issue {
	output := strings.TrimSpace(stdout + stderr)
	if output == "" {
		return nil
	}

	var issues []Issue
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "---") {
			continue
		}
		issues = append(issues, Issue{Tool: tool, Message: line})
	}
	return issues
}

// linesAsIssues is the malformed-payload fallback for structured tools.
func linesAsIssues(tool Tool, stdout string) []Issue {
	var issues []Issue
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		issues = append(issues, Issue{Tool: tool, Message: line})
	}
	return issues
}
