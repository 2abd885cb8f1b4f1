package llm

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Response protocol markers. A reply is the fixed-code marker, the content,
// the explanation marker, then the explanation.
const (
	FixedCodeMarker   = "FIXED_CODE:"
	ExplanationMarker = "EXPLANATION:"
)

const (
	// DefaultExplanation is used when a reply carries no explanation section.
	DefaultExplanation = "No explanation provided"

	// NoIssuesSentinel replaces the issue list when analysis found nothing.
	NoIssuesSentinel = "No specific issues detected"
)

// languages maps file extensions to the language named in the prompt.
var languages = map[string]string{
	".py":   "Python",
	".pyi":  "Python",
	".go":   "Go",
	".js":   "JavaScript",
	".ts":   "TypeScript",
	".rs":   "Rust",
	".java": "Java",
	".rb":   "Ruby",
	".sh":   "shell",
}

// fenceLine matches a markdown code fence, with or without a language tag.
var fenceLine = regexp.MustCompile("^```[\\w.+-]*\\s*$")

// BuildSystemPrompt returns the instruction block for a fix request.
func BuildSystemPrompt(path string, issues []string) string {
	issuesText := NoIssuesSentinel
	if len(issues) > 0 {
		lines := make([]string, len(issues))
		for i, issue := range issues {
			lines[i] = "- " + issue
		}
		issuesText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are an expert code fixing assistant. Fix issues in this %s file: %s

Issues to fix:
%s

Return format:
%s
<the fixed code>

%s
<brief explanation>`, languageOf(path), filepath.Base(path), issuesText, FixedCodeMarker, ExplanationMarker)
}

// BuildMessages returns the system instruction and the file content as the
// user turn.
func BuildMessages(req FixRequest) []Message {
	return []Message{
		{Role: RoleSystem, Content: BuildSystemPrompt(req.Path, req.Issues)},
		{Role: RoleUser, Content: req.Code},
	}
}

// ParseResponse decodes a reply into fixed content and explanation. It is
// total: any input yields a Generation, at worst with the raw text as the
// fixed content and the default explanation.
func ParseResponse(raw string) *Generation {
	codePart, explanation, found := strings.Cut(raw, ExplanationMarker)
	if found {
		explanation = strings.TrimSpace(explanation)
	} else {
		explanation = DefaultExplanation
	}

	code := strings.TrimSpace(strings.ReplaceAll(codePart, FixedCodeMarker, ""))
	code = stripFences(code)

	return &Generation{
		Raw:         raw,
		FixedCode:   code,
		Explanation: explanation,
	}
}

// stripFences drops a leading and a trailing code-fence line.
func stripFences(code string) string {
	lines := strings.Split(code, "\n")
	if len(lines) > 0 && fenceLine.MatchString(strings.TrimRight(lines[0], "\r")) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && fenceLine.MatchString(strings.TrimRight(lines[n-1], "\r")) {
		lines = lines[:n-1]
	}
	return strings.Trim(strings.Join(lines, "\n"), "\r\n")
}

func languageOf(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "source"
}
