package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/c360studio/codefix/analysis"
)

// maxListedIssues caps the issue list printed before a fix.
const maxListedIssues = 15

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errColor     = color.New(color.FgRed, color.Bold)
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	hunkColor    = color.New(color.FgCyan)
)

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, headerColor.Sprint(title))
}

// printIssues lists up to limit issues and summarizes the rest.
func printIssues(w io.Writer, issues []string, limit int) {
	for i, issue := range issues {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "  ... and %d more\n", len(issues)-limit)
			return
		}
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// printResults prints each tool's result with its issues.
func printResults(w io.Writer, results []analysis.Result) {
	for _, r := range results {
		status := okColor.Sprint("ok")
		if !r.Success {
			status = warnColor.Sprintf("%d issue(s)", len(r.Issues))
		}
		fmt.Fprintf(w, "%s: %s\n", r.Tool, status)
		for _, issue := range r.Issues {
			if issue.Line > 0 {
				fmt.Fprintf(w, "  %d:%d %s\n", issue.Line, issue.Column, issue)
				continue
			}
			fmt.Fprintf(w, "  %s\n", issue)
		}
	}
}

// printDiff colors a unified diff line by line.
func printDiff(w io.Writer, diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, headerColor.Sprint(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(w, hunkColor.Sprint(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(w, addedColor.Sprint(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(w, removedColor.Sprint(line))
		default:
			fmt.Fprint(w, line)
		}
	}
	if !strings.HasSuffix(diff, "\n") {
		fmt.Fprintln(w)
	}
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, okColor.Sprint(msg))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warnColor.Sprint(msg))
}

func printError(w io.Writer, msg string) {
	fmt.Fprintln(w, errColor.Sprint(msg))
}
