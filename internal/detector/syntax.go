package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/steveyegge/mend/internal/types"
)

// compilerMessagePatterns match text that looks like a compiler or parser
// complaining inside the generated content. One finding is emitted for the
// first match of each pattern.
var compilerMessagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)\berror:\s*(.+)$`),
	regexp.MustCompile(`(?m)\bunresolved reference:\s*(\S+)`),
	regexp.MustCompile(`(?m)\bexpecting\s+(.+)$`),
}

// syntaxDetector checks bracket balance and scans for embedded compiler
// error messages. Counting characters is deliberately naive: this is a
// heuristic over generated text, not a parser.
type syntaxDetector struct{}

func (d *syntaxDetector) Name() string {
	return "syntax"
}

func (d *syntaxDetector) Detect(content string) []types.DetectedError {
	var findings []types.DetectedError

	if e, ok := balanceError(content, '{', '}', "brace"); ok {
		findings = append(findings, e)
	}
	if e, ok := balanceError(content, '(', ')', "parenthesis"); ok {
		findings = append(findings, e)
	}

	for _, pattern := range compilerMessagePatterns {
		if m := pattern.FindString(content); m != "" {
			e := newError(types.ErrorTypeSyntax, types.SeverityHigh,
				fmt.Sprintf("content contains a compiler-style error message: %q", strings.TrimSpace(m)),
				0.7)
			findings = append(findings, e)
		}
	}

	return findings
}

// balanceError compares open and close counts for one bracket pair and
// produces a finding when they differ.
func balanceError(content string, openCh, closeCh rune, name string) (types.DetectedError, bool) {
	openCount := strings.Count(content, string(openCh))
	closeCount := strings.Count(content, string(closeCh))
	if openCount == closeCount {
		return types.DetectedError{}, false
	}

	delta := openCount - closeCount
	direction := "close"
	missing := string(closeCh)
	if delta < 0 {
		delta = -delta
		direction = "open"
		missing = string(openCh)
	}

	e := newError(types.ErrorTypeSyntax, types.SeverityHigh,
		fmt.Sprintf("unbalanced %s count: %d open, %d close", name, openCount, closeCount),
		0.9)
	e.SuggestedFix = fmt.Sprintf("add %d missing %s %s(s): %q", delta, direction, name, missing)
	return e, true
}
