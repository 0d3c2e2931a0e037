package detector

import (
	"fmt"
	"strings"

	"github.com/steveyegge/mend/internal/types"
)

const (
	// minCompleteLength is the length below which content is assumed truncated
	minCompleteLength = 50

	// maxTODOMarkers is the number of TODO markers tolerated before the
	// content is considered an unfinished sketch
	maxTODOMarkers = 3
)

// incompletenessDetector flags content that appears truncated or unfinished:
// too short, trailing ellipsis, an unclosed fenced code block, or too many
// TODO markers.
type incompletenessDetector struct{}

func (d *incompletenessDetector) Name() string {
	return "incompleteness"
}

func (d *incompletenessDetector) Detect(content string) []types.DetectedError {
	var findings []types.DetectedError
	trimmed := strings.TrimSpace(content)

	if len(content) < minCompleteLength {
		findings = append(findings, newError(types.ErrorTypeIncomplete, types.SeverityMedium,
			fmt.Sprintf("content is only %d characters (minimum expected: %d)", len(content), minCompleteLength),
			0.7))
	}

	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, "…") {
		findings = append(findings, newError(types.ErrorTypeIncomplete, types.SeverityMedium,
			"content ends with an ellipsis, output was likely truncated",
			0.8))
	}

	// An odd number of fences means a code block was opened and never closed
	if strings.Count(content, "```")%2 != 0 {
		e := newError(types.ErrorTypeIncomplete, types.SeverityHigh,
			"content contains an unclosed fenced code block",
			0.85)
		e.SuggestedFix = "close the fenced code block with ```"
		findings = append(findings, e)
	}

	if todos := strings.Count(content, "TODO"); todos > maxTODOMarkers {
		findings = append(findings, newError(types.ErrorTypeIncomplete, types.SeverityLow,
			fmt.Sprintf("content contains %d TODO markers (more than %d suggests unfinished work)", todos, maxTODOMarkers),
			0.6))
	}

	return findings
}
