package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/steveyegge/mend/internal/types"
)

// suspiciousPhrases are fragments that indicate the generator is talking
// about the task instead of doing it, or inventing capabilities it does
// not have. Matched case-insensitively at 0.6 confidence each.
var suspiciousPhrases = []string{
	"as an ai language model",
	"i don't have access to",
	"i cannot actually",
	"in a real implementation",
	"this is a placeholder",
	"hypothetically",
	"assuming such an api exists",
	"for demonstration purposes only",
}

// fabricatedCallPattern matches API calls whose names read like wishful
// thinking rather than a real library surface.
var fabricatedCallPattern = regexp.MustCompile(`(?i)\b\w+\.(magic|auto(Fix|Solve|Resolve|Complete)|doEverything|handleAll|solveAll)\w*\s*\(`)

// hallucinationDetector flags content that looks fabricated: meta-commentary
// phrases and plausible-but-invented API calls.
type hallucinationDetector struct{}

func (d *hallucinationDetector) Name() string {
	return "hallucination"
}

func (d *hallucinationDetector) Detect(content string) []types.DetectedError {
	var findings []types.DetectedError
	lower := strings.ToLower(content)

	for _, phrase := range suspiciousPhrases {
		if strings.Contains(lower, phrase) {
			findings = append(findings, newError(types.ErrorTypeHallucination, types.SeverityMedium,
				fmt.Sprintf("content contains suspicious phrase %q", phrase),
				0.6))
		}
	}

	if m := fabricatedCallPattern.FindString(content); m != "" {
		e := newError(types.ErrorTypeHallucination, types.SeverityHigh,
			fmt.Sprintf("content calls a fabricated-looking API: %q", strings.TrimSpace(m)),
			0.8)
		e.SuggestedFix = "replace the invented call with a real API from the target library"
		findings = append(findings, e)
	}

	return findings
}
