package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/steveyegge/mend/internal/types"
)

// sqlConcatPattern matches a string literal starting with SELECT adjacent to
// a + concatenation, the classic injection-prone query construction.
var sqlConcatPattern = regexp.MustCompile(`(?i)"\s*SELECT[^"]*"\s*\+|\+\s*"[^"]*"\s*\+\s*"|\bSELECT\b[^"\n]*"\s*\+`)

// hardcodedSecretPattern matches password/api_key/secret assigned a literal value.
var hardcodedSecretPattern = regexp.MustCompile(`(?i)\b(password|api_key|secret)\s*=\s*["'][^"']+["']`)

// securityDetector flags naive SQL concatenation and hardcoded credentials.
// Both are textual heuristics: no data-flow analysis is attempted.
type securityDetector struct{}

func (d *securityDetector) Name() string {
	return "security"
}

func (d *securityDetector) Detect(content string) []types.DetectedError {
	var findings []types.DetectedError

	if sqlConcatPattern.MatchString(content) {
		e := newError(types.ErrorTypeSecurity, types.SeverityCritical,
			"SQL query built by string concatenation, vulnerable to injection",
			0.9)
		e.SuggestedFix = "use parameterized queries or prepared statements instead of string concatenation"
		findings = append(findings, e)
	}

	if m := hardcodedSecretPattern.FindStringSubmatch(content); m != nil {
		e := newError(types.ErrorTypeSecurity, types.SeverityHigh,
			fmt.Sprintf("hardcoded credential: %s is assigned a literal value", strings.ToLower(m[1])),
			0.8)
		e.SuggestedFix = "load the credential from the environment or a secrets manager"
		findings = append(findings, e)
	}

	return findings
}
