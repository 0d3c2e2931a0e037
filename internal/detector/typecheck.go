package detector

import (
	"fmt"
	"regexp"

	"github.com/steveyegge/mend/internal/types"
)

// typeMismatchPattern matches "type mismatch ... expected X ... found Y"
// phrasing as emitted by compilers and review tools.
var typeMismatchPattern = regexp.MustCompile(`(?i)type mismatch.*?expected\s+(\S+).*?(?:found|got|actual)\s+(\S+)`)

// typeMismatchDetector flags text that reports a type mismatch. The phrasing
// is specific enough that matches carry a fixed confidence of 0.9.
type typeMismatchDetector struct{}

func (d *typeMismatchDetector) Name() string {
	return "type_mismatch"
}

func (d *typeMismatchDetector) Detect(content string) []types.DetectedError {
	m := typeMismatchPattern.FindStringSubmatch(content)
	if m == nil {
		return nil
	}

	e := newError(types.ErrorTypeType, types.SeverityHigh,
		fmt.Sprintf("type mismatch reported: expected %s, found %s", m[1], m[2]),
		0.9)
	e.SuggestedFix = fmt.Sprintf("reconcile the declared type %s with the actual type %s", m[1], m[2])
	return []types.DetectedError{e}
}
