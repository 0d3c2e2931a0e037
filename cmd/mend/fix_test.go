package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mend/internal/types"
)

func testError() types.DetectedError {
	return types.DetectedError{
		ID:          "e1",
		Type:        types.ErrorTypeSyntax,
		Severity:    types.SeverityHigh,
		Description: "unbalanced braces",
		Confidence:  0.9,
	}
}

func TestCommandCorrectorPipesContent(t *testing.T) {
	corrector := commandCorrector("tr 'a-z' 'A-Z'")

	out, err := corrector(context.Background(), testError(), "fix me", types.StrategyTargetedFix)
	require.NoError(t, err)
	assert.Equal(t, "FIX ME", out)
}

func TestCommandCorrectorExposesDefectEnv(t *testing.T) {
	corrector := commandCorrector(`printf '%s|%s' "$MEND_ERROR_TYPE" "$MEND_STRATEGY"`)

	out, err := corrector(context.Background(), testError(), "", types.StrategyFullRegeneration)
	require.NoError(t, err)
	assert.Equal(t, "syntax_error|full_regeneration", out)
}

func TestCommandCorrectorSurfacesFailure(t *testing.T) {
	corrector := commandCorrector("echo broken >&2; exit 3")

	_, err := corrector(context.Background(), testError(), "content", types.StrategyTargetedFix)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCommandCorrectorHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	corrector := commandCorrector("sleep 10")
	_, err := corrector(ctx, testError(), "content", types.StrategyTargetedFix)
	require.Error(t, err)
}
