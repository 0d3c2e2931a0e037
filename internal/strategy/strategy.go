// Package strategy maps detected errors to remediation strategies.
// Selection is deterministic: a static default table per error type, and an
// escalation ladder driven purely by prior attempt count.
package strategy

import (
	"github.com/steveyegge/mend/internal/types"
)

// defaultStrategies is the static table mapping each error type to the
// strategy tried first.
var defaultStrategies = map[types.ErrorType]types.Strategy{
	types.ErrorTypeSyntax:             types.StrategyRegenerateSection,
	types.ErrorTypeLogic:              types.StrategyTargetedFix,
	types.ErrorTypeType:               types.StrategyTargetedFix,
	types.ErrorTypeMissingImport:      types.StrategyAddMissing,
	types.ErrorTypeUndefinedReference: types.StrategyTargetedFix,
	types.ErrorTypeAPIMisuse:          types.StrategyRegenerateSection,
	types.ErrorTypeHallucination:      types.StrategyFullRegeneration,
	types.ErrorTypeSecurity:           types.StrategyTargetedFix,
	types.ErrorTypePerformance:        types.StrategyTargetedFix,
	types.ErrorTypeStyle:              types.StrategyTargetedFix,
	types.ErrorTypeIncomplete:         types.StrategyContinueGeneration,
	types.ErrorTypeContextMismatch:    types.StrategyRegenerateWithContext,
	types.ErrorTypeTestFailure:        types.StrategyIterativeRefinement,
	types.ErrorTypeBuildFailure:       types.StrategyIterativeRefinement,
	types.ErrorTypeRuntime:            types.StrategyTargetedFix,
}

// catalogs lists the curated alternatives presented to a human operator for
// each error type. The automatic loop never consults these.
var catalogs = map[types.ErrorType][]types.Strategy{
	types.ErrorTypeSyntax:             {types.StrategyRegenerateSection, types.StrategyTargetedFix, types.StrategyFullRegeneration},
	types.ErrorTypeLogic:              {types.StrategyTargetedFix, types.StrategyRegenerateSection, types.StrategyIterativeRefinement},
	types.ErrorTypeType:               {types.StrategyTargetedFix, types.StrategyRegenerateSection},
	types.ErrorTypeMissingImport:      {types.StrategyAddMissing, types.StrategyTargetedFix},
	types.ErrorTypeUndefinedReference: {types.StrategyTargetedFix, types.StrategyAddMissing, types.StrategyRegenerateSection},
	types.ErrorTypeAPIMisuse:          {types.StrategyRegenerateSection, types.StrategyRegenerateWithContext},
	types.ErrorTypeHallucination:      {types.StrategyFullRegeneration, types.StrategyRegenerateWithContext},
	types.ErrorTypeSecurity:           {types.StrategyTargetedFix, types.StrategyRegenerateSection},
	types.ErrorTypePerformance:        {types.StrategyTargetedFix, types.StrategyIterativeRefinement},
	types.ErrorTypeStyle:              {types.StrategyTargetedFix},
	types.ErrorTypeIncomplete:         {types.StrategyContinueGeneration, types.StrategyFullRegeneration},
	types.ErrorTypeContextMismatch:    {types.StrategyRegenerateWithContext, types.StrategyFullRegeneration},
	types.ErrorTypeTestFailure:        {types.StrategyIterativeRefinement, types.StrategyTargetedFix},
	types.ErrorTypeBuildFailure:       {types.StrategyIterativeRefinement, types.StrategyTargetedFix},
	types.ErrorTypeRuntime:            {types.StrategyTargetedFix, types.StrategyIterativeRefinement},
}

// DefaultStrategy returns the strategy tried first for an error type.
// Unknown types fall back to a targeted fix.
func DefaultStrategy(errType types.ErrorType) types.Strategy {
	if s, ok := defaultStrategies[errType]; ok {
		return s
	}
	return types.StrategyTargetedFix
}

// Suggest returns the strategy for the next attempt against an error,
// escalating purely on how many attempts came before. The ladder is
// independent of error type:
//
//	0 prior attempts → targeted_fix
//	1 prior attempt  → regenerate_section
//	2 or more        → full_regeneration
func Suggest(err types.DetectedError, previousAttempts int) types.Strategy {
	switch {
	case previousAttempts <= 0:
		return types.StrategyTargetedFix
	case previousAttempts == 1:
		return types.StrategyRegenerateSection
	default:
		return types.StrategyFullRegeneration
	}
}

// Catalog returns the curated strategy alternatives for an error type, for
// presentation to a human operator.
func Catalog(errType types.ErrorType) []types.Strategy {
	if alts, ok := catalogs[errType]; ok {
		out := make([]types.Strategy, len(alts))
		copy(out, alts)
		return out
	}
	return []types.Strategy{types.StrategyTargetedFix}
}
