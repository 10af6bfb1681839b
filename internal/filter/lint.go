// internal/filter/lint.go
package filter

import (
	"fmt"

	"github.com/cohortlab/cohort/internal/types"
)

/*
 * Compilation lint warnings.
 *
 * The compilers deliberately preserve two lossy behaviors from the
 * authoring model, and Lint makes both visible instead of silent:
 *
 *   - A rule's declared OR combinator is never applied: all leaves flatten
 *     into one AND list regardless of the selector. Whether the OR option
 *     is cosmetic or a missing feature is unresolved product intent, so
 *     the flatten-to-AND output stays, and the discrepancy is reported.
 *
 *   - Unknown rule types slug into brand-new dimension names, which
 *     accepts typos as dimensions the analytics store has never heard of.
 *
 * Warnings are advisory. Callers log them; they never block compilation.
 */

// Warning flags a lossy or suspect compilation outcome.
type Warning struct {
	RuleID  types.RuleID
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("rule %s: %s", w.RuleID, w.Message)
}

// Lint reports warnings for a rule list. Rules skipped by compilation
// (empty value) produce no warnings: they contribute nothing to the query.
func Lint(rules []types.Rule) []Warning {
	var warnings []Warning

	for i, rule := range rules {
		if rule.Value == "" {
			continue
		}

		// First rule has no predecessor; its combinator carries no meaning.
		if i > 0 && rule.Operator == types.CombineOr {
			warnings = append(warnings, Warning{
				RuleID:  rule.ID,
				Message: "OR combinator is not applied; rule is ANDed with its predecessors",
			})
		}

		if rule.Type.Kind == types.RuleUnknown {
			warnings = append(warnings, Warning{
				RuleID:  rule.ID,
				Message: fmt.Sprintf("unknown rule type %q compiled to dimension %q", rule.Type.Raw, Slug(rule.Type.Raw)),
			})
		}
	}

	return warnings
}

// LintSegments reports warnings across all segment rule lists.
func LintSegments(segments []types.Segment) []Warning {
	var warnings []Warning
	for _, seg := range segments {
		warnings = append(warnings, Lint(seg.Rules)...)
	}
	return warnings
}
