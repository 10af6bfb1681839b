// internal/filter/compile.go
package filter

import (
	"strings"

	"github.com/cohortlab/cohort/internal/types"
)

/*
 * Rule and segment compilation.
 *
 * Compiles UI-authored rules into filter leaves and segments into named
 * filter groups, producing the nested payload shape the analytics
 * collaborator consumes.
 *
 * Compilation workflow:
 *   1. Skip rules with empty values (silent-skip policy, not an error)
 *   2. Resolve dimension name from the rule type lookup table
 *   3. Remap well-known Application values to their display capitalization
 *   4. Wrap each segment's leaves in a single flat AND node
 *
 * Why silent skip: a half-edited rule (type chosen, value not yet picked)
 * is the steady state while a user builds an audience. Treating it as an
 * error would make every intermediate edit invalid.
 *
 * Unknown rule types degrade to a lower-cased, underscore-joined slug of
 * the raw label. This accepts typos as new dimensions; the tradeoff is
 * recorded by Lint, which reports a warning per unknown type.
 *
 * Purity: both compilers read their inputs and return fresh slices. Inputs
 * are never mutated, output order matches input order, and equal inputs
 * produce structurally identical output.
 */

// Dimension names understood by the analytics collaborator.
const (
	DimensionAge         = "age_group"
	DimensionGender      = "gender"
	DimensionInterest    = "interest_category"
	DimensionApplication = "application"
	DimensionDevice      = "device_type"
	DimensionLocation    = "location"
)

// applicationValues remaps UI option codes to the capitalized identifiers
// the analytics dimension stores. Unlisted values pass through unchanged.
var applicationValues = map[string]string{
	"whatsapp":  "WhatsApp",
	"instagram": "Instagram",
	"imessage":  "iMessage",
}

// CompileRules converts an ordered rule list into filter leaves.
//
// Rules with empty values produce no leaf. Output order matches input
// order; rules resolving to the same dimension are not merged or
// deduplicated (two Age rules yield two leaves).
func CompileRules(rules []types.Rule) []types.Filter {
	filters := make([]types.Filter, 0, len(rules))

	for _, rule := range rules {
		if rule.Value == "" {
			continue
		}

		filters = append(filters, types.Filter{
			Dimension: Dimension(rule.Type),
			Operator:  types.OperatorEquals,
			Values:    []string{compileValue(rule)},
		})
	}

	return filters
}

// CompileSegments converts segments into named filter groups.
//
// Each group wraps the segment's compiled rules in a single AND node, even
// for zero or one child; the analytics collaborator treats an empty AND as
// "no constraint". Segments are processed independently.
func CompileSegments(segments []types.Segment) []types.FilterGroup {
	groups := make([]types.FilterGroup, 0, len(segments))

	for _, seg := range segments {
		name := seg.Name
		if name == "" {
			name = "segment_" + string(seg.ID)
		}

		groups = append(groups, types.FilterGroup{
			Name:    name,
			Type:    groupType(seg.Type),
			Filters: AndNode(CompileRules(seg.Rules)),
		})
	}

	return groups
}

// AndNode wraps leaves in a flat AND tree node.
func AndNode(leaves []types.Filter) types.FilterNode {
	children := make([]types.FilterChild, 0, len(leaves))
	for i := range leaves {
		leaf := leaves[i]
		children = append(children, types.FilterChild{Leaf: &leaf})
	}
	return types.FilterNode{Op: types.NodeAnd, Filters: children}
}

// Dimension resolves the analytics dimension name for a rule type.
// Unknown types fall back to a slug of the raw label.
func Dimension(t types.RuleType) string {
	switch t.Kind {
	case types.RuleAge:
		return DimensionAge
	case types.RuleGender:
		return DimensionGender
	case types.RuleInterest:
		return DimensionInterest
	case types.RuleApplication:
		return DimensionApplication
	case types.RuleDevice:
		return DimensionDevice
	case types.RuleLocation:
		return DimensionLocation
	default:
		return Slug(t.Raw)
	}
}

// Slug derives a best-effort dimension name from an unknown rule type
// label: lower-cased, whitespace runs collapsed to single underscores.
func Slug(label string) string {
	fields := strings.Fields(strings.ToLower(label))
	return strings.Join(fields, "_")
}

// compileValue applies per-type value normalization.
func compileValue(rule types.Rule) string {
	if rule.Type.Kind == types.RuleApplication {
		if mapped, ok := applicationValues[rule.Value]; ok {
			return mapped
		}
	}
	return rule.Value
}

// groupType normalizes segment polarity for the query payload.
// Exactly "exclude" maps to exclude; every other value, including empty or
// invalid, maps to include. Safe-default policy, not a validation error.
func groupType(t types.SegmentType) types.GroupType {
	if t == types.SegmentExclude {
		return types.GroupExclude
	}
	return types.GroupInclude
}
