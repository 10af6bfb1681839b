// internal/types/rules.go
package types

import "encoding/json"

/*
 * Rule and segment value objects as authored in the audience builder UI.
 *
 * These types are wire-format compatible with the admin frontend: rules
 * arrive as {id, type, field, operator, value} objects and segments as
 * {id, name, type, rules} objects. Compilation to the filter model happens
 * in internal/filter; nothing here mutates or validates beyond parsing.
 *
 * Key types:
 *   - Rule: one user-specified constraint
 *   - RuleType: tagged variant over the known rule vocabulary + Unknown
 *   - Segment: named, polarized (include/exclude) group of rules
 *
 * RuleType is a closed sum rather than a bare string so that the
 * unknown-type slug fallback is an explicit, separately testable branch
 * instead of an accidental default.
 */

// RuleKind enumerates the known rule type vocabulary.
type RuleKind int

const (
	RuleUnknown RuleKind = iota
	RuleAge
	RuleGender
	RuleInterest
	RuleApplication
	RuleDevice
	RuleLocation
)

// Canonical UI labels for known rule kinds.
const (
	labelAge         = "Age"
	labelGender      = "Gender"
	labelInterest    = "Interest Interaction"
	labelApplication = "Application"
	labelDevice      = "Device"
	labelLocation    = "Location"
)

// RuleType is the tagged rule type. Raw retains the original label so
// Unknown types keep their spelling for slug derivation and display.
type RuleType struct {
	Kind RuleKind
	Raw  string
}

// ParseRuleType maps a UI label to its RuleKind. Unrecognized labels yield
// an Unknown variant carrying the raw label; they are never rejected.
func ParseRuleType(label string) RuleType {
	switch label {
	case labelAge:
		return RuleType{Kind: RuleAge, Raw: label}
	case labelGender:
		return RuleType{Kind: RuleGender, Raw: label}
	case labelInterest:
		return RuleType{Kind: RuleInterest, Raw: label}
	case labelApplication:
		return RuleType{Kind: RuleApplication, Raw: label}
	case labelDevice:
		return RuleType{Kind: RuleDevice, Raw: label}
	case labelLocation:
		return RuleType{Kind: RuleLocation, Raw: label}
	default:
		return RuleType{Kind: RuleUnknown, Raw: label}
	}
}

// String returns the original label.
func (t RuleType) String() string { return t.Raw }

// MarshalJSON serializes the rule type as its label string.
func (t RuleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Raw)
}

// UnmarshalJSON parses a label string into a tagged RuleType.
func (t *RuleType) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*t = ParseRuleType(label)
	return nil
}

// CombineOp is a rule's boolean combinator relative to the previous rule in
// its list. The first rule's operator has no predecessor and is ignored.
type CombineOp string

const (
	CombineAnd CombineOp = "AND"
	CombineOr  CombineOp = "OR"
)

// Rule is one user-specified constraint.
//
// Value is the single selected value for the rule's primary dimension; an
// empty value means the rule contributes nothing when compiled. Field is a
// secondary qualifier (e.g. an interest time-window code) used only by some
// rule types.
type Rule struct {
	ID       RuleID    `json:"id"`
	Type     RuleType  `json:"type"`
	Field    string    `json:"field,omitempty"`
	Operator CombineOp `json:"operator,omitempty"`
	Value    string    `json:"value"`
}

// SegmentType is a segment's polarity toward the audience universe.
type SegmentType string

const (
	SegmentInclude SegmentType = "include"
	SegmentExclude SegmentType = "exclude"
)

// Segment is a named, polarized group of rules. Each segment owns its rule
// list; rules are never shared across segments.
type Segment struct {
	ID    SegmentID   `json:"id"`
	Name  string      `json:"name"`
	Type  SegmentType `json:"type"`
	Rules []Rule      `json:"rules"`
}
