// Package types provides domain models shared across Cohort components.
//
// Contains the filter model (leaves, boolean combinator trees, named filter
// groups, query requests) plus rule and segment value objects. All of these
// are plain value types: construction and JSON round-tripping only, no
// behavior. Compilation from rules to filters lives in internal/filter.
//
// The JSON shapes here are wire contracts with the analytics collaborator
// and must round-trip field-for-field; see QueryRequest.
package types

import "encoding/json"

// OperatorEquals is the only comparison operator the compilers emit.
// The analytics collaborator defines the operator vocabulary; rule authoring
// never produces anything else today.
const OperatorEquals = "equals"

// Filter is a single dimension constraint leaf.
type Filter struct {
	Dimension string   `json:"dimension"`
	Operator  string   `json:"operator"`
	Values    []string `json:"values"`
}

// NodeOp is the boolean combinator of a filter tree node.
type NodeOp string

const (
	NodeAnd NodeOp = "and"
	NodeOr  NodeOp = "or"
)

// FilterNode combines child filters (leaves or sub-trees) with one boolean
// operator. The compilers always emit flat single-level AND nodes, but the
// representation supports arbitrary nesting.
type FilterNode struct {
	Op      NodeOp        `json:"type"`
	Filters []FilterChild `json:"filters"`
}

// FilterChild is either a leaf or a nested node. Exactly one of the two
// fields is set. Custom JSON marshaling flattens the wrapper so the wire
// shape is the heterogeneous array the analytics collaborator expects.
type FilterChild struct {
	Leaf *Filter
	Node *FilterNode
}

// MarshalJSON emits the set variant directly, without a wrapper object.
func (c FilterChild) MarshalJSON() ([]byte, error) {
	if c.Leaf != nil {
		return json.Marshal(c.Leaf)
	}
	if c.Node != nil {
		return json.Marshal(c.Node)
	}
	return []byte("null"), nil
}

// UnmarshalJSON probes for the "dimension" key to disambiguate leaves from
// nested nodes. Leaves always carry a dimension; nodes never do.
func (c *FilterChild) UnmarshalJSON(data []byte) error {
	var probe struct {
		Dimension *string `json:"dimension"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Dimension != nil {
		c.Leaf = &Filter{}
		return json.Unmarshal(data, c.Leaf)
	}
	c.Node = &FilterNode{}
	return json.Unmarshal(data, c.Node)
}

// GroupType is the polarity of a named filter group within a query.
// "universe" denotes the base population; include adds, exclude removes.
// Polarity semantics are enforced by the analytics collaborator, not here.
type GroupType string

const (
	GroupUniverse GroupType = "universe"
	GroupInclude  GroupType = "include"
	GroupExclude  GroupType = "exclude"
)

// FilterGroup is a named, polarized filter sub-tree at query level.
type FilterGroup struct {
	Name    string     `json:"name"`
	Type    GroupType  `json:"type"`
	Filters FilterNode `json:"filters"`
}

// QueryRequest is sent verbatim to the analytics collaborator.
type QueryRequest struct {
	Measures []string      `json:"measures"`
	Filters  []FilterGroup `json:"filters"`
	Limit    int           `json:"limit"`
}
