// internal/estimator/estimator.go
package estimator

import (
	"context"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/cohortlab/cohort/internal/analytics"
	"github.com/cohortlab/cohort/internal/filter"
	"github.com/cohortlab/cohort/internal/types"
)

/*
 * Audience size estimation pipeline.
 *
 * Orchestrates compilation of rules and segments into a query request,
 * dispatches it to the analytics collaborator, and extracts the scalar
 * count. Every failure mode degrades to a usable result:
 *
 *   - zero input short-circuits to 0 with no remote call
 *   - missing/non-numeric counts in a successful response read as 0
 *   - remote failure (network, non-2xx, malformed body) falls back to a
 *     deterministic-formula-plus-jitter approximation
 *
 * Estimate never returns an error. Callers distinguish the approximation
 * from a real count via the Authoritative flag: a fallback number shown as
 * authoritative would be indistinguishable from real data, which is a
 * correctness gap, not a feature.
 *
 * Fallback formula: base 100000 reduced by 0.3 per top-level rule, plus
 * 0.2 per exclude-segment rule and 0.1 per include-segment rule, plus up
 * to 20000 jitter, floored at 1000.
 */

// SizeMeasure is the measure expression used for audience size queries.
const SizeMeasure = "count(distinct(user_id))"

// QueryLimit caps result rows; only the first row is consumed.
const QueryLimit = 25

// baseAudienceGroup names the universe group derived from top-level rules.
const baseAudienceGroup = "base_audience"

// Fallback formula constants.
const (
	fallbackBase      = 100000
	fallbackFloor     = 1000
	fallbackJitter    = 20000
	ruleReduction     = 0.3
	includeRuleImpact = 0.1
	excludeRuleImpact = 0.2
)

// Estimate is a size estimation result. Authoritative is false when the
// size came from the local fallback formula rather than the collaborator.
type Estimate struct {
	Size          int64 `json:"size"`
	Authoritative bool  `json:"authoritative"`
}

// Estimator computes audience sizes against an analytics client.
type Estimator struct {
	client analytics.Client
	log    zerolog.Logger
	// randFloat is injectable for deterministic fallback tests.
	randFloat func() float64
}

// New constructs an Estimator.
func New(client analytics.Client, log zerolog.Logger) *Estimator {
	return &Estimator{
		client:    client,
		log:       log,
		randFloat: rand.Float64,
	}
}

// Estimate resolves the audience size for the given inputs.
//
// With no rules, no segments, and no base audience it returns 0
// immediately without a remote call. Otherwise it queries the analytics
// collaborator and, on any failure, returns the fallback approximation.
func (e *Estimator) Estimate(ctx context.Context, rules []types.Rule, segments []types.Segment, baseAudienceID types.AudienceID) Estimate {
	baseFilters := filter.CompileRules(rules)
	segmentGroups := filter.CompileSegments(segments)

	if len(baseFilters) == 0 && len(segmentGroups) == 0 && baseAudienceID == "" {
		return Estimate{Size: 0, Authoritative: true}
	}

	query := buildQuery(baseFilters, segmentGroups, baseAudienceID)

	body, err := e.client.Query(ctx, query)
	if err != nil {
		e.log.Warn().Err(err).Msg("size query failed, using fallback estimate")
		return e.fallback(rules, segments)
	}

	return Estimate{
		Size:          analytics.ExtractCount(body, SizeMeasure),
		Authoritative: true,
	}
}

// buildQuery assembles the request: an optional universe group first, then
// all segment groups in input order.
func buildQuery(baseFilters []types.Filter, segmentGroups []types.FilterGroup, baseAudienceID types.AudienceID) types.QueryRequest {
	groups := make([]types.FilterGroup, 0, len(segmentGroups)+1)

	// Base audience membership is expressed as one more universe leaf so
	// the collaborator intersects it with the top-level rule filters.
	universe := make([]types.Filter, 0, len(baseFilters)+1)
	if baseAudienceID != "" {
		universe = append(universe, types.Filter{
			Dimension: "audience_id",
			Operator:  types.OperatorEquals,
			Values:    []string{string(baseAudienceID)},
		})
	}
	universe = append(universe, baseFilters...)

	if len(universe) > 0 {
		groups = append(groups, types.FilterGroup{
			Name:    baseAudienceGroup,
			Type:    types.GroupUniverse,
			Filters: filter.AndNode(universe),
		})
	}

	groups = append(groups, segmentGroups...)

	return types.QueryRequest{
		Measures: []string{SizeMeasure},
		Filters:  groups,
		Limit:    QueryLimit,
	}
}

// fallback computes the documented approximation. Explicitly not a
// correctness guarantee; the result is flagged non-authoritative.
func (e *Estimator) fallback(rules []types.Rule, segments []types.Segment) Estimate {
	reduction := float64(len(rules)) * ruleReduction

	for _, seg := range segments {
		impact := includeRuleImpact
		if seg.Type == types.SegmentExclude {
			impact = excludeRuleImpact
		}
		reduction += float64(len(seg.Rules)) * impact
	}

	size := int64(math.Floor(fallbackBase*(1-reduction) + e.randFloat()*fallbackJitter))
	if size < fallbackFloor {
		size = fallbackFloor
	}

	return Estimate{Size: size, Authoritative: false}
}
