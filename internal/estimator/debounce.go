// internal/estimator/debounce.go
package estimator

import (
	"context"
	"sync"
	"time"

	"github.com/cohortlab/cohort/internal/types"
)

/*
 * Debounced recalculation trigger.
 *
 * Defers size recalculation until the inputs have been stable for a fixed
 * quiet period. Each new change event cancels the pending timer and
 * schedules a fresh one, so a burst of edits costs one estimation.
 *
 * In-flight queries are never canceled or serialized: two triggers firing
 * back to back issue two independent requests. Ordering is restored at the
 * output edge with a monotonically increasing generation counter: only
 * the result whose generation matches the latest dispatched request is
 * applied, stale results are discarded.
 *
 * Close cancels any pending timer; no invocation fires after teardown.
 */

// DefaultQuietPeriod is how long inputs must be stable before recalculating.
const DefaultQuietPeriod = 500 * time.Millisecond

// Sizer is the estimation dependency of the Recalculator.
// Satisfied by *Estimator; fakeable in tests.
type Sizer interface {
	Estimate(ctx context.Context, rules []types.Rule, segments []types.Segment, baseAudienceID types.AudienceID) Estimate
}

// Inputs is one snapshot of the audience-builder state.
type Inputs struct {
	Rules          []types.Rule
	Segments       []types.Segment
	BaseAudienceID types.AudienceID
}

func (in Inputs) empty() bool {
	return len(in.Rules) == 0 && len(in.Segments) == 0 && in.BaseAudienceID == ""
}

// Recalculator debounces input changes into estimator invocations.
type Recalculator struct {
	sizer Sizer
	apply func(Estimate)
	quiet time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	inputs Inputs
	gen    uint64
	closed bool
}

// NewRecalculator builds a trigger that calls apply with each non-stale
// result. A non-positive quiet period falls back to DefaultQuietPeriod.
func NewRecalculator(sizer Sizer, quiet time.Duration, apply func(Estimate)) *Recalculator {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Recalculator{
		sizer: sizer,
		apply: apply,
		quiet: quiet,
	}
}

// Update records a change event and restarts the quiet-period timer.
func (r *Recalculator) Update(in Inputs) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.inputs = in
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.quiet, r.fire)
}

// Close cancels any pending invocation. Results of estimations already in
// flight are discarded.
func (r *Recalculator) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// fire runs when the quiet period elapses without a newer change event.
func (r *Recalculator) fire() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	in := r.inputs

	// Empty inputs short-circuit to zero without touching the estimator.
	// The generation still advances so estimations already in flight are
	// invalidated and cannot overwrite the zero.
	if in.empty() {
		r.gen++
		r.mu.Unlock()
		r.apply(Estimate{Size: 0, Authoritative: true})
		return
	}

	r.gen++
	gen := r.gen
	r.mu.Unlock()

	go func() {
		result := r.sizer.Estimate(context.Background(), in.Rules, in.Segments, in.BaseAudienceID)

		r.mu.Lock()
		stale := r.closed || gen != r.gen
		r.mu.Unlock()

		if !stale {
			r.apply(result)
		}
	}()
}
