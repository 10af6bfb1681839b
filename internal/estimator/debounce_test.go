// internal/estimator/debounce_test.go
package estimator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cohortlab/cohort/internal/types"
)

// recordingSizer captures estimate invocations; optional gate blocks each
// call until released.
type recordingSizer struct {
	mu    sync.Mutex
	calls []Inputs
	size  int64
	gate  chan struct{}
}

func (s *recordingSizer) Estimate(ctx context.Context, rules []types.Rule, segments []types.Segment, baseAudienceID types.AudienceID) Estimate {
	s.mu.Lock()
	s.calls = append(s.calls, Inputs{Rules: rules, Segments: segments, BaseAudienceID: baseAudienceID})
	size := s.size
	s.mu.Unlock()

	if s.gate != nil {
		<-s.gate
	}
	return Estimate{Size: size, Authoritative: true}
}

func (s *recordingSizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSizer) lastCall() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestRecalculator_BurstCoalescesToOneCall(t *testing.T) {
	sizer := &recordingSizer{size: 42}

	var mu sync.Mutex
	var results []Estimate
	r := NewRecalculator(sizer, 30*time.Millisecond, func(e Estimate) {
		mu.Lock()
		results = append(results, e)
		mu.Unlock()
	})
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Update(Inputs{BaseAudienceID: types.AudienceID("aud-" + string(rune('a'+i)))})
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	if sizer.callCount() != 1 {
		t.Errorf("sizer calls = %d, want 1 (burst coalesced)", sizer.callCount())
	}
	if got := sizer.lastCall().BaseAudienceID; got != "aud-e" {
		t.Errorf("estimated inputs = %q, want last update aud-e", got)
	}

	mu.Lock()
	if results[0].Size != 42 {
		t.Errorf("applied size = %d, want 42", results[0].Size)
	}
	mu.Unlock()
}

func TestRecalculator_EmptyInputsApplyZeroWithoutSizer(t *testing.T) {
	sizer := &recordingSizer{size: 42}

	applied := make(chan Estimate, 1)
	r := NewRecalculator(sizer, 10*time.Millisecond, func(e Estimate) {
		applied <- e
	})
	defer r.Close()

	r.Update(Inputs{})

	select {
	case e := <-applied:
		if e.Size != 0 || !e.Authoritative {
			t.Errorf("applied = %+v, want {0 true}", e)
		}
	case <-time.After(time.Second):
		t.Fatal("apply not invoked")
	}

	if sizer.callCount() != 0 {
		t.Errorf("sizer calls = %d, want 0 (empty inputs skip estimation)", sizer.callCount())
	}
}

func TestRecalculator_CloseCancelsPending(t *testing.T) {
	sizer := &recordingSizer{size: 42}

	applied := make(chan Estimate, 1)
	r := NewRecalculator(sizer, 20*time.Millisecond, func(e Estimate) {
		applied <- e
	})

	r.Update(Inputs{BaseAudienceID: "aud-1"})
	r.Close()

	select {
	case e := <-applied:
		t.Fatalf("apply invoked after Close with %+v", e)
	case <-time.After(100 * time.Millisecond):
	}

	if sizer.callCount() != 0 {
		t.Errorf("sizer calls = %d, want 0", sizer.callCount())
	}
}

func TestRecalculator_UpdateAfterCloseIgnored(t *testing.T) {
	sizer := &recordingSizer{}
	r := NewRecalculator(sizer, 10*time.Millisecond, func(Estimate) {
		t.Error("apply invoked after Close")
	})

	r.Close()
	r.Update(Inputs{BaseAudienceID: "aud-1"})

	time.Sleep(50 * time.Millisecond)
	if sizer.callCount() != 0 {
		t.Errorf("sizer calls = %d, want 0", sizer.callCount())
	}
}

func TestRecalculator_StaleResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	sizer := &recordingSizer{size: 1, gate: gate}

	var mu sync.Mutex
	var results []Estimate
	r := NewRecalculator(sizer, 10*time.Millisecond, func(e Estimate) {
		mu.Lock()
		results = append(results, e)
		mu.Unlock()
	})
	defer r.Close()

	// First cycle fires and blocks inside the sizer
	r.Update(Inputs{BaseAudienceID: "aud-old"})
	waitFor(t, time.Second, func() bool { return sizer.callCount() == 1 })

	// Second cycle fires while the first is still in flight
	r.Update(Inputs{BaseAudienceID: "aud-new"})
	waitFor(t, time.Second, func() bool { return sizer.callCount() == 2 })

	// Release both; only the newest generation may be applied
	close(gate)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) >= 1
	})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (stale result discarded)", len(results))
	}
}

func TestRecalculator_ClearWhileInFlightKeepsZero(t *testing.T) {
	gate := make(chan struct{})
	sizer := &recordingSizer{size: 99999, gate: gate}

	var mu sync.Mutex
	var results []Estimate
	r := NewRecalculator(sizer, 10*time.Millisecond, func(e Estimate) {
		mu.Lock()
		results = append(results, e)
		mu.Unlock()
	})
	defer r.Close()

	// First cycle fires and blocks inside the sizer
	r.Update(Inputs{BaseAudienceID: "aud-old"})
	waitFor(t, time.Second, func() bool { return sizer.callCount() == 1 })

	// All inputs cleared while the query is still outstanding; the zero
	// applies immediately
	r.Update(Inputs{})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	// The late query result must not overwrite the zero
	close(gate)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (in-flight result discarded after clear)", len(results))
	}
	if results[0].Size != 0 || !results[0].Authoritative {
		t.Errorf("applied = %+v, want {0 true}", results[0])
	}
}

func TestRecalculator_DefaultQuietPeriod(t *testing.T) {
	r := NewRecalculator(&recordingSizer{}, 0, func(Estimate) {})
	defer r.Close()

	if r.quiet != DefaultQuietPeriod {
		t.Errorf("quiet = %v, want %v", r.quiet, DefaultQuietPeriod)
	}
}
