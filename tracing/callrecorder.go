package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/hydrosim/sim"
)

// A Call is one lifecycle event of a component.
type Call struct {
	Component string
	Pos       string
	Step      int
}

func (c Call) String() string {
	return fmt.Sprintf("%s.%s@%d", c.Component, c.Pos, c.Step)
}

// CallRecorder is a hook that records every lifecycle event in the order
// they happen.
type CallRecorder struct {
	lock      sync.Mutex
	positions map[*sim.HookPos]bool
	calls     []Call
}

// NewCallRecorder creates a recorder. Without positions, every position is
// recorded.
func NewCallRecorder(positions ...*sim.HookPos) *CallRecorder {
	r := &CallRecorder{}

	if len(positions) > 0 {
		r.positions = make(map[*sim.HookPos]bool)
		for _, p := range positions {
			r.positions[p] = true
		}
	}

	return r
}

// Func records the call.
func (r *CallRecorder) Func(ctx sim.HookCtx) {
	if r.positions != nil && !r.positions[ctx.Pos] {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.calls = append(r.calls, Call{
		Component: componentOf(ctx),
		Pos:       ctx.Pos.Name,
		Step:      ctx.Step,
	})
}

// Calls returns all the calls recorded.
func (r *CallRecorder) Calls() []Call {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]Call(nil), r.calls...)
}

// Count returns how many times the component reached the position.
func (r *CallRecorder) Count(component string, pos *sim.HookPos) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0

	for _, c := range r.calls {
		if c.Component == component && c.Pos == pos.Name {
			n++
		}
	}

	return n
}

// Sequence returns the components that reached the position, in order.
func (r *CallRecorder) Sequence(pos *sim.HookPos) []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	var seq []string

	for _, c := range r.calls {
		if c.Pos == pos.Name {
			seq = append(seq, c.Component)
		}
	}

	return seq
}

// Reset forgets all the calls.
func (r *CallRecorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.calls = nil
}
