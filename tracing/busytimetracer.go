package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// BusyTimeTracer measures the wall-clock time that components spend in
// Calculate.
type BusyTimeTracer struct {
	clock  WallClock
	filter ComponentFilter

	lock     sync.Mutex
	inflight map[string]time.Time
	busyTime map[string]time.Duration
	count    map[string]int
}

// NewBusyTimeTracer creates a new BusyTimeTracer
func NewBusyTimeTracer(clock WallClock, filter ComponentFilter) *BusyTimeTracer {
	if clock == nil {
		clock = SystemClock
	}

	return &BusyTimeTracer{
		clock:    clock,
		filter:   filter,
		inflight: make(map[string]time.Time),
		busyTime: make(map[string]time.Duration),
		count:    make(map[string]int),
	}
}

// Func starts or stops the timer of a component.
func (t *BusyTimeTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosBeforeCalculate:
		t.start(componentOf(ctx))
	case sim.HookPosAfterCalculate:
		t.end(componentOf(ctx))
	}
}

func (t *BusyTimeTracer) start(component string) {
	if t.filter != nil && !t.filter(component) {
		return
	}

	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflight[component] = now
}

func (t *BusyTimeTracer) end(component string) {
	now := t.clock.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.inflight[component]
	if !ok {
		return
	}

	delete(t.inflight, component)
	t.busyTime[component] += now.Sub(start)
	t.count[component]++
}

// BusyTime returns the total time a component has spent calculating.
func (t *BusyTimeTracer) BusyTime(component string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.busyTime[component]
}

// TotalBusyTime returns the time spent calculating by all components.
func (t *BusyTimeTracer) TotalBusyTime() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()

	var total time.Duration
	for _, d := range t.busyTime {
		total += d
	}

	return total
}

// Count returns how many calculations of the component were timed.
func (t *BusyTimeTracer) Count(component string) int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count[component]
}

// Components returns the components timed so far, sorted.
func (t *BusyTimeTracer) Components() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return sortedNames(t.busyTime)
}
