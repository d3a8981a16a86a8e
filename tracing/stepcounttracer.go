package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/hydrosim/sim"
)

// StepCountTracer counts how many times each hook position is reached.
type StepCountTracer struct {
	filter    ComponentFilter
	lock      sync.Mutex
	stepNames []string
	stepCount map[string]uint64
	perComp   map[string]map[string]uint64
}

// NewStepCountTracer creates a new StepCountTracer
func NewStepCountTracer(filter ComponentFilter) *StepCountTracer {
	return &StepCountTracer{
		filter:    filter,
		stepCount: make(map[string]uint64),
		perComp:   make(map[string]map[string]uint64),
	}
}

// Func counts the position of the hook.
func (t *StepCountTracer) Func(ctx sim.HookCtx) {
	component := componentOf(ctx)
	if t.filter != nil && !t.filter(component) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	name := ctx.Pos.Name
	if _, ok := t.stepCount[name]; !ok {
		t.stepNames = append(t.stepNames, name)
	}

	t.stepCount[name]++

	counts, ok := t.perComp[component]
	if !ok {
		counts = make(map[string]uint64)
		t.perComp[component] = counts
	}

	counts[name]++
}

// GetStepNames returns all the step names collected.
func (t *StepCountTracer) GetStepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.stepNames...)
}

// GetStepCount returns the number of times a position was reached.
func (t *StepCountTracer) GetStepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepCount[stepName]
}

// GetComponentStepCount returns the number of times a component reached a
// position.
func (t *StepCountTracer) GetComponentStepCount(
	component, stepName string,
) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.perComp[component][stepName]
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
