// Package tracing provides hooks that observe the lifecycle of simulated
// components.
package tracing

import (
	"time"

	"github.com/sarchlab/hydrosim/sim"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	sim.Named
	sim.Hookable
}

// A ComponentFilter decides whether a component should be traced.
type ComponentFilter func(component string) bool

// A WallClock tells the real time.
type WallClock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the WallClock of the machine.
var SystemClock WallClock = systemClock{}

// CollectTrace lets the hook observe all the domains.
func CollectTrace(hook sim.Hook, domains ...sim.Hookable) {
	for _, d := range domains {
		d.AcceptHook(hook)
	}
}

// componentOf returns the name of the component that triggered a hook.
func componentOf(ctx sim.HookCtx) string {
	if name, ok := ctx.Item.(string); ok {
		return name
	}

	if named, ok := ctx.Domain.(sim.Named); ok {
		return named.Name()
	}

	if imb, ok := ctx.Item.(*sim.ImbalanceError); ok {
		return imb.Component
	}

	return ""
}
