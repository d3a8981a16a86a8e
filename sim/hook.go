package sim

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Step   int
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// Lifecycle hook positions, triggered by every ComponentBase.
var (
	HookPosBeforeAdvance   = &HookPos{Name: "BeforeAdvance"}
	HookPosAfterAdvance    = &HookPos{Name: "AfterAdvance"}
	HookPosBeforeCalculate = &HookPos{Name: "BeforeCalculate"}
	HookPosAfterCalculate  = &HookPos{Name: "AfterCalculate"}
	HookPosAfterOutput     = &HookPos{Name: "AfterOutput"}
	HookPosFinalize        = &HookPos{Name: "Finalize"}
)

// HookPosImbalance is triggered by a ledger when a step violates the
// conservation invariant. The Item is the *ImbalanceError.
var HookPosImbalance = &HookPos{Name: "Imbalance"}

// HookPosStepComplete is triggered by a simulation after every component has
// finished the output phase of a step.
var HookPosStepComplete = &HookPos{Name: "StepComplete"}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts an ordinary function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
