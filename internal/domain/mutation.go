package domain

// MutationState is where a single structural mutation stands in its dispatch cycle.
type MutationState string

const (
	StateIdle           MutationState = "idle"
	StatePreDispatched  MutationState = "pre_dispatched"
	StatePersisted      MutationState = "persisted"
	StatePostDispatched MutationState = "post_dispatched"
)

// MutationStep moves a mutation from one state to the next.
type MutationStep string

const (
	StepDispatchPre  MutationStep = "dispatch_pre"
	StepPersist      MutationStep = "persist"
	StepDispatchPost MutationStep = "dispatch_post"
	StepComplete     MutationStep = "complete"
)

// MutationTransition defines a valid state change: a step moves a mutation from Src to Dst.
type MutationTransition struct {
	Step MutationStep
	Src  MutationState
	Dst  MutationState
}

// MutationTransitions defines every legal path through a mutation.
// Unbroadcast mutations skip both dispatch states.
var MutationTransitions = []MutationTransition{
	{Step: StepDispatchPre, Src: StateIdle, Dst: StatePreDispatched},
	{Step: StepPersist, Src: StatePreDispatched, Dst: StatePersisted},
	{Step: StepPersist, Src: StateIdle, Dst: StatePersisted},
	{Step: StepDispatchPost, Src: StatePersisted, Dst: StatePostDispatched},
	{Step: StepComplete, Src: StatePostDispatched, Dst: StateIdle},
	{Step: StepComplete, Src: StatePersisted, Dst: StateIdle},
}
