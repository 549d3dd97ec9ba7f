package fsm

import (
	"context"
	"errors"
	"fmt"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// events converts domain.MutationTransitions into looplab/fsm EventDesc format.
// Transitions sharing a step and destination collapse into one EventDesc with
// several sources (persist is reachable from idle and from pre_dispatched).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		step string
		dst  string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.MutationTransitions {
		k := key{step: string(t.Step), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.step,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// InvalidStepError is returned when a mutation tries to skip or repeat a phase.
type InvalidStepError struct {
	Step    domain.MutationStep
	Current domain.MutationState
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("step %q is not valid from state %q", e.Step, e.Current)
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// looplab/fsm tracks its current state internally, so every Apply call builds
// a short-lived machine seeded with the mutation's state.
type Validator struct{}

// New creates a new FSM-backed mutation validator.
func New() *Validator {
	return &Validator{}
}

// Can reports whether step is a legal move out of current.
func (v *Validator) Can(current domain.MutationState, step domain.MutationStep) bool {
	return loopfsm.NewFSM(string(current), events, nil).Can(string(step))
}

// Apply returns the state reached by taking step from current.
func (v *Validator) Apply(ctx context.Context, current domain.MutationState, step domain.MutationStep) (domain.MutationState, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(step)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) {
			return "", &InvalidStepError{Step: step, Current: current}
		}
		return "", err
	}

	return domain.MutationState(machine.Current()), nil
}
