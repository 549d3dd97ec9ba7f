package domain

import (
	"context"
	"time"
)

// Phase tells whether an event is delivered before or after the storage mutation.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Operation is the kind of structural mutation an event describes.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationMove   Operation = "move"
)

// GroupEvent is the immutable notification handed to listeners.
// OriginParentID and TargetParentID are only set for moves.
type GroupEvent struct {
	Phase          Phase
	Operation      Operation
	Group          Group
	OriginParentID string
	TargetParentID string
	OccurredAt     time.Time
}

// NewGroupEvent stamps an event for the given phase and operation.
func NewGroupEvent(phase Phase, op Operation, group Group) GroupEvent {
	return GroupEvent{
		Phase:      phase,
		Operation:  op,
		Group:      group,
		OccurredAt: time.Now().UTC(),
	}
}

// GroupListener receives group events synchronously.
// Returning an error from a pre-phase event vetoes the mutation.
// Implementations must be comparable so they can be unregistered.
type GroupListener interface {
	OnEvent(ctx context.Context, event GroupEvent) error
}
