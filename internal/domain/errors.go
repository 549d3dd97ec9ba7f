package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrGroupNotFound      = errors.New("group not found")
	ErrMembershipNotFound = errors.New("membership not found")
)

// DuplicateNameError is returned when a sibling with the same label and type exists.
type DuplicateNameError struct {
	ParentID string
	Label    string
	Type     string
}

func (e *DuplicateNameError) Error() string {
	parent := e.ParentID
	if parent == "" {
		parent = "root"
	}
	return fmt.Sprintf("group %q of type %q already exists under %s", e.Label, e.Type, parent)
}

// HasChildrenError is returned when deleting a group that still has children.
type HasChildrenError struct {
	GroupID  string
	Children int
}

func (e *HasChildrenError) Error() string {
	return fmt.Sprintf("group %q still has %d child group(s)", e.GroupID, e.Children)
}

// CycleError is returned when a move would place a group beneath itself.
type CycleError struct {
	GroupID        string
	TargetParentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving group %q under %q would create a cycle", e.GroupID, e.TargetParentID)
}

// ParentMismatchError is returned when a move names the wrong origin parent.
type ParentMismatchError struct {
	GroupID  string
	Expected string
	Actual   string
}

func (e *ParentMismatchError) Error() string {
	return fmt.Sprintf("group %q has parent %q, not %q", e.GroupID, e.Actual, e.Expected)
}

// AmbiguousResultError signals a storage integrity fault: one identifier, many rows.
type AmbiguousResultError struct {
	ID    string
	Count int
}

func (e *AmbiguousResultError) Error() string {
	return fmt.Sprintf("found %d groups with id %q", e.Count, e.ID)
}

// ListenerError wraps the first listener failure raised during dispatch.
type ListenerError struct {
	Phase     Phase
	Operation Operation
	GroupID   string
	Err       error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s-%s listener failed for group %q: %v", e.Phase, e.Operation, e.GroupID, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// UnsupportedOperationError is returned when the backing store cannot perform an optional operation.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %q is not supported by this directory", e.Operation)
}

func (e *UnsupportedOperationError) Unwrap() error { return errors.ErrUnsupported }

// StorageError wraps a failure of the underlying repository.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
