package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// DirectoryService maintains the group tree and broadcasts its mutations.
type DirectoryService struct {
	groups      domain.GroupRepository
	memberships domain.MembershipRepository
	tx          domain.Transactor
	validator   domain.TransitionValidator
	dispatcher  *Dispatcher
	locks       *keyedLocks

	// moveMu serializes moves; they are the only mutation that can close a cycle.
	moveMu sync.Mutex
}

// Option configures a DirectoryService.
type Option func(*options)

type options struct {
	listenerTimeout time.Duration
	tx              domain.Transactor
}

// WithListenerTimeout bounds each listener call. Zero keeps delivery unbounded.
func WithListenerTimeout(d time.Duration) Option {
	return func(o *options) { o.listenerTimeout = d }
}

// WithTransactor makes multi-row changes such as removing a group together with
// its memberships atomic. Without it they run directly against the repositories.
func WithTransactor(tx domain.Transactor) Option {
	return func(o *options) { o.tx = tx }
}

// NewDirectoryService creates a service with the given adapters.
func NewDirectoryService(groups domain.GroupRepository, memberships domain.MembershipRepository, validator domain.TransitionValidator, opts ...Option) *DirectoryService {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	tx := o.tx
	if tx == nil {
		tx = directTx{groups: groups, memberships: memberships}
	}
	return &DirectoryService{
		groups:      groups,
		memberships: memberships,
		tx:          tx,
		validator:   validator,
		dispatcher:  NewDispatcher(o.listenerTimeout),
		locks:       newKeyedLocks(),
	}
}

// AddListener registers a listener for every subsequent broadcast mutation.
// It fails with a *domain.ValidationError for nil or non-comparable listeners.
func (s *DirectoryService) AddListener(l domain.GroupListener) error {
	return s.dispatcher.Register(l)
}

// RemoveListener unregisters a listener.
func (s *DirectoryService) RemoveListener(l domain.GroupListener) {
	s.dispatcher.Unregister(l)
}

// Capabilities reports the optional operations the backing store supports.
func (s *DirectoryService) Capabilities() domain.Capabilities {
	return s.groups.Capabilities()
}

// NewGroupInstance returns an unsaved group ready to be passed to CreateGroup.
func (s *DirectoryService) NewGroupInstance(label, groupType, description string) domain.Group {
	return domain.NewGroup(label, groupType, description)
}

// CreateGroup persists a new group under parentID, or at the root when parentID is empty.
//
// When a post-phase listener fails the group is already stored; it is returned
// together with the *domain.ListenerError.
func (s *DirectoryService) CreateGroup(ctx context.Context, group domain.Group, parentID string, broadcast bool) (domain.Group, error) {
	if group.ID != "" {
		return domain.Group{}, &domain.ValidationError{Field: "id", Message: "a new group must not carry an identifier"}
	}
	if strings.TrimSpace(group.Label) == "" {
		return domain.Group{}, &domain.ValidationError{Field: "label", Message: "must not be empty"}
	}

	unlock := s.locks.lock(parentID)
	defer unlock()

	if parentID != "" {
		if _, err := s.getGroup(ctx, parentID); err != nil {
			return domain.Group{}, fmt.Errorf("looking up parent %q: %w", parentID, err)
		}
	}

	if err := s.checkSiblingKey(ctx, parentID, group.Label, group.Type, ""); err != nil {
		return domain.Group{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Group{}, fmt.Errorf("generating group id: %w", err)
	}

	now := time.Now().UTC()
	group.ID = id
	group.ParentID = parentID
	group.ChildIDs = nil
	group.CreatedAt = now
	group.UpdatedAt = now

	return s.run(ctx, mutation{
		op:        domain.OperationCreate,
		broadcast: broadcast,
		subject:   group,
		persist: func(ctx context.Context) (domain.Group, error) {
			if err := s.groups.Create(ctx, group); err != nil {
				return domain.Group{}, storageErr("insert group", err)
			}
			return group, nil
		},
	})
}

// SaveGroup updates the label, type and description of an existing group.
// The parent link is never changed here; use MoveGroup for that.
func (s *DirectoryService) SaveGroup(ctx context.Context, group domain.Group, broadcast bool) (domain.Group, error) {
	if group.ID == "" {
		return domain.Group{}, &domain.ValidationError{Field: "id", Message: "must be set on saved groups"}
	}
	if strings.TrimSpace(group.Label) == "" {
		return domain.Group{}, &domain.ValidationError{Field: "label", Message: "must not be empty"}
	}

	current, unlock, err := s.lockSubject(ctx, group.ID)
	if err != nil {
		return domain.Group{}, err
	}
	defer unlock()

	if !current.SameSiblingKey(group.Label, group.Type) {
		if err := s.checkSiblingKey(ctx, current.ParentID, group.Label, group.Type, current.ID); err != nil {
			return domain.Group{}, err
		}
	}

	group.ParentID = current.ParentID
	group.ChildIDs = nil
	group.CreatedAt = current.CreatedAt
	group.UpdatedAt = time.Now().UTC()

	return s.run(ctx, mutation{
		op:        domain.OperationUpdate,
		broadcast: broadcast,
		subject:   group,
		persist: func(ctx context.Context) (domain.Group, error) {
			if err := s.groups.Update(ctx, group); err != nil {
				return domain.Group{}, storageErr("update group", err)
			}
			return group, nil
		},
	})
}

// MoveGroup relinks groupID from originParentID to targetParentID.
// Moves are always broadcast.
func (s *DirectoryService) MoveGroup(ctx context.Context, originParentID, targetParentID, groupID string) (domain.Group, error) {
	if !s.groups.Capabilities().Move {
		return domain.Group{}, &domain.UnsupportedOperationError{Operation: "move"}
	}
	if groupID == "" {
		return domain.Group{}, &domain.ValidationError{Field: "id", Message: "must not be empty"}
	}
	if groupID == targetParentID {
		return domain.Group{}, &domain.CycleError{GroupID: groupID, TargetParentID: targetParentID}
	}

	s.moveMu.Lock()
	defer s.moveMu.Unlock()

	unlock := s.locks.lock(groupID, originParentID, targetParentID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if group.ParentID != originParentID {
		return domain.Group{}, &domain.ParentMismatchError{GroupID: groupID, Expected: originParentID, Actual: group.ParentID}
	}
	if originParentID == targetParentID {
		return group, nil
	}

	if err := s.checkNotDescendant(ctx, groupID, targetParentID); err != nil {
		return domain.Group{}, err
	}
	if err := s.checkSiblingKey(ctx, targetParentID, group.Label, group.Type, group.ID); err != nil {
		return domain.Group{}, err
	}

	moved := group
	moved.ParentID = targetParentID
	moved.UpdatedAt = time.Now().UTC()

	return s.run(ctx, mutation{
		op:        domain.OperationMove,
		broadcast: true,
		subject:   moved,
		origin:    originParentID,
		target:    targetParentID,
		persist: func(ctx context.Context) (domain.Group, error) {
			if err := s.groups.Relink(ctx, groupID, originParentID, targetParentID); err != nil {
				return domain.Group{}, storageErr("relink group", err)
			}
			return moved, nil
		},
	})
}

// RemoveGroup deletes a childless group and every membership bound to it.
// It returns the removed snapshot.
func (s *DirectoryService) RemoveGroup(ctx context.Context, groupID string, broadcast bool) (domain.Group, error) {
	group, unlock, err := s.lockSubject(ctx, groupID)
	if err != nil {
		return domain.Group{}, err
	}
	defer unlock()

	children, err := s.groups.Children(ctx, groupID)
	if err != nil {
		return domain.Group{}, storageErr("list children", err)
	}
	if len(children) > 0 {
		return domain.Group{}, &domain.HasChildrenError{GroupID: groupID, Children: len(children)}
	}

	return s.run(ctx, mutation{
		op:        domain.OperationDelete,
		broadcast: broadcast,
		subject:   group,
		persist: func(ctx context.Context) (domain.Group, error) {
			err := s.tx.RunInTx(ctx, func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error {
				if err := groups.Delete(ctx, groupID); err != nil {
					return storageErr("delete group", err)
				}
				if _, err := memberships.DeleteByGroup(ctx, groupID); err != nil {
					return storageErr("delete memberships", err)
				}
				return nil
			})
			if err != nil {
				return domain.Group{}, storageErr("remove group", err)
			}
			return group, nil
		},
	})
}

// FindGroupByID returns the group and true, or false when no such group exists.
func (s *DirectoryService) FindGroupByID(ctx context.Context, id string) (domain.Group, bool, error) {
	group, err := s.getGroup(ctx, id)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return domain.Group{}, false, nil
	}
	if err != nil {
		return domain.Group{}, false, err
	}

	children, err := s.groups.Children(ctx, id)
	if err != nil {
		return domain.Group{}, false, storageErr("list children", err)
	}
	group.ChildIDs = make([]string, 0, len(children))
	for _, c := range children {
		group.ChildIDs = append(group.ChildIDs, c.ID)
	}

	return group, true, nil
}

// FindGroups returns the direct children of parentID, or the root level when empty.
func (s *DirectoryService) FindGroups(ctx context.Context, parentID string) ([]domain.Group, error) {
	children, err := s.groups.Children(ctx, parentID)
	if err != nil {
		return nil, storageErr("list children", err)
	}
	if children == nil {
		children = []domain.Group{}
	}
	return children, nil
}

// FindGroupChildren returns a lazy list of direct children whose label contains keyword.
func (s *DirectoryService) FindGroupChildren(ctx context.Context, parentID, keyword string) (domain.GroupList, error) {
	if !s.groups.Capabilities().KeywordSearch {
		return nil, &domain.UnsupportedOperationError{Operation: "find group children"}
	}
	return newSearchList(s.groups, domain.SearchFilter{ParentID: &parentID, Keyword: keyword}), nil
}

// GetAllGroups returns every group in the directory. Intended for administrative use.
func (s *DirectoryService) GetAllGroups(ctx context.Context) ([]domain.Group, error) {
	groups, err := s.groups.All(ctx)
	if err != nil {
		return nil, storageErr("list groups", err)
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	return groups, nil
}

// AddMembership records that userName holds membershipType in groupID.
// Adding an existing membership is a no-op.
func (s *DirectoryService) AddMembership(ctx context.Context, userName, groupID, membershipType string) error {
	if userName == "" {
		return &domain.ValidationError{Field: "user", Message: "must not be empty"}
	}
	if membershipType == "" || membershipType == domain.AnyMembershipType {
		return &domain.ValidationError{Field: "membership_type", Message: "must name a concrete type"}
	}

	unlock := s.locks.lock(groupID)
	defer unlock()

	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}

	id, err := generateID()
	if err != nil {
		return fmt.Errorf("generating membership id: %w", err)
	}

	if err := s.memberships.Add(ctx, domain.NewMembership(id, userName, groupID, membershipType)); err != nil {
		return storageErr("insert membership", err)
	}
	return nil
}

// RemoveMembership deletes a single membership.
func (s *DirectoryService) RemoveMembership(ctx context.Context, userName, groupID, membershipType string) error {
	if err := s.memberships.Remove(ctx, userName, groupID, membershipType); err != nil {
		return storageErr("delete membership", err)
	}
	return nil
}

// mutation carries one structural change through the dispatch cycle.
type mutation struct {
	op        domain.Operation
	broadcast bool
	subject   domain.Group
	origin    string
	target    string
	persist   func(ctx context.Context) (domain.Group, error)
}

func (m mutation) event(phase domain.Phase, group domain.Group) domain.GroupEvent {
	event := domain.NewGroupEvent(phase, m.op, group)
	event.OriginParentID = m.origin
	event.TargetParentID = m.target
	return event
}

// mutationSteps lists every step in the order a mutation prefers to take them.
var mutationSteps = []domain.MutationStep{
	domain.StepDispatchPre,
	domain.StepPersist,
	domain.StepDispatchPost,
	domain.StepComplete,
}

// run lets the validator drive a mutation from idle back to idle. At each state
// it takes the first legal step, skipping dispatch steps when the mutation is
// not broadcast: idle → pre_dispatched → persisted → post_dispatched → idle, or
// idle → persisted → idle.
func (s *DirectoryService) run(ctx context.Context, m mutation) (domain.Group, error) {
	var (
		group   domain.Group
		postErr error
	)

	state := domain.StateIdle
	for {
		step, ok := s.nextStep(state, m.broadcast)
		if !ok {
			return group, fmt.Errorf("%s mutation: no step leaves state %q", m.op, state)
		}
		next, err := s.validator.Apply(ctx, state, step)
		if err != nil {
			return group, fmt.Errorf("%s mutation: %w", m.op, err)
		}

		switch step {
		case domain.StepDispatchPre:
			if err := s.dispatcher.Dispatch(ctx, m.event(domain.PhasePre, m.subject)); err != nil {
				return domain.Group{}, err
			}
		case domain.StepPersist:
			if group, err = m.persist(ctx); err != nil {
				return domain.Group{}, err
			}
		case domain.StepDispatchPost:
			postErr = s.dispatcher.Dispatch(ctx, m.event(domain.PhasePost, group))
		case domain.StepComplete:
			return group, postErr
		}
		state = next
	}
}

func (s *DirectoryService) nextStep(state domain.MutationState, broadcast bool) (domain.MutationStep, bool) {
	for _, step := range mutationSteps {
		dispatch := step == domain.StepDispatchPre || step == domain.StepDispatchPost
		if dispatch && !broadcast {
			continue
		}
		if s.validator.Can(state, step) {
			return step, true
		}
	}
	return "", false
}

// lockSubject locks a group together with its current parent. The parent is
// re-read under the lock because a concurrent move may have changed it.
func (s *DirectoryService) lockSubject(ctx context.Context, id string) (domain.Group, func(), error) {
	for {
		seen, err := s.getGroup(ctx, id)
		if err != nil {
			return domain.Group{}, nil, err
		}

		unlock := s.locks.lock(id, seen.ParentID)
		current, err := s.getGroup(ctx, id)
		if err != nil {
			unlock()
			return domain.Group{}, nil, err
		}
		if current.ParentID == seen.ParentID {
			return current, unlock, nil
		}
		unlock()
	}
}

func (s *DirectoryService) getGroup(ctx context.Context, id string) (domain.Group, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return domain.Group{}, storageErr("get group", err)
	}
	return group, nil
}

// checkSiblingKey fails when a group other than excludeID already uses (label, type) under parentID.
func (s *DirectoryService) checkSiblingKey(ctx context.Context, parentID, label, groupType, excludeID string) error {
	siblings, err := s.groups.Children(ctx, parentID)
	if err != nil {
		return storageErr("list children", err)
	}
	for _, sibling := range siblings {
		if sibling.ID != excludeID && sibling.SameSiblingKey(label, groupType) {
			return &domain.DuplicateNameError{ParentID: parentID, Label: label, Type: groupType}
		}
	}
	return nil
}

// checkNotDescendant walks up from targetParentID and fails if it meets groupID.
func (s *DirectoryService) checkNotDescendant(ctx context.Context, groupID, targetParentID string) error {
	visited := make(map[string]bool)
	for id := targetParentID; id != ""; {
		if id == groupID || visited[id] {
			return &domain.CycleError{GroupID: groupID, TargetParentID: targetParentID}
		}
		visited[id] = true

		ancestor, err := s.getGroup(ctx, id)
		if err != nil {
			return fmt.Errorf("walking ancestors of %q: %w", targetParentID, err)
		}
		id = ancestor.ParentID
	}
	return nil
}

// directTx runs fn straight against the service repositories.
type directTx struct {
	groups      domain.GroupRepository
	memberships domain.MembershipRepository
}

func (t directTx) RunInTx(ctx context.Context, fn func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error) error {
	return fn(ctx, t.groups, t.memberships)
}

// storageErr wraps repository failures, letting domain conditions through untouched.
func storageErr(op string, err error) error {
	var (
		dup   *domain.DuplicateNameError
		amb   *domain.AmbiguousResultError
		unsup *domain.UnsupportedOperationError
		store *domain.StorageError
	)
	switch {
	case errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrMembershipNotFound),
		errors.As(err, &dup),
		errors.As(err, &amb),
		errors.As(err, &unsup),
		errors.As(err, &store):
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}
