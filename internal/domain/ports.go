package domain

import "context"

// GroupRepository defines the persistence contract for groups.
// An empty parent ID addresses the root level.
type GroupRepository interface {
	Create(ctx context.Context, group Group) error
	// GetByID returns ErrGroupNotFound when absent and *AmbiguousResultError
	// when more than one row carries the identifier.
	GetByID(ctx context.Context, id string) (Group, error)
	Children(ctx context.Context, parentID string) ([]Group, error)
	Update(ctx context.Context, group Group) error
	Delete(ctx context.Context, id string) error
	Relink(ctx context.Context, id, oldParentID, newParentID string) error
	All(ctx context.Context) ([]Group, error)
	Search(ctx context.Context, filter SearchFilter, page PageRequest) ([]Group, error)
	Count(ctx context.Context, filter SearchFilter) (int, error)
	Capabilities() Capabilities
}

// SearchFilter holds optional criteria for keyword searches.
type SearchFilter struct {
	ParentID *string // nil searches the whole namespace
	Keyword  string
	Type     string
}

// MembershipRepository defines the persistence contract for memberships.
type MembershipRepository interface {
	Add(ctx context.Context, membership Membership) error
	Remove(ctx context.Context, userName, groupID, membershipType string) error
	DeleteByGroup(ctx context.Context, groupID string) (int, error)
	// FindGroups returns the groups where the user holds membershipType.
	// An empty membershipType matches any type.
	FindGroups(ctx context.Context, userName, membershipType string) ([]Group, error)
}

// Transactor runs fn against repositories that share one atomic unit of work.
// fn's changes are kept only when it returns nil.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, groups GroupRepository, memberships MembershipRepository) error) error
}

// TransitionValidator checks mutation steps against MutationTransitions.
type TransitionValidator interface {
	// Can reports whether step is legal from current.
	Can(current MutationState, step MutationStep) bool
	Apply(ctx context.Context, current MutationState, step MutationStep) (MutationState, error)
}
