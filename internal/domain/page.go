package domain

import "context"

// DefaultPageSize is the page size used when none is specified.
const DefaultPageSize = 50

// MaxPageSize is the largest page a repository is asked for in one call.
const MaxPageSize = 500

// PageRequest holds offset pagination parameters.
type PageRequest struct {
	Offset int
	Limit  int
}

// EffectiveLimit returns the page size clamped to [1, MaxPageSize].
func (p PageRequest) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		return MaxPageSize
	}
	return p.Limit
}

// EffectiveOffset returns the offset, never negative.
func (p PageRequest) EffectiveOffset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}

// GroupList is a lazily loaded result set.
type GroupList interface {
	// Size returns the total number of groups in the list.
	Size(ctx context.Context) (int, error)
	// Load returns up to length groups starting at index.
	Load(ctx context.Context, index, length int) ([]Group, error)
}
