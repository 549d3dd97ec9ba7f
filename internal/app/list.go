package app

import (
	"context"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// searchList is a domain.GroupList backed by repository searches.
// Nothing is fetched until Size or Load is called.
type searchList struct {
	repo   domain.GroupRepository
	filter domain.SearchFilter
}

var _ domain.GroupList = (*searchList)(nil)

func newSearchList(repo domain.GroupRepository, filter domain.SearchFilter) *searchList {
	return &searchList{repo: repo, filter: filter}
}

func (l *searchList) Size(ctx context.Context) (int, error) {
	n, err := l.repo.Count(ctx, l.filter)
	if err != nil {
		return 0, storageErr("count groups", err)
	}
	return n, nil
}

// Load fetches in pages of at most domain.MaxPageSize and stops early at the end of the results.
func (l *searchList) Load(ctx context.Context, index, length int) ([]domain.Group, error) {
	if index < 0 {
		return nil, &domain.ValidationError{Field: "index", Message: "must not be negative"}
	}
	if length < 0 {
		return nil, &domain.ValidationError{Field: "length", Message: "must not be negative"}
	}

	out := make([]domain.Group, 0, min(length, domain.MaxPageSize))
	for len(out) < length {
		want := min(length-len(out), domain.MaxPageSize)
		page, err := l.repo.Search(ctx, l.filter, domain.PageRequest{Offset: index + len(out), Limit: want})
		if err != nil {
			return nil, storageErr("search groups", err)
		}
		out = append(out, page...)
		if len(page) < want {
			break
		}
	}
	return out, nil
}
