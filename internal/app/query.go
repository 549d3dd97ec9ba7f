package app

import (
	"context"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// FindGroupByMembership returns the groups where userName holds membershipType.
// An empty membershipType matches any type; "*" is matched literally.
func (s *DirectoryService) FindGroupByMembership(ctx context.Context, userName, membershipType string) ([]domain.Group, error) {
	groups, err := s.memberships.FindGroups(ctx, userName, membershipType)
	if err != nil {
		return nil, storageErr("find groups by membership", err)
	}
	return uniqueGroups(groups), nil
}

// ResolveGroupByMembership is FindGroupByMembership that also accepts
// domain.AnyMembershipType as a match-all token.
func (s *DirectoryService) ResolveGroupByMembership(ctx context.Context, userName, membershipType string) ([]domain.Group, error) {
	if membershipType == domain.AnyMembershipType {
		membershipType = ""
	}
	return s.FindGroupByMembership(ctx, userName, membershipType)
}

// FindGroupsOfUser returns every group in which the user holds at least one membership.
func (s *DirectoryService) FindGroupsOfUser(ctx context.Context, userName string) ([]domain.Group, error) {
	return s.FindGroupByMembership(ctx, userName, "")
}

// FindGroupsOfUserByKeyword narrows the user's groups to labels containing
// keyword and, when groupType is set, to that type.
func (s *DirectoryService) FindGroupsOfUserByKeyword(ctx context.Context, userName, keyword, groupType string) ([]domain.Group, error) {
	groups, err := s.FindGroupsOfUser(ctx, userName)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Group, 0, len(groups))
	for _, g := range groups {
		if groupType != "" && g.Type != groupType {
			continue
		}
		if g.MatchesKeyword(keyword) {
			out = append(out, g)
		}
	}
	return out, nil
}

// FindGroupsByKeyword returns a lazy list over every group whose label contains keyword.
func (s *DirectoryService) FindGroupsByKeyword(ctx context.Context, keyword string) (domain.GroupList, error) {
	if !s.groups.Capabilities().KeywordSearch {
		return nil, &domain.UnsupportedOperationError{Operation: "find groups by keyword"}
	}
	return newSearchList(s.groups, domain.SearchFilter{Keyword: keyword}), nil
}

// uniqueGroups drops repeated groups, keeping first occurrences. A user holding
// several membership types in one group yields that group once.
func uniqueGroups(groups []domain.Group) []domain.Group {
	seen := make(map[string]bool, len(groups))
	out := make([]domain.Group, 0, len(groups))
	for _, g := range groups {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		out = append(out, g)
	}
	return out
}
