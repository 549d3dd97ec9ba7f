package domain

import (
	"strings"
	"time"
)

// AnyMembershipType is the explicit wildcard token matching every membership type.
// It is distinct from the empty string, which means no filter was given.
const AnyMembershipType = "*"

// Group is a node in the organizational hierarchy.
type Group struct {
	ID          string
	ParentID    string // empty for root-level groups
	Label       string
	Type        string
	Description string
	ChildIDs    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewGroup returns an unsaved group. The ID and parent are assigned on creation.
func NewGroup(label, groupType, description string) Group {
	return Group{
		Label:       label,
		Type:        groupType,
		Description: description,
	}
}

// IsRoot reports whether the group sits at the top of the tree.
func (g Group) IsRoot() bool {
	return g.ParentID == ""
}

// SameSiblingKey reports whether g and other would collide under the same parent.
func (g Group) SameSiblingKey(label, groupType string) bool {
	return g.Label == label && g.Type == groupType
}

// MatchesKeyword reports whether the label contains keyword, ignoring case.
// An empty keyword matches everything.
func (g Group) MatchesKeyword(keyword string) bool {
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(g.Label), strings.ToLower(keyword))
}

// Membership associates a user with a group under a named type.
type Membership struct {
	ID        string
	UserName  string
	GroupID   string
	Type      string
	CreatedAt time.Time
}

// NewMembership creates a membership record stamped with the current time.
func NewMembership(id, userName, groupID, membershipType string) Membership {
	return Membership{
		ID:        id,
		UserName:  userName,
		GroupID:   groupID,
		Type:      membershipType,
		CreatedAt: time.Now().UTC(),
	}
}

// Capabilities reports which optional operations a repository supports.
type Capabilities struct {
	Move          bool
	KeywordSearch bool
}
