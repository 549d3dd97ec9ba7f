package app_test

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// --- Mocks ---

type mockGroupRepo struct {
	mu     sync.Mutex
	groups map[string]domain.Group
	caps   domain.Capabilities

	// duplicateIDs makes GetByID report an integrity fault for these ids.
	duplicateIDs map[string]bool
	// failWith is returned by every call when set.
	failWith error
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{
		groups:       make(map[string]domain.Group),
		caps:         domain.Capabilities{Move: true, KeywordSearch: true},
		duplicateIDs: make(map[string]bool),
	}
}

func (m *mockGroupRepo) Create(_ context.Context, g domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) GetByID(_ context.Context, id string) (domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.Group{}, m.failWith
	}
	if m.duplicateIDs[id] {
		return domain.Group{}, &domain.AmbiguousResultError{ID: id, Count: 2}
	}
	g, ok := m.groups[id]
	if !ok {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	return g, nil
}

func (m *mockGroupRepo) Children(_ context.Context, parentID string) ([]domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []domain.Group
	for _, g := range m.groups {
		if g.ParentID == parentID {
			out = append(out, g)
		}
	}
	sortByLabel(out)
	return out, nil
}

func (m *mockGroupRepo) Update(_ context.Context, g domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.groups[g.ID]; !ok {
		return domain.ErrGroupNotFound
	}
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.groups[id]; !ok {
		return domain.ErrGroupNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *mockGroupRepo) Relink(_ context.Context, id, oldParentID, newParentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	g, ok := m.groups[id]
	if !ok || g.ParentID != oldParentID {
		return domain.ErrGroupNotFound
	}
	g.ParentID = newParentID
	m.groups[id] = g
	return nil
}

func (m *mockGroupRepo) All(_ context.Context) ([]domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sortByLabel(out)
	return out, nil
}

func (m *mockGroupRepo) Search(ctx context.Context, filter domain.SearchFilter, page domain.PageRequest) ([]domain.Group, error) {
	matches := m.matching(filter)
	offset := page.EffectiveOffset()
	if offset >= len(matches) {
		return nil, nil
	}
	end := min(offset+page.EffectiveLimit(), len(matches))
	return matches[offset:end], nil
}

func (m *mockGroupRepo) Count(_ context.Context, filter domain.SearchFilter) (int, error) {
	return len(m.matching(filter)), nil
}

func (m *mockGroupRepo) Capabilities() domain.Capabilities {
	return m.caps
}

func (m *mockGroupRepo) matching(filter domain.SearchFilter) []domain.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Group
	for _, g := range m.groups {
		if filter.ParentID != nil && g.ParentID != *filter.ParentID {
			continue
		}
		if filter.Type != "" && g.Type != filter.Type {
			continue
		}
		if g.MatchesKeyword(filter.Keyword) {
			out = append(out, g)
		}
	}
	sortByLabel(out)
	return out
}

func sortByLabel(groups []domain.Group) {
	slices.SortFunc(groups, func(a, b domain.Group) int {
		return strings.Compare(a.Label, b.Label)
	})
}

type mockMembershipRepo struct {
	mu          sync.Mutex
	memberships []domain.Membership
	groups      *mockGroupRepo

	// failDelete is returned by DeleteByGroup when set.
	failDelete error
}

func newMockMembershipRepo(groups *mockGroupRepo) *mockMembershipRepo {
	return &mockMembershipRepo{groups: groups}
}

func (m *mockMembershipRepo) Add(_ context.Context, ms domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.memberships {
		if existing.UserName == ms.UserName && existing.GroupID == ms.GroupID && existing.Type == ms.Type {
			return nil
		}
	}
	m.memberships = append(m.memberships, ms)
	return nil
}

func (m *mockMembershipRepo) Remove(_ context.Context, userName, groupID, membershipType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.memberships)
	m.memberships = slices.DeleteFunc(m.memberships, func(ms domain.Membership) bool {
		return ms.UserName == userName && ms.GroupID == groupID && ms.Type == membershipType
	})
	if len(m.memberships) == before {
		return domain.ErrMembershipNotFound
	}
	return nil
}

func (m *mockMembershipRepo) DeleteByGroup(_ context.Context, groupID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return 0, m.failDelete
	}
	before := len(m.memberships)
	m.memberships = slices.DeleteFunc(m.memberships, func(ms domain.Membership) bool {
		return ms.GroupID == groupID
	})
	return before - len(m.memberships), nil
}

func (m *mockMembershipRepo) FindGroups(ctx context.Context, userName, membershipType string) ([]domain.Group, error) {
	m.mu.Lock()
	var ids []string
	for _, ms := range m.memberships {
		if ms.UserName == userName && (membershipType == "" || ms.Type == membershipType) {
			ids = append(ids, ms.GroupID)
		}
	}
	m.mu.Unlock()

	var out []domain.Group
	for _, id := range ids {
		g, err := m.groups.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *mockMembershipRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memberships)
}

// mockTransactor snapshots both mocks and restores them when fn fails.
type mockTransactor struct {
	groups      *mockGroupRepo
	memberships *mockMembershipRepo
	calls       int
}

func (m *mockTransactor) RunInTx(ctx context.Context, fn func(context.Context, domain.GroupRepository, domain.MembershipRepository) error) error {
	m.calls++

	m.groups.mu.Lock()
	groups := maps.Clone(m.groups.groups)
	m.groups.mu.Unlock()
	m.memberships.mu.Lock()
	memberships := slices.Clone(m.memberships.memberships)
	m.memberships.mu.Unlock()

	if err := fn(ctx, m.groups, m.memberships); err != nil {
		m.groups.mu.Lock()
		m.groups.groups = groups
		m.groups.mu.Unlock()
		m.memberships.mu.Lock()
		m.memberships.memberships = memberships
		m.memberships.mu.Unlock()
		return err
	}
	return nil
}

// tableValidator walks domain.MutationTransitions directly.
type tableValidator struct{}

func (tableValidator) Can(current domain.MutationState, step domain.MutationStep) bool {
	for _, t := range domain.MutationTransitions {
		if t.Step == step && t.Src == current {
			return true
		}
	}
	return false
}

func (tableValidator) Apply(_ context.Context, current domain.MutationState, step domain.MutationStep) (domain.MutationState, error) {
	for _, t := range domain.MutationTransitions {
		if t.Step == step && t.Src == current {
			return t.Dst, nil
		}
	}
	return "", &domain.ValidationError{Field: "step", Message: string(step) + " from " + string(current)}
}

type recordingListener struct {
	mu     sync.Mutex
	name   string
	events []domain.GroupEvent
	log    *[]string
	failOn domain.Phase
}

func (l *recordingListener) OnEvent(_ context.Context, e domain.GroupEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if l.log != nil {
		*l.log = append(*l.log, l.name+":"+string(e.Phase))
	}
	if l.failOn != "" && l.failOn == e.Phase {
		return errRejected
	}
	return nil
}

func (l *recordingListener) received() []domain.GroupEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// listenerFunc is a func-kind listener; func values are not comparable.
type listenerFunc func(ctx context.Context, e domain.GroupEvent) error

func (f listenerFunc) OnEvent(ctx context.Context, e domain.GroupEvent) error {
	return f(ctx, e)
}
