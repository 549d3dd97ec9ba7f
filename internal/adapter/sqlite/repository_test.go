package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neomorfeo/groupdir/internal/adapter/sqlite"
	"github.com/neomorfeo/groupdir/internal/domain"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newGroup(id, parentID, label, groupType string) domain.Group {
	now := time.Now().UTC()
	g := domain.NewGroup(label, groupType, "")
	g.ID = id
	g.ParentID = parentID
	g.CreatedAt = now
	g.UpdatedAt = now
	return g
}

func mustCreate(t *testing.T, repo *sqlite.GroupRepository, g domain.Group) {
	t.Helper()
	if err := repo.Create(context.Background(), g); err != nil {
		t.Fatalf("mustCreate failed: %v", err)
	}
}

func TestCreate_And_GetByID(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()

	g := newGroup("g-1", "", "Sales", "department")
	g.Description = "Sales org"
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "g-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Label != "Sales" {
		t.Errorf("Label = %q, want %q", got.Label, "Sales")
	}
	if got.Type != "department" {
		t.Errorf("Type = %q, want %q", got.Type, "department")
	}
	if got.Description != "Sales org" {
		t.Errorf("Description = %q, want %q", got.Description, "Sales org")
	}
	if !got.IsRoot() {
		t.Errorf("ParentID = %q, want root", got.ParentID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).Groups()

	_, err := repo.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestCreate_DuplicateSibling(t *testing.T) {
	repo := newTestStore(t).Groups()
	mustCreate(t, repo, newGroup("p", "", "sales", ""))
	mustCreate(t, repo, newGroup("c-1", "p", "east", "region"))

	err := repo.Create(context.Background(), newGroup("c-2", "p", "east", "region"))
	var dupErr *domain.DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dupErr.ParentID != "p" {
		t.Errorf("ParentID = %q, want %q", dupErr.ParentID, "p")
	}
}

func TestCreate_DuplicateAtRoot(t *testing.T) {
	repo := newTestStore(t).Groups()
	mustCreate(t, repo, newGroup("a", "", "sales", ""))

	err := repo.Create(context.Background(), newGroup("b", "", "sales", ""))
	var dupErr *domain.DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("root siblings must be unique too, got %v", err)
	}
}

func TestChildren(t *testing.T) {
	repo := newTestStore(t).Groups()
	mustCreate(t, repo, newGroup("p", "", "sales", ""))
	mustCreate(t, repo, newGroup("c-2", "p", "west", ""))
	mustCreate(t, repo, newGroup("c-1", "p", "east", ""))
	mustCreate(t, repo, newGroup("gc", "c-1", "boston", ""))

	children, err := repo.Children(context.Background(), "p")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("got %d children, want 2", len(children))
	}
	if children[0].Label != "east" || children[1].Label != "west" {
		t.Errorf("children = [%s %s], want [east west]", children[0].Label, children[1].Label)
	}

	roots, err := repo.Children(context.Background(), "")
	if err != nil {
		t.Fatalf("Children(root) failed: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "p" {
		t.Errorf("roots = %+v, want only p", roots)
	}
}

func TestUpdate(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	g := newGroup("g-1", "", "sales", "")
	mustCreate(t, repo, g)

	g.Label = "sales-emea"
	g.Description = "EMEA"
	if err := repo.Update(ctx, g); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "g-1")
	if got.Label != "sales-emea" || got.Description != "EMEA" {
		t.Errorf("got %+v", got)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo := newTestStore(t).Groups()

	err := repo.Update(context.Background(), newGroup("ghost", "", "x", ""))
	if !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	mustCreate(t, repo, newGroup("g-1", "", "sales", ""))

	if err := repo.Delete(ctx, "g-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, "g-1"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "g-1"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("second delete: expected ErrGroupNotFound, got %v", err)
	}
}

func TestRelink(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	mustCreate(t, repo, newGroup("a", "", "a", ""))
	mustCreate(t, repo, newGroup("c", "", "c", ""))
	mustCreate(t, repo, newGroup("b", "a", "b", ""))

	if err := repo.Relink(ctx, "b", "a", "c"); err != nil {
		t.Fatalf("Relink failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, "b")
	if got.ParentID != "c" {
		t.Errorf("ParentID = %q, want %q", got.ParentID, "c")
	}
}

func TestRelink_StaleOrigin(t *testing.T) {
	repo := newTestStore(t).Groups()
	mustCreate(t, repo, newGroup("a", "", "a", ""))
	mustCreate(t, repo, newGroup("b", "a", "b", ""))

	err := repo.Relink(context.Background(), "b", "elsewhere", "")
	if !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestRelink_Duplicate(t *testing.T) {
	repo := newTestStore(t).Groups()
	mustCreate(t, repo, newGroup("a", "", "a", ""))
	mustCreate(t, repo, newGroup("b", "a", "east", ""))
	mustCreate(t, repo, newGroup("east-root", "", "east", ""))

	err := repo.Relink(context.Background(), "b", "a", "")
	var dupErr *domain.DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dupErr.Label != "east" {
		t.Errorf("Label = %q, want %q", dupErr.Label, "east")
	}
}

func TestSearch_KeywordAndPaging(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	for i := range 5 {
		mustCreate(t, repo, newGroup(fmt.Sprintf("t-%d", i), "", fmt.Sprintf("Team %d", i), ""))
	}
	mustCreate(t, repo, newGroup("o", "", "Other", ""))

	filter := domain.SearchFilter{Keyword: "team"}
	n, err := repo.Count(ctx, filter)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}

	page, err := repo.Search(ctx, filter, domain.PageRequest{Offset: 3, Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(page) != 2 || page[0].Label != "Team 3" || page[1].Label != "Team 4" {
		t.Errorf("page = %+v", page)
	}
}

func TestSearch_EscapesWildcards(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	mustCreate(t, repo, newGroup("a", "", "100% remote", ""))
	mustCreate(t, repo, newGroup("b", "", "1000 remote", ""))

	n, err := repo.Count(ctx, domain.SearchFilter{Keyword: "0%"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSearch_ParentAndType(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	mustCreate(t, repo, newGroup("p", "", "sales", ""))
	mustCreate(t, repo, newGroup("c-1", "p", "east", "region"))
	mustCreate(t, repo, newGroup("c-2", "p", "east", "team"))
	mustCreate(t, repo, newGroup("r", "", "east", "region"))

	parent := "p"
	got, err := repo.Search(ctx, domain.SearchFilter{ParentID: &parent, Keyword: "EA", Type: "region"}, domain.PageRequest{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c-1" {
		t.Errorf("got %+v, want only c-1", got)
	}
}

func TestMemberships_FindGroups(t *testing.T) {
	store := newTestStore(t)
	groups, memberships := store.Groups(), store.Memberships()
	ctx := context.Background()

	mustCreate(t, groups, newGroup("sales", "", "sales", ""))
	mustCreate(t, groups, newGroup("east", "sales", "east", ""))

	for _, m := range []domain.Membership{
		domain.NewMembership("m-1", "alice", "sales", "member"),
		domain.NewMembership("m-2", "alice", "sales", "manager"),
		domain.NewMembership("m-3", "alice", "east", "manager"),
		domain.NewMembership("m-4", "alice", "east", "manager"),
	} {
		if err := memberships.Add(ctx, m); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	all, err := memberships.FindGroups(ctx, "alice", "")
	if err != nil {
		t.Fatalf("FindGroups failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("any type: got %d groups, want 2", len(all))
	}

	managed, err := memberships.FindGroups(ctx, "alice", "manager")
	if err != nil {
		t.Fatalf("FindGroups failed: %v", err)
	}
	if len(managed) != 2 {
		t.Errorf("manager: got %d groups, want 2", len(managed))
	}

	members, err := memberships.FindGroups(ctx, "alice", "member")
	if err != nil {
		t.Fatalf("FindGroups failed: %v", err)
	}
	if len(members) != 1 || members[0].ID != "sales" {
		t.Errorf("member: got %+v, want only sales", members)
	}
}

func TestMemberships_DeleteByGroup(t *testing.T) {
	store := newTestStore(t)
	groups, memberships := store.Groups(), store.Memberships()
	ctx := context.Background()

	mustCreate(t, groups, newGroup("sales", "", "sales", ""))
	_ = memberships.Add(ctx, domain.NewMembership("m-1", "alice", "sales", "member"))
	_ = memberships.Add(ctx, domain.NewMembership("m-2", "bob", "sales", "member"))

	n, err := memberships.DeleteByGroup(ctx, "sales")
	if err != nil {
		t.Fatalf("DeleteByGroup failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	err = memberships.Remove(ctx, "alice", "sales", "member")
	if !errors.Is(err, domain.ErrMembershipNotFound) {
		t.Errorf("expected ErrMembershipNotFound, got %v", err)
	}
}

func TestSearch_FoldsNonASCIILabels(t *testing.T) {
	repo := newTestStore(t).Groups()
	ctx := context.Background()
	mustCreate(t, repo, newGroup("u", "", "Übersee", ""))
	mustCreate(t, repo, newGroup("o", "", "Overseas", ""))

	for _, keyword := range []string{"Über", "über", "ÜBER", "rsee"} {
		n, err := repo.Count(ctx, domain.SearchFilter{Keyword: keyword})
		if err != nil {
			t.Fatalf("Count(%q) failed: %v", keyword, err)
		}
		if n != 1 {
			t.Errorf("Count(%q) = %d, want 1", keyword, n)
		}
	}

	renamed := newGroup("u", "", "Ärzte", "")
	if err := repo.Update(ctx, renamed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.Search(ctx, domain.SearchFilter{Keyword: "ärz"}, domain.PageRequest{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u" {
		t.Errorf("got %+v, want only u", got)
	}
}

func TestFoldLabelFunction(t *testing.T) {
	store := newTestStore(t)

	var folded string
	err := store.DB().QueryRowContext(context.Background(), `SELECT fold_label(?)`, "ÜBERSEE Ärzte").Scan(&folded)
	if err != nil {
		t.Fatalf("fold_label failed: %v", err)
	}
	if folded != "übersee ärzte" {
		t.Errorf("fold_label = %q, want %q", folded, "übersee ärzte")
	}
}

func TestRunInTx_Commits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store.Groups(), newGroup("sales", "", "sales", ""))
	_ = store.Memberships().Add(ctx, domain.NewMembership("m-1", "alice", "sales", "member"))

	err := store.RunInTx(ctx, func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error {
		if err := groups.Delete(ctx, "sales"); err != nil {
			return err
		}
		_, err := memberships.DeleteByGroup(ctx, "sales")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx failed: %v", err)
	}

	if _, err := store.Groups().GetByID(ctx, "sales"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if err := store.Memberships().Remove(ctx, "alice", "sales", "member"); !errors.Is(err, domain.ErrMembershipNotFound) {
		t.Errorf("expected ErrMembershipNotFound, got %v", err)
	}
}

func TestRunInTx_RollsBackGroupDeleteWhenMembershipsFail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store.Groups(), newGroup("sales", "", "sales", ""))

	// Without the table the membership delete fails after the group row is gone.
	if _, err := store.DB().ExecContext(ctx, `DROP TABLE memberships`); err != nil {
		t.Fatalf("dropping memberships: %v", err)
	}

	err := store.RunInTx(ctx, func(ctx context.Context, groups domain.GroupRepository, memberships domain.MembershipRepository) error {
		if err := groups.Delete(ctx, "sales"); err != nil {
			return err
		}
		_, err := memberships.DeleteByGroup(ctx, "sales")
		return err
	})
	if err == nil {
		t.Fatal("expected membership delete to fail")
	}

	if _, err := store.Groups().GetByID(ctx, "sales"); err != nil {
		t.Errorf("group should survive the rolled back delete, got %v", err)
	}
}
