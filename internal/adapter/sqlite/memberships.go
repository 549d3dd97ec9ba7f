package sqlite

import (
	"context"
	"fmt"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Compile-time check: MembershipRepository implements domain.MembershipRepository.
var _ domain.MembershipRepository = (*MembershipRepository)(nil)

// MembershipRepository implements domain.MembershipRepository using SQLite.
type MembershipRepository struct {
	db dbtx
}

// Add inserts a membership; an identical (user, group, type) row is left as is.
func (r *MembershipRepository) Add(ctx context.Context, m domain.Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, user_name, group_id, membership_type, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_name, group_id, membership_type) DO NOTHING`,
		m.ID, m.UserName, m.GroupID, m.Type, m.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}

func (r *MembershipRepository) Remove(ctx context.Context, userName, groupID, membershipType string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_name = ? AND group_id = ? AND membership_type = ?`,
		userName, groupID, membershipType,
	)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}

	return requireRow(result, domain.ErrMembershipNotFound)
}

func (r *MembershipRepository) DeleteByGroup(ctx context.Context, groupID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM memberships WHERE group_id = ?`, groupID)
	if err != nil {
		return 0, fmt.Errorf("deleting memberships of group: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(n), nil
}

// FindGroups joins memberships onto groups. Memberships whose group is gone are skipped.
func (r *MembershipRepository) FindGroups(ctx context.Context, userName, membershipType string) ([]domain.Group, error) {
	query := `SELECT DISTINCT g.id, g.parent_id, g.label, g.group_type, g.description, g.created_at, g.updated_at
		FROM directory_groups g
		JOIN memberships m ON m.group_id = g.id
		WHERE m.user_name = ?`
	args := []any{userName}

	if membershipType != "" {
		query += ` AND m.membership_type = ?`
		args = append(args, membershipType)
	}

	query += ` ORDER BY g.label, g.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding groups by membership: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}
