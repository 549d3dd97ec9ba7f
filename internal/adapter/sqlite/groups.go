package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Compile-time check: GroupRepository implements domain.GroupRepository.
var _ domain.GroupRepository = (*GroupRepository)(nil)

const groupColumns = `id, parent_id, label, group_type, description, created_at, updated_at`

// GroupRepository implements domain.GroupRepository using SQLite.
type GroupRepository struct {
	db dbtx
}

// Capabilities reports that SQLite supports every optional operation.
func (r *GroupRepository) Capabilities() domain.Capabilities {
	return domain.Capabilities{Move: true, KeywordSearch: true}
}

func (r *GroupRepository) Create(ctx context.Context, g domain.Group) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO directory_groups (`+groupColumns+`, label_folded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.ParentID, g.Label, g.Type, g.Description,
		g.CreatedAt.Format(timeFormat),
		g.UpdatedAt.Format(timeFormat),
		foldLabel(g.Label),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.DuplicateNameError{ParentID: g.ParentID, Label: g.Label, Type: g.Type}
		}
		return fmt.Errorf("inserting group: %w", err)
	}
	return nil
}

// GetByID scans every matching row so a duplicated identifier surfaces as an
// *domain.AmbiguousResultError instead of silently picking one.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (domain.Group, error) {
	groups, err := r.query(ctx,
		`SELECT `+groupColumns+` FROM directory_groups WHERE id = ?`, id,
	)
	if err != nil {
		return domain.Group{}, err
	}

	switch len(groups) {
	case 0:
		return domain.Group{}, domain.ErrGroupNotFound
	case 1:
		return groups[0], nil
	default:
		return domain.Group{}, &domain.AmbiguousResultError{ID: id, Count: len(groups)}
	}
}

func (r *GroupRepository) Children(ctx context.Context, parentID string) ([]domain.Group, error) {
	return r.query(ctx,
		`SELECT `+groupColumns+` FROM directory_groups
		 WHERE parent_id = ? ORDER BY label, group_type`, parentID,
	)
}

func (r *GroupRepository) Update(ctx context.Context, g domain.Group) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE directory_groups SET label = ?, label_folded = ?, group_type = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		g.Label, foldLabel(g.Label), g.Type, g.Description,
		time.Now().UTC().Format(timeFormat), g.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.DuplicateNameError{ParentID: g.ParentID, Label: g.Label, Type: g.Type}
		}
		return fmt.Errorf("updating group: %w", err)
	}

	return requireRow(result, domain.ErrGroupNotFound)
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM directory_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting group: %w", err)
	}

	return requireRow(result, domain.ErrGroupNotFound)
}

// Relink only touches the row while it still hangs under oldParentID.
func (r *GroupRepository) Relink(ctx context.Context, id, oldParentID, newParentID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE directory_groups SET parent_id = ?, updated_at = ?
		 WHERE id = ? AND parent_id = ?`,
		newParentID, time.Now().UTC().Format(timeFormat), id, oldParentID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			dup := &domain.DuplicateNameError{ParentID: newParentID}
			if g, getErr := r.GetByID(ctx, id); getErr == nil {
				dup.Label, dup.Type = g.Label, g.Type
			}
			return dup
		}
		return fmt.Errorf("relinking group: %w", err)
	}

	return requireRow(result, domain.ErrGroupNotFound)
}

func (r *GroupRepository) All(ctx context.Context) ([]domain.Group, error) {
	return r.query(ctx,
		`SELECT `+groupColumns+` FROM directory_groups ORDER BY parent_id, label, group_type`,
	)
}

func (r *GroupRepository) Search(ctx context.Context, filter domain.SearchFilter, page domain.PageRequest) ([]domain.Group, error) {
	where, args := searchClause(filter)
	args = append(args, page.EffectiveLimit(), page.EffectiveOffset())

	return r.query(ctx,
		`SELECT `+groupColumns+` FROM directory_groups`+where+`
		 ORDER BY label, id LIMIT ? OFFSET ?`, args...,
	)
}

func (r *GroupRepository) Count(ctx context.Context, filter domain.SearchFilter) (int, error) {
	where, args := searchClause(filter)

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM directory_groups`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting groups: %w", err)
	}
	return n, nil
}

// searchClause builds the WHERE clause shared by Search and Count.
func searchClause(filter domain.SearchFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.ParentID != nil {
		conds = append(conds, `parent_id = ?`)
		args = append(args, *filter.ParentID)
	}
	if filter.Keyword != "" {
		conds = append(conds, `label_folded LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(foldLabel(filter.Keyword))+"%")
	}
	if filter.Type != "" {
		conds = append(conds, `group_type = ?`)
		args = append(args, filter.Type)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func (r *GroupRepository) query(ctx context.Context, query string, args ...any) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
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

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanGroup scans one row selected with groupColumns.
func scanGroup(s scanner) (domain.Group, error) {
	var g domain.Group
	var createdAt, updatedAt string

	err := s.Scan(&g.ID, &g.ParentID, &g.Label, &g.Type, &g.Description, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Group{}, domain.ErrGroupNotFound
		}
		return domain.Group{}, fmt.Errorf("scanning group: %w", err)
	}

	g.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	g.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return g, nil
}

// requireRow returns notFound when the statement touched no rows.
func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
