package storage

import (
	"context"
	"fmt"

	"bilancio/internal/core"
)

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := s.queryRow(ctx, s.db,
		`INSERT INTO categories (user_id, name, type) VALUES (?, ?, ?) RETURNING id`,
		c.UserID, c.Name, string(c.Type),
	).Scan(&c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", classify(err))
	}
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, userID, id int64) (core.Category, error) {
	var c core.Category
	err := s.queryRow(ctx, s.db,
		`SELECT id, user_id, name, type FROM categories WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Type)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, classify(err))
	}
	return c, nil
}

// ListCategories returns the user's categories, optionally restricted to
// one kind when kind is non-empty.
func (s *Store) ListCategories(ctx context.Context, userID int64, kind core.EntryKind) ([]core.Category, error) {
	q := `SELECT id, user_id, name, type FROM categories WHERE user_id = ?`
	args := []any{userID}
	if kind != "" {
		q += ` AND type = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY type, name`

	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategory renames a category. The type is immutable.
func (s *Store) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := s.exec(ctx, s.db,
		`UPDATE categories SET name = ? WHERE id = ? AND user_id = ?`, c.Name, c.ID, c.UserID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return s.GetCategory(ctx, c.UserID, c.ID)
}

// DeleteCategory fails with core.ErrConflict while transactions still
// reference the category.
func (s *Store) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

func (s *Store) CreateSubCategory(ctx context.Context, sc core.SubCategory) (core.SubCategory, error) {
	err := s.queryRow(ctx, s.db,
		`INSERT INTO subcategories (category_id, name) VALUES (?, ?) RETURNING id`,
		sc.CategoryID, sc.Name,
	).Scan(&sc.ID)
	if err != nil {
		return core.SubCategory{}, fmt.Errorf("create subcategory: %w", classify(err))
	}
	return sc, nil
}

// GetSubCategory returns a subcategory whose parent belongs to userID.
func (s *Store) GetSubCategory(ctx context.Context, userID, id int64) (core.SubCategory, error) {
	var sc core.SubCategory
	err := s.queryRow(ctx, s.db,
		`SELECT s.id, s.category_id, s.name FROM subcategories s
		 JOIN categories c ON c.id = s.category_id
		 WHERE s.id = ? AND c.user_id = ?`, id, userID,
	).Scan(&sc.ID, &sc.CategoryID, &sc.Name)
	if err != nil {
		return core.SubCategory{}, fmt.Errorf("get subcategory %d: %w", id, classify(err))
	}
	return sc, nil
}

func (s *Store) ListSubCategories(ctx context.Context, categoryID int64) ([]core.SubCategory, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT id, category_id, name FROM subcategories WHERE category_id = ? ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	defer rows.Close()

	out := []core.SubCategory{}
	for rows.Next() {
		var sc core.SubCategory
		if err := rows.Scan(&sc.ID, &sc.CategoryID, &sc.Name); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSubCategory(ctx context.Context, userID, id int64) error {
	res, err := s.exec(ctx, s.db,
		`DELETE FROM subcategories WHERE id = ? AND category_id IN (SELECT id FROM categories WHERE user_id = ?)`,
		id, userID)
	if err != nil {
		return fmt.Errorf("delete subcategory %d: %w", id, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete subcategory %d: %w", id, err)
	}
	return nil
}
