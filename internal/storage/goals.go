package storage

import (
	"context"
	"fmt"

	"bilancio/internal/core"
)

const goalColumns = `id, user_id, name, target_cents, current_cents, deadline, created_at, updated_at`

func scanGoal(row interface{ Scan(...any) error }) (core.Goal, error) {
	var g core.Goal
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents,
		dateCol{&g.Deadline}, timeCol{&g.CreatedAt}, timeCol{&g.UpdatedAt})
	return g, err
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	now := s.now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	err := s.queryRow(ctx, s.db,
		`INSERT INTO goals (user_id, name, target_cents, current_cents, deadline, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		g.UserID, g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, dateArg(g.Deadline), timeArg(now), timeArg(now),
	).Scan(&g.ID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", classify(err))
	}
	return g, nil
}

func (s *Store) GetGoal(ctx context.Context, userID, id int64) (core.Goal, error) {
	g, err := scanGoal(s.queryRow(ctx, s.db, `SELECT `+goalColumns+` FROM goals WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal %d: %w", id, classify(err))
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID int64) ([]core.Goal, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGoal stores every editable field, including the saved amount.
func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	res, err := s.exec(ctx, s.db,
		`UPDATE goals SET name = ?, target_cents = ?, current_cents = ?, deadline = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, dateArg(g.Deadline), timeArg(s.now()), g.ID, g.UserID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal %d: %w", g.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return core.Goal{}, fmt.Errorf("update goal %d: %w", g.ID, err)
	}
	return s.GetGoal(ctx, g.UserID, g.ID)
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM goals WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete goal %d: %w", id, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete goal %d: %w", id, err)
	}
	return nil
}
