package storage

import (
	"context"
	"fmt"

	"bilancio/internal/core"
)

const bankColumns = `id, user_id, name, balance_cents, created_at, updated_at`

func scanBank(row interface{ Scan(...any) error }) (core.Bank, error) {
	var b core.Bank
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Balance.Cents, timeCol{&b.CreatedAt}, timeCol{&b.UpdatedAt})
	return b, err
}

func (s *Store) CreateBank(ctx context.Context, b core.Bank) (core.Bank, error) {
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	err := s.queryRow(ctx, s.db,
		`INSERT INTO banks (user_id, name, balance_cents, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		b.UserID, b.Name, b.Balance.Cents, timeArg(now), timeArg(now),
	).Scan(&b.ID)
	if err != nil {
		return core.Bank{}, fmt.Errorf("create bank: %w", classify(err))
	}
	return b, nil
}

// GetBank returns the bank only if it belongs to userID.
func (s *Store) GetBank(ctx context.Context, userID, id int64) (core.Bank, error) {
	b, err := scanBank(s.queryRow(ctx, s.db,
		`SELECT `+bankColumns+` FROM banks WHERE id = ? AND user_id = ?`, id, userID))
	if err != nil {
		return core.Bank{}, fmt.Errorf("get bank %d: %w", id, classify(err))
	}
	return b, nil
}

func (s *Store) ListBanks(ctx context.Context, userID int64) ([]core.Bank, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+bankColumns+` FROM banks WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	banks := []core.Bank{}
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// UpdateBank replaces name and balance and bumps updated_at.
func (s *Store) UpdateBank(ctx context.Context, b core.Bank) (core.Bank, error) {
	b.UpdatedAt = s.now().UTC()
	res, err := s.exec(ctx, s.db,
		`UPDATE banks SET name = ?, balance_cents = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		b.Name, b.Balance.Cents, timeArg(b.UpdatedAt), b.ID, b.UserID)
	if err != nil {
		return core.Bank{}, fmt.Errorf("update bank %d: %w", b.ID, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return core.Bank{}, fmt.Errorf("update bank %d: %w", b.ID, err)
	}
	return s.GetBank(ctx, b.UserID, b.ID)
}

func (s *Store) DeleteBank(ctx context.Context, userID, id int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM banks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete bank %d: %w", id, classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete bank %d: %w", id, err)
	}
	return nil
}
