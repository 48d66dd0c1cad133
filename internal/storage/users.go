package storage

import (
	"context"
	"fmt"

	"bilancio/internal/core"
)

const userColumns = `id, name, email, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, timeCol{&u.CreatedAt})
	return u, err
}

// CreateUser inserts u; a duplicate email yields core.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = core.NormalizeEmail(u.Email)
	u.CreatedAt = s.now().UTC()
	err := s.queryRow(ctx, s.db,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, timeArg(u.CreatedAt),
	).Scan(&u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", classify(err))
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, classify(err))
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE email = ?`, core.NormalizeEmail(email)))
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", classify(err))
	}
	return u, nil
}
