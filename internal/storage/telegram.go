package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bilancio/internal/core"
)

const linkColumns = `user_id, chat_id, verification_code, code_expires_at, verified_at`

func scanLink(row interface{ Scan(...any) error }) (core.TelegramLink, error) {
	var (
		l    core.TelegramLink
		code *string
	)
	err := row.Scan(&l.UserID, idCol{&l.ChatID}, &code, timeCol{&l.CodeExpiresAt}, timeCol{&l.VerifiedAt})
	if code != nil {
		l.VerificationCode = *code
	}
	return l, err
}

// SetVerificationCode stores a fresh code for userID, replacing any
// previous one. An existing chat link is kept until the code is used.
// A code still live at now for another user yields core.ErrConflict.
func (s *Store) SetVerificationCode(ctx context.Context, userID int64, code string, now, expiresAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// expired codes do not hold the unique slot
		if _, err := s.exec(ctx, tx,
			`UPDATE telegram_links SET verification_code = NULL, code_expires_at = NULL
			 WHERE verification_code = ? AND code_expires_at <= ?`,
			code, timeArg(now)); err != nil {
			return fmt.Errorf("expire verification code: %w", classify(err))
		}
		if _, err := s.exec(ctx, tx,
			`INSERT INTO telegram_links (user_id, verification_code, code_expires_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET verification_code = excluded.verification_code,
				code_expires_at = excluded.code_expires_at`,
			userID, code, timeArg(expiresAt)); err != nil {
			return fmt.Errorf("set verification code: %w", classify(err))
		}
		return nil
	})
}

func (s *Store) GetTelegramLink(ctx context.Context, userID int64) (core.TelegramLink, error) {
	l, err := scanLink(s.queryRow(ctx, s.db, `SELECT `+linkColumns+` FROM telegram_links WHERE user_id = ?`, userID))
	if err != nil {
		return core.TelegramLink{}, fmt.Errorf("get telegram link: %w", classify(err))
	}
	return l, nil
}

// GetTelegramLinkByChat returns the verified link for chatID.
func (s *Store) GetTelegramLinkByChat(ctx context.Context, chatID int64) (core.TelegramLink, error) {
	l, err := scanLink(s.queryRow(ctx, s.db,
		`SELECT `+linkColumns+` FROM telegram_links WHERE chat_id = ? AND verified_at IS NOT NULL`, chatID))
	if err != nil {
		return core.TelegramLink{}, fmt.Errorf("get telegram link by chat: %w", classify(err))
	}
	return l, nil
}

// VerifyTelegramCode binds chatID to the user owning an unexpired code.
// Unknown or expired codes yield core.ErrNotFound. A chat previously
// linked to another user is moved.
func (s *Store) VerifyTelegramCode(ctx context.Context, code string, chatID int64, now time.Time) (int64, error) {
	var userID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.queryRow(ctx, tx,
			`SELECT user_id FROM telegram_links WHERE verification_code = ? AND code_expires_at > ?`,
			code, timeArg(now),
		).Scan(&userID); err != nil {
			return fmt.Errorf("verify telegram code: %w", classify(err))
		}

		if _, err := s.exec(ctx, tx,
			`UPDATE telegram_links SET chat_id = NULL, verified_at = NULL WHERE chat_id = ? AND user_id <> ?`,
			chatID, userID); err != nil {
			return fmt.Errorf("release telegram chat: %w", classify(err))
		}
		if _, err := s.exec(ctx, tx,
			`UPDATE telegram_links SET chat_id = ?, verified_at = ?, verification_code = NULL, code_expires_at = NULL
			 WHERE user_id = ?`,
			chatID, timeArg(now), userID); err != nil {
			return fmt.Errorf("link telegram chat: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (s *Store) DeleteTelegramLink(ctx context.Context, userID int64) error {
	res, err := s.exec(ctx, s.db, `DELETE FROM telegram_links WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete telegram link: %w", classify(err))
	}
	if err := checkAffected(res); err != nil {
		return fmt.Errorf("delete telegram link: %w", err)
	}
	return nil
}

// ListTelegramLinks returns every verified link.
func (s *Store) ListTelegramLinks(ctx context.Context) ([]core.TelegramLink, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT `+linkColumns+` FROM telegram_links WHERE chat_id IS NOT NULL AND verified_at IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list telegram links: %w", err)
	}
	defer rows.Close()

	var out []core.TelegramLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan telegram link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
