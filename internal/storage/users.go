package storage

import (
	"context"
	"fmt"
	"strings"

	"expensehub/internal/core"
)

func (r *SQLiteRepository) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, core.ErrEmptyUsername
	}
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id`,
		username, passwordHash).Scan(&id)
	if err != nil {
		return core.User{}, fmt.Errorf("create user %q: %w", username, err)
	}
	return r.UserByID(ctx, id)
}

func (r *SQLiteRepository) UserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return core.User{}, notFound(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

const tokenColumns = `id, key, user_id, organisation_id, site_token, created_at`

func scanToken(row interface{ Scan(...any) error }) (core.AuthToken, error) {
	var t core.AuthToken
	err := row.Scan(&t.ID, &t.Key, &t.UserID, &t.OrganisationID, &t.SiteToken, &t.CreatedAt)
	return t, err
}

// TokenByKey resolves a bearer key by exact match.
func (r *SQLiteRepository) TokenByKey(ctx context.Context, key string) (core.AuthToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM auth_tokens WHERE key = ?`, key))
	if err != nil {
		return core.AuthToken{}, notFound(err, "token")
	}
	return t, nil
}

func (r *SQLiteRepository) SiteTokenForUser(ctx context.Context, userID int64) (core.AuthToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM auth_tokens WHERE user_id = ? AND site_token = 1`, userID))
	if err != nil {
		return core.AuthToken{}, notFound(err, fmt.Sprintf("site token for user %d", userID))
	}
	return t, nil
}

// CreateToken inserts a token. For site tokens a concurrent insert for the
// same user is ignored and the caller is expected to look the token up again.
func (r *SQLiteRepository) CreateToken(ctx context.Context, t core.AuthToken) (core.AuthToken, error) {
	if t.SiteToken {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO auth_tokens (key, user_id, organisation_id, site_token) VALUES (?, ?, ?, 1)`,
			t.Key, t.UserID, t.OrganisationID)
		if err != nil {
			return core.AuthToken{}, fmt.Errorf("create site token: %w", err)
		}
		return r.SiteTokenForUser(ctx, t.UserID)
	}

	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auth_tokens (key, user_id, organisation_id, site_token) VALUES (?, ?, ?, 0) RETURNING id`,
		t.Key, t.UserID, t.OrganisationID).Scan(&id)
	if err != nil {
		return core.AuthToken{}, fmt.Errorf("create token: %w", err)
	}
	return r.tokenByID(ctx, id)
}

func (r *SQLiteRepository) tokenByID(ctx context.Context, id int64) (core.AuthToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM auth_tokens WHERE id = ?`, id))
	if err != nil {
		return core.AuthToken{}, notFound(err, fmt.Sprintf("token %d", id))
	}
	return t, nil
}
