package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

const userColumns = `id, email, password_hash, role, verified, verification_code, created_at, deleted_at`

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var code sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Verified, &code, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	u.VerificationCode = code.String
	return u, nil
}

// CreateUser creates a new user. An empty verification code means the
// account starts out verified.
func CreateUser(ctx context.Context, q db.Querier, email, passwordHash, role, verificationCode string) (*model.User, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, verified, verification_code) VALUES (?, ?, ?, ?, ?)`,
		email, passwordHash, role, verificationCode == "", nullString(verificationCode),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, q, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q db.Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the active user with the given email.
func GetUserByEmail(ctx context.Context, q db.Querier, email string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, q db.Querier) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func UpdateUserRole(ctx context.Context, q db.Querier, id int64, role string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, q db.Querier, id int64, passwordHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// VerifyUser marks the user verified if code matches the pending code.
// It reports whether the user is now verified.
func VerifyUser(ctx context.Context, q db.Querier, email, code string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET verified = 1, verification_code = NULL
		 WHERE email = ? AND verification_code = ? AND deleted_at IS NULL`,
		email, code,
	)
	if err != nil {
		return false, fmt.Errorf("verifying user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("verifying user: %w", err)
	}
	return n == 1, nil
}

// SetVerificationCode replaces the pending code of an unverified user. It
// reports whether a pending account was updated.
func SetVerificationCode(ctx context.Context, q db.Querier, id int64, code string) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET verification_code = ? WHERE id = ? AND verified = 0 AND deleted_at IS NULL`,
		code, id,
	)
	if err != nil {
		return false, fmt.Errorf("setting verification code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("setting verification code: %w", err)
	}
	return n == 1, nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
