package repository

import (
	"context"
	"database/sql"
	"strings"

	"school-library/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,full_name,role,class_name,password_hash,is_active,created_at,updated_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var className sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Role,
		&className, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if className.Valid {
		cn := className.String
		u.ClassName = &cn
	}
	return u, nil
}

// Create inserts a user and returns its ID.  The password must already be
// hashed by the caller.  Duplicate username or email maps to
// ErrUsernameExists via the MySQL duplicate-key error code.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, full_name, role, class_name, password_hash, is_active) VALUES (?,?,?,?,?,?,?)",
		u.Username, u.Email, u.FullName, u.Role, u.ClassName, u.PasswordHash, u.IsActive)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by exact username.  Lookups are
// case-sensitive on purpose; login does not normalize usernames.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE BINARY username=? LIMIT 1", username)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// List returns users ordered by username, optionally filtered by role.
func (r *UserRepo) List(ctx context.Context, role string, skip, limit int) ([]model.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	args := make([]any, 0, 3)
	if role != "" {
		q += " WHERE role=?"
		args = append(args, role)
	}
	q += " ORDER BY username LIMIT ? OFFSET ?"
	args = append(args, limit, skip)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update rewrites the mutable fields of a user.  The caller (handler layer)
// decides which fields the acting principal may change; the repository
// persists the whole record.
func (r *UserRepo) Update(ctx context.Context, u model.User) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username=?, email=?, full_name=?, role=?, class_name=?, is_active=? WHERE id=?",
		u.Username, u.Email, u.FullName, u.Role, u.ClassName, u.IsActive, u.ID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrUsernameExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		// The row may exist with identical values; confirm existence.
		var id uint64
		if err2 := r.DB.QueryRowContext(ctx, "SELECT id FROM users WHERE id=?", u.ID).Scan(&id); err2 != nil {
			return err2
		}
	}
	return err
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	return err
}

// Delete removes a user.  It fails with ErrHasLoans while any loan,
// returned or not, references the user: loan history must stay intact.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loans WHERE user_id=?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrHasLoans
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByRole returns the number of users per role for the dashboard.
func (r *UserRepo) CountByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}
