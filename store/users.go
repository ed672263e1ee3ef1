package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"teletable/auth"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
}

func (db *DB) CreateUser(u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := db.Exec(db.Q(`INSERT INTO users (id, name, email, password_hash, role) VALUES (?, ?, ?, ?, ?)`),
		u.ID.String(), u.Name, u.Email, u.PasswordHash, string(u.Role))
	return err
}

func (db *DB) GetUserByEmail(email string) (*User, error) {
	return db.getUser(`SELECT id, name, email, password_hash, role, created_at FROM users WHERE email=?`, email)
}

func (db *DB) GetUserByID(id uuid.UUID) (*User, error) {
	return db.getUser(`SELECT id, name, email, password_hash, role, created_at FROM users WHERE id=?`, id.String())
}

func (db *DB) getUser(query string, arg any) (*User, error) {
	var u User
	var id, role string
	var createdAt any
	err := db.QueryRow(db.Q(query), arg).
		Scan(&id, &u.Name, &u.Email, &u.PasswordHash, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (db *DB) ListUsers() ([]User, error) {
	rows, err := db.Query(`SELECT id, name, email, password_hash, role, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var id, role string
		var createdAt any
		if err := rows.Scan(&id, &u.Name, &u.Email, &u.PasswordHash, &role, &createdAt); err != nil {
			return nil, err
		}
		u.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		u.Role = auth.Role(role)
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserRole changes a user's role.
func (db *DB) UpdateUserRole(id uuid.UUID, role auth.Role) error {
	res, err := db.Exec(db.Q(`UPDATE users SET role=? WHERE id=?`), string(role), id.String())
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (db *DB) DeleteUser(id uuid.UUID) error {
	res, err := db.Exec(db.Q(`DELETE FROM users WHERE id=?`), id.String())
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (db *DB) UserCount() (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// parseTime converts a scanned timestamp to time.Time. SQLite hands back
// strings, Postgres hands back time.Time.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{
			"2006-01-02 15:04:05",
			time.RFC3339,
			time.RFC3339Nano,
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}
}
