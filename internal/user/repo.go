package user

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	Nickname     string `db:"nickname" json:"nickname"`
}

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Insert(username, hashedPassword, nickname string) error {
	query := "INSERT INTO users (username, password_hash, nickname) VALUES (?, ?, ?)"
	_, err := r.db.Exec(query, username, hashedPassword, nickname)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *Repo) FindByUsername(username string) (*User, error) {
	var u User
	query := "SELECT id, username, password_hash, nickname FROM users WHERE username = ?"
	err := r.db.Get(&u, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &u, nil
}

func (r *Repo) FindByID(id int64) (*User, error) {
	var u User
	query := "SELECT id, username, password_hash, nickname FROM users WHERE id = ?"
	err := r.db.Get(&u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &u, nil
}

// FindByGroupIDs returns every user whose group memberships intersect ids.
// An empty id set matches nobody.
func (r *Repo) FindByGroupIDs(ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		"SELECT DISTINCT u.id, u.username, u.password_hash, u.nickname FROM users u JOIN user_groups ug ON ug.user_id = u.id WHERE ug.group_id IN (?)",
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("build users-by-groups query: %w", err)
	}
	var users []User
	if err := r.db.Select(&users, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get users by group ids: %w", err)
	}
	return users, nil
}

// GroupIDs returns the group memberships of one user.
func (r *Repo) GroupIDs(userID int64) ([]int64, error) {
	var ids []int64
	query := "SELECT group_id FROM user_groups WHERE user_id = ?"
	if err := r.db.Select(&ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get group ids for user: %w", err)
	}
	return ids, nil
}
