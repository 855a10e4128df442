package store

import (
	"database/sql"
	"fmt"

	"github.com/mwpeters/choretally/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, name, role, balance, active, created_at, updated_at`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var active int
	if err := s.Scan(&u.ID, &u.Name, &u.Role, &u.Balance, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Active = active != 0
	return &u, nil
}

func (s *UserStore) Create(name string, role model.Role) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (name, role) VALUES (?, ?)`,
		name, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) List() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) ListActive() ([]model.User, error) {
	rows, err := s.db.Query(`SELECT ` + userCols + ` FROM users WHERE active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) SetRole(id int64, role model.Role) error {
	_, err := s.db.Exec(
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(role), id,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

// Deactivate marks a user inactive. Users are never deleted; their history
// must stay resolvable.
func (s *UserStore) Deactivate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// AddToBalance shifts the stored balance by delta inside the caller's
// transaction. Always paired with a ledger append.
func (s *UserStore) AddToBalance(q DBTX, id int64, delta int) error {
	res, err := q.Exec(
		`UPDATE users SET balance = balance + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetBalance overwrites the stored balance. Only the audit job uses this,
// after recomputing from the ledger.
func (s *UserStore) SetBalance(q DBTX, id int64, balance int) error {
	_, err := q.Exec(
		`UPDATE users SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		balance, id,
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}
