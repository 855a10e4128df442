package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

const choreCols = `id, name, description, points, recurrence_rule, assignment_mode,
	requires_approval, allow_late_claims, late_points, auto_approve_after_hours,
	active, start_date, end_date, created_at, updated_at`

func scanChore(s scanner) (*model.Chore, error) {
	var c model.Chore
	var requiresApproval, allowLate, active int
	var latePoints, autoApprove sql.NullInt64
	var startDate, endDate sql.NullTime

	err := s.Scan(
		&c.ID, &c.Name, &c.Description, &c.Points, &c.RecurrenceRule, &c.AssignmentMode,
		&requiresApproval, &allowLate, &latePoints, &autoApprove,
		&active, &startDate, &endDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.RequiresApproval = requiresApproval != 0
	c.AllowLateClaims = allowLate != 0
	c.Active = active != 0
	if latePoints.Valid {
		v := int(latePoints.Int64)
		c.LatePoints = &v
	}
	if autoApprove.Valid {
		v := int(autoApprove.Int64)
		c.AutoApproveAfterHours = &v
	}
	if startDate.Valid {
		t := startDate.Time
		c.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		c.EndDate = &t
	}
	return &c, nil
}

// ChoreParams carries the mutable chore definition fields.
type ChoreParams struct {
	Name                  string
	Description           string
	Points                int
	RecurrenceRule        string
	AssignmentMode        model.AssignmentMode
	RequiresApproval      bool
	AllowLateClaims       bool
	LatePoints            *int
	AutoApproveAfterHours *int
	StartDate             *time.Time
	EndDate               *time.Time
}

func (s *ChoreStore) Create(p ChoreParams) (*model.Chore, error) {
	result, err := s.db.Exec(
		`INSERT INTO chores (name, description, points, recurrence_rule, assignment_mode,
			requires_approval, allow_late_claims, late_points, auto_approve_after_hours,
			start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Points, p.RecurrenceRule, string(p.AssignmentMode),
		boolToInt(p.RequiresApproval), boolToInt(p.AllowLateClaims),
		nullInt(p.LatePoints), nullInt(p.AutoApproveAfterHours),
		nullTime(p.StartDate), nullTime(p.EndDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) GetByID(id int64) (*model.Chore, error) {
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) List() ([]model.Chore, error) {
	return s.list(`SELECT ` + choreCols + ` FROM chores ORDER BY name ASC`)
}

// ListActive returns chores the instance generator should expand.
func (s *ChoreStore) ListActive() ([]model.Chore, error) {
	return s.list(`SELECT ` + choreCols + ` FROM chores WHERE active = 1 ORDER BY name ASC`)
}

func (s *ChoreStore) list(query string, args ...any) ([]model.Chore, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// Update rewrites the mutable definition fields. Existing instances are left
// untouched; edits only affect instances generated afterwards.
func (s *ChoreStore) Update(id int64, p ChoreParams) (*model.Chore, error) {
	_, err := s.db.Exec(
		`UPDATE chores SET name = ?, description = ?, points = ?, recurrence_rule = ?,
			assignment_mode = ?, requires_approval = ?, allow_late_claims = ?,
			late_points = ?, auto_approve_after_hours = ?, start_date = ?, end_date = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.Name, p.Description, p.Points, p.RecurrenceRule, string(p.AssignmentMode),
		boolToInt(p.RequiresApproval), boolToInt(p.AllowLateClaims),
		nullInt(p.LatePoints), nullInt(p.AutoApproveAfterHours),
		nullTime(p.StartDate), nullTime(p.EndDate), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChoreStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(
		`UPDATE chores SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("set chore active: %w", err)
	}
	return nil
}

// --- Assignment methods ---

// SetAssignments replaces the individual-mode assignment set for a chore.
func (s *ChoreStore) SetAssignments(choreID int64, userIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chore_assignments WHERE chore_id = ?`, choreID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	for _, uid := range userIDs {
		if _, err := tx.Exec(
			`INSERT INTO chore_assignments (chore_id, user_id) VALUES (?, ?)`,
			choreID, uid,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return tx.Commit()
}

// ListAssignedUserIDs returns the users bound to a chore, ordered by id.
func (s *ChoreStore) ListAssignedUserIDs(choreID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT user_id FROM chore_assignments WHERE chore_id = ? ORDER BY user_id ASC`,
		choreID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
