package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

type InstanceStore struct {
	db *sql.DB
}

func NewInstanceStore(db *sql.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

const instanceCols = `id, chore_id, due_date, assigned_to, status, claimed_by, claimed_at,
	claimed_late, approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
	points_awarded, created_at, updated_at`

func scanInstance(s scanner) (*model.ChoreInstance, error) {
	var in model.ChoreInstance
	var dueDate, claimedAt, approvedAt, rejectedAt sql.NullTime
	var assignedTo, claimedBy, approvedBy, rejectedBy, pointsAwarded sql.NullInt64
	var claimedLate int

	err := s.Scan(
		&in.ID, &in.ChoreID, &dueDate, &assignedTo, &in.Status, &claimedBy, &claimedAt,
		&claimedLate, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &in.RejectionReason,
		&pointsAwarded, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	in.ClaimedLate = claimedLate != 0
	if dueDate.Valid {
		t := dueDate.Time
		in.DueDate = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		in.ClaimedAt = &t
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		in.ApprovedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		in.RejectedAt = &t
	}
	if assignedTo.Valid {
		in.AssignedTo = &assignedTo.Int64
	}
	if claimedBy.Valid {
		in.ClaimedBy = &claimedBy.Int64
	}
	if approvedBy.Valid {
		in.ApprovedBy = &approvedBy.Int64
	}
	if rejectedBy.Valid {
		in.RejectedBy = &rejectedBy.Int64
	}
	if pointsAwarded.Valid {
		v := int(pointsAwarded.Int64)
		in.PointsAwarded = &v
	}
	return &in, nil
}

func (s *InstanceStore) Create(q DBTX, choreID int64, dueDate *time.Time, assignedTo *int64) (*model.ChoreInstance, error) {
	result, err := q.Exec(
		`INSERT INTO chore_instances (chore_id, due_date, assigned_to) VALUES (?, ?, ?)`,
		choreID, nullTime(dueDate), nullInt64(assignedTo),
	)
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := q.QueryRow(`SELECT `+instanceCols+` FROM chore_instances WHERE id = ?`, id)
	in, err := scanInstance(row)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return in, nil
}

func (s *InstanceStore) GetByID(id int64) (*model.ChoreInstance, error) {
	row := s.db.QueryRow(`SELECT `+instanceCols+` FROM chore_instances WHERE id = ?`, id)
	in, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return in, nil
}

// ExistsForUserDate reports whether an instance exists for (chore, user, due
// date). Generation idempotency for individual-mode chores.
func (s *InstanceStore) ExistsForUserDate(choreID, userID int64, due time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chore_instances WHERE chore_id = ? AND assigned_to = ? AND due_date = ?`,
		choreID, userID, due,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check instance exists: %w", err)
	}
	return n > 0, nil
}

// ExistsForDate reports whether any instance exists for (chore, due date),
// whatever its assignee or status. Generation idempotency for shared chores:
// a claimed shared instance carries an assignee but still blocks re-creation.
func (s *InstanceStore) ExistsForDate(choreID int64, due time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chore_instances WHERE chore_id = ? AND due_date = ?`,
		choreID, due,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check instance exists: %w", err)
	}
	return n > 0, nil
}

func (s *InstanceStore) MarkClaimed(q DBTX, id, userID int64, at time.Time, late bool) error {
	_, err := q.Exec(
		`UPDATE chore_instances
		 SET status = ?, assigned_to = ?, claimed_by = ?, claimed_at = ?, claimed_late = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(model.InstanceClaimed), userID, userID, at, boolToInt(late), id,
	)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

// MarkUnclaimed reverts a claimed instance to assigned. Shared instances lose
// their assignee again so anyone can claim next.
func (s *InstanceStore) MarkUnclaimed(q DBTX, id int64, clearAssignee bool) error {
	query := `UPDATE chore_instances
		 SET status = ?, claimed_by = NULL, claimed_at = NULL, claimed_late = 0,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`
	if clearAssignee {
		query = `UPDATE chore_instances
		 SET status = ?, assigned_to = NULL, claimed_by = NULL, claimed_at = NULL, claimed_late = 0,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`
	}
	if _, err := q.Exec(query, string(model.InstanceAssigned), id); err != nil {
		return fmt.Errorf("mark unclaimed: %w", err)
	}
	return nil
}

func (s *InstanceStore) MarkApproved(q DBTX, id int64, by *int64, at time.Time, points int) error {
	_, err := q.Exec(
		`UPDATE chore_instances
		 SET status = ?, approved_by = ?, approved_at = ?, points_awarded = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(model.InstanceApproved), nullInt64(by), at, points, id,
	)
	if err != nil {
		return fmt.Errorf("mark approved: %w", err)
	}
	return nil
}

func (s *InstanceStore) MarkRejected(q DBTX, id, by int64, at time.Time, reason string) error {
	_, err := q.Exec(
		`UPDATE chore_instances
		 SET status = ?, rejected_by = ?, rejected_at = ?, rejection_reason = ?,
		     claimed_late = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(model.InstanceRejected), by, at, reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark rejected: %w", err)
	}
	return nil
}

func (s *InstanceStore) MarkMissed(q DBTX, id int64) error {
	_, err := q.Exec(
		`UPDATE chore_instances SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(model.InstanceMissed), id,
	)
	if err != nil {
		return fmt.Errorf("mark missed: %w", err)
	}
	return nil
}

func (s *InstanceStore) Reassign(q DBTX, id, userID int64) error {
	_, err := q.Exec(
		`UPDATE chore_instances SET assigned_to = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		userID, id,
	)
	if err != nil {
		return fmt.Errorf("reassign instance: %w", err)
	}
	return nil
}

// InstanceFilter narrows List. Zero-valued fields are ignored.
type InstanceFilter struct {
	Status  model.InstanceStatus
	ChoreID *int64
	// UserID matches instances assigned to or claimed by the user.
	UserID *int64
	From   *time.Time
	To     *time.Time
}

func (s *InstanceStore) List(f InstanceFilter) ([]model.ChoreInstance, error) {
	var where []string
	var args []any

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ChoreID != nil {
		where = append(where, "chore_id = ?")
		args = append(args, *f.ChoreID)
	}
	if f.UserID != nil {
		where = append(where, "(assigned_to = ? OR claimed_by = ?)")
		args = append(args, *f.UserID, *f.UserID)
	}
	if f.From != nil {
		where = append(where, "due_date >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "due_date <= ?")
		args = append(args, *f.To)
	}

	query := `SELECT ` + instanceCols + ` FROM chore_instances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []model.ChoreInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *in)
	}
	return instances, rows.Err()
}

// ListByStatus returns all instances in the given status, oldest first.
func (s *InstanceStore) ListByStatus(status model.InstanceStatus) ([]model.ChoreInstance, error) {
	return s.List(InstanceFilter{Status: status})
}

// ListOverdueAssigned returns assigned instances whose due date is before the
// given day. Candidates for the missed transition.
func (s *InstanceStore) ListOverdueAssigned(before time.Time) ([]model.ChoreInstance, error) {
	rows, err := s.db.Query(
		`SELECT `+instanceCols+` FROM chore_instances
		 WHERE status = ? AND due_date IS NOT NULL AND due_date < ?
		 ORDER BY due_date ASC, id ASC`,
		string(model.InstanceAssigned), before,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue instances: %w", err)
	}
	defer rows.Close()

	var instances []model.ChoreInstance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *in)
	}
	return instances, rows.Err()
}
