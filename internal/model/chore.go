package model

import "time"

// AssignmentMode controls how instances are generated for a chore.
type AssignmentMode string

const (
	// AssignmentIndividual creates one instance per assigned user per due date.
	AssignmentIndividual AssignmentMode = "individual"
	// AssignmentShared creates a single unassigned instance per due date;
	// the first claim wins it.
	AssignmentShared AssignmentMode = "shared"
)

func (m AssignmentMode) Valid() bool {
	return m == AssignmentIndividual || m == AssignmentShared
}

type Chore struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Points      int    `json:"points"`
	// RecurrenceRule is the serialized recurrence variant; see the
	// recurrence package for the format.
	RecurrenceRule   string         `json:"recurrence_rule"`
	AssignmentMode   AssignmentMode `json:"assignment_mode"`
	RequiresApproval bool           `json:"requires_approval"`
	AllowLateClaims  bool           `json:"allow_late_claims"`
	// LatePoints, when set, replaces Points for claims made after the due
	// date. An explicit approval override still wins.
	LatePoints            *int       `json:"late_points"`
	AutoApproveAfterHours *int       `json:"auto_approve_after_hours"`
	Active                bool       `json:"active"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ChoreAssignment binds a chore to a user for individual-mode generation.
type ChoreAssignment struct {
	ID      int64 `json:"id"`
	ChoreID int64 `json:"chore_id"`
	UserID  int64 `json:"user_id"`
}

// InstanceStatus is the lifecycle state of a chore instance.
type InstanceStatus string

const (
	InstanceAssigned InstanceStatus = "assigned"
	InstanceClaimed  InstanceStatus = "claimed"
	InstanceApproved InstanceStatus = "approved"
	InstanceRejected InstanceStatus = "rejected"
	InstanceMissed   InstanceStatus = "missed"
)

// Terminal reports whether no further transitions are possible. Rejected
// instances stay reclaimable, so rejected is not terminal.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceApproved || s == InstanceMissed
}

type ChoreInstance struct {
	ID      int64 `json:"id"`
	ChoreID int64 `json:"chore_id"`
	// DueDate is nil for anytime one-off chores.
	DueDate         *time.Time     `json:"due_date"`
	AssignedTo      *int64         `json:"assigned_to"`
	Status          InstanceStatus `json:"status"`
	ClaimedBy       *int64         `json:"claimed_by"`
	ClaimedAt       *time.Time     `json:"claimed_at"`
	ClaimedLate     bool           `json:"claimed_late"`
	ApprovedBy      *int64         `json:"approved_by"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	RejectedBy      *int64         `json:"rejected_by"`
	RejectedAt      *time.Time     `json:"rejected_at"`
	RejectionReason string         `json:"rejection_reason"`
	PointsAwarded   *int           `json:"points_awarded"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
