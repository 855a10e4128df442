package engine

import (
	"strings"

	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/recurrence"
	"github.com/mwpeters/choretally/internal/store"
)

// CreateUser registers a user. Users are also created implicitly as
// "unmapped" on first access by EnsureUser.
func (e *Engine) CreateUser(actor model.Actor, name string, role model.Role) (*model.User, error) {
	if err := requireParentOrSystem(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errf(KindInvalidInput, "user name is required")
	}
	if !role.Valid() {
		return nil, errf(KindInvalidInput, "unknown role %q", role)
	}

	u, err := e.users.Create(name, role)
	if err != nil {
		return nil, storage(err, "create user")
	}
	return u, nil
}

// EnsureUser returns the user, creating an unmapped record on first access.
func (e *Engine) EnsureUser(id int64, name string) (*model.User, error) {
	u, err := e.users.GetByID(id)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u != nil {
		return u, nil
	}
	u, err = e.users.Create(name, model.RoleUnmapped)
	if err != nil {
		return nil, storage(err, "create user")
	}
	return u, nil
}

// DeactivateUser marks a user inactive. History and balance stay intact;
// users are never deleted.
func (e *Engine) DeactivateUser(actor model.Actor, id int64) error {
	if err := requireParent(actor); err != nil {
		return err
	}
	u, err := e.users.GetByID(id)
	if err != nil {
		return storage(err, "get user")
	}
	if u == nil {
		return errf(KindNotFound, "user %d not found", id)
	}
	if err := e.users.Deactivate(id); err != nil {
		return storage(err, "deactivate user")
	}
	return nil
}

// --- chore definitions ---

func validateChoreParams(p store.ChoreParams) error {
	if strings.TrimSpace(p.Name) == "" {
		return errf(KindInvalidInput, "chore name is required")
	}
	if p.Points < 0 {
		return errf(KindInvalidInput, "chore points must not be negative")
	}
	if p.LatePoints != nil && *p.LatePoints < 0 {
		return errf(KindInvalidInput, "late points must not be negative")
	}
	if p.AutoApproveAfterHours != nil && *p.AutoApproveAfterHours < 0 {
		return errf(KindInvalidInput, "auto-approve hours must not be negative")
	}
	if !p.AssignmentMode.Valid() {
		return errf(KindInvalidInput, "unknown assignment mode %q", p.AssignmentMode)
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return errf(KindInvalidInput, "chore end date is before its start date")
	}
	if _, err := recurrence.Parse(p.RecurrenceRule); err != nil {
		return errf(KindInvalidInput, "invalid recurrence rule: %v", err)
	}
	return nil
}

func (e *Engine) CreateChore(actor model.Actor, p store.ChoreParams) (*model.Chore, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if err := validateChoreParams(p); err != nil {
		return nil, err
	}

	c, err := e.chores.Create(p)
	if err != nil {
		return nil, storage(err, "create chore")
	}
	return c, nil
}

// UpdateChore edits a definition. Already-generated instances are untouched;
// the edit shows up in instances generated afterwards.
func (e *Engine) UpdateChore(actor model.Actor, id int64, p store.ChoreParams) (*model.Chore, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if err := validateChoreParams(p); err != nil {
		return nil, err
	}

	existing, err := e.chores.GetByID(id)
	if err != nil {
		return nil, storage(err, "get chore")
	}
	if existing == nil {
		return nil, errf(KindNotFound, "chore %d not found", id)
	}

	c, err := e.chores.Update(id, p)
	if err != nil {
		return nil, storage(err, "update chore")
	}
	return c, nil
}

// DeactivateChore stops generation for a chore. Existing instances keep their
// lifecycle.
func (e *Engine) DeactivateChore(actor model.Actor, id int64) error {
	return e.setChoreActive(actor, id, false)
}

func (e *Engine) ReactivateChore(actor model.Actor, id int64) error {
	return e.setChoreActive(actor, id, true)
}

func (e *Engine) setChoreActive(actor model.Actor, id int64, active bool) error {
	if err := requireParent(actor); err != nil {
		return err
	}
	c, err := e.chores.GetByID(id)
	if err != nil {
		return storage(err, "get chore")
	}
	if c == nil {
		return errf(KindNotFound, "chore %d not found", id)
	}
	if err := e.chores.SetActive(id, active); err != nil {
		return storage(err, "set chore active")
	}
	return nil
}

// SetChoreAssignments binds the individual-mode assignee set.
func (e *Engine) SetChoreAssignments(actor model.Actor, choreID int64, userIDs []int64) error {
	if err := requireParent(actor); err != nil {
		return err
	}
	c, err := e.chores.GetByID(choreID)
	if err != nil {
		return storage(err, "get chore")
	}
	if c == nil {
		return errf(KindNotFound, "chore %d not found", choreID)
	}
	for _, uid := range userIDs {
		u, err := e.users.GetByID(uid)
		if err != nil {
			return storage(err, "get user")
		}
		if u == nil {
			return errf(KindNotFound, "user %d not found", uid)
		}
	}
	if err := e.chores.SetAssignments(choreID, userIDs); err != nil {
		return storage(err, "set assignments")
	}
	return nil
}

// --- reward definitions ---

func validateRewardParams(p store.RewardParams) error {
	if strings.TrimSpace(p.Name) == "" {
		return errf(KindInvalidInput, "reward name is required")
	}
	if p.PointCost < 0 {
		return errf(KindInvalidInput, "reward cost must not be negative")
	}
	if p.CooldownDays < 0 {
		return errf(KindInvalidInput, "cooldown days must not be negative")
	}
	if p.MaxClaimsTotal != nil && *p.MaxClaimsTotal < 1 {
		return errf(KindInvalidInput, "max claims must be at least 1")
	}
	if p.MaxClaimsPerUser != nil && *p.MaxClaimsPerUser < 1 {
		return errf(KindInvalidInput, "per-user max claims must be at least 1")
	}
	return nil
}

func (e *Engine) CreateReward(actor model.Actor, p store.RewardParams) (*model.Reward, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if err := validateRewardParams(p); err != nil {
		return nil, err
	}

	r, err := e.rewards.Create(p)
	if err != nil {
		return nil, storage(err, "create reward")
	}
	return r, nil
}

func (e *Engine) UpdateReward(actor model.Actor, id int64, p store.RewardParams) (*model.Reward, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if err := validateRewardParams(p); err != nil {
		return nil, err
	}

	existing, err := e.rewards.GetByID(id)
	if err != nil {
		return nil, storage(err, "get reward")
	}
	if existing == nil {
		return nil, errf(KindNotFound, "reward %d not found", id)
	}

	r, err := e.rewards.Update(id, p)
	if err != nil {
		return nil, storage(err, "update reward")
	}
	return r, nil
}

func (e *Engine) DeactivateReward(actor model.Actor, id int64) error {
	if err := requireParent(actor); err != nil {
		return err
	}
	r, err := e.rewards.GetByID(id)
	if err != nil {
		return storage(err, "get reward")
	}
	if r == nil {
		return errf(KindNotFound, "reward %d not found", id)
	}
	if err := e.rewards.SetActive(id, false); err != nil {
		return storage(err, "deactivate reward")
	}
	return nil
}
