package engine

import (
	"database/sql"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

// ClaimInstance moves an instance to claimed by the acting user. Legal from
// assigned, and from rejected (a rejected instance stays reclaimable). After
// the due date it is only legal when the chore allows late claims, in which
// case the instance is flagged claimed_late.
func (e *Engine) ClaimInstance(actor model.Actor, id int64) (*model.ChoreInstance, error) {
	if err := requireMapped(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(instanceKey(id))
	defer unlock()

	in, ch, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}

	switch in.Status {
	case model.InstanceAssigned, model.InstanceRejected:
		// claimable
	case model.InstanceClaimed:
		return nil, errf(KindInvalidStatusTransition, "instance %d is already claimed", id)
	default:
		return nil, errf(KindInvalidStatusTransition, "cannot claim instance %d in status %q", id, in.Status)
	}

	if in.AssignedTo != nil && *in.AssignedTo != actor.UserID &&
		actor.Role != model.RoleParent && actor.Role != model.RoleSystem {
		return nil, errf(KindForbidden, "instance %d is assigned to another user", id)
	}

	now := e.clock.Now()
	late := false
	if in.DueDate != nil && dateOf(now).After(dateOf(*in.DueDate)) {
		if !ch.AllowLateClaims {
			// The missed job owns this transition; a straggling claim is
			// rejected the same way.
			return nil, errf(KindInvalidStatusTransition, "instance %d is past due and does not allow late claims", id)
		}
		late = true
	}

	claimant := actor.UserID
	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.instances.MarkClaimed(tx, id, claimant, now, late); err != nil {
			return storage(err, "claim instance")
		}
		if err := e.appendEvent(tx, model.EventInstanceClaimed, map[string]any{
			"instance_id": id,
			"chore_id":    ch.ID,
			"chore_name":  ch.Name,
			"user_id":     claimant,
			"late":        late,
		}); err != nil {
			return err
		}
		// Approval-free chores award their points at claim time, acting as
		// system.
		if !ch.RequiresApproval {
			return e.approveInTx(tx, id, ch, claimant, model.System, nil, late)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	return updated, nil
}

// UnclaimInstance reverts a claimed instance to assigned. No ledger effect.
// Shared instances lose their assignee so the next claimant starts fresh.
func (e *Engine) UnclaimInstance(actor model.Actor, id int64) (*model.ChoreInstance, error) {
	if err := requireMapped(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(instanceKey(id))
	defer unlock()

	in, ch, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	if in.Status != model.InstanceClaimed {
		return nil, errf(KindInvalidStatusTransition, "cannot unclaim instance %d in status %q", id, in.Status)
	}
	if in.ClaimedBy != nil && *in.ClaimedBy != actor.UserID && actor.Role != model.RoleParent {
		return nil, errf(KindForbidden, "instance %d was claimed by another user", id)
	}

	clearAssignee := ch.AssignmentMode == model.AssignmentShared
	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.instances.MarkUnclaimed(tx, id, clearAssignee); err != nil {
			return storage(err, "unclaim instance")
		}
		return e.appendEvent(tx, model.EventInstanceUnclaimed, map[string]any{
			"instance_id": id,
			"chore_id":    ch.ID,
			"chore_name":  ch.Name,
			"user_id":     in.ClaimedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	return updated, nil
}

// ApproveInstance finishes a claimed instance and awards points. The awarded
// amount is, in order of precedence: the approver's override (clamped at
// zero), the chore's late_points when the claim was late, the chore's points.
func (e *Engine) ApproveInstance(actor model.Actor, id int64, override *int) (*model.ChoreInstance, error) {
	if err := requireParentOrSystem(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(instanceKey(id))
	defer unlock()

	in, ch, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	if in.Status != model.InstanceClaimed {
		return nil, errf(KindInvalidStatusTransition, "cannot approve instance %d in status %q", id, in.Status)
	}

	claimant := *in.ClaimedBy
	unlockUser := e.locks.lock(userKey(claimant))
	defer unlockUser()

	err = e.inTx(func(tx *sql.Tx) error {
		return e.approveInTx(tx, id, ch, claimant, actor, override, in.ClaimedLate)
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	return updated, nil
}

// approveInTx performs the approval mutation, ledger write, and events inside
// an open transaction. The instance must be claimed (or being claimed in this
// same transaction, for approval-free chores).
func (e *Engine) approveInTx(tx *sql.Tx, instanceID int64, ch *model.Chore, claimant int64, actor model.Actor, override *int, late bool) error {
	points := ch.Points
	if late && ch.LatePoints != nil {
		points = *ch.LatePoints
	}
	if override != nil {
		points = *override
		if points < 0 {
			points = 0
		}
	}

	now := e.clock.Now()
	if err := e.instances.MarkApproved(tx, instanceID, actorID(actor), now, points); err != nil {
		return storage(err, "approve instance")
	}

	entry, err := e.ledger.Append(tx, ledgerEntry(claimant, points, "Completed chore: "+ch.Name, &instanceID, nil, actor, now))
	if err != nil {
		return storage(err, "write ledger entry")
	}
	if err := e.users.AddToBalance(tx, claimant, points); err != nil {
		return storage(err, "apply balance")
	}

	if err := e.appendEvent(tx, model.EventInstanceApproved, map[string]any{
		"instance_id": instanceID,
		"chore_id":    ch.ID,
		"chore_name":  ch.Name,
		"user_id":     claimant,
		"points":      points,
	}); err != nil {
		return err
	}
	return e.appendEvent(tx, model.EventPointsAwarded, map[string]any{
		"user_id":  claimant,
		"delta":    points,
		"entry_id": entry.ID,
		"reason":   entry.Reason,
	})
}

// RejectInstance sends a claimed instance back with a reason. No ledger
// effect; the instance stays reclaimable.
func (e *Engine) RejectInstance(actor model.Actor, id int64, reason string) (*model.ChoreInstance, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, errf(KindInvalidInput, "a rejection reason is required")
	}

	unlock := e.locks.lock(instanceKey(id))
	defer unlock()

	in, ch, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	if in.Status != model.InstanceClaimed {
		return nil, errf(KindInvalidStatusTransition, "cannot reject instance %d in status %q", id, in.Status)
	}

	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.instances.MarkRejected(tx, id, actor.UserID, e.clock.Now(), reason); err != nil {
			return storage(err, "reject instance")
		}
		return e.appendEvent(tx, model.EventInstanceRejected, map[string]any{
			"instance_id": id,
			"chore_id":    ch.ID,
			"chore_name":  ch.Name,
			"user_id":     in.ClaimedBy,
			"reason":      reason,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	return updated, nil
}

// ReassignInstance changes the assignee. Legal only while the instance is
// still assigned (or has no assignee yet).
func (e *Engine) ReassignInstance(actor model.Actor, id, userID int64) (*model.ChoreInstance, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(instanceKey(id))
	defer unlock()

	in, _, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	if in.Status != model.InstanceAssigned && in.AssignedTo != nil {
		return nil, errf(KindInvalidStatusTransition, "cannot reassign instance %d in status %q", id, in.Status)
	}

	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u == nil {
		return nil, errf(KindNotFound, "user %d not found", userID)
	}

	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.instances.Reassign(tx, id, userID); err != nil {
			return storage(err, "reassign instance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	return updated, nil
}

// MarkMissedInstances transitions assigned instances whose due date has fully
// elapsed and whose chore forbids late claims. Terminal; run hourly.
func (e *Engine) MarkMissedInstances() (int, error) {
	today := dateOf(e.clock.Now())
	overdue, err := e.instances.ListOverdueAssigned(today)
	if err != nil {
		return 0, storage(err, "list overdue instances")
	}

	missed := 0
	for _, in := range overdue {
		ch, err := e.chores.GetByID(in.ChoreID)
		if err != nil {
			return missed, storage(err, "get chore")
		}
		if ch == nil || ch.AllowLateClaims {
			continue
		}

		unlock := e.locks.lock(instanceKey(in.ID))
		// State may have moved between the scan and the lock.
		current, err := e.instances.GetByID(in.ID)
		if err != nil {
			unlock()
			return missed, storage(err, "get instance")
		}
		if current == nil || current.Status != model.InstanceAssigned {
			unlock()
			continue
		}

		err = e.inTx(func(tx *sql.Tx) error {
			if err := e.instances.MarkMissed(tx, in.ID); err != nil {
				return storage(err, "mark missed")
			}
			return e.appendEvent(tx, model.EventInstanceMissed, map[string]any{
				"instance_id": in.ID,
				"chore_id":    ch.ID,
				"chore_name":  ch.Name,
				"user_id":     in.AssignedTo,
			})
		})
		unlock()
		if err != nil {
			return missed, err
		}
		missed++
	}
	return missed, nil
}

// AutoApproveInstances approves claimed instances that have waited longer
// than their chore's auto_approve_after_hours, acting as system.
func (e *Engine) AutoApproveInstances() (int, error) {
	claimed, err := e.instances.ListByStatus(model.InstanceClaimed)
	if err != nil {
		return 0, storage(err, "list claimed instances")
	}

	now := e.clock.Now()
	approved := 0
	for _, in := range claimed {
		ch, err := e.chores.GetByID(in.ChoreID)
		if err != nil {
			return approved, storage(err, "get chore")
		}
		if ch == nil || ch.AutoApproveAfterHours == nil || in.ClaimedAt == nil {
			continue
		}
		deadline := in.ClaimedAt.Add(time.Duration(*ch.AutoApproveAfterHours) * time.Hour)
		if now.Before(deadline) {
			continue
		}

		if _, err := e.ApproveInstance(model.System, in.ID, nil); err != nil {
			// The instance may have been resolved since the scan; that is
			// the normal race, not a job failure.
			if IsKind(err, KindInvalidStatusTransition) || IsKind(err, KindNotFound) {
				continue
			}
			return approved, err
		}
		approved++
	}
	return approved, nil
}

func (e *Engine) loadInstance(id int64) (*model.ChoreInstance, *model.Chore, error) {
	in, err := e.instances.GetByID(id)
	if err != nil {
		return nil, nil, storage(err, "get instance")
	}
	if in == nil {
		return nil, nil, errf(KindNotFound, "chore instance %d not found", id)
	}
	ch, err := e.chores.GetByID(in.ChoreID)
	if err != nil {
		return nil, nil, storage(err, "get chore")
	}
	if ch == nil {
		return nil, nil, errf(KindNotFound, "chore %d not found", in.ChoreID)
	}
	return in, ch, nil
}
