package engine

import (
	"testing"
	"time"

	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/store"
)

func TestClaimAndApproveAwardsPoints(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Dishes",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)

	claimed, err := e.ClaimInstance(kid, in.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != model.InstanceClaimed {
		t.Fatalf("status = %q, want claimed", claimed.Status)
	}
	if claimed.ClaimedLate {
		t.Error("on-time claim flagged late")
	}
	if mustBalance(t, e, kid.UserID) != 0 {
		t.Error("points awarded before approval")
	}

	approved, err := e.ApproveInstance(parent, in.ID, nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != model.InstanceApproved {
		t.Fatalf("status = %q, want approved", approved.Status)
	}
	if approved.PointsAwarded == nil || *approved.PointsAwarded != 5 {
		t.Errorf("points_awarded = %v, want 5", approved.PointsAwarded)
	}
	if got := mustBalance(t, e, kid.UserID); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestApprovalFreeChoreAwardsAtClaim(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:           "Make bed",
		Points:         2,
		AssignmentMode: model.AssignmentIndividual,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)

	claimed, err := e.ClaimInstance(kid, in.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != model.InstanceApproved {
		t.Fatalf("status = %q, want approved", claimed.Status)
	}
	if got := mustBalance(t, e, kid.UserID); got != 2 {
		t.Errorf("balance = %d, want 2", got)
	}
	// Points went to the claimant, not the system actor.
	entries, err := e.History(store.HistoryFilter{UserID: &kid.UserID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 || entries[0].Delta != 2 {
		t.Fatalf("history = %+v, want one +2 entry", entries)
	}
}

func TestClaimOwnership(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kidA := addUser(t, e, "Pip", model.RoleKid)
	kidB := addUser(t, e, "Merry", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Dishes",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kidA.UserID)

	if _, err := e.ClaimInstance(kidB, in.ID); !IsKind(err, KindForbidden) {
		t.Errorf("other kid's claim: kind = %v, want FORBIDDEN", KindOf(err))
	}
	// Parents may claim on anyone's behalf.
	if _, err := e.ClaimInstance(parent, in.ID); err != nil {
		t.Errorf("parent claim: %v", err)
	}
}

func TestLateClaimUsesLatePoints(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Water plants",
		Points:           5,
		LatePoints:       intp(2),
		AllowLateClaims:  true,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	// Due yesterday relative to the fixed clock.
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 9)), &kid.UserID)

	claimed, err := e.ClaimInstance(kid, in.ID)
	if err != nil {
		t.Fatalf("late claim: %v", err)
	}
	if !claimed.ClaimedLate {
		t.Fatal("claim not flagged late")
	}

	approved, err := e.ApproveInstance(parent, in.ID, nil)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.PointsAwarded == nil || *approved.PointsAwarded != 2 {
		t.Errorf("points_awarded = %v, want late rate 2", approved.PointsAwarded)
	}
	if got := mustBalance(t, e, kid.UserID); got != 2 {
		t.Errorf("balance = %d, want 2", got)
	}
}

func TestLateClaimForbiddenWithoutAllowance(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Trash",
		Points:           3,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 9)), &kid.UserID)

	if _, err := e.ClaimInstance(kid, in.ID); !IsKind(err, KindInvalidStatusTransition) {
		t.Errorf("late claim: kind = %v, want INVALID_STATUS_TRANSITION", KindOf(err))
	}
}

func TestApproveOverrideClampedAtZero(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Dishes",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})

	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)
	if _, err := e.ClaimInstance(kid, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	approved, err := e.ApproveInstance(parent, in.ID, intp(10))
	if err != nil {
		t.Fatalf("approve with override: %v", err)
	}
	if *approved.PointsAwarded != 10 {
		t.Errorf("points_awarded = %d, want override 10", *approved.PointsAwarded)
	}

	in2 := addInstance(t, e, ch.ID, timep(date(2026, 3, 11)), &kid.UserID)
	if _, err := e.ClaimInstance(kid, in2.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	approved2, err := e.ApproveInstance(parent, in2.ID, intp(-3))
	if err != nil {
		t.Fatalf("approve with negative override: %v", err)
	}
	if *approved2.PointsAwarded != 0 {
		t.Errorf("points_awarded = %d, want clamp to 0", *approved2.PointsAwarded)
	}
}

func TestRejectThenReclaim(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Vacuum",
		Points:           4,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)

	if _, err := e.ClaimInstance(kid, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.RejectInstance(parent, in.ID, ""); !IsKind(err, KindInvalidInput) {
		t.Errorf("reject without reason: kind = %v, want INVALID_INPUT", KindOf(err))
	}

	rejected, err := e.RejectInstance(parent, in.ID, "still crumbs under the table")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.InstanceRejected {
		t.Fatalf("status = %q, want rejected", rejected.Status)
	}
	if rejected.RejectionReason != "still crumbs under the table" {
		t.Errorf("reason = %q", rejected.RejectionReason)
	}
	if mustBalance(t, e, kid.UserID) != 0 {
		t.Error("rejection touched the balance")
	}

	// A rejected instance stays claimable.
	reclaimed, err := e.ClaimInstance(kid, in.ID)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed.Status != model.InstanceClaimed {
		t.Errorf("status = %q, want claimed", reclaimed.Status)
	}
	if reclaimed.ClaimedLate {
		t.Error("reclaim inherited stale late flag")
	}
	if _, err := e.ApproveInstance(parent, in.ID, nil); err != nil {
		t.Fatalf("approve after reclaim: %v", err)
	}
	if got := mustBalance(t, e, kid.UserID); got != 4 {
		t.Errorf("balance = %d, want 4", got)
	}
}

func TestUnclaimSharedClearsAssignee(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kidA := addUser(t, e, "Pip", model.RoleKid)
	kidB := addUser(t, e, "Merry", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Feed the cat",
		Points:           1,
		AssignmentMode:   model.AssignmentShared,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), nil)

	if _, err := e.ClaimInstance(kidA, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	back, err := e.UnclaimInstance(kidA, in.ID)
	if err != nil {
		t.Fatalf("unclaim: %v", err)
	}
	if back.Status != model.InstanceAssigned {
		t.Fatalf("status = %q, want assigned", back.Status)
	}
	if back.AssignedTo != nil {
		t.Errorf("assigned_to = %v, want cleared", *back.AssignedTo)
	}

	// The other kid can take it now.
	if _, err := e.ClaimInstance(kidB, in.ID); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if _, err := e.UnclaimInstance(kidA, in.ID); !IsKind(err, KindForbidden) {
		t.Errorf("foreign unclaim: kind = %v, want FORBIDDEN", KindOf(err))
	}
}

func TestUnclaimEmitsEvent(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Dishes",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)
	if _, err := e.ClaimInstance(kid, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	before, err := e.Events().ListUndelivered(100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}

	if _, err := e.UnclaimInstance(kid, in.ID); err != nil {
		t.Fatalf("unclaim: %v", err)
	}

	after, err := e.Events().ListUndelivered(100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("outbox grew by %d events, want 1", len(after)-len(before))
	}
	ev := after[len(after)-1]
	if ev.Kind != model.EventInstanceUnclaimed {
		t.Fatalf("kind = %q, want %q", ev.Kind, model.EventInstanceUnclaimed)
	}
	if ev.Payload["instance_id"] != float64(in.ID) {
		t.Errorf("payload instance_id = %v, want %d", ev.Payload["instance_id"], in.ID)
	}
	if ev.Payload["user_id"] != float64(kid.UserID) {
		t.Errorf("payload user_id = %v, want %d", ev.Payload["user_id"], kid.UserID)
	}
}

func TestReassignOnlyWhileAssigned(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kidA := addUser(t, e, "Pip", model.RoleKid)
	kidB := addUser(t, e, "Merry", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:             "Dishes",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kidA.UserID)

	moved, err := e.ReassignInstance(parent, in.ID, kidB.UserID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if moved.AssignedTo == nil || *moved.AssignedTo != kidB.UserID {
		t.Errorf("assigned_to = %v, want %d", moved.AssignedTo, kidB.UserID)
	}

	if _, err := e.ClaimInstance(kidB, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := e.ReassignInstance(parent, in.ID, kidA.UserID); !IsKind(err, KindInvalidStatusTransition) {
		t.Errorf("reassign claimed: kind = %v, want INVALID_STATUS_TRANSITION", KindOf(err))
	}
}

func TestMissedIsTerminal(t *testing.T) {
	e, _ := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	strict := addChore(t, e, parent, store.ChoreParams{
		Name:             "Homework",
		Points:           5,
		AssignmentMode:   model.AssignmentIndividual,
		RequiresApproval: true,
	})
	lenient := addChore(t, e, parent, store.ChoreParams{
		Name:            "Reading",
		Points:          3,
		AllowLateClaims: true,
		AssignmentMode:  model.AssignmentIndividual,
	})

	strictIn := addInstance(t, e, strict.ID, timep(date(2026, 3, 9)), &kid.UserID)
	lenientIn := addInstance(t, e, lenient.ID, timep(date(2026, 3, 9)), &kid.UserID)

	n, err := e.MarkMissedInstances()
	if err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	if n != 1 {
		t.Fatalf("missed = %d, want 1 (late-claimable chore skipped)", n)
	}

	got, err := e.GetInstance(strictIn.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Status != model.InstanceMissed {
		t.Fatalf("status = %q, want missed", got.Status)
	}

	// Terminal: neither the kid nor a parent can move it.
	if _, err := e.ClaimInstance(kid, strictIn.ID); !IsKind(err, KindInvalidStatusTransition) {
		t.Errorf("claim missed: kind = %v, want INVALID_STATUS_TRANSITION", KindOf(err))
	}
	if _, err := e.ApproveInstance(parent, strictIn.ID, nil); !IsKind(err, KindInvalidStatusTransition) {
		t.Errorf("approve missed: kind = %v, want INVALID_STATUS_TRANSITION", KindOf(err))
	}

	// The lenient chore's instance stays claimable late.
	if _, err := e.ClaimInstance(kid, lenientIn.ID); err != nil {
		t.Fatalf("late claim on lenient chore: %v", err)
	}

	// Idempotent re-run.
	n, err = e.MarkMissedInstances()
	if err != nil {
		t.Fatalf("second mark missed: %v", err)
	}
	if n != 0 {
		t.Errorf("second run missed = %d, want 0", n)
	}
}

func TestAutoApproveAfterDeadline(t *testing.T) {
	e, clk := newTestEngine(t)
	parent := addUser(t, e, "Mum", model.RoleParent)
	kid := addUser(t, e, "Pip", model.RoleKid)

	ch := addChore(t, e, parent, store.ChoreParams{
		Name:                  "Dishes",
		Points:                5,
		AssignmentMode:        model.AssignmentIndividual,
		RequiresApproval:      true,
		AutoApproveAfterHours: intp(24),
	})
	in := addInstance(t, e, ch.ID, timep(date(2026, 3, 10)), &kid.UserID)

	if _, err := e.ClaimInstance(kid, in.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := e.AutoApproveInstances()
	if err != nil {
		t.Fatalf("auto approve: %v", err)
	}
	if n != 0 {
		t.Fatalf("approved %d before the deadline", n)
	}

	clk.Advance(25 * time.Hour)
	n, err = e.AutoApproveInstances()
	if err != nil {
		t.Fatalf("auto approve: %v", err)
	}
	if n != 1 {
		t.Fatalf("approved = %d, want 1", n)
	}

	got, err := e.GetInstance(in.ID)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if got.Status != model.InstanceApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.ApprovedBy != nil {
		t.Errorf("approved_by = %v, want nil for system", *got.ApprovedBy)
	}
	if mustBalance(t, e, kid.UserID) != 5 {
		t.Errorf("balance = %d, want 5", mustBalance(t, e, kid.UserID))
	}
}
