package engine

import (
	"database/sql"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

// pendingClaimTTL is how long a pending claim waits for a parent before the
// expiry job refunds it.
const pendingClaimTTL = 7 * 24 * time.Hour

// ClaimReward spends points on a reward. The checks run in order: reward is
// active, balance covers the cost, cooldown has elapsed, claim limits are not
// reached. On success the cost is deducted immediately (optimistic debit) and
// the claim is approved outright or left pending with an expiry deadline.
//
// The user's lock is held across check and debit so two concurrent claims
// against the same balance cannot both pass the sufficiency check.
func (e *Engine) ClaimReward(actor model.Actor, rewardID int64) (*model.RewardClaim, error) {
	if err := requireMapped(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(userKey(actor.UserID))
	defer unlock()

	r, err := e.rewards.GetByID(rewardID)
	if err != nil {
		return nil, storage(err, "get reward")
	}
	if r == nil {
		return nil, errf(KindNotFound, "reward %d not found", rewardID)
	}
	if !r.Active {
		return nil, errf(KindInvalidInput, "reward %q is not active", r.Name)
	}

	u, err := e.users.GetByID(actor.UserID)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u == nil {
		return nil, errf(KindNotFound, "user %d not found", actor.UserID)
	}
	if u.Balance < r.PointCost {
		return nil, errf(KindInsufficientPoints, "%q costs %d points, balance is %d", r.Name, r.PointCost, u.Balance)
	}

	now := e.clock.Now()
	if r.CooldownDays > 0 {
		last, err := e.rewards.LastApprovedClaimAt(rewardID, actor.UserID)
		if err != nil {
			return nil, storage(err, "check cooldown")
		}
		if last != nil {
			ready := last.Add(time.Duration(r.CooldownDays) * 24 * time.Hour)
			if now.Before(ready) {
				return nil, errf(KindRewardOnCooldown, "%q can be claimed again on %s", r.Name, ready.Format("2006-01-02"))
			}
		}
	}

	if r.MaxClaimsTotal != nil {
		n, err := e.rewards.CountActiveClaims(rewardID, nil)
		if err != nil {
			return nil, storage(err, "count claims")
		}
		if n >= *r.MaxClaimsTotal {
			return nil, errf(KindRewardLimitReached, "%q has reached its claim limit", r.Name)
		}
	}
	if r.MaxClaimsPerUser != nil {
		uid := actor.UserID
		n, err := e.rewards.CountActiveClaims(rewardID, &uid)
		if err != nil {
			return nil, storage(err, "count user claims")
		}
		if n >= *r.MaxClaimsPerUser {
			return nil, errf(KindRewardLimitReached, "you have reached the claim limit for %q", r.Name)
		}
	}

	status := model.ClaimApproved
	var expiresAt *time.Time
	if r.RequiresApproval {
		status = model.ClaimPending
		t := now.Add(pendingClaimTTL)
		expiresAt = &t
	}

	var claim *model.RewardClaim
	err = e.inTx(func(tx *sql.Tx) error {
		claim, err = e.rewards.CreateClaim(tx, rewardID, actor.UserID, r.PointCost, status, now, expiresAt)
		if err != nil {
			return storage(err, "create claim")
		}
		if _, err := e.ledger.Append(tx, ledgerEntry(actor.UserID, -r.PointCost, "Claimed reward: "+r.Name, nil, &claim.ID, actor, now)); err != nil {
			return storage(err, "write ledger entry")
		}
		if err := e.users.AddToBalance(tx, actor.UserID, -r.PointCost); err != nil {
			return storage(err, "apply balance")
		}
		return e.appendEvent(tx, model.EventRewardClaimed, map[string]any{
			"claim_id":    claim.ID,
			"reward_id":   rewardID,
			"reward_name": r.Name,
			"user_id":     actor.UserID,
			"points":      r.PointCost,
			"status":      string(status),
		})
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ApproveRewardClaim settles a pending claim. The deduction already happened
// at claim time, so there is no ledger effect.
func (e *Engine) ApproveRewardClaim(actor model.Actor, claimID int64) (*model.RewardClaim, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(claimKey(claimID))
	defer unlock()

	claim, r, err := e.loadClaim(claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != model.ClaimPending {
		return nil, errf(KindInvalidStatusTransition, "cannot approve claim %d in status %q", claimID, claim.Status)
	}

	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.rewards.ResolveClaim(tx, claimID, model.ClaimApproved, actorID(actor), e.clock.Now()); err != nil {
			return storage(err, "approve claim")
		}
		return e.appendEvent(tx, model.EventRewardApproved, map[string]any{
			"claim_id":    claimID,
			"reward_id":   r.ID,
			"reward_name": r.Name,
			"user_id":     claim.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	updated, err := e.rewards.GetClaimByID(claimID)
	if err != nil {
		return nil, storage(err, "get claim")
	}
	return updated, nil
}

// RejectRewardClaim refuses a pending claim and refunds the deduction.
func (e *Engine) RejectRewardClaim(actor model.Actor, claimID int64) (*model.RewardClaim, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	return e.refundClaim(actor, claimID, model.ClaimRejected, model.EventRewardRejected, "Reward claim rejected: ")
}

// UnclaimRewardClaim cancels the kid's own pending claim and refunds it.
func (e *Engine) UnclaimRewardClaim(actor model.Actor, claimID int64) (*model.RewardClaim, error) {
	if err := requireMapped(actor); err != nil {
		return nil, err
	}

	claim, err := e.rewards.GetClaimByID(claimID)
	if err != nil {
		return nil, storage(err, "get claim")
	}
	if claim == nil {
		return nil, errf(KindNotFound, "reward claim %d not found", claimID)
	}
	if claim.UserID != actor.UserID && actor.Role != model.RoleParent {
		return nil, errf(KindForbidden, "claim %d belongs to another user", claimID)
	}
	return e.refundClaim(actor, claimID, model.ClaimUnclaimed, model.EventRewardUnclaimed, "Reward claim cancelled: ")
}

// ExpireRewardClaims refunds pending claims whose deadline has passed.
// Run daily by the coordinator.
func (e *Engine) ExpireRewardClaims() (int, error) {
	expired, err := e.rewards.ListExpiredPending(e.clock.Now())
	if err != nil {
		return 0, storage(err, "list expired claims")
	}

	n := 0
	for _, claim := range expired {
		if _, err := e.refundClaim(model.System, claim.ID, model.ClaimRejected, model.EventRewardExpired, "Reward claim expired: "); err != nil {
			if IsKind(err, KindInvalidStatusTransition) || IsKind(err, KindNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// refundClaim moves a pending claim to a terminal state and credits the
// points back, atomically.
func (e *Engine) refundClaim(actor model.Actor, claimID int64, status model.ClaimStatus, kind model.EventKind, reasonPrefix string) (*model.RewardClaim, error) {
	unlock := e.locks.lock(claimKey(claimID))
	defer unlock()

	claim, r, err := e.loadClaim(claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != model.ClaimPending {
		return nil, errf(KindInvalidStatusTransition, "cannot resolve claim %d in status %q", claimID, claim.Status)
	}

	unlockUser := e.locks.lock(userKey(claim.UserID))
	defer unlockUser()

	now := e.clock.Now()
	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.rewards.ResolveClaim(tx, claimID, status, actorID(actor), now); err != nil {
			return storage(err, "resolve claim")
		}
		if _, err := e.ledger.Append(tx, ledgerEntry(claim.UserID, claim.PointsSpent, reasonPrefix+r.Name, nil, &claimID, actor, now)); err != nil {
			return storage(err, "write refund entry")
		}
		if err := e.users.AddToBalance(tx, claim.UserID, claim.PointsSpent); err != nil {
			return storage(err, "apply refund")
		}
		return e.appendEvent(tx, kind, map[string]any{
			"claim_id":    claimID,
			"reward_id":   r.ID,
			"reward_name": r.Name,
			"user_id":     claim.UserID,
			"refund":      claim.PointsSpent,
		})
	})
	if err != nil {
		return nil, err
	}
	updated, err := e.rewards.GetClaimByID(claimID)
	if err != nil {
		return nil, storage(err, "get claim")
	}
	return updated, nil
}

func (e *Engine) loadClaim(id int64) (*model.RewardClaim, *model.Reward, error) {
	claim, err := e.rewards.GetClaimByID(id)
	if err != nil {
		return nil, nil, storage(err, "get claim")
	}
	if claim == nil {
		return nil, nil, errf(KindNotFound, "reward claim %d not found", id)
	}
	r, err := e.rewards.GetByID(claim.RewardID)
	if err != nil {
		return nil, nil, storage(err, "get reward")
	}
	if r == nil {
		return nil, nil, errf(KindNotFound, "reward %d not found", claim.RewardID)
	}
	return claim, r, nil
}
