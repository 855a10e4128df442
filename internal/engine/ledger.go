package engine

import (
	"database/sql"
	"time"

	"go.uber.org/multierr"

	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/store"
)

func ledgerEntry(userID int64, delta int, reason string, instanceID, claimID *int64, actor model.Actor, at time.Time) store.EntryParams {
	return store.EntryParams{
		UserID:          userID,
		Delta:           delta,
		Reason:          reason,
		ChoreInstanceID: instanceID,
		RewardClaimID:   claimID,
		ActorID:         actorID(actor),
		At:              at,
	}
}

// AdjustPoints writes a direct ledger entry, e.g. a manual bonus or penalty.
// Parents only; a reason is required.
func (e *Engine) AdjustPoints(actor model.Actor, userID int64, delta int, reason string) (*model.PointsHistoryEntry, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, errf(KindInvalidInput, "an adjustment reason is required")
	}
	if delta == 0 {
		return nil, errf(KindInvalidInput, "adjustment delta must not be zero")
	}

	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u == nil {
		return nil, errf(KindNotFound, "user %d not found", userID)
	}

	unlock := e.locks.lock(userKey(userID))
	defer unlock()

	var entry *model.PointsHistoryEntry
	err = e.inTx(func(tx *sql.Tx) error {
		entry, err = e.ledger.Append(tx, ledgerEntry(userID, delta, reason, nil, nil, actor, e.clock.Now()))
		if err != nil {
			return storage(err, "write ledger entry")
		}
		if err := e.users.AddToBalance(tx, userID, delta); err != nil {
			return storage(err, "apply balance")
		}
		return e.appendEvent(tx, model.EventPointsAdjusted, map[string]any{
			"user_id":  userID,
			"delta":    delta,
			"reason":   reason,
			"actor_id": actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance returns the stored balance. The ledger is the source of truth; the
// stored value tracks it transactionally and the audit verifies it.
func (e *Engine) Balance(userID int64) (int, error) {
	u, err := e.users.GetByID(userID)
	if err != nil {
		return 0, storage(err, "get user")
	}
	if u == nil {
		return 0, errf(KindNotFound, "user %d not found", userID)
	}
	return u.Balance, nil
}

// History lists ledger entries with optional filters.
func (e *Engine) History(f store.HistoryFilter) ([]model.PointsHistoryEntry, error) {
	entries, err := e.ledger.History(f)
	if err != nil {
		return nil, storage(err, "list history")
	}
	return entries, nil
}

// AuditBalances recomputes every user's balance from the ledger. Any drift is
// corrected in place and reported, never ignored. Per-user failures are
// collected so one bad row cannot stop the sweep.
func (e *Engine) AuditBalances() ([]model.BalanceDrift, error) {
	users, err := e.users.List()
	if err != nil {
		return nil, storage(err, "list users")
	}

	var drifts []model.BalanceDrift
	var errs error
	for _, u := range users {
		drift, err := e.auditUser(u.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if drift != nil {
			drifts = append(drifts, *drift)
		}
	}
	return drifts, errs
}

func (e *Engine) auditUser(userID int64) (*model.BalanceDrift, error) {
	unlock := e.locks.lock(userKey(userID))
	defer unlock()

	u, err := e.users.GetByID(userID)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u == nil {
		return nil, nil
	}

	sum, err := e.ledger.SumForUser(userID)
	if err != nil {
		return nil, storage(err, "sum ledger")
	}
	if sum == u.Balance {
		return nil, nil
	}

	err = e.inTx(func(tx *sql.Tx) error {
		if err := e.users.SetBalance(tx, userID, sum); err != nil {
			return storage(err, "correct balance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	drift := &model.BalanceDrift{UserID: userID, Stored: u.Balance, Ledger: sum}
	e.logger.Error("balance drift corrected",
		"kind", string(KindBalanceDrift),
		"user_id", userID,
		"stored", u.Balance,
		"ledger", sum,
	)
	return drift, nil
}
