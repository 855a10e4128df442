// Package engine implements the chore scheduling and points-ledger core:
// recurrence-driven instance generation, the instance and reward-claim state
// machines, the append-only ledger, and the audit. All mutating operations
// are serialized per entity and commit the status change, ledger write, and
// event append as one transaction.
package engine

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwpeters/choretally/internal/clock"
	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/store"
)

type Engine struct {
	db        *sql.DB
	users     *store.UserStore
	chores    *store.ChoreStore
	instances *store.InstanceStore
	rewards   *store.RewardStore
	ledger    *store.LedgerStore
	events    *store.EventStore
	clock     clock.Clock
	logger    *slog.Logger
	locks     keyedLocks
}

func New(db *sql.DB, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		db:        db,
		users:     store.NewUserStore(db),
		chores:    store.NewChoreStore(db),
		instances: store.NewInstanceStore(db),
		rewards:   store.NewRewardStore(db),
		ledger:    store.NewLedgerStore(db),
		events:    store.NewEventStore(db),
		clock:     clk,
		logger:    logger,
		locks:     keyedLocks{held: make(map[string]*entityLock)},
	}
}

// Events exposes the outbox for the dispatcher.
func (e *Engine) Events() *store.EventStore { return e.events }

// --- entity locks ---

// keyedLocks serializes operations per entity so that, e.g., two concurrent
// claims of one instance or two reward claims against one balance cannot
// interleave between guard check and commit.
type keyedLocks struct {
	mu   sync.Mutex
	held map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.held[key]
	if !ok {
		l = &entityLock{}
		k.held[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}

func instanceKey(id int64) string { return fmt.Sprintf("instance/%d", id) }
func claimKey(id int64) string    { return fmt.Sprintf("claim/%d", id) }
func userKey(id int64) string     { return fmt.Sprintf("user/%d", id) }

// --- shared helpers ---

// inTx runs fn inside a transaction, rolling back on error.
func (e *Engine) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return storage(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storage(err, "commit transaction")
	}
	return nil
}

// appendEvent writes one domain event to the outbox inside the caller's
// transaction.
func (e *Engine) appendEvent(q store.DBTX, kind model.EventKind, payload map[string]any) error {
	if err := e.events.Append(q, uuid.NewString(), kind, payload, e.clock.Now()); err != nil {
		return storage(err, "append event")
	}
	return nil
}

func requireParent(actor model.Actor) error {
	if actor.Role != model.RoleParent {
		return errf(KindForbidden, "operation requires the parent role")
	}
	return nil
}

func requireParentOrSystem(actor model.Actor) error {
	if actor.Role != model.RoleParent && actor.Role != model.RoleSystem {
		return errf(KindForbidden, "operation requires the parent or system role")
	}
	return nil
}

func requireMapped(actor model.Actor) error {
	if actor.Role == model.RoleUnmapped || !actor.Role.Valid() {
		return errf(KindForbidden, "actor has no mapped role")
	}
	return nil
}

func actorID(actor model.Actor) *int64 {
	if actor.Role == model.RoleSystem {
		return nil
	}
	id := actor.UserID
	return &id
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
