package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

// LedgerStore persists the append-only points history. There is no update or
// delete path on purpose: corrections are new entries with the opposite sign.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const entryCols = `id, user_id, delta, reason, chore_instance_id, reward_claim_id, actor_id, created_at`

func scanEntry(s scanner) (*model.PointsHistoryEntry, error) {
	var e model.PointsHistoryEntry
	var instanceID, claimID, actorID sql.NullInt64

	err := s.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &instanceID, &claimID, &actorID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if instanceID.Valid {
		e.ChoreInstanceID = &instanceID.Int64
	}
	if claimID.Valid {
		e.RewardClaimID = &claimID.Int64
	}
	if actorID.Valid {
		e.ActorID = &actorID.Int64
	}
	return &e, nil
}

// EntryParams describes one ledger append.
type EntryParams struct {
	UserID          int64
	Delta           int
	Reason          string
	ChoreInstanceID *int64
	RewardClaimID   *int64
	ActorID         *int64
	At              time.Time
}

// Append writes one history entry inside the caller's transaction.
func (s *LedgerStore) Append(q DBTX, p EntryParams) (*model.PointsHistoryEntry, error) {
	result, err := q.Exec(
		`INSERT INTO points_history (user_id, delta, reason, chore_instance_id, reward_claim_id, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Delta, p.Reason, nullInt64(p.ChoreInstanceID), nullInt64(p.RewardClaimID),
		nullInt64(p.ActorID), p.At,
	)
	if err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := q.QueryRow(`SELECT `+entryCols+` FROM points_history WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// SumForUser recomputes a user's balance from history. The audit job compares
// this against the stored balance.
func (s *LedgerStore) SumForUser(userID int64) (int, error) {
	var sum sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM points_history WHERE user_id = ?`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return int(sum.Int64), nil
}

// HistoryFilter narrows History. Zero-valued fields are ignored.
type HistoryFilter struct {
	UserID *int64
	From   *time.Time
	To     *time.Time
	Limit  int
}

func (s *LedgerStore) History(f HistoryFilter) ([]model.PointsHistoryEntry, error) {
	var where []string
	var args []any

	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *f.To)
	}

	query := `SELECT ` + entryCols + ` FROM points_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
