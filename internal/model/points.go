package model

import "time"

// PointsHistoryEntry is one immutable ledger row. The ledger is append-only
// and is the source of truth for balances; corrections are new entries, never
// edits.
type PointsHistoryEntry struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	Delta  int   `json:"delta"`
	Reason string `json:"reason"`
	// Backlinks to the cause of the entry; at most one is set.
	ChoreInstanceID *int64 `json:"chore_instance_id"`
	RewardClaimID   *int64 `json:"reward_claim_id"`
	// ActorID is the user who triggered the write; nil for system.
	ActorID   *int64    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BalanceDrift describes an audit finding for one user: the stored balance
// disagreed with the ledger sum and was corrected.
type BalanceDrift struct {
	UserID int64 `json:"user_id"`
	Stored int   `json:"stored"`
	Ledger int   `json:"ledger"`
}
