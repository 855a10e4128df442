package model

import "time"

type Reward struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	PointCost    int    `json:"point_cost"`
	CooldownDays int    `json:"cooldown_days"`
	// MaxClaimsTotal / MaxClaimsPerUser cap approved+pending claims; nil
	// means unlimited.
	MaxClaimsTotal   *int      `json:"max_claims_total"`
	MaxClaimsPerUser *int      `json:"max_claims_per_user"`
	RequiresApproval bool      `json:"requires_approval"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ClaimStatus is the lifecycle state of a reward claim.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
	// ClaimUnclaimed is the terminal state for a claim the kid cancelled
	// before a parent acted on it. Points are refunded.
	ClaimUnclaimed ClaimStatus = "unclaimed"
)

func (s ClaimStatus) Terminal() bool { return s != ClaimPending }

type RewardClaim struct {
	ID          int64       `json:"id"`
	RewardID    int64       `json:"reward_id"`
	UserID      int64       `json:"user_id"`
	PointsSpent int         `json:"points_spent"`
	Status      ClaimStatus `json:"status"`
	// ClaimedAt is when the optimistic debit was taken.
	ClaimedAt time.Time `json:"claimed_at"`
	// ExpiresAt is set for pending claims; past it the expiry job refunds.
	ExpiresAt  *time.Time `json:"expires_at"`
	ResolvedBy *int64     `json:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at"`
}
