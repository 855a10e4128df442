package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `id, name, description, point_cost, cooldown_days, max_claims_total,
	max_claims_per_user, requires_approval, active, created_at, updated_at`

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var requiresApproval, active int
	var maxTotal, maxPerUser sql.NullInt64

	err := s.Scan(
		&r.ID, &r.Name, &r.Description, &r.PointCost, &r.CooldownDays, &maxTotal,
		&maxPerUser, &requiresApproval, &active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.RequiresApproval = requiresApproval != 0
	r.Active = active != 0
	if maxTotal.Valid {
		v := int(maxTotal.Int64)
		r.MaxClaimsTotal = &v
	}
	if maxPerUser.Valid {
		v := int(maxPerUser.Int64)
		r.MaxClaimsPerUser = &v
	}
	return &r, nil
}

// RewardParams carries the mutable reward definition fields.
type RewardParams struct {
	Name             string
	Description      string
	PointCost        int
	CooldownDays     int
	MaxClaimsTotal   *int
	MaxClaimsPerUser *int
	RequiresApproval bool
}

func (s *RewardStore) Create(p RewardParams) (*model.Reward, error) {
	result, err := s.db.Exec(
		`INSERT INTO rewards (name, description, point_cost, cooldown_days,
			max_claims_total, max_claims_per_user, requires_approval)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.PointCost, p.CooldownDays,
		nullInt(p.MaxClaimsTotal), nullInt(p.MaxClaimsPerUser), boolToInt(p.RequiresApproval),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) List() ([]model.Reward, error) {
	rows, err := s.db.Query(`SELECT ` + rewardCols + ` FROM rewards ORDER BY active DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, p RewardParams) (*model.Reward, error) {
	_, err := s.db.Exec(
		`UPDATE rewards SET name = ?, description = ?, point_cost = ?, cooldown_days = ?,
			max_claims_total = ?, max_claims_per_user = ?, requires_approval = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		p.Name, p.Description, p.PointCost, p.CooldownDays,
		nullInt(p.MaxClaimsTotal), nullInt(p.MaxClaimsPerUser), boolToInt(p.RequiresApproval), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) SetActive(id int64, active bool) error {
	_, err := s.db.Exec(
		`UPDATE rewards SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("set reward active: %w", err)
	}
	return nil
}

// --- Claim methods ---

const claimCols = `id, reward_id, user_id, points_spent, status, claimed_at, expires_at,
	resolved_by, resolved_at`

func scanClaim(s scanner) (*model.RewardClaim, error) {
	var c model.RewardClaim
	var expiresAt, resolvedAt sql.NullTime
	var resolvedBy sql.NullInt64

	err := s.Scan(
		&c.ID, &c.RewardID, &c.UserID, &c.PointsSpent, &c.Status, &c.ClaimedAt,
		&expiresAt, &resolvedBy, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		c.ResolvedBy = &resolvedBy.Int64
	}
	return &c, nil
}

func (s *RewardStore) CreateClaim(q DBTX, rewardID, userID int64, pointsSpent int, status model.ClaimStatus, claimedAt time.Time, expiresAt *time.Time) (*model.RewardClaim, error) {
	result, err := q.Exec(
		`INSERT INTO reward_claims (reward_id, user_id, points_spent, status, claimed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rewardID, userID, pointsSpent, string(status), claimedAt, nullTime(expiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := q.QueryRow(`SELECT `+claimCols+` FROM reward_claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func (s *RewardStore) GetClaimByID(id int64) (*model.RewardClaim, error) {
	row := s.db.QueryRow(`SELECT `+claimCols+` FROM reward_claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// ResolveClaim moves a claim to a terminal status. Terminal states set once;
// the engine guards against resolving twice.
func (s *RewardStore) ResolveClaim(q DBTX, id int64, status model.ClaimStatus, by *int64, at time.Time) error {
	_, err := q.Exec(
		`UPDATE reward_claims SET status = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`,
		string(status), nullInt64(by), at, id,
	)
	if err != nil {
		return fmt.Errorf("resolve claim: %w", err)
	}
	return nil
}

// CountActiveClaims counts pending+approved claims, optionally for one user.
// Rejected, expired, and unclaimed claims release their slot.
func (s *RewardStore) CountActiveClaims(rewardID int64, userID *int64) (int, error) {
	query := `SELECT COUNT(*) FROM reward_claims WHERE reward_id = ? AND status IN ('pending', 'approved')`
	args := []any{rewardID}
	if userID != nil {
		query += ` AND user_id = ?`
		args = append(args, *userID)
	}

	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

// LastApprovedClaimAt returns when the user last had a claim of this reward
// approved (or auto-approved), for cooldown checks. Nil when never.
func (s *RewardStore) LastApprovedClaimAt(rewardID, userID int64) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRow(
		`SELECT claimed_at FROM reward_claims
		 WHERE reward_id = ? AND user_id = ? AND status = 'approved'
		 ORDER BY claimed_at DESC LIMIT 1`,
		rewardID, userID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last approved claim: %w", err)
	}
	return &at, nil
}

// ListExpiredPending returns pending claims whose deadline has passed.
func (s *RewardStore) ListExpiredPending(now time.Time) ([]model.RewardClaim, error) {
	rows, err := s.db.Query(
		`SELECT `+claimCols+` FROM reward_claims
		 WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY expires_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired claims: %w", err)
	}
	defer rows.Close()

	var claims []model.RewardClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// ClaimFilter narrows ListClaims. Zero-valued fields are ignored.
type ClaimFilter struct {
	Status   model.ClaimStatus
	RewardID *int64
	UserID   *int64
	From     *time.Time
	To       *time.Time
}

func (s *RewardStore) ListClaims(f ClaimFilter) ([]model.RewardClaim, error) {
	var where []string
	var args []any

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.RewardID != nil {
		where = append(where, "reward_id = ?")
		args = append(args, *f.RewardID)
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.From != nil {
		where = append(where, "claimed_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		where = append(where, "claimed_at <= ?")
		args = append(args, *f.To)
	}

	query := `SELECT ` + claimCols + ` FROM reward_claims`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY claimed_at DESC, id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []model.RewardClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}
