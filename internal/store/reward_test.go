package store

import (
	"testing"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

func TestRewardCRUD(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRewardStore(db)

	r, err := rs.Create(RewardParams{
		Name:             "Movie night",
		PointCost:        15,
		CooldownDays:     7,
		MaxClaimsPerUser: intPtr(2),
		RequiresApproval: true,
	})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if r.PointCost != 15 || r.CooldownDays != 7 || !r.RequiresApproval {
		t.Errorf("reward = %+v", r)
	}
	if r.MaxClaimsTotal != nil {
		t.Errorf("max_claims_total = %v, want nil", *r.MaxClaimsTotal)
	}

	updated, err := rs.Update(r.ID, RewardParams{Name: "Movie night", PointCost: 20})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PointCost != 20 || updated.MaxClaimsPerUser != nil {
		t.Errorf("updated = %+v", updated)
	}

	if err := rs.SetActive(r.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := rs.GetByID(r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active {
		t.Error("reward still active")
	}
}

func TestClaimLifecycle(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRewardStore(db)
	us := NewUserStore(db)

	r, err := rs.Create(RewardParams{Name: "Ice cream", PointCost: 8, RequiresApproval: true})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	kid, err := us.Create("Pip", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expires := now.Add(7 * 24 * time.Hour)
	claim, err := rs.CreateClaim(db, r.ID, kid.ID, 8, model.ClaimPending, now, &expires)
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}
	if claim.Status != model.ClaimPending || claim.PointsSpent != 8 {
		t.Errorf("claim = %+v", claim)
	}
	if claim.ExpiresAt == nil || !claim.ExpiresAt.Equal(expires) {
		t.Errorf("expires_at = %v, want %v", claim.ExpiresAt, expires)
	}

	n, err := rs.CountActiveClaims(r.ID, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("active claims = %d, want 1", n)
	}

	parentID := kid.ID // any resolver id works for the store layer
	if err := rs.ResolveClaim(db, claim.ID, model.ClaimApproved, &parentID, now.Add(time.Hour)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := rs.GetClaimByID(claim.ID)
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if got.Status != model.ClaimApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.ResolvedBy == nil || *got.ResolvedBy != parentID {
		t.Errorf("resolved_by = %v, want %d", got.ResolvedBy, parentID)
	}

	last, err := rs.LastApprovedClaimAt(r.ID, kid.ID)
	if err != nil {
		t.Fatalf("last approved: %v", err)
	}
	if last == nil || !last.Equal(now) {
		t.Errorf("last approved = %v, want claim time %v", last, now)
	}
}

func TestCountActiveClaimsExcludesResolvedAway(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRewardStore(db)
	us := NewUserStore(db)

	r, err := rs.Create(RewardParams{Name: "Ice cream", PointCost: 8})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	kid, err := us.Create("Pip", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	claim, err := rs.CreateClaim(db, r.ID, kid.ID, 8, model.ClaimPending, now, nil)
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}
	if err := rs.ResolveClaim(db, claim.ID, model.ClaimRejected, nil, now); err != nil {
		t.Fatalf("reject: %v", err)
	}

	n, err := rs.CountActiveClaims(r.ID, &kid.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("active claims = %d, rejected claims must not count", n)
	}
}

func TestListExpiredPending(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRewardStore(db)
	us := NewUserStore(db)

	r, err := rs.Create(RewardParams{Name: "Ice cream", PointCost: 8, RequiresApproval: true})
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	kid, err := us.Create("Pip", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if _, err := rs.CreateClaim(db, r.ID, kid.ID, 8, model.ClaimPending, now.Add(-8*24*time.Hour), &past); err != nil {
		t.Fatalf("create stale claim: %v", err)
	}
	if _, err := rs.CreateClaim(db, r.ID, kid.ID, 8, model.ClaimPending, now, &future); err != nil {
		t.Fatalf("create fresh claim: %v", err)
	}

	expired, err := rs.ListExpiredPending(now)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired = %d, want 1", len(expired))
	}
	if !expired[0].ExpiresAt.Equal(past) {
		t.Errorf("wrong claim expired: %+v", expired[0])
	}
}
