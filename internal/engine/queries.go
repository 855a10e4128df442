package engine

import (
	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/store"
)

// Read-only lookups. These take no locks: callers get a consistent snapshot
// from a single query, and anything that mutates re-reads under its own lock.

func (e *Engine) GetUser(id int64) (*model.User, error) {
	u, err := e.users.GetByID(id)
	if err != nil {
		return nil, storage(err, "get user")
	}
	if u == nil {
		return nil, errf(KindNotFound, "user %d not found", id)
	}
	return u, nil
}

func (e *Engine) ListUsers() ([]model.User, error) {
	users, err := e.users.List()
	if err != nil {
		return nil, storage(err, "list users")
	}
	return users, nil
}

func (e *Engine) GetChore(id int64) (*model.Chore, error) {
	ch, err := e.chores.GetByID(id)
	if err != nil {
		return nil, storage(err, "get chore")
	}
	if ch == nil {
		return nil, errf(KindNotFound, "chore %d not found", id)
	}
	return ch, nil
}

func (e *Engine) ListChores() ([]model.Chore, error) {
	chores, err := e.chores.List()
	if err != nil {
		return nil, storage(err, "list chores")
	}
	return chores, nil
}

func (e *Engine) GetInstance(id int64) (*model.ChoreInstance, error) {
	in, err := e.instances.GetByID(id)
	if err != nil {
		return nil, storage(err, "get instance")
	}
	if in == nil {
		return nil, errf(KindNotFound, "instance %d not found", id)
	}
	return in, nil
}

func (e *Engine) ListInstances(f store.InstanceFilter) ([]model.ChoreInstance, error) {
	instances, err := e.instances.List(f)
	if err != nil {
		return nil, storage(err, "list instances")
	}
	return instances, nil
}

func (e *Engine) GetReward(id int64) (*model.Reward, error) {
	r, err := e.rewards.GetByID(id)
	if err != nil {
		return nil, storage(err, "get reward")
	}
	if r == nil {
		return nil, errf(KindNotFound, "reward %d not found", id)
	}
	return r, nil
}

func (e *Engine) ListRewards() ([]model.Reward, error) {
	rewards, err := e.rewards.List()
	if err != nil {
		return nil, storage(err, "list rewards")
	}
	return rewards, nil
}

func (e *Engine) GetRewardClaim(id int64) (*model.RewardClaim, error) {
	c, err := e.rewards.GetClaimByID(id)
	if err != nil {
		return nil, storage(err, "get reward claim")
	}
	if c == nil {
		return nil, errf(KindNotFound, "reward claim %d not found", id)
	}
	return c, nil
}

func (e *Engine) ListRewardClaims(f store.ClaimFilter) ([]model.RewardClaim, error) {
	claims, err := e.rewards.ListClaims(f)
	if err != nil {
		return nil, storage(err, "list reward claims")
	}
	return claims, nil
}
