package store

import (
	"testing"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

func TestLedgerAppendAndSum(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLedgerStore(db)
	us := NewUserStore(db)

	kid, err := us.Create("Pip", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	actor := kid.ID
	entries := []EntryParams{
		{UserID: kid.ID, Delta: 5, Reason: "Completed chore: Dishes", At: now},
		{UserID: kid.ID, Delta: -3, Reason: "Claimed reward: Ice cream", ActorID: &actor, At: now.Add(time.Minute)},
		{UserID: kid.ID, Delta: 3, Reason: "Reward claim rejected: Ice cream", At: now.Add(2 * time.Minute)},
	}
	for _, p := range entries {
		if _, err := ls.Append(db, p); err != nil {
			t.Fatalf("append %+v: %v", p, err)
		}
	}

	sum, err := ls.SumForUser(kid.ID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 5 {
		t.Errorf("sum = %d, want 5", sum)
	}

	// A user with no entries sums to zero.
	other, err := us.Create("Merry", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sum, err = ls.SumForUser(other.ID)
	if err != nil {
		t.Fatalf("sum empty: %v", err)
	}
	if sum != 0 {
		t.Errorf("empty sum = %d, want 0", sum)
	}
}

func TestLedgerHistoryFilters(t *testing.T) {
	db := setupTestDB(t)
	ls := NewLedgerStore(db)
	us := NewUserStore(db)

	a, err := us.Create("Pip", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	b, err := us.Create("Merry", model.RoleKid)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		uid := a.ID
		if i%2 == 1 {
			uid = b.ID
		}
		if _, err := ls.Append(db, EntryParams{UserID: uid, Delta: i + 1, Reason: "bonus", At: base.AddDate(0, 0, i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	mine, err := ls.History(HistoryFilter{UserID: &a.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("user filter = %d entries, want 2", len(mine))
	}
	// Newest first.
	if mine[0].Delta != 3 || mine[1].Delta != 1 {
		t.Errorf("order = [%d, %d], want [3, 1]", mine[0].Delta, mine[1].Delta)
	}

	from := base.AddDate(0, 0, 2)
	recent, err := ls.History(HistoryFilter{From: &from})
	if err != nil {
		t.Fatalf("history from: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("from filter = %d entries, want 2", len(recent))
	}

	limited, err := ls.History(HistoryFilter{Limit: 1})
	if err != nil {
		t.Fatalf("history limit: %v", err)
	}
	if len(limited) != 1 || limited[0].Delta != 4 {
		t.Errorf("limit = %+v, want just the newest entry", limited)
	}
}
