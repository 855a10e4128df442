package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mwpeters/choretally/internal/model"
)

func TestEventOutboxOrdering(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	kinds := []model.EventKind{
		model.EventInstanceCreated,
		model.EventInstanceClaimed,
		model.EventInstanceApproved,
	}
	for _, k := range kinds {
		if err := es.Append(db, uuid.NewString(), k, map[string]any{"instance_id": 1}, now); err != nil {
			t.Fatalf("append %s: %v", k, err)
		}
	}

	pending, err := es.ListUndelivered(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i, ev := range pending {
		if ev.Kind != kinds[i] {
			t.Errorf("pending[%d].Kind = %q, want %q (append order)", i, ev.Kind, kinds[i])
		}
		if ev.Payload["instance_id"] != float64(1) {
			t.Errorf("payload = %v", ev.Payload)
		}
		if ev.DeliveredAt != nil {
			t.Error("fresh event already delivered")
		}
	}
}

func TestEventDeliveryTracking(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := es.Append(db, uuid.NewString(), model.EventPointsAwarded, map[string]any{"delta": 5}, now); err != nil {
		t.Fatalf("append: %v", err)
	}
	pending, err := es.ListUndelivered(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ev := pending[0]

	if err := es.RecordAttempt(ev.Seq); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if err := es.RecordAttempt(ev.Seq); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	still, err := es.ListUndelivered(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(still) != 1 || still[0].Attempts != 2 {
		t.Fatalf("attempts = %+v, want 2 on the pending event", still)
	}

	if err := es.MarkDelivered(ev.Seq, now.Add(time.Second)); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	none, err := es.ListUndelivered(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("pending after delivery = %d, want 0", len(none))
	}
}

func TestEventIDUnique(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	id := uuid.NewString()
	if err := es.Append(db, id, model.EventPointsAwarded, nil, now); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := es.Append(db, id, model.EventPointsAwarded, nil, now); err == nil {
		t.Fatal("duplicate event id accepted")
	}
}
