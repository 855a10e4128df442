package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mwpeters/choretally/internal/model"
)

// EventStore persists the durable outbox. Events are appended in the same
// transaction as the state change that caused them and marked delivered by
// the dispatcher afterwards, giving at-least-once delivery across restarts.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `seq, event_id, kind, payload, created_at, delivered_at, attempts`

func scanEvent(s scanner) (*model.Event, error) {
	var e model.Event
	var payload string
	var deliveredAt sql.NullTime

	err := s.Scan(&e.Seq, &e.EventID, &e.Kind, &payload, &e.CreatedAt, &deliveredAt, &e.Attempts)
	if err != nil {
		return nil, err
	}

	if deliveredAt.Valid {
		t := deliveredAt.Time
		e.DeliveredAt = &t
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return &e, nil
}

// Append writes one event inside the caller's transaction.
func (s *EventStore) Append(q DBTX, eventID string, kind model.EventKind, payload map[string]any, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if _, err := q.Exec(
		`INSERT INTO events (event_id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		eventID, string(kind), string(data), at,
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListUndelivered returns up to limit undelivered events in append order.
func (s *EventStore) ListUndelivered(limit int) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE delivered_at IS NULL ORDER BY seq ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list undelivered events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *EventStore) MarkDelivered(seq int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE events SET delivered_at = ? WHERE seq = ?`,
		at, seq,
	)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter for a failed delivery.
func (s *EventStore) RecordAttempt(seq int64) error {
	_, err := s.db.Exec(`UPDATE events SET attempts = attempts + 1 WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("record event attempt: %w", err)
	}
	return nil
}
