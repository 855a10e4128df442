package model

import "time"

// EventKind identifies a domain event.
type EventKind string

const (
	EventInstanceCreated   EventKind = "chore_instance_created"
	EventInstanceClaimed   EventKind = "chore_instance_claimed"
	EventInstanceUnclaimed EventKind = "chore_instance_unclaimed"
	EventInstanceApproved  EventKind = "chore_instance_approved"
	EventInstanceRejected  EventKind = "chore_instance_rejected"
	EventInstanceMissed    EventKind = "chore_instance_missed"
	EventPointsAwarded    EventKind = "points_awarded"
	EventPointsAdjusted   EventKind = "points_adjusted"
	EventRewardClaimed    EventKind = "reward_claimed"
	EventRewardApproved   EventKind = "reward_approved"
	EventRewardRejected   EventKind = "reward_rejected"
	EventRewardExpired    EventKind = "reward_expired"
	EventRewardUnclaimed  EventKind = "reward_unclaimed"
)

// Event is one durable outbox row. Seq gives total order; EventID is the
// stable identity consumers deduplicate on (delivery is at-least-once).
type Event struct {
	Seq         int64          `json:"seq"`
	EventID     string         `json:"event_id"`
	Kind        EventKind      `json:"kind"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	Attempts    int            `json:"attempts"`
}
