package engine

import (
	"database/sql"
	"time"

	"go.uber.org/multierr"

	"github.com/mwpeters/choretally/internal/model"
	"github.com/mwpeters/choretally/internal/recurrence"
	"github.com/mwpeters/choretally/internal/store"
)

// GenerateInstances ensures every active chore has its due instances inside
// the look-ahead window: from today through the end of the current month plus
// two further months. Re-runs are idempotent: existing instances, whatever
// their state, are never touched or duplicated. Per-chore failures are
// collected so one broken chore cannot halt generation for the rest.
func (e *Engine) GenerateInstances() (int, error) {
	now := e.clock.Now()
	from := dateOf(now)
	// Last day of (current month + 2).
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, 3, -1)

	chores, err := e.chores.ListActive()
	if err != nil {
		return 0, storage(err, "list active chores")
	}

	created := 0
	var errs error
	for _, ch := range chores {
		n, err := e.generateForChore(ch, from, to)
		created += n
		if err != nil {
			e.logger.Error("instance generation failed for chore",
				"chore_id", ch.ID, "chore", ch.Name, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	return created, errs
}

func (e *Engine) generateForChore(ch model.Chore, from, to time.Time) (int, error) {
	rule, err := recurrence.Parse(ch.RecurrenceRule)
	if err != nil {
		return 0, errf(KindInvalidInput, "chore %d has an invalid recurrence rule: %v", ch.ID, err)
	}

	// Anytime chores (no recurrence, no start date) carry a single undated
	// instance so they stay claimable.
	if rule.Kind == recurrence.None && ch.StartDate == nil {
		return e.generateAnytime(ch)
	}

	dates := recurrence.Expand(rule, ch.StartDate, ch.EndDate, from, to)
	today := from

	created := 0
	for _, due := range dates {
		switch ch.AssignmentMode {
		case model.AssignmentShared:
			exists, err := e.instances.ExistsForDate(ch.ID, due)
			if err != nil {
				return created, storage(err, "check instance")
			}
			if exists {
				continue
			}
			if err := e.createInstance(ch, &due, nil, due.Equal(today)); err != nil {
				return created, err
			}
			created++

		case model.AssignmentIndividual:
			userIDs, err := e.chores.ListAssignedUserIDs(ch.ID)
			if err != nil {
				return created, storage(err, "list assignments")
			}
			for _, uid := range userIDs {
				exists, err := e.instances.ExistsForUserDate(ch.ID, uid, due)
				if err != nil {
					return created, storage(err, "check instance")
				}
				if exists {
					continue
				}
				uid := uid
				if err := e.createInstance(ch, &due, &uid, due.Equal(today)); err != nil {
					return created, err
				}
				created++
			}
		}
	}
	return created, nil
}

func (e *Engine) generateAnytime(ch model.Chore) (int, error) {
	choreID := ch.ID
	switch ch.AssignmentMode {
	case model.AssignmentShared:
		existing, err := e.instances.List(store.InstanceFilter{ChoreID: &choreID})
		if err != nil {
			return 0, storage(err, "list instances")
		}
		for _, in := range existing {
			if !in.Status.Terminal() {
				return 0, nil
			}
		}
		if err := e.createInstance(ch, nil, nil, true); err != nil {
			return 0, err
		}
		return 1, nil

	case model.AssignmentIndividual:
		userIDs, err := e.chores.ListAssignedUserIDs(ch.ID)
		if err != nil {
			return 0, storage(err, "list assignments")
		}
		existing, err := e.instances.List(store.InstanceFilter{ChoreID: &choreID})
		if err != nil {
			return 0, storage(err, "list instances")
		}
		open := make(map[int64]bool)
		for _, in := range existing {
			if in.AssignedTo != nil && !in.Status.Terminal() {
				open[*in.AssignedTo] = true
			}
		}
		created := 0
		for _, uid := range userIDs {
			if open[uid] {
				continue
			}
			uid := uid
			if err := e.createInstance(ch, nil, &uid, true); err != nil {
				return created, err
			}
			created++
		}
		return created, nil
	}
	return 0, nil
}

// createInstance inserts one instance and, when it is due today (or undated),
// emits chore_instance_created in the same transaction.
func (e *Engine) createInstance(ch model.Chore, due *time.Time, assignedTo *int64, announce bool) error {
	return e.inTx(func(tx *sql.Tx) error {
		in, err := e.instances.Create(tx, ch.ID, due, assignedTo)
		if err != nil {
			return storage(err, "create instance")
		}
		if !announce {
			return nil
		}
		payload := map[string]any{
			"instance_id": in.ID,
			"chore_id":    ch.ID,
			"chore_name":  ch.Name,
		}
		if due != nil {
			payload["due_date"] = due.Format("2006-01-02")
		}
		if assignedTo != nil {
			payload["user_id"] = *assignedTo
		}
		return e.appendEvent(tx, model.EventInstanceCreated, payload)
	})
}
