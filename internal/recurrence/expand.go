package recurrence

import (
	"sort"
	"time"
)

// Expand generates the ordered, deduplicated due dates for rule within
// [from, to] inclusive, clipped to the optional start/end bounds. All returned
// dates are normalized to midnight in from's location.
//
// A "none" rule with a start date yields that single date (if it falls inside
// the window); without one the chore is an anytime chore and expands to
// nothing; it is claimable without a dated instance.
//
// Expand is pure: no persistence, no clock.
func Expand(rule Rule, start, end *time.Time, from, to time.Time) []time.Time {
	from = dateOf(from)
	to = dateOf(to)
	if to.Before(from) {
		return nil
	}

	// Clip the window to the rule's bounds.
	if start != nil {
		if s := dateOf(*start); s.After(from) {
			from = s
		}
	}
	if end != nil {
		if e := dateOf(*end); e.Before(to) {
			to = e
		}
	}
	if to.Before(from) {
		return nil
	}

	switch rule.Kind {
	case None:
		if start == nil {
			return nil
		}
		s := dateOf(*start)
		if s.Before(from) || s.After(to) {
			return nil
		}
		return []time.Time{s}

	case Daily:
		var dates []time.Time
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
		return dates

	case Weekly:
		wanted := make(map[time.Weekday]bool, len(rule.DaysOfWeek))
		for _, dow := range rule.DaysOfWeek {
			wanted[time.Weekday(dow)] = true
		}
		var dates []time.Time
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if wanted[d.Weekday()] {
				dates = append(dates, d)
			}
		}
		return dates

	case Monthly:
		seen := make(map[time.Time]bool)
		var dates []time.Time
		// Walk each month the window touches; clamp requested days to the
		// month's length so e.g. day 30 in February lands on the 28th/29th.
		for first := firstOfMonth(from); !first.After(to); first = first.AddDate(0, 1, 0) {
			last := daysInMonth(first.Year(), first.Month())
			for _, dom := range rule.DaysOfMonth {
				day := dom
				if day > last {
					day = last
				}
				d := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, first.Location())
				if d.Before(from) || d.After(to) || seen[d] {
					continue
				}
				seen[d] = true
				dates = append(dates, d)
			}
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		return dates
	}

	return nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
