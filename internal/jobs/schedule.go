package jobs

import "time"

// Schedule decides when a job next runs after a given time. All math is in
// the location of the time it is handed, so a clock pinned to a household
// timezone keeps "daily at midnight" meaning local midnight.
type Schedule interface {
	// NextAfter returns the first run time strictly after t.
	NextAfter(t time.Time) time.Time
}

// Every runs at a fixed interval.
type Every time.Duration

func (e Every) NextAfter(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// DailyAt runs once a day at the given hour and minute.
type DailyAt struct {
	Hour   int
	Minute int
}

func (d DailyAt) NextAfter(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// HourlyAt runs once an hour at the given minute.
type HourlyAt struct {
	Minute int
}

func (h HourlyAt) NextAfter(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), h.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.Add(time.Hour)
	}
	return next
}
