package recurrence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the closed set of recurrence variants.
type Kind string

const (
	None    Kind = "none"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Rule describes how a chore recurs. Rules arrive as JSON from the boundary
// and are validated before any expansion happens.
type Rule struct {
	Kind Kind `json:"kind"`
	// DaysOfWeek holds weekday values 0-6 (Sunday=0) for weekly rules.
	DaysOfWeek []int `json:"days_of_week,omitempty"`
	// DaysOfMonth holds day values 1-31 for monthly rules. Days past a
	// month's end clamp to the last day of that month.
	DaysOfMonth []int `json:"days_of_month,omitempty"`
}

// Parse decodes and validates a serialized rule. The empty string is the
// "none" rule.
func Parse(s string) (Rule, error) {
	if strings.TrimSpace(s) == "" {
		return Rule{Kind: None}, nil
	}

	var r Rule
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Rule{}, fmt.Errorf("parse recurrence rule: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule against the closed variant.
func (r Rule) Validate() error {
	switch r.Kind {
	case None, Daily:
		if len(r.DaysOfWeek) > 0 || len(r.DaysOfMonth) > 0 {
			return fmt.Errorf("%s rule takes no day lists", r.Kind)
		}
	case Weekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly rule requires days_of_week")
		}
		if len(r.DaysOfMonth) > 0 {
			return fmt.Errorf("weekly rule takes no days_of_month")
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("invalid day of week %d (want 0-6, Sunday=0)", d)
			}
		}
	case Monthly:
		if len(r.DaysOfMonth) == 0 {
			return fmt.Errorf("monthly rule requires days_of_month")
		}
		if len(r.DaysOfWeek) > 0 {
			return fmt.Errorf("monthly rule takes no days_of_week")
		}
		for _, d := range r.DaysOfMonth {
			if d < 1 || d > 31 {
				return fmt.Errorf("invalid day of month %d (want 1-31)", d)
			}
		}
	default:
		return fmt.Errorf("unknown recurrence kind %q", r.Kind)
	}
	return nil
}

// String serializes the rule. None serializes to the empty string.
func (r Rule) String() string {
	if r.Kind == None || r.Kind == "" {
		return ""
	}
	b, _ := json.Marshal(r)
	return string(b)
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	switch r.Kind {
	case Daily:
		return "Repeats daily"
	case Weekly:
		if len(r.DaysOfWeek) == 0 {
			return "Repeats weekly"
		}
		days := append([]int(nil), r.DaysOfWeek...)
		sort.Ints(days)
		var names []string
		for _, d := range days {
			names = append(names, time.Weekday(d).String()[:3])
		}
		return "Repeats weekly on " + strings.Join(names, ", ")
	case Monthly:
		days := append([]int(nil), r.DaysOfMonth...)
		sort.Ints(days)
		var parts []string
		for _, d := range days {
			parts = append(parts, fmt.Sprintf("%d", d))
		}
		return "Repeats monthly on day " + strings.Join(parts, ", ")
	}
	return "Does not repeat"
}
