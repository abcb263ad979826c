package domain

import "time"

// Interval is a half-open validity window [From, To). A nil To means the
// interval is still open.
type Interval struct {
	From time.Time  `json:"valid_from"`
	To   *time.Time `json:"valid_to,omitempty"`
}

// Contains reports whether From <= t < To.
func (i Interval) Contains(t time.Time) bool {
	if t.Before(i.From) {
		return false
	}
	return i.To == nil || t.Before(*i.To)
}

func (i Interval) Open() bool {
	return i.To == nil
}

// Close returns a copy of i ending at t. It fails if i is already closed or
// t falls before From.
func (i Interval) Close(t time.Time) (Interval, error) {
	if i.To != nil {
		return i, ErrAlreadyInvalidated
	}
	if t.Before(i.From) {
		return i, NewValidationError("valid_to", "must not be before valid_from")
	}
	end := t
	return Interval{From: i.From, To: &end}, nil
}
