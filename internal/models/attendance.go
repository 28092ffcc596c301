package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04:05"
)

// AttendanceRecord is the single per-identity, per-day attendance row.
// Date is the calendar day at UTC midnight.
type AttendanceRecord struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Role      Role       `json:"role" db:"role"`
	Date      time.Time  `json:"date" db:"date"`
	CheckIn   *time.Time `json:"check_in" db:"check_in"`
	CheckOut  *time.Time `json:"check_out" db:"check_out"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// AttendanceState is the ledger state of a record for its day.
type AttendanceState string

const (
	StateNoRecord   AttendanceState = "no_record"
	StateCheckedIn  AttendanceState = "checked_in"
	StateCheckedOut AttendanceState = "checked_out"
)

func (r *AttendanceRecord) State() AttendanceState {
	switch {
	case r == nil || r.CheckIn == nil:
		return StateNoRecord
	case r.CheckOut == nil:
		return StateCheckedIn
	default:
		return StateCheckedOut
	}
}

// DateOf returns the calendar day of t in loc, normalised to UTC midnight.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatClock renders t as HH:MM:SS in loc, or "" when t is nil.
func FormatClock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	if loc != nil {
		return t.In(loc).Format(ClockLayout)
	}
	return t.Format(ClockLayout)
}
