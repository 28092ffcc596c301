package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a recognition attempt.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeUnknown    Outcome = "unknown"
	OutcomeNoFace     Outcome = "no_face"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeNotMarked  Outcome = "not_marked"
)

// Transition is the ledger change a recognition caused.
type Transition string

const (
	TransitionNone       Transition = "none"
	TransitionCheckedIn  Transition = "checked_in"
	TransitionCheckedOut Transition = "checked_out"
)

// RecognitionEvent is the audit record of one recognition attempt. It is
// published to NATS and persisted by the worker.
type RecognitionEvent struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Outcome     Outcome    `json:"outcome" db:"outcome"`
	Label       string     `json:"label" db:"label"`
	Email       *string    `json:"email,omitempty" db:"email"`
	Distance    *float64   `json:"distance,omitempty" db:"distance"`
	Confidence  *float64   `json:"confidence,omitempty" db:"confidence"`
	Transition  Transition `json:"transition" db:"transition"`
	Date        time.Time  `json:"date" db:"date"`
	CheckIn     *time.Time `json:"check_in,omitempty" db:"check_in"`
	CheckOut    *time.Time `json:"check_out,omitempty" db:"check_out"`
	SnapshotKey string     `json:"snapshot_key,omitempty" db:"snapshot_key"`
	OccurredAt  time.Time  `json:"occurred_at" db:"occurred_at"`
}

// RecognitionEventQuery filters the audit trail.
type RecognitionEventQuery struct {
	Date    *time.Time
	Outcome Outcome
	Email   string
	Limit   int
	Offset  int
}
