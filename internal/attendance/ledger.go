// Package attendance records daily check-in and check-out per identity.
//
// Each (email, date) pair moves through NoRecord -> CheckedIn -> CheckedOut.
// The first accepted recognition of a day checks in, the second checks out,
// and later ones leave the record untouched.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
)

// ErrUnknownIdentity means the email does not belong to a known account.
var ErrUnknownIdentity = errors.New("unknown identity")

// Store persists attendance records. CreateOrGetAttendance must be atomic
// on (email, date): it inserts rec unless a row exists and returns the
// stored row with created reporting which happened. SetCheckOut must only
// update a row whose check-out is still null.
type Store interface {
	GetAttendance(ctx context.Context, email string, date time.Time) (*models.AttendanceRecord, error)
	CreateOrGetAttendance(ctx context.Context, rec *models.AttendanceRecord) (stored *models.AttendanceRecord, created bool, err error)
	SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListAttendanceByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)
}

// Accounts answers whether an email belongs to the HR system.
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	ExistsInAnyRoleTable(ctx context.Context, email string) (bool, error)
}

// Mark is the result of recording one recognition.
type Mark struct {
	Record     *models.AttendanceRecord
	Transition models.Transition
}

// Ledger applies the daily attendance state machine.
type Ledger struct {
	store    Store
	accounts Accounts
	loc      *time.Location
	locks    *keyedMutex
}

// NewLedger computes calendar dates in loc; nil means time.Local.
func NewLedger(store Store, accounts Accounts, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{store: store, accounts: accounts, loc: loc, locks: newKeyedMutex()}
}

// Location returns the time zone used for attendance dates.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Record marks attendance for email at ts. Unknown emails are refused with
// ErrUnknownIdentity and nothing is written.
func (l *Ledger) Record(ctx context.Context, email string, ts time.Time) (*Mark, error) {
	email = strings.TrimSpace(email)
	identity, err := l.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if identity == nil {
		return nil, ErrUnknownIdentity
	}
	ok, err := l.accounts.ExistsInAnyRoleTable(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check role tables: %w", err)
	}
	if !ok {
		return nil, ErrUnknownIdentity
	}

	date := models.DateOf(ts, l.loc)
	unlock := l.locks.lock(email + "|" + date.Format(models.DateLayout))
	defer unlock()

	at := ts
	rec, created, err := l.store.CreateOrGetAttendance(ctx, &models.AttendanceRecord{
		ID:      uuid.New(),
		Email:   email,
		Role:    identity.Role,
		Date:    date,
		CheckIn: &at,
	})
	if err != nil {
		return nil, fmt.Errorf("create or get attendance: %w", err)
	}
	if created {
		observability.AttendanceTransitions.WithLabelValues(string(models.TransitionCheckedIn)).Inc()
		return &Mark{Record: rec, Transition: models.TransitionCheckedIn}, nil
	}

	if rec.CheckOut != nil {
		return &Mark{Record: rec, Transition: models.TransitionNone}, nil
	}

	updated, err := l.store.SetCheckOut(ctx, rec.ID, ts)
	if err != nil {
		return nil, fmt.Errorf("set check-out: %w", err)
	}
	if !updated {
		// Another process checked out first; report what is stored.
		current, err := l.store.GetAttendance(ctx, email, date)
		if err != nil {
			return nil, fmt.Errorf("reload attendance: %w", err)
		}
		if current == nil {
			return nil, fmt.Errorf("attendance for %s on %s vanished", email, date.Format(models.DateLayout))
		}
		return &Mark{Record: current, Transition: models.TransitionNone}, nil
	}

	rec.CheckOut = &at
	observability.AttendanceTransitions.WithLabelValues(string(models.TransitionCheckedOut)).Inc()
	return &Mark{Record: rec, Transition: models.TransitionCheckedOut}, nil
}

// Today lists records for the current calendar date.
func (l *Ledger) Today(ctx context.Context, now time.Time) ([]models.AttendanceRecord, error) {
	return l.ListByDate(ctx, models.DateOf(now, l.loc))
}

// ListByDate lists records for the calendar date of date in its own zone.
func (l *Ledger) ListByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	recs, err := l.store.ListAttendanceByDate(ctx, models.DateOf(date, nil))
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return recs, nil
}
