// Package mock provides in-memory implementations of the storage interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// MockStore implements attendance.Store, attendance.Accounts,
// directory.RoleLister and the recognition event log in memory.
type MockStore struct {
	mu         sync.Mutex
	accounts   map[string]models.Identity
	roles      map[models.Role][]models.Identity
	attendance map[string]*models.AttendanceRecord
	events     []models.RecognitionEvent

	// Error injection
	FindError         error
	ListRoleError     error
	CreateOrGetError  error
	SetCheckOutError  error
	GetError          error
	ListError         error
	CreateEventError  error
	QueryEventsError  error
	SkipRoleTableRows bool // account exists but no role-table row
}

// NewMockStore creates an empty store
func NewMockStore() *MockStore {
	return &MockStore{
		accounts:   make(map[string]models.Identity),
		roles:      make(map[models.Role][]models.Identity),
		attendance: make(map[string]*models.AttendanceRecord),
	}
}

// AddIdentity registers an account and its role-table row
func (m *MockStore) AddIdentity(id models.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id.Email] = id
	rows := append(m.roles[id.Role], id)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })
	m.roles[id.Role] = rows
}

func attendanceKey(email string, date time.Time) string {
	return email + "|" + date.Format(models.DateLayout)
}

func cloneRecord(r *models.AttendanceRecord) *models.AttendanceRecord {
	c := *r
	if r.CheckIn != nil {
		t := *r.CheckIn
		c.CheckIn = &t
	}
	if r.CheckOut != nil {
		t := *r.CheckOut
		c.CheckOut = &t
	}
	return &c
}

// FindByEmail returns nil when the account does not exist
func (m *MockStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.accounts[email]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

// ExistsInAnyRoleTable checks the role rows
func (m *MockStore) ExistsInAnyRoleTable(ctx context.Context, email string) (bool, error) {
	if m.FindError != nil {
		return false, m.FindError
	}
	if m.SkipRoleTableRows {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rows := range m.roles {
		for _, r := range rows {
			if r.Email == email {
				return true, nil
			}
		}
	}
	return false, nil
}

// ListRole returns role rows ordered by email
func (m *MockStore) ListRole(ctx context.Context, role models.Role) ([]models.Identity, error) {
	if m.ListRoleError != nil {
		return nil, m.ListRoleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Identity, len(m.roles[role]))
	copy(out, m.roles[role])
	return out, nil
}

// GetAttendance returns nil when no record exists
func (m *MockStore) GetAttendance(ctx context.Context, email string, date time.Time) (*models.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.attendance[attendanceKey(email, date)]
	if !ok {
		return nil, nil
	}
	return cloneRecord(r), nil
}

// CreateOrGetAttendance inserts rec unless (email, date) exists
func (m *MockStore) CreateOrGetAttendance(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if m.CreateOrGetError != nil {
		return nil, false, m.CreateOrGetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey(rec.Email, rec.Date)
	if existing, ok := m.attendance[key]; ok {
		return cloneRecord(existing), false, nil
	}
	stored := cloneRecord(rec)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now()
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.attendance[key] = stored
	return cloneRecord(stored), true, nil
}

// SetCheckOut updates only when check-out is still empty
func (m *MockStore) SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if m.SetCheckOutError != nil {
		return false, m.SetCheckOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.attendance {
		if r.ID != id {
			continue
		}
		if r.CheckOut != nil {
			return false, nil
		}
		t := at
		r.CheckOut = &t
		r.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

// ListAttendanceByDate returns records for date ordered by email
func (m *MockStore) ListAttendanceByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AttendanceRecord
	day := date.Format(models.DateLayout)
	for _, r := range m.attendance {
		if r.Date.Format(models.DateLayout) == day {
			out = append(out, *cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// AttendanceCount returns the number of stored records
func (m *MockStore) AttendanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attendance)
}

// CreateRecognitionEvent appends to the audit log
func (m *MockStore) CreateRecognitionEvent(ctx context.Context, e *models.RecognitionEvent) error {
	if m.CreateEventError != nil {
		return m.CreateEventError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.events = append(m.events, *e)
	return nil
}

// QueryRecognitionEvents filters the audit log newest first
func (m *MockStore) QueryRecognitionEvents(ctx context.Context, q models.RecognitionEventQuery) ([]models.RecognitionEvent, int, error) {
	if m.QueryEventsError != nil {
		return nil, 0, m.QueryEventsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.RecognitionEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if q.Date != nil && e.Date.Format(models.DateLayout) != q.Date.Format(models.DateLayout) {
			continue
		}
		if q.Outcome != "" && e.Outcome != q.Outcome {
			continue
		}
		if q.Email != "" && (e.Email == nil || !strings.EqualFold(*e.Email, q.Email)) {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}
