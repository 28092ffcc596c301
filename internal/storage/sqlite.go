package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// SQLiteStore is the embedded single-node backend. It implements the same
// account, attendance and audit interfaces as PostgresStore; the gallery
// always matches in memory.
type SQLiteStore struct {
	db *gorm.DB
}

type userRow struct {
	Email     string `gorm:"primaryKey"`
	Role      string `gorm:"not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	IsStaff   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

// profileRow is shared by the role tables that store "fullname".
type profileRow struct {
	Email    string `gorm:"primaryKey"`
	Fullname string `gorm:"not null;default:''"`
}

type employeeRow struct {
	Email string `gorm:"primaryKey"`
	Name  string `gorm:"not null;default:''"`
}

func (employeeRow) TableName() string { return "employees" }

type attendanceRow struct {
	ID        string     `gorm:"primaryKey;size:36"`
	Email     string     `gorm:"not null;uniqueIndex:attendances_email_date_key,priority:1"`
	Role      string     `gorm:"not null;default:''"`
	Date      string     `gorm:"not null;size:10;uniqueIndex:attendances_email_date_key,priority:2;index:attendances_date_idx"`
	CheckIn   *time.Time `gorm:"column:check_in"`
	CheckOut  *time.Time `gorm:"column:check_out"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (attendanceRow) TableName() string { return "attendances" }

func (r attendanceRow) toModel() (models.AttendanceRecord, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("parse attendance id: %w", err)
	}
	date, err := time.Parse(models.DateLayout, r.Date)
	if err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("parse attendance date: %w", err)
	}
	return models.AttendanceRecord{
		ID:        id,
		Email:     r.Email,
		Role:      models.Role(r.Role),
		Date:      date,
		CheckIn:   r.CheckIn,
		CheckOut:  r.CheckOut,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

type recognitionEventRow struct {
	ID          string  `gorm:"primaryKey;size:36"`
	Outcome     string  `gorm:"not null;index"`
	Label       string  `gorm:"not null"`
	Email       *string `gorm:"index"`
	Distance    *float64
	Confidence  *float64
	Transition  string `gorm:"not null;default:none"`
	Date        string `gorm:"not null;size:10;index"`
	CheckIn     *time.Time
	CheckOut    *time.Time
	SnapshotKey string    `gorm:"not null;default:''"`
	OccurredAt  time.Time `gorm:"not null;index"`
}

func (recognitionEventRow) TableName() string { return "recognition_events" }

// NewSQLiteStore opens the database at dsn, a file path or a SQLite URI such
// as "file:hrms?mode=memory&cache=shared".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate creates or updates every table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&userRow{}, &employeeRow{}, &attendanceRow{}, &recognitionEventRow{}); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	for _, role := range models.Roles {
		t := roleTables[role]
		if t.nameColumn != "fullname" {
			continue
		}
		if err := db.Table(t.table).AutoMigrate(&profileRow{}); err != nil {
			return fmt.Errorf("migrate %s: %w", t.table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Accounts ---

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("email = ? AND is_active", email).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &models.Identity{Email: row.Email, Role: models.Role(row.Role)}, nil
}

func (s *SQLiteStore) ExistsInAnyRoleTable(ctx context.Context, email string) (bool, error) {
	for _, role := range models.Roles {
		var n int64
		if err := s.db.WithContext(ctx).Table(roleTables[role].table).Where("email = ?", email).Count(&n).Error; err != nil {
			return false, fmt.Errorf("check %s: %w", roleTables[role].table, err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *SQLiteStore) ListRole(ctx context.Context, role models.Role) ([]models.Identity, error) {
	t, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Email       string
		DisplayName string
	}
	err = s.db.WithContext(ctx).
		Table(t.table).
		Select("email, " + t.nameColumn + " AS display_name").
		Order("email").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}

	out := make([]models.Identity, len(rows))
	for i, r := range rows {
		out[i] = models.Identity{Email: r.Email, Role: role, DisplayName: r.DisplayName}
	}
	return out, nil
}

func (s *SQLiteStore) UpsertIdentity(ctx context.Context, id models.Identity) error {
	t, err := tableFor(id.Role)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := userRow{Email: id.Email, Role: string(id.Role), IsActive: true}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).Create(&user).Error; err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		profile := map[string]any{"email": id.Email, t.nameColumn: id.DisplayName}
		if err := tx.Table(t.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{t.nameColumn}),
		}).Create(profile).Error; err != nil {
			return fmt.Errorf("upsert %s: %w", t.table, err)
		}
		return nil
	})
}

// --- Attendance ---

func (s *SQLiteStore) GetAttendance(ctx context.Context, email string, date time.Time) (*models.AttendanceRecord, error) {
	var row attendanceRow
	err := s.db.WithContext(ctx).
		Where("email = ? AND date = ?", email, date.Format(models.DateLayout)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	rec, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) CreateOrGetAttendance(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := attendanceRow{
		ID:       rec.ID.String(),
		Email:    rec.Email,
		Role:     string(rec.Role),
		Date:     rec.Date.Format(models.DateLayout),
		CheckIn:  rec.CheckIn,
		CheckOut: rec.CheckOut,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert attendance: %w", res.Error)
	}

	stored, err := s.GetAttendance(ctx, rec.Email, rec.Date)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("attendance for %s on %s missing after insert", rec.Email, row.Date)
	}
	return stored, res.RowsAffected == 1, nil
}

func (s *SQLiteStore) SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&attendanceRow{}).
		Where("id = ? AND check_out IS NULL", id.String()).
		Updates(map[string]any{"check_out": at, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("set check-out: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLiteStore) ListAttendanceByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	var rows []attendanceRow
	err := s.db.WithContext(ctx).
		Where("date = ?", date.Format(models.DateLayout)).
		Order("check_in, email").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}

	out := make([]models.AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- Recognition events ---

func (s *SQLiteStore) CreateRecognitionEvent(ctx context.Context, e *models.RecognitionEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := recognitionEventRow{
		ID:          e.ID.String(),
		Outcome:     string(e.Outcome),
		Label:       e.Label,
		Email:       e.Email,
		Distance:    e.Distance,
		Confidence:  e.Confidence,
		Transition:  string(e.Transition),
		Date:        e.Date.Format(models.DateLayout),
		CheckIn:     e.CheckIn,
		CheckOut:    e.CheckOut,
		SnapshotKey: e.SnapshotKey,
		OccurredAt:  e.OccurredAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("create recognition event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryRecognitionEvents(ctx context.Context, q models.RecognitionEventQuery) ([]models.RecognitionEvent, int, error) {
	limit, offset := pageBounds(q.Limit, q.Offset)

	filtered := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&recognitionEventRow{})
		if q.Date != nil {
			tx = tx.Where("date = ?", q.Date.Format(models.DateLayout))
		}
		if q.Outcome != "" {
			tx = tx.Where("outcome = ?", string(q.Outcome))
		}
		if q.Email != "" {
			tx = tx.Where("lower(email) = ?", strings.ToLower(q.Email))
		}
		return tx
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count recognition events: %w", err)
	}

	var rows []recognitionEventRow
	if err := filtered().Order("occurred_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("query recognition events: %w", err)
	}

	out := make([]models.RecognitionEvent, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("parse event id: %w", err)
		}
		date, err := time.Parse(models.DateLayout, r.Date)
		if err != nil {
			return nil, 0, fmt.Errorf("parse event date: %w", err)
		}
		out = append(out, models.RecognitionEvent{
			ID:          id,
			Outcome:     models.Outcome(r.Outcome),
			Label:       r.Label,
			Email:       r.Email,
			Distance:    r.Distance,
			Confidence:  r.Confidence,
			Transition:  models.Transition(r.Transition),
			Date:        date,
			CheckIn:     r.CheckIn,
			CheckOut:    r.CheckOut,
			SnapshotKey: r.SnapshotKey,
			OccurredAt:  r.OccurredAt,
		})
	}
	return out, int(total), nil
}
