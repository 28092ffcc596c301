package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

// Store is the method set shared by PostgresStore and SQLiteStore.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	ExistsInAnyRoleTable(ctx context.Context, email string) (bool, error)
	ListRole(ctx context.Context, role models.Role) ([]models.Identity, error)
	UpsertIdentity(ctx context.Context, id models.Identity) error

	GetAttendance(ctx context.Context, email string, date time.Time) (*models.AttendanceRecord, error)
	CreateOrGetAttendance(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, bool, error)
	SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListAttendanceByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)

	CreateRecognitionEvent(ctx context.Context, e *models.RecognitionEvent) error
	QueryRecognitionEvents(ctx context.Context, q models.RecognitionEventQuery) ([]models.RecognitionEvent, int, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open connects to the configured driver, applying migrations first when
// cfg.AutoMigrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := MigratePostgres(ctx, cfg.DSN(), false); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, cfg)

	case config.DriverSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
