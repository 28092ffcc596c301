package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/matcher"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Accounts ---

// FindByEmail returns nil, nil when no account exists.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var (
		id   models.Identity
		role string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT email, role FROM users WHERE email = $1 AND is_active`, email,
	).Scan(&id.Email, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	id.Role = models.Role(role)
	return &id, nil
}

func (s *PostgresStore) ExistsInAnyRoleTable(ctx context.Context, email string) (bool, error) {
	parts := make([]string, 0, len(models.Roles))
	for _, role := range models.Roles {
		t := roleTables[role]
		parts = append(parts, fmt.Sprintf("SELECT 1 FROM %s WHERE email = $1", t.table))
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS("+strings.Join(parts, " UNION ALL ")+")", email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role tables: %w", err)
	}
	return exists, nil
}

// ListRole returns one role table's profiles ordered by email.
func (s *PostgresStore) ListRole(ctx context.Context, role models.Role) ([]models.Identity, error) {
	t, err := tableFor(role)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT email, %s FROM %s ORDER BY email`, t.nameColumn, t.table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		id := models.Identity{Role: role}
		if err := rows.Scan(&id.Email, &id.DisplayName); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.table, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertIdentity creates or updates an account and its role-table profile.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, id models.Identity) error {
	t, err := tableFor(id.Role)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (email, role) VALUES ($1, $2)
			 ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role`,
			id.Email, string(id.Role)); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %[1]s (email, %[2]s) VALUES ($1, $2)
			 ON CONFLICT (email) DO UPDATE SET %[2]s = EXCLUDED.%[2]s`, t.table, t.nameColumn),
			id.Email, id.DisplayName); err != nil {
			return fmt.Errorf("upsert %s: %w", t.table, err)
		}
		return nil
	})
}

// --- Attendance ---

const attendanceColumns = `id, email, role, date, check_in, check_out, created_at, updated_at`

func scanAttendance(row pgx.Row) (*models.AttendanceRecord, error) {
	var (
		r    models.AttendanceRecord
		role string
	)
	if err := row.Scan(&r.ID, &r.Email, &role, &r.Date, &r.CheckIn, &r.CheckOut, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Role = models.Role(role)
	return &r, nil
}

// GetAttendance returns nil, nil when there is no record for the day.
func (s *PostgresStore) GetAttendance(ctx context.Context, email string, date time.Time) (*models.AttendanceRecord, error) {
	r, err := scanAttendance(s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE email = $1 AND date = $2`, email, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return r, nil
}

// CreateOrGetAttendance relies on the (email, date) unique key: a losing
// insert does nothing and the winner's row is read back.
func (s *PostgresStore) CreateOrGetAttendance(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r, err := scanAttendance(s.pool.QueryRow(ctx,
		`INSERT INTO attendances (id, email, role, date, check_in, check_out)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email, date) DO NOTHING
		 RETURNING `+attendanceColumns,
		rec.ID, rec.Email, string(rec.Role), rec.Date, rec.CheckIn, rec.CheckOut))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert attendance: %w", err)
	}

	existing, err := s.GetAttendance(ctx, rec.Email, rec.Date)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("attendance for %s on %s missing after conflict", rec.Email, rec.Date.Format(models.DateLayout))
	}
	return existing, false, nil
}

// SetCheckOut updates only a record that has not been checked out.
func (s *PostgresStore) SetCheckOut(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attendances SET check_out = $2, updated_at = now() WHERE id = $1 AND check_out IS NULL`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("set check-out: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListAttendanceByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE date = $1 ORDER BY check_in, email`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []models.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// --- Recognition events ---

func (s *PostgresStore) CreateRecognitionEvent(ctx context.Context, e *models.RecognitionEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recognition_events (id, outcome, label, email, distance, confidence, transition, date, check_in, check_out, snapshot_key, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Outcome), e.Label, e.Email, e.Distance, e.Confidence,
		string(e.Transition), e.Date, e.CheckIn, e.CheckOut, e.SnapshotKey, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("create recognition event: %w", err)
	}
	return nil
}

// QueryRecognitionEvents pages through the audit trail newest first.
func (s *PostgresStore) QueryRecognitionEvents(ctx context.Context, q models.RecognitionEventQuery) ([]models.RecognitionEvent, int, error) {
	limit, offset := pageBounds(q.Limit, q.Offset)

	where := "WHERE TRUE"
	var args []any
	argIdx := 1

	if q.Date != nil {
		where += fmt.Sprintf(" AND date = $%d", argIdx)
		args = append(args, *q.Date)
		argIdx++
	}
	if q.Outcome != "" {
		where += fmt.Sprintf(" AND outcome = $%d", argIdx)
		args = append(args, string(q.Outcome))
		argIdx++
	}
	if q.Email != "" {
		where += fmt.Sprintf(" AND lower(email) = lower($%d)", argIdx)
		args = append(args, q.Email)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM recognition_events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recognition events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, outcome, label, email, distance, confidence, transition, date, check_in, check_out, snapshot_key, occurred_at
		 FROM recognition_events %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query recognition events: %w", err)
	}
	defer rows.Close()

	var events []models.RecognitionEvent
	for rows.Next() {
		var (
			e                   models.RecognitionEvent
			outcome, transition string
		)
		if err := rows.Scan(&e.ID, &outcome, &e.Label, &e.Email, &e.Distance, &e.Confidence,
			&transition, &e.Date, &e.CheckIn, &e.CheckOut, &e.SnapshotKey, &e.OccurredAt); err != nil {
			return nil, 0, fmt.Errorf("scan recognition event: %w", err)
		}
		e.Outcome = models.Outcome(outcome)
		e.Transition = models.Transition(transition)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// --- Gallery mirror ---

// ReplaceGalleryFaces swaps the pgvector copy of the gallery in one
// transaction.
func (s *PostgresStore) ReplaceGalleryFaces(ctx context.Context, entries []models.GalleryEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM gallery_faces`); err != nil {
			return fmt.Errorf("clear gallery faces: %w", err)
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`INSERT INTO gallery_faces (ordinal, name, embedding) VALUES ($1, $2, $3)`,
				e.Ordinal, e.Name, pgvector.NewVector(e.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert gallery faces: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CountGalleryFaces(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM gallery_faces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery faces: %w", err)
	}
	return n, nil
}

// GalleryIndex returns a matcher.Index backed by the gallery_faces table.
func (s *PostgresStore) GalleryIndex() *VectorIndex {
	return &VectorIndex{pool: s.pool}
}

// VectorIndex answers nearest-neighbour queries with pgvector's L2 operator.
// Ties are broken by ordinal, matching the in-memory scan.
type VectorIndex struct {
	pool *pgxpool.Pool
}

func (v *VectorIndex) Nearest(ctx context.Context, probe []float32) (matcher.Neighbor, bool, error) {
	var (
		n   matcher.Neighbor
		vec pgvector.Vector
	)
	err := v.pool.QueryRow(ctx,
		`SELECT ordinal, name, embedding, embedding <-> $1 AS distance
		 FROM gallery_faces
		 ORDER BY embedding <-> $1, ordinal
		 LIMIT 1`,
		pgvector.NewVector(probe),
	).Scan(&n.Entry.Ordinal, &n.Entry.Name, &vec, &n.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return matcher.Neighbor{}, false, nil
	}
	if err != nil {
		return matcher.Neighbor{}, false, fmt.Errorf("nearest gallery face: %w", err)
	}
	n.Entry.Embedding = vec.Slice()
	return n, true, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
