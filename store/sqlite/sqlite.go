/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the engine consumes using SQLite.
  The same statements run on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  timesheet.EntryRepository: Canonical time entries
  timesheet.TimesheetStore:  Workflow state per employee and period
  timesheet.AuditLog:        Append-only transition history
  timesheet.Identity:        Email-shaped IDs and roles from the people table

KEY TABLES:
  time_entries: One row per (employee, date, project, description)
  timesheets:   UNIQUE(employee_id, cycle_type, period_start)
  people:       Known actors and their roles
  audit_log:    Workflow transitions

MIGRATIONS:
  Versioned SQL files under migrations/ are embedded and applied with
  golang-migrate on New(). Migrate() and Version() expose the same runner
  to the CLI.

DATES:
  Calendar dates are stored as "YYYY-MM-DD" text so range queries compare
  lexically. Timestamps are RFC3339 in UTC.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection because every connection would otherwise see its own
  empty database.

USAGE:
  store, err := sqlite.New("./data/timesheets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  sheet, err := timesheet.Open(ctx, timesheet.SheetConfig{
      Entries: store, Timesheets: store, Audit: store, Identity: store, ...
  })

SEE ALSO:
  - timesheet/store.go: Interface definitions
  - timesheet/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// MigrationStatus describes the schema version.
type MigrationStatus struct {
	CurrentVersion uint
	LatestVersion  uint
	Dirty          bool
}

func (st MigrationStatus) Pending() bool { return st.CurrentVersion < st.LatestVersion }

// Migrate applies every pending migration.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.migrator()
	if err != nil {
		return err
	}
	// m.Close would close s.db, so the migrator is simply dropped.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied and latest available schema versions.
func (s *Store) Version() (MigrationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.migrator()
	if err != nil {
		return MigrationStatus{}, err
	}
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationStatus{}, err
	}
	latest, err := source.First()
	if err == nil {
		for {
			next, err := source.Next(latest)
			if err != nil {
				break
			}
			latest = next
		}
	}

	return MigrationStatus{CurrentVersion: current, LatestVersion: latest, Dirty: dirty}, nil
}

func (s *Store) migrator() (*migrate.Migrate, error) {
	driver, err := migratesqlite3.WithInstance(s.db, &migratesqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "sqlite3", driver)
}

// =============================================================================
// ENTRY REPOSITORY (timesheet.EntryRepository)
// =============================================================================

const entryColumns = `id, employee_id, entry_date, project_id, description,
	duration_minutes, status, created_at, updated_at`

// Create inserts an entry, assigning an ID when none is set.
func (s *Store) Create(ctx context.Context, e timesheet.TimeEntry) (timesheet.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = timesheet.EntryID(uuid.NewString())
	}
	if e.Status == "" {
		e.Status = timesheet.EntryDraft
	}
	now := formatTime(time.Now())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		timesheet.NormalizeID(e.EmployeeID),
		e.Date.String(),
		e.ProjectID,
		e.Description,
		e.DurationMinutes,
		e.Status,
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", fmt.Errorf("entry %s already exists: %w", e.ID, err)
		}
		return "", fmt.Errorf("failed to create entry: %w", err)
	}
	return e.ID, nil
}

// Update applies the non-nil fields of patch.
func (s *Store) Update(ctx context.Context, id timesheet.EntryID, patch timesheet.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sets []string
		args []any
	)
	if patch.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *patch.ProjectID)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.DurationMinutes != nil {
		sets = append(sets, "duration_minutes = ?")
		args = append(args, *patch.DurationMinutes)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE time_entries SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return requireAffected(res, timesheet.ErrEntryNotFound)
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id timesheet.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM time_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return requireAffected(res, timesheet.ErrEntryNotFound)
}

// List returns the employee's entries in [q.From, q.To] ordered by date.
func (s *Store) List(ctx context.Context, q timesheet.EntryQuery) ([]timesheet.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE employee_id = ? AND entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date ASC, created_at ASC
	`, timesheet.NormalizeID(q.EmployeeID), q.From.String(), q.To.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []timesheet.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (timesheet.TimeEntry, error) {
	var (
		e                    timesheet.TimeEntry
		date                 string
		createdAt, updatedAt string
	)
	err := rows.Scan(&e.ID, &e.EmployeeID, &date, &e.ProjectID, &e.Description,
		&e.DurationMinutes, &e.Status, &createdAt, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	if e.Date, err = cycle.ParseDate(date); err != nil {
		return e, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// TIMESHEET STORE (timesheet.TimesheetStore)
// =============================================================================

// GetTimesheet loads the record of the window's period.
func (s *Store) GetTimesheet(ctx context.Context, employeeID string, w cycle.Window) (*timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		ts                    timesheet.Timesheet
		submittedAt, decided  sql.NullString
		createdAt, updatedAt  string
		cycleType, start, end string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, cycle_type, period_start, period_end, status,
		       rejection_reason, submitted_at, decided_by, decided_at, created_at, updated_at
		FROM timesheets
		WHERE employee_id = ? AND cycle_type = ? AND period_start = ?
	`, timesheet.NormalizeID(employeeID), string(w.Type), w.Start.String()).Scan(
		&ts.ID, &ts.EmployeeID, &cycleType, &start, &end, &ts.Status,
		&ts.RejectionReason, &submittedAt, &ts.DecidedBy, &decided, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, timesheet.ErrTimesheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load timesheet: %w", err)
	}

	ts.Window = w
	ts.SubmittedAt = parseNullTime(submittedAt)
	ts.DecidedAt = parseNullTime(decided)
	ts.CreatedAt = parseTime(createdAt)
	ts.UpdatedAt = parseTime(updatedAt)
	return &ts, nil
}

// SaveTimesheet inserts or replaces the record of the timesheet's period.
func (s *Store) SaveTimesheet(ctx context.Context, ts timesheet.Timesheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := ts.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := ts.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timesheets
		(id, employee_id, cycle_type, period_start, period_end, status,
		 rejection_reason, submitted_at, decided_by, decided_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, cycle_type, period_start) DO UPDATE SET
			period_end = excluded.period_end,
			status = excluded.status,
			rejection_reason = excluded.rejection_reason,
			submitted_at = excluded.submitted_at,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			updated_at = excluded.updated_at
	`,
		ts.ID,
		timesheet.NormalizeID(ts.EmployeeID),
		string(ts.Window.Type),
		ts.Window.Start.String(),
		ts.Window.End.String(),
		ts.Status,
		ts.RejectionReason,
		formatNullTime(ts.SubmittedAt),
		ts.DecidedBy,
		formatNullTime(ts.DecidedAt),
		formatTime(created),
		formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("failed to save timesheet: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG (timesheet.AuditLog)
// =============================================================================

// Append records an audit entry. Append-only: there is no update or delete.
func (s *Store) Append(ctx context.Context, entry timesheet.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, timesheet_id, employee_id, actor_id, action, from_status, to_status, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.TimesheetID, timesheet.NormalizeID(entry.EmployeeID), entry.ActorID,
		entry.Action, entry.From, entry.To, string(payload), formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns matching audit entries, oldest first.
func (s *Store) Query(ctx context.Context, filter timesheet.AuditFilter) ([]timesheet.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, timesheet_id, employee_id, actor_id, action, from_status, to_status, payload_json, created_at
		FROM audit_log WHERE 1=1`
	var args []any
	if filter.TimesheetID != nil {
		query += " AND timesheet_id = ?"
		args = append(args, *filter.TimesheetID)
	}
	if filter.EmployeeID != nil {
		query += " AND employee_id = ?"
		args = append(args, timesheet.NormalizeID(*filter.EmployeeID))
	}
	if filter.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query += " AND action IN (?" + strings.Repeat(", ?", len(filter.Actions)-1) + ")"
		for _, a := range filter.Actions {
			args = append(args, a)
		}
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []timesheet.AuditEntry
	for rows.Next() {
		var (
			e         timesheet.AuditEntry
			payload   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.TimesheetID, &e.EmployeeID, &e.ActorID, &e.Action,
			&e.From, &e.To, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
			}
		}
		e.Timestamp = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// PEOPLE (timesheet.Identity)
// =============================================================================

// SavePerson inserts or updates a person.
func (s *Store) SavePerson(ctx context.Context, p timesheet.Person) error {
	if err := timesheet.ValidateEmail(p.ID); err != nil {
		return err
	}
	if p.Role == "" {
		p.Role = timesheet.RoleEmployee
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role
	`, timesheet.NormalizeID(p.ID), p.Name, p.Role, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save person: %w", err)
	}
	return nil
}

// GetPerson returns nil when the person is unknown.
func (s *Store) GetPerson(ctx context.Context, id string) (*timesheet.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p timesheet.Person
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role FROM people WHERE id = ?",
		timesheet.NormalizeID(id),
	).Scan(&p.ID, &p.Name, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load person: %w", err)
	}
	return &p, nil
}

// ListPeople returns everyone ordered by ID.
func (s *Store) ListPeople(ctx context.Context) ([]timesheet.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, role FROM people ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	var people []timesheet.Person
	for rows.Next() {
		var p timesheet.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Role); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func (s *Store) Validate(id string) error { return timesheet.ValidateEmail(id) }

func (s *Store) DisplayName(ctx context.Context, id string) (string, error) {
	if err := timesheet.ValidateEmail(id); err != nil {
		return "", err
	}
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return "", err
	}
	if p != nil && p.Name != "" {
		return p.Name, nil
	}
	local, _, _ := strings.Cut(strings.TrimSpace(id), "@")
	return local, nil
}

// HasRole treats unknown email-shaped IDs as employees.
func (s *Store) HasRole(ctx context.Context, id string, role timesheet.Role) (bool, error) {
	if err := timesheet.ValidateEmail(id); err != nil {
		return false, err
	}
	if role == timesheet.RoleEmployee {
		return true, nil
	}
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return false, err
	}
	return p != nil && p.Role == role, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isUniqueConstraintError matches UNIQUE indexes and non-integer primary
// keys, which SQLite reports with different extended codes.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
