/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the narrow interfaces between the engine and its collaborators.
  The engine never assumes a storage format; implementations live in
  timesheet/store (in-memory) and store/sqlite.

KEY INTERFACES:
  EntryRepository: Canonical time entries (create/update/delete/list)
  TimesheetStore:  Timesheet status records, one per employee and period
  AuditLog:        Append-only record of workflow transitions

SEE ALSO:
  - reconcile.go: The only writer of entries
  - approval.go:  The only writer of timesheets and audit entries
*/
package timesheet

import (
	"context"
	"time"

	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// ENTRY REPOSITORY
// =============================================================================

// EntryRepository is the canonical entry collection.
type EntryRepository interface {
	// Create persists a new entry and returns its ID. If entry.ID is empty
	// the repository assigns one.
	Create(ctx context.Context, entry TimeEntry) (EntryID, error)

	// Update applies patch to an existing entry.
	// Returns ErrEntryNotFound for unknown IDs.
	Update(ctx context.Context, id EntryID, patch EntryPatch) error

	// Delete removes an entry. Returns ErrEntryNotFound for unknown IDs.
	Delete(ctx context.Context, id EntryID) error

	// List returns the employee's entries in [q.From, q.To], ordered by date.
	List(ctx context.Context, q EntryQuery) ([]TimeEntry, error)
}

// =============================================================================
// TIMESHEET STORE
// =============================================================================

// TimesheetStore persists workflow state per employee and period.
type TimesheetStore interface {
	// GetTimesheet returns the record for the window's period, or
	// ErrTimesheetNotFound.
	GetTimesheet(ctx context.Context, employeeID string, window cycle.Window) (*Timesheet, error)

	// SaveTimesheet inserts or replaces the record.
	SaveTimesheet(ctx context.Context, ts Timesheet) error
}

// =============================================================================
// AUDIT LOG - Tracks who moved which timesheet where
// =============================================================================

type AuditAction string

const (
	AuditSubmitted AuditAction = "submitted"
	AuditApproved  AuditAction = "approved"
	AuditRejected  AuditAction = "rejected"
)

// AuditEntry records one workflow transition.
type AuditEntry struct {
	ID          string
	TimesheetID TimesheetID
	EmployeeID  string
	ActorID     string
	Action      AuditAction
	From        Status
	To          Status
	Payload     map[string]any
	Timestamp   time.Time
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	TimesheetID *TimesheetID
	EmployeeID  *string
	ActorID     *string
	Actions     []AuditAction
}

// Matches reports whether entry passes the filter. Shared by implementations
// that filter in memory.
func (f AuditFilter) Matches(entry AuditEntry) bool {
	if f.TimesheetID != nil && entry.TimesheetID != *f.TimesheetID {
		return false
	}
	if f.EmployeeID != nil && entry.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.ActorID != nil && entry.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if entry.Action == a {
			return true
		}
	}
	return false
}

// nopAuditLog is used when no audit log is configured.
type nopAuditLog struct{}

func (nopAuditLog) Append(context.Context, AuditEntry) error { return nil }
func (nopAuditLog) Query(context.Context, AuditFilter) ([]AuditEntry, error) {
	return nil, nil
}
