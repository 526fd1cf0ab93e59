/*
errors.go - Centralized error types for the timesheet engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Adapters (HTTP, CLI) map these to user-facing responses.

ERROR CATEGORIES:
  1. Gate errors      - Mutation refused because the timesheet is locked
  2. Workflow errors  - Illegal transitions and failed guards
  3. Grid errors      - Unknown rows, fields or dates
  4. Autosave errors  - Repository writes that failed behind the grid

USAGE:
  if errors.Is(err, timesheet.ErrLocked) {
      // grid is read-only until the timesheet is rejected
  }

  var saveErr *timesheet.SaveError
  if errors.As(err, &saveErr) {
      // saveErr.RowID / saveErr.Date identify the unsynced cell
  }

NOT ERRORS:
  Malformed duration text is coerced, never reported. Missing fields on a
  non-empty row are reported as ValidationErrors data, not as Go errors.
*/
package timesheet

import (
	"errors"
	"fmt"

	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLocked is returned for grid mutations while the timesheet is
	// submitted or approved.
	ErrLocked = errors.New("timesheet is locked")

	// ErrNothingToSubmit is returned when no row is both complete and nonzero.
	// Validation errors are populated on the grid when this happens.
	ErrNothingToSubmit = errors.New("no submittable rows")

	// ErrIllegalTransition is returned when an event is not allowed from the
	// current status.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvalidIdentity is returned when an employee or manager identifier
	// is not email-shaped.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrNotManager is returned when the actor lacks the manager role.
	ErrNotManager = errors.New("manager role required")

	// ErrNotOwner is returned when someone other than the owner submits.
	ErrNotOwner = errors.New("only the timesheet owner can submit")

	// ErrReasonRequired is returned when rejecting without a reason.
	ErrReasonRequired = errors.New("rejection reason is required")

	// ErrRowNotFound is returned for unknown row identifiers.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnknownField is returned for fields other than project/description.
	ErrUnknownField = errors.New("unknown field")

	// ErrDateOutsideWindow is returned for dates that are not grid columns.
	ErrDateOutsideWindow = errors.New("date outside grid window")

	// ErrSaveFailed is matched by every SaveError.
	ErrSaveFailed = errors.New("autosave failed")

	// ErrUnsyncedChanges is returned by Submit and Focus while cells failed to save.
	ErrUnsyncedChanges = errors.New("unsynced changes")

	// ErrEntryNotFound is returned by repositories for unknown entry IDs.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrTimesheetNotFound is returned by TimesheetStore lookups.
	ErrTimesheetNotFound = errors.New("timesheet not found")

	// ErrSheetClosed is returned for operations on a torn-down Sheet.
	ErrSheetClosed = errors.New("sheet closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LockedError reports the status that caused the lock. Entry is set when
// one saved entry, submitted or approved with some timesheet over the same
// dates, is what refused the change.
type LockedError struct {
	Status Status
	Entry  *TimeEntry
}

func (e *LockedError) Error() string {
	if e.Entry != nil {
		return fmt.Sprintf("entry on %s for %s/%s is locked (status: %s)",
			e.Entry.Date, e.Entry.ProjectID, e.Entry.Description, e.Status)
	}
	return fmt.Sprintf("timesheet is locked (status: %s)", e.Status)
}

func lockedEntry(e TimeEntry) *LockedError {
	return &LockedError{Status: Status(e.Status), Entry: &e}
}

func (e *LockedError) Unwrap() error {
	return ErrLocked
}

// TransitionError reports an event that the current status does not accept.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a timesheet in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// SaveError reports a repository write that failed while committing a cell.
// The grid keeps the optimistic value and marks the cell unsynced.
type SaveError struct {
	RowID RowID
	Date  cycle.Date
	Op    string // "create", "update", "delete", "list"
	Err   error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("autosave %s failed for row %s on %s: %v", e.Op, e.RowID, e.Date, e.Err)
}

// Unwrap exposes both ErrSaveFailed and the repository error to errors.Is.
func (e *SaveError) Unwrap() []error {
	return []error{ErrSaveFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if repeating the operation might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSaveFailed) || errors.Is(err, ErrUnsyncedChanges)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNothingToSubmit) ||
		errors.Is(err, ErrInvalidIdentity) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrDateOutsideWindow) ||
		errors.Is(err, cycle.ErrUnknownCycleType)
}

// IsConflict returns true if the error depends on the workflow state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrLocked) || errors.Is(err, ErrIllegalTransition)
}

// IsForbidden returns true if the actor may not perform the action.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotManager) || errors.Is(err, ErrNotOwner)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRowNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrTimesheetNotFound)
}
