/*
reconcile.go - Write-behind reconciliation of grid cells into entries

PURPOSE:
  Turns one PendingEdit into at most a couple of repository writes so the
  canonical entry collection matches the grid cell:

  ┌──────────────┬──────────────────────┬──────────────────────────────┐
  │ minutes      │ entry found by key   │ action                       │
  ├──────────────┼──────────────────────┼──────────────────────────────┤
  │ 0            │ yes                  │ delete (retraction)          │
  │ 0            │ no                   │ nothing                      │
  │ > 0          │ yes                  │ update duration/description  │
  │ > 0          │ only under prior key │ update and re-key            │
  │ > 0          │ no                   │ create (new row or not)      │
  └──────────────┴──────────────────────┴──────────────────────────────┘

  The key is (date, project, description). When the row was renamed since
  the cell was last saved, the prior key is searched as well so the entry is
  moved rather than duplicated; a stale entry left under the prior key is
  deleted.

  An entry that is submitted or approved is never updated, re-keyed or
  deleted here, whichever timesheet the edit comes from: Apply returns a
  *LockedError carrying the entry and writes nothing.

CONCURRENCY:
  Writes are serialised per (employee, date) so two timers can never both
  miss an existing entry and create duplicates. Every key of one cell
  shares its date, so one lock covers both the current and the prior key.

FAILURES:
  Repository errors are returned as *SaveError. Nothing is rolled back here;
  the Grid decides how to surface the failure.
*/
package timesheet

import (
	"context"
	"log"

	"github.com/warp/timesheet-engine/cycle"
)

// Outcome describes what Apply did.
type Outcome struct {
	Action  Action
	EntryID EntryID

	// Persisted is true when an entry exists under the edit's current key
	// after Apply.
	Persisted bool
}

type Action string

const (
	ActionNone    Action = "none"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Reconciler applies PendingEdits to an EntryRepository.
type Reconciler struct {
	repo   EntryRepository
	locks  keyedMutex
	logger *log.Logger
}

func NewReconciler(repo EntryRepository, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{repo: repo, logger: logger}
}

type reconcileLockKey struct {
	employeeID string
	date       cycle.Date
}

// Apply consumes edit. It is safe for concurrent use.
func (r *Reconciler) Apply(ctx context.Context, edit PendingEdit) (Outcome, error) {
	unlock := r.locks.Lock(reconcileLockKey{employeeID: edit.EmployeeID, date: edit.Date})
	defer unlock()

	minutes := ParseMinutes(edit.DurationText)

	existing, err := r.repo.List(ctx, EntryQuery{EmployeeID: edit.EmployeeID, From: edit.Date, To: edit.Date})
	if err != nil {
		return Outcome{}, r.fail(edit, "list", err)
	}

	current := findEntry(existing, edit.Date, edit.key())
	var prior *TimeEntry
	if pk := edit.priorKey(); edit.HasPrior && pk != edit.key() {
		prior = findEntry(existing, edit.Date, pk)
	}

	for _, e := range []*TimeEntry{current, prior} {
		if e != nil && e.Status.IsLocked() {
			r.logger.Printf("[Autosave] row %s on %s: entry %s is %s", edit.RowID, edit.Date, e.ID, e.Status)
			return Outcome{}, lockedEntry(*e)
		}
	}

	if minutes == 0 {
		return r.retract(ctx, edit, current, prior)
	}

	switch {
	case current != nil:
		patch := EntryPatch{
			Description:     strPtr(edit.Description),
			DurationMinutes: intPtr(minutes),
		}
		if err := r.repo.Update(ctx, current.ID, patch); err != nil {
			return Outcome{}, r.fail(edit, "update", err)
		}
		if prior != nil {
			if err := r.repo.Delete(ctx, prior.ID); err != nil {
				return Outcome{}, r.fail(edit, "delete", err)
			}
		}
		return Outcome{Action: ActionUpdated, EntryID: current.ID, Persisted: true}, nil

	case prior != nil:
		patch := EntryPatch{
			ProjectID:       strPtr(edit.ProjectID),
			Description:     strPtr(edit.Description),
			DurationMinutes: intPtr(minutes),
		}
		if err := r.repo.Update(ctx, prior.ID, patch); err != nil {
			return Outcome{}, r.fail(edit, "update", err)
		}
		return Outcome{Action: ActionUpdated, EntryID: prior.ID, Persisted: true}, nil
	}

	// Not found: create whether or not the row is new. A saved value is
	// never silently dropped.
	id, err := r.repo.Create(ctx, TimeEntry{
		EmployeeID:      edit.EmployeeID,
		Date:            edit.Date,
		ProjectID:       edit.ProjectID,
		Description:     edit.Description,
		DurationMinutes: minutes,
		Status:          EntryDraft,
	})
	if err != nil {
		return Outcome{}, r.fail(edit, "create", err)
	}
	if !edit.IsNewRow {
		r.logger.Printf("[Autosave] row %s had no entry on %s; created %s", edit.RowID, edit.Date, id)
	}
	return Outcome{Action: ActionCreated, EntryID: id, Persisted: true}, nil
}

func (r *Reconciler) retract(ctx context.Context, edit PendingEdit, found ...*TimeEntry) (Outcome, error) {
	out := Outcome{Action: ActionNone}
	for _, e := range found {
		if e == nil {
			continue
		}
		if err := r.repo.Delete(ctx, e.ID); err != nil {
			return Outcome{}, r.fail(edit, "delete", err)
		}
		out = Outcome{Action: ActionDeleted, EntryID: e.ID}
	}
	return out, nil
}

func (r *Reconciler) fail(edit PendingEdit, op string, err error) error {
	saveErr := &SaveError{RowID: edit.RowID, Date: edit.Date, Op: op, Err: err}
	r.logger.Printf("[Autosave] %v", saveErr)
	return saveErr
}

func findEntry(entries []TimeEntry, date cycle.Date, key EntryKey) *TimeEntry {
	for i := range entries {
		if entries[i].Date == date && entries[i].Key() == key {
			return &entries[i]
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
