package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// SHEET - One employee's grid and workflow for one cycle window
// =============================================================================

// SheetConfig wires a Sheet. EmployeeID, Entries, Timesheets and Identity
// are required; a zero Window is computed from Calculator, CycleType and
// today's date.
type SheetConfig struct {
	EmployeeID string
	Window     cycle.Window
	CycleType  cycle.Type
	Calculator *cycle.Calculator

	Entries    EntryRepository
	Timesheets TimesheetStore
	Audit      AuditLog
	Identity   Identity

	After         AfterFunc
	FieldDelay    time.Duration
	DurationDelay time.Duration
	OnSaveError   func(*SaveError)

	Logger *log.Logger
	Now    func() time.Time
}

// Sheet is the session aggregate the presentation layer talks to.
type Sheet struct {
	mu       sync.RWMutex
	cfg      SheetConfig
	calc     *cycle.Calculator
	grid     *Grid
	workflow *Workflow
	closed   bool
}

// Open loads (or creates) the timesheet record for the window and fills the
// grid from the repository.
func Open(ctx context.Context, cfg SheetConfig) (*Sheet, error) {
	switch {
	case cfg.EmployeeID == "":
		return nil, fmt.Errorf("%w: employee is required", ErrInvalidIdentity)
	case cfg.Entries == nil, cfg.Timesheets == nil, cfg.Identity == nil:
		return nil, errors.New("sheet: entries, timesheets and identity are required")
	}
	if err := cfg.Identity.Validate(cfg.EmployeeID); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	calc := cfg.Calculator
	if calc == nil {
		calc = cycle.NewCalculator(cycle.DefaultConfig())
	}

	window := cfg.Window
	if window.Start.IsZero() {
		t := cfg.CycleType
		if t == "" {
			t = cycle.Weekly
		}
		var err error
		window, err = calc.Compute(cycle.DateOf(cfg.Now()), t)
		if err != nil {
			return nil, err
		}
	}

	s := &Sheet{cfg: cfg, calc: calc}
	s.workflow = NewWorkflow(Timesheet{}, WorkflowConfig{
		Identity:   cfg.Identity,
		Timesheets: cfg.Timesheets,
		Entries:    cfg.Entries,
		Audit:      cfg.Audit,
		Logger:     cfg.Logger,
		Now:        cfg.Now,
	})
	s.grid = NewGrid(GridConfig{
		EmployeeID:    cfg.EmployeeID,
		Reconciler:    NewReconciler(cfg.Entries, cfg.Logger),
		Gate:          s.workflow,
		After:         cfg.After,
		FieldDelay:    cfg.FieldDelay,
		DurationDelay: cfg.DurationDelay,
		OnSaveError:   cfg.OnSaveError,
		Logger:        cfg.Logger,
	})
	if err := s.load(ctx, window); err != nil {
		return nil, err
	}
	return s, nil
}

// load points the sheet at window. Caller holds s.mu or owns s exclusively.
func (s *Sheet) load(ctx context.Context, window cycle.Window) error {
	ts, err := s.cfg.Timesheets.GetTimesheet(ctx, s.cfg.EmployeeID, window)
	switch {
	case errors.Is(err, ErrTimesheetNotFound):
		fresh := NewTimesheet(s.cfg.EmployeeID, window, s.cfg.Now())
		if err := s.cfg.Timesheets.SaveTimesheet(ctx, fresh); err != nil {
			return fmt.Errorf("create timesheet: %w", err)
		}
		ts = &fresh
	case err != nil:
		return fmt.Errorf("load timesheet: %w", err)
	}
	ts.Window = window

	entries, err := s.cfg.Entries.List(ctx, EntryQuery{
		EmployeeID: s.cfg.EmployeeID,
		From:       window.Start,
		To:         window.End,
	})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	s.workflow.reset(*ts)
	s.grid.Initialize(entries, window)
	return nil
}

func (s *Sheet) read() error {
	if s.closed {
		return ErrSheetClosed
	}
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

func (s *Sheet) EmployeeID() string { return s.cfg.EmployeeID }

func (s *Sheet) Window() cycle.Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Window()
}

func (s *Sheet) CycleLabel() string {
	return s.calc.FormatLabel(s.Window())
}

func (s *Sheet) Rows() []GridRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Rows()
}

func (s *Sheet) Row(id RowID) (GridRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Row(id)
}

func (s *Sheet) ValidationErrors() ValidationErrors {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.ValidationErrors()
}

// HeldCells lists nonzero cells waiting for their row to get a key of its own.
func (s *Sheet) HeldCells() map[RowID][]cycle.Date {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.HeldCells()
}

func (s *Sheet) SaveErrors() []*SaveError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.SaveErrors()
}

func (s *Sheet) Timesheet() Timesheet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflow.Timesheet()
}

func (s *Sheet) Status() Status { return s.Timesheet().Status }
func (s *Sheet) IsLocked() bool { return s.Status().IsLocked() }

// Totals sums the grid in hours.
func (s *Sheet) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeTotals(s.grid.Rows(), s.grid.Window().GridDates)
}

// PendingCommits returns the number of armed autosave timers.
func (s *Sheet) PendingCommits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.PendingCommits()
}

// =============================================================================
// EDITS
// =============================================================================

func (s *Sheet) AddRow() (RowID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return "", err
	}
	return s.grid.AddRow()
}

func (s *Sheet) UpdateField(rowID RowID, field Field, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return err
	}
	return s.grid.UpdateField(rowID, field, value)
}

func (s *Sheet) UpdateDayDuration(ctx context.Context, rowID RowID, date cycle.Date, raw string, commitNow bool) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return "", err
	}
	return s.grid.UpdateDayDuration(ctx, rowID, date, raw, commitNow)
}

func (s *Sheet) ClearRow(ctx context.Context, rowID RowID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return err
	}
	return s.grid.ClearRow(ctx, rowID)
}

func (s *Sheet) RemoveRow(ctx context.Context, rowID RowID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return err
	}
	return s.grid.RemoveRow(ctx, rowID)
}

// Flush commits every pending edit now.
func (s *Sheet) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return err
	}
	return s.grid.Flush()
}

// =============================================================================
// WORKFLOW
// =============================================================================

// Submit flushes pending edits and submits the grid. When nothing is
// submittable the grid's validation errors are refreshed so the caller can
// show what is missing.
func (s *Sheet) Submit(ctx context.Context, employeeID string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return nil, err
	}

	if !s.workflow.Can(EventSubmit) {
		return nil, &TransitionError{From: s.workflow.Status(), Event: EventSubmit}
	}
	if err := s.grid.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsyncedChanges, err)
	}

	rows := s.grid.Rows()
	sub, err := s.workflow.Submit(ctx, employeeID, rows)
	switch {
	case errors.Is(err, ErrNothingToSubmit):
		s.grid.SetValidationErrors(ValidateAll(rows))
		return nil, err
	case err != nil:
		return nil, err
	}
	s.grid.SetValidationErrors(nil)
	return sub, nil
}

func (s *Sheet) Approve(ctx context.Context, managerID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.read(); err != nil {
		return err
	}
	return s.workflow.Approve(ctx, managerID)
}

// Reject sends the timesheet back and reloads the grid so the entries it
// just released become editable again.
func (s *Sheet) Reject(ctx context.Context, managerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return err
	}
	if err := s.workflow.Reject(ctx, managerID, reason); err != nil {
		return err
	}
	if err := s.reloadGrid(ctx); err != nil {
		s.cfg.Logger.Printf("[Workflow] reload after reject failed for %s: %v", s.cfg.EmployeeID, err)
	}
	return nil
}

// reloadGrid refills the grid for its current window. Caller holds s.mu.
func (s *Sheet) reloadGrid(ctx context.Context) error {
	window := s.grid.Window()
	entries, err := s.cfg.Entries.List(ctx, EntryQuery{
		EmployeeID: s.cfg.EmployeeID,
		From:       window.Start,
		To:         window.End,
	})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	s.grid.Initialize(entries, window)
	return nil
}

// =============================================================================
// NAVIGATION AND TEARDOWN
// =============================================================================

type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

// Navigate commits pending edits and moves to the adjacent cycle. Save
// failures do not block navigation; they are returned alongside the move.
func (s *Sheet) Navigate(ctx context.Context, dir Direction) (cycle.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return cycle.Window{}, err
	}

	flushErr := s.grid.Flush()

	current := s.grid.Window()
	var next cycle.Window
	var err error
	if dir == Previous {
		next, err = s.calc.PreviousWindow(current)
	} else {
		next, err = s.calc.NextWindow(current)
	}
	if err != nil {
		return current, err
	}
	if err := s.load(ctx, next); err != nil {
		return current, err
	}
	if flushErr != nil {
		return next, fmt.Errorf("%w: %w", ErrUnsyncedChanges, flushErr)
	}
	return next, nil
}

// Focus shows the grid dates of w, which must be the sheet's own period.
// Pending edits are committed first; if that fails the grid stays put.
func (s *Sheet) Focus(ctx context.Context, w cycle.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.read(); err != nil {
		return err
	}
	current := s.grid.Window()
	if sameGrid(current, w) {
		return nil
	}
	if current.Type != w.Type || current.Start != w.Start {
		return fmt.Errorf("%w: %s is not in the %s period starting %s", ErrDateOutsideWindow, w.Start, current.Type, current.Start)
	}
	if err := s.grid.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsyncedChanges, err)
	}
	return s.load(ctx, w)
}

// Close cancels every pending timer without committing. The sheet is
// unusable afterwards.
func (s *Sheet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.grid.Close()
}
