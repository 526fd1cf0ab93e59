/*
Package timesheet provides the grid reconciliation and approval engine.

PURPOSE:
  An employee records time against projects in an editable grid: one row per
  (project, description) pair and one duration cell per grid date of the
  current cycle. Edits are written behind to the canonical entry repository
  through debounced commits, rows are validated before submission, and the
  resulting timesheet moves through an approval workflow that locks the grid.

KEY CONCEPTS IN THIS FILE (types.go):
  - TimeEntry:   The persisted unit owned by the EntryRepository
  - GridRow:     An ephemeral editable row owned by the Grid
  - PendingEdit: One cell commit handed to the Reconciler
  - Hours:       Decimal hour totals derived from minutes

COMPONENTS:
  Grid        (grid.go)       Owns rows; debounces edits
  Debouncer   (debounce.go)   Per-key cancellable delayed tasks
  Reconciler  (reconcile.go)  Applies PendingEdits to the repository
  ValidateAll (validation.go) Per-field row validation
  Workflow    (approval.go)   draft -> submitted -> approved / rejected
  Sheet       (sheet.go)      Session aggregate wiring all of the above

USAGE:
  sheet, err := timesheet.Open(ctx, timesheet.SheetConfig{
      EmployeeID: "a@b.com",
      Window:     window,
      Entries:    repo,
      Timesheets: repo,
      Identity:   directory,
  })
  defer sheet.Close()

  sheet.UpdateField(rowID, timesheet.FieldProject, "P1")
  sheet.UpdateDayDuration(rowID, day, "8", true)
  sheet.Submit(ctx, "a@b.com")

SEE ALSO:
  - store.go: Repository interfaces
  - errors.go: Sentinel and structured errors
  - cycle package: Window computation
*/
package timesheet

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type RowID string
type TimesheetID string

// =============================================================================
// TIME ENTRY - Persisted unit, owned by the repository
// =============================================================================

// EntryStatus mirrors the status of the timesheet the entry was submitted with.
type EntryStatus string

const (
	EntryDraft     EntryStatus = "draft"
	EntrySubmitted EntryStatus = "submitted"
	EntryApproved  EntryStatus = "approved"
	EntryRejected  EntryStatus = "rejected"
)

// IsLocked reports whether the entry belongs to a submitted or approved
// timesheet and must not change.
func (s EntryStatus) IsLocked() bool {
	return s == EntrySubmitted || s == EntryApproved
}

type TimeEntry struct {
	ID              EntryID
	EmployeeID      string
	Date            cycle.Date
	ProjectID       string
	Description     string
	DurationMinutes int
	Status          EntryStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Key returns the natural key the grid and reconciler match entries by.
func (e TimeEntry) Key() EntryKey {
	return EntryKey{ProjectID: e.ProjectID, Description: e.Description}
}

// EntryKey is the (project, description) pair a row groups entries by.
type EntryKey struct {
	ProjectID   string
	Description string
}

func (k EntryKey) IsZero() bool { return k.ProjectID == "" && k.Description == "" }

// EntryPatch carries the fields to change on Update. Nil fields are left alone.
type EntryPatch struct {
	ProjectID       *string
	Description     *string
	DurationMinutes *int
	Status          *EntryStatus
}

// EntryQuery selects entries for one employee in [From, To].
type EntryQuery struct {
	EmployeeID string
	From       cycle.Date
	To         cycle.Date
}

// =============================================================================
// GRID ROW - Ephemeral, owned by the Grid
// =============================================================================

// Field names the editable text fields of a row.
type Field string

const (
	FieldProject     Field = "project"
	FieldDescription Field = "description"
)

// GridRow is one (project, description) pairing with a cell per grid date.
// DayDurations always has exactly one key per grid date of the active window.
type GridRow struct {
	ID           RowID
	ProjectID    string
	Description  string
	DayDurations map[cycle.Date]string
	IsNewRow     bool

	// Duplicate is set when another row owns the same project and
	// description. The row's cells are not saved while it is set.
	Duplicate bool

	// LockedDates are cells backed by a submitted or approved entry.
	LockedDates []cycle.Date
}

// HasDuration reports whether any cell carries a nonzero duration.
func (r GridRow) HasDuration() bool {
	for _, text := range r.DayDurations {
		if ParseMinutes(text) > 0 {
			return true
		}
	}
	return false
}

// TotalMinutes sums every cell of the row.
func (r GridRow) TotalMinutes() int {
	total := 0
	for _, text := range r.DayDurations {
		total += ParseMinutes(text)
	}
	return total
}

func (r GridRow) key() EntryKey {
	return EntryKey{ProjectID: r.ProjectID, Description: r.Description}
}

func (r GridRow) clone() GridRow {
	days := make(map[cycle.Date]string, len(r.DayDurations))
	for d, text := range r.DayDurations {
		days[d] = text
	}
	r.DayDurations = days
	if r.LockedDates != nil {
		r.LockedDates = append([]cycle.Date(nil), r.LockedDates...)
	}
	return r
}

// =============================================================================
// PENDING EDIT - One cell commit, consumed exactly once
// =============================================================================

// PendingEdit is built from the current row state when a debounce timer fires
// (or immediately for commit-now edits). When HasPrior is set, Prior* name the
// key the cell was last persisted under, which differs from
// ProjectID/Description after a rename.
type PendingEdit struct {
	EmployeeID       string
	RowID            RowID
	Date             cycle.Date
	DurationText     string
	IsNewRow         bool
	ProjectID        string
	Description      string
	HasPrior         bool
	PriorProjectID   string
	PriorDescription string
}

func (e PendingEdit) key() EntryKey {
	return EntryKey{ProjectID: e.ProjectID, Description: e.Description}
}

func (e PendingEdit) priorKey() EntryKey {
	return EntryKey{ProjectID: e.PriorProjectID, Description: e.PriorDescription}
}

// =============================================================================
// HOURS - Decimal totals for display and submission summaries
// =============================================================================

var minutesPerHour = decimal.NewFromInt(60)

// Hours converts minutes to exact decimal hours (90 -> 1.5).
func Hours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(minutesPerHour)
}

// Totals summarises the grid in hours.
type Totals struct {
	ByDate map[cycle.Date]decimal.Decimal
	ByRow  map[RowID]decimal.Decimal
	Total  decimal.Decimal
}

// ComputeTotals sums rows per date, per row and overall.
func ComputeTotals(rows []GridRow, gridDates []cycle.Date) Totals {
	byDateMinutes := make(map[cycle.Date]int, len(gridDates))
	totals := Totals{
		ByDate: make(map[cycle.Date]decimal.Decimal, len(gridDates)),
		ByRow:  make(map[RowID]decimal.Decimal, len(rows)),
	}
	all := 0
	for _, row := range rows {
		rowMinutes := 0
		for d, text := range row.DayDurations {
			m := ParseMinutes(text)
			byDateMinutes[d] += m
			rowMinutes += m
		}
		totals.ByRow[row.ID] = Hours(rowMinutes)
		all += rowMinutes
	}
	for _, d := range gridDates {
		totals.ByDate[d] = Hours(byDateMinutes[d])
	}
	totals.Total = Hours(all)
	return totals
}
