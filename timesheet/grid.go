/*
grid.go - Editable row store with write-behind autosave

PURPOSE:
  Owns the ordered list of GridRows for one employee and one cycle window.
  Every edit lands in memory immediately (optimistic) and is committed to
  the EntryRepository later through the Debouncer and the Reconciler.

TIMERS:
  ┌──────────────────────┬──────────────┬────────────────────────────────┐
  │ Edit                 │ Debounce key │ Delay                          │
  ├──────────────────────┼──────────────┼────────────────────────────────┤
  │ UpdateField          │ row          │ FieldDelay (1000ms)            │
  │ UpdateDayDuration    │ (row, date)  │ DurationDelay (2000ms)         │
  │   with commitNow     │ (row, date)  │ cancelled, committed in place  │
  └──────────────────────┴──────────────┴────────────────────────────────┘

  A field commit re-commits every nonzero cell of the row under the row's
  new (project, description) key. Each cell remembers the key it was last
  persisted under so the Reconciler can move entries instead of duplicating.

HELD CELLS:
  Entries are keyed by (date, project, description), so one key has exactly
  one owning row: the first row in display order that saved under it, else
  the first row using it. A nonzero cell is held in memory, not saved, while
  its row has a blank key or does not own its key. Held cells are retried
  after every field commit, clear, remove and Flush, so naming or renaming
  a row picks them up. Retracting a cell only ever deletes the entry that
  row itself saved.

ENTRY LOCKS:
  A cell backed by a submitted or approved entry is locked even when this
  sheet is a draft: another timesheet over the same dates holds it. Locked
  cells refuse edits, and so do renames, clears and removals of their row.
  A lock that appears after load is learnt from the Reconciler and the cell
  shows the locked value again.

LOCKING:
  mu guards rows and error state and is never held across repository
  calls. cellLocks serialises commits of the same (row, date) so the
  later commit always reads and writes the later value.

FAILURES:
  A failed commit keeps the optimistic value. The cell is listed by
  SaveErrors until a later commit of the same cell succeeds.
*/
package timesheet

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/cycle"
)

const (
	DefaultFieldDelay    = 1000 * time.Millisecond
	DefaultDurationDelay = 2000 * time.Millisecond

	// MinRows is the number of rows a freshly initialised grid shows.
	MinRows = 3
)

// MutationGate decides whether the grid may change. Workflow implements it.
type MutationGate interface {
	CheckMutable() error
}

type openGate struct{}

func (openGate) CheckMutable() error { return nil }

// GridConfig wires a Grid. Reconciler is required.
type GridConfig struct {
	EmployeeID    string
	Reconciler    *Reconciler
	Gate          MutationGate
	After         AfterFunc
	FieldDelay    time.Duration
	DurationDelay time.Duration

	// OnSaveError receives failures of debounced commits. Called from the
	// timer goroutine (or Flush) without any grid lock held; it must not
	// call back into the Sheet that owns the grid.
	OnSaveError func(*SaveError)

	Logger *log.Logger
}

type cellKey struct {
	row  RowID
	date cycle.Date
}

type gridRow struct {
	GridRow
	persisted map[cycle.Date]EntryKey
	locked    map[cycle.Date]TimeEntry
}

// Grid is the editable row store. Safe for concurrent use.
type Grid struct {
	mu        sync.Mutex
	employee  string
	window    cycle.Window
	rows      []*gridRow
	index     map[RowID]*gridRow
	errs      ValidationErrors
	unsynced  map[cellKey]*SaveError
	held      map[cellKey]struct{}
	closed    bool
	gate      MutationGate
	recon     *Reconciler
	debounce  *Debouncer
	cellLocks keyedMutex

	fieldDelay    time.Duration
	durationDelay time.Duration
	onSaveError   func(*SaveError)
	logger        *log.Logger
}

func NewGrid(cfg GridConfig) *Grid {
	g := &Grid{
		employee:      cfg.EmployeeID,
		index:         make(map[RowID]*gridRow),
		errs:          make(ValidationErrors),
		unsynced:      make(map[cellKey]*SaveError),
		held:          make(map[cellKey]struct{}),
		gate:          cfg.Gate,
		recon:         cfg.Reconciler,
		debounce:      NewDebouncer(cfg.After),
		fieldDelay:    cfg.FieldDelay,
		durationDelay: cfg.DurationDelay,
		onSaveError:   cfg.OnSaveError,
		logger:        cfg.Logger,
	}
	if g.gate == nil {
		g.gate = openGate{}
	}
	if g.fieldDelay <= 0 {
		g.fieldDelay = DefaultFieldDelay
	}
	if g.durationDelay <= 0 {
		g.durationDelay = DefaultDurationDelay
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	return g
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// Initialize rebuilds the rows from entries for window. Pending timers are
// cancelled without firing; callers that need them committed flush first.
// Reloading the same grid dates keeps the IDs of rows whose key survives.
func (g *Grid) Initialize(entries []TimeEntry, window cycle.Window) {
	g.debounce.CancelWhere(func(DebounceKey) bool { return true })

	reuse := make(map[EntryKey]RowID)
	g.mu.Lock()
	if sameGrid(g.window, window) {
		for _, row := range g.rows {
			if k := row.key(); !k.IsZero() && !row.IsNewRow {
				if _, taken := reuse[k]; !taken {
					reuse[k] = row.ID
				}
			}
		}
	}
	g.mu.Unlock()

	byKey := make(map[EntryKey]*gridRow)
	minutes := make(map[cellKey]int)
	for _, e := range entries {
		if !window.InGrid(e.Date) {
			continue
		}
		k := e.Key()
		row, ok := byKey[k]
		if !ok {
			row = g.newRow(window, k)
			if id, ok := reuse[k]; ok {
				row.ID = id
			}
			byKey[k] = row
		}
		minutes[cellKey{row.ID, e.Date}] += e.DurationMinutes
		row.persisted[e.Date] = k
		if e.Status.IsLocked() {
			row.locked[e.Date] = e
		}
	}

	rows := make([]*gridRow, 0, len(byKey)+MinRows)
	for _, row := range byKey {
		for d := range row.DayDurations {
			row.DayDurations[d] = FormatMinutes(minutes[cellKey{row.ID, d}])
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProjectID != rows[j].ProjectID {
			return rows[i].ProjectID < rows[j].ProjectID
		}
		return rows[i].Description < rows[j].Description
	})
	for len(rows) < MinRows {
		blank := g.newRow(window, EntryKey{})
		blank.IsNewRow = true
		rows = append(rows, blank)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = window
	g.rows = rows
	g.index = make(map[RowID]*gridRow, len(rows))
	for _, row := range rows {
		g.index[row.ID] = row
	}
	g.errs = make(ValidationErrors)
	g.unsynced = make(map[cellKey]*SaveError)
	g.held = make(map[cellKey]struct{})
}

func sameGrid(a, b cycle.Window) bool {
	if len(a.GridDates) == 0 || len(a.GridDates) != len(b.GridDates) {
		return false
	}
	return a.Type == b.Type && a.Start == b.Start && a.GridDates[0] == b.GridDates[0]
}

func (g *Grid) newRow(window cycle.Window, k EntryKey) *gridRow {
	days := make(map[cycle.Date]string, len(window.GridDates))
	for _, d := range window.GridDates {
		days[d] = ""
	}
	return &gridRow{
		GridRow: GridRow{
			ID:           RowID(uuid.NewString()),
			ProjectID:    k.ProjectID,
			Description:  k.Description,
			DayDurations: days,
		},
		persisted: make(map[cycle.Date]EntryKey),
		locked:    make(map[cycle.Date]TimeEntry),
	}
}

// =============================================================================
// READS
// =============================================================================

func (g *Grid) Window() cycle.Window {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

// Rows returns deep copies in display order.
func (g *Grid) Rows() []GridRow {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GridRow, len(g.rows))
	for i, row := range g.rows {
		out[i] = g.snapshotLocked(row)
	}
	return out
}

func (g *Grid) Row(id RowID) (GridRow, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.index[id]
	if !ok {
		return GridRow{}, false
	}
	return g.snapshotLocked(row), true
}

func (g *Grid) snapshotLocked(row *gridRow) GridRow {
	out := row.clone()
	out.Duplicate = g.duplicateLocked(row)
	out.LockedDates = nil
	for _, d := range g.window.GridDates {
		if _, ok := row.locked[d]; ok {
			out.LockedDates = append(out.LockedDates, d)
		}
	}
	return out
}

func (g *Grid) ValidationErrors() ValidationErrors {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs.clone()
}

// SetValidationErrors replaces the displayed validation state.
func (g *Grid) SetValidationErrors(errs ValidationErrors) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = errs.clone()
}

// Validate recomputes validation errors for the current rows and stores them.
func (g *Grid) Validate() ValidationErrors {
	errs := ValidateAll(g.Rows())
	g.SetValidationErrors(errs)
	return errs
}

// SaveErrors lists cells whose last commit failed, ordered by row then date.
func (g *Grid) SaveErrors() []*SaveError {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*SaveError, 0, len(g.unsynced))
	for _, e := range g.unsynced {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowID != out[j].RowID {
			return out[i].RowID < out[j].RowID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// HeldCells lists the dates of nonzero cells that are kept in memory because
// their row has no key yet or shares its key with the owning row.
func (g *Grid) HeldCells() map[RowID][]cycle.Date {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[RowID][]cycle.Date)
	for ck := range g.held {
		out[ck.row] = append(out[ck.row], ck.date)
	}
	for _, dates := range out {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	}
	return out
}

// Unsynced reports whether any cell failed to save.
func (g *Grid) Unsynced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.unsynced) > 0
}

// PendingCommits returns the number of armed debounce timers.
func (g *Grid) PendingCommits() int { return g.debounce.Pending() }

// =============================================================================
// MUTATIONS
// =============================================================================

func (g *Grid) checkMutableLocked() error {
	if g.closed {
		return ErrSheetClosed
	}
	return g.gate.CheckMutable()
}

// AddRow appends a blank row and returns its ID.
func (g *Grid) AddRow() (RowID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkMutableLocked(); err != nil {
		return "", err
	}
	row := g.newRow(g.window, EntryKey{})
	row.IsNewRow = true
	g.rows = append(g.rows, row)
	g.index[row.ID] = row
	return row.ID, nil
}

// UpdateField stages a project or description change and arms the row's
// field timer. The field's validation error clears immediately.
func (g *Grid) UpdateField(rowID RowID, field Field, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkMutableLocked(); err != nil {
		return err
	}
	row, ok := g.index[rowID]
	if !ok {
		return ErrRowNotFound
	}
	if field != FieldProject && field != FieldDescription {
		return ErrUnknownField
	}
	if err := row.checkUnlocked(); err != nil {
		return err
	}
	if field == FieldProject {
		row.ProjectID = value
	} else {
		row.Description = value
	}

	if errs, ok := g.errs[rowID]; ok {
		if errs = errs.Without(field); errs.Empty() {
			delete(g.errs, rowID)
		} else {
			g.errs[rowID] = errs
		}
	}
	g.refreshDuplicatesLocked()

	g.debounce.Schedule(DebounceKey{RowID: rowID}, g.fieldDelay, func() {
		g.commitRow(context.Background(), rowID)
	})
	return nil
}

// UpdateDayDuration normalises raw, stores it and either arms the cell's
// timer or, with commitNow, commits synchronously. Returns the normalised
// text.
func (g *Grid) UpdateDayDuration(ctx context.Context, rowID RowID, date cycle.Date, raw string, commitNow bool) (string, error) {
	g.mu.Lock()
	if err := g.checkMutableLocked(); err != nil {
		g.mu.Unlock()
		return "", err
	}
	row, ok := g.index[rowID]
	if !ok {
		g.mu.Unlock()
		return "", ErrRowNotFound
	}
	if _, ok := row.DayDurations[date]; !ok {
		g.mu.Unlock()
		return "", ErrDateOutsideWindow
	}
	if e, ok := row.locked[date]; ok {
		g.mu.Unlock()
		return "", lockedEntry(e)
	}
	text := NormalizeDuration(raw)
	row.DayDurations[date] = text
	g.refreshDuplicatesLocked()
	g.mu.Unlock()

	key := DebounceKey{RowID: rowID, Date: date}
	if commitNow {
		g.debounce.Cancel(key)
		return text, g.commitCell(ctx, rowID, date)
	}
	g.debounce.Schedule(key, g.durationDelay, func() {
		g.report(g.commitCell(context.Background(), rowID, date))
	})
	return text, nil
}

// ClearRow retracts every saved cell of the row and blanks it, keeping its ID.
func (g *Grid) ClearRow(ctx context.Context, rowID RowID) error {
	return g.retractRow(ctx, rowID, false)
}

// RemoveRow retracts every saved cell of the row and drops it.
func (g *Grid) RemoveRow(ctx context.Context, rowID RowID) error {
	return g.retractRow(ctx, rowID, true)
}

func (g *Grid) retractRow(ctx context.Context, rowID RowID, remove bool) error {
	g.mu.Lock()
	if err := g.checkMutableLocked(); err != nil {
		g.mu.Unlock()
		return err
	}
	row, ok := g.index[rowID]
	if !ok {
		g.mu.Unlock()
		return ErrRowNotFound
	}
	if err := row.checkUnlocked(); err != nil {
		g.mu.Unlock()
		return err
	}

	// Timers go first so none can resurrect a cell after its retraction.
	g.debounce.CancelRow(rowID)

	// Only entries this row saved are deleted. An unsaved nonzero cell may
	// belong to a commit still in flight, which would have used the row key.
	var edits []PendingEdit
	for _, d := range g.window.GridDates {
		saved, ok := row.persisted[d]
		if !ok {
			if ParseMinutes(row.DayDurations[d]) == 0 || g.mustHoldLocked(row, d) {
				continue
			}
			saved = row.key()
		}
		edit := g.editLocked(row, d)
		edit.DurationText = ""
		edit.ProjectID, edit.Description = saved.ProjectID, saved.Description
		edits = append(edits, edit)
	}

	if remove {
		g.dropRowLocked(rowID)
	} else {
		row.ProjectID, row.Description = "", ""
		for d := range row.DayDurations {
			row.DayDurations[d] = ""
		}
	}
	delete(g.errs, rowID)
	for k := range g.unsynced {
		if k.row == rowID {
			delete(g.unsynced, k)
		}
	}
	for k := range g.held {
		if k.row == rowID {
			delete(g.held, k)
		}
	}
	g.refreshDuplicatesLocked()
	g.mu.Unlock()

	var errs []error
	for _, edit := range edits {
		if err := g.apply(ctx, edit); err != nil {
			errs = append(errs, err)
		}
	}
	g.retryHeld(ctx)
	return errors.Join(errs...)
}

func (g *Grid) dropRowLocked(rowID RowID) {
	delete(g.index, rowID)
	for i, row := range g.rows {
		if row.ID == rowID {
			g.rows = append(g.rows[:i], g.rows[i+1:]...)
			return
		}
	}
}

// Flush runs every pending commit now, retries cells whose last save failed,
// and returns the save failures that remain afterwards.
func (g *Grid) Flush() error {
	g.debounce.Flush()
	g.retryHeld(context.Background())

	g.mu.Lock()
	retry := make([]cellKey, 0, len(g.unsynced))
	for ck := range g.unsynced {
		retry = append(retry, ck)
	}
	g.mu.Unlock()
	for _, ck := range retry {
		// A failure is recorded again by commitCell.
		_ = g.commitCell(context.Background(), ck.row, ck.date)
	}

	failures := g.SaveErrors()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Close cancels every pending timer without committing and refuses later
// mutations.
func (g *Grid) Close() {
	g.debounce.Close()
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// =============================================================================
// COMMITS
// =============================================================================

func (g *Grid) editLocked(row *gridRow, date cycle.Date) PendingEdit {
	edit := PendingEdit{
		EmployeeID:   g.employee,
		RowID:        row.ID,
		Date:         date,
		DurationText: row.DayDurations[date],
		IsNewRow:     row.IsNewRow,
		ProjectID:    row.ProjectID,
		Description:  row.Description,
	}
	if prior, ok := row.persisted[date]; ok {
		edit.HasPrior = true
		edit.PriorProjectID = prior.ProjectID
		edit.PriorDescription = prior.Description
	}
	return edit
}

// commitRow re-commits every nonzero cell of the row after a field change.
func (g *Grid) commitRow(ctx context.Context, rowID RowID) {
	g.mu.Lock()
	row, ok := g.index[rowID]
	if !ok {
		g.mu.Unlock()
		return
	}
	var dates []cycle.Date
	for _, d := range g.window.GridDates {
		if ParseMinutes(row.DayDurations[d]) > 0 {
			dates = append(dates, d)
		}
	}
	g.mu.Unlock()

	for _, d := range dates {
		g.report(g.commitCell(ctx, rowID, d))
	}
	// The old key may have been released to a held row.
	g.retryHeld(ctx)
}

func (g *Grid) retryHeld(ctx context.Context) {
	g.mu.Lock()
	cells := make([]cellKey, 0, len(g.held))
	for ck := range g.held {
		cells = append(cells, ck)
	}
	g.mu.Unlock()
	for _, ck := range cells {
		g.report(g.commitCell(ctx, ck.row, ck.date))
	}
}

// commitCell builds the edit from the row state at execution time and
// applies it.
func (g *Grid) commitCell(ctx context.Context, rowID RowID, date cycle.Date) error {
	unlock := g.cellLocks.Lock(cellKey{rowID, date})
	defer unlock()

	g.mu.Lock()
	row, ok := g.index[rowID]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	ck := cellKey{rowID, date}
	edit := g.editLocked(row, date)
	switch {
	case ParseMinutes(edit.DurationText) == 0:
		delete(g.held, ck)
		if !edit.HasPrior {
			delete(g.unsynced, ck)
			g.mu.Unlock()
			return nil
		}
		// Retract what this row saved, never another row's entry.
		edit.ProjectID, edit.Description = edit.PriorProjectID, edit.PriorDescription
	case g.mustHoldLocked(row, date):
		g.held[ck] = struct{}{}
		delete(g.unsynced, ck)
		g.mu.Unlock()
		return nil
	default:
		delete(g.held, ck)
	}
	g.mu.Unlock()

	return g.applyLocked(ctx, edit)
}

// ownerLocked returns the row that saves cells under key.
func (g *Grid) ownerLocked(key EntryKey) *gridRow {
	var first *gridRow
	for _, row := range g.rows {
		if row.key() != key {
			continue
		}
		for _, saved := range row.persisted {
			if saved == key {
				return row
			}
		}
		if first == nil {
			first = row
		}
	}
	return first
}

func (g *Grid) duplicateLocked(row *gridRow) bool {
	k := row.key()
	return !k.IsZero() && g.ownerLocked(k) != row
}

func (g *Grid) mustHoldLocked(row *gridRow, date cycle.Date) bool {
	k := row.key()
	if k.IsZero() || g.duplicateLocked(row) {
		return true
	}
	for _, other := range g.rows {
		if other != row && other.persisted[date] == k {
			return true
		}
	}
	return false
}

// refreshDuplicatesLocked keeps the duplicate flag of every row with a
// duration current without touching its field errors.
func (g *Grid) refreshDuplicatesLocked() {
	for _, row := range g.rows {
		errs := g.errs[row.ID]
		if g.duplicateLocked(row) && row.HasDuration() {
			errs.Key = duplicateError()
		} else {
			errs.Key = nil
		}
		if errs.Empty() {
			delete(g.errs, row.ID)
		} else {
			g.errs[row.ID] = errs
		}
	}
}

// checkUnlocked refuses changes that would touch a locked entry of the row.
func (r *gridRow) checkUnlocked() error {
	var first *TimeEntry
	for d, e := range r.locked {
		e := e
		if first == nil || d.Before(first.Date) {
			first = &e
		}
	}
	if first != nil {
		return lockedEntry(*first)
	}
	return nil
}

// apply runs a prepared edit under the cell lock.
func (g *Grid) apply(ctx context.Context, edit PendingEdit) error {
	unlock := g.cellLocks.Lock(cellKey{edit.RowID, edit.Date})
	defer unlock()
	return g.applyLocked(ctx, edit)
}

func (g *Grid) applyLocked(ctx context.Context, edit PendingEdit) error {
	out, err := g.recon.Apply(ctx, edit)

	g.mu.Lock()
	defer g.mu.Unlock()

	ck := cellKey{edit.RowID, edit.Date}
	row, live := g.index[edit.RowID]
	var lockErr *LockedError
	if errors.As(err, &lockErr) && lockErr.Entry != nil {
		delete(g.unsynced, ck)
		if live {
			e := *lockErr.Entry
			row.locked[e.Date] = e
			row.persisted[e.Date] = e.Key()
			row.DayDurations[e.Date] = FormatMinutes(e.DurationMinutes)
		}
		return err
	}
	if err != nil {
		var saveErr *SaveError
		if !errors.As(err, &saveErr) {
			saveErr = &SaveError{RowID: edit.RowID, Date: edit.Date, Op: "apply", Err: err}
		}
		if live {
			g.unsynced[ck] = saveErr
		}
		return saveErr
	}

	delete(g.unsynced, ck)
	if !live {
		return nil
	}
	if out.Persisted {
		row.persisted[edit.Date] = edit.key()
	} else {
		delete(row.persisted, edit.Date)
	}
	if out.Action == ActionCreated {
		row.IsNewRow = false
	}
	return nil
}

// report hands a debounced commit failure to the hook.
func (g *Grid) report(err error) {
	if err == nil {
		return
	}
	var saveErr *SaveError
	if !errors.As(err, &saveErr) {
		g.logger.Printf("[Autosave] %v", err)
		return
	}
	if g.onSaveError != nil {
		g.onSaveError(saveErr)
	}
}
