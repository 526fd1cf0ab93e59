package timesheet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestSheet_WeeklyEditSubmitApprove(t *testing.T) {
	// GIVEN: Weekly cycle for 2024-12-18
	// WHEN: 8 hours on Monday for P1/Dev, then submit and approve
	// THEN: One 480-minute entry, approved, and the grid is locked

	f := newFixture(t)
	ctx := context.Background()

	w := f.sheet.Window()
	assert.Equal(t, sun, w.Start)
	assert.Equal(t, cycle.MustParseDate("2024-12-21"), w.End)
	assert.Len(t, w.GridDates, 7)
	assert.Equal(t, "12/15/2024 - 12/21/2024", f.sheet.CycleLabel())
	require.Len(t, f.sheet.Rows(), timesheet.MinRows)

	row := f.row(t, 0)
	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldProject, "P1"))
	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldDescription, "Dev"))
	text, err := f.sheet.UpdateDayDuration(ctx, row, mon, "8", false)
	require.NoError(t, err)
	assert.Equal(t, "08:00", text)

	f.clock.Advance(timesheet.DefaultDurationDelay)

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, mon, entries[0].Date)
	assert.Equal(t, "P1", entries[0].ProjectID)
	assert.Equal(t, "Dev", entries[0].Description)
	assert.Equal(t, 480, entries[0].DurationMinutes)

	sub, err := f.sheet.Submit(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusSubmitted, f.sheet.Status())
	assert.True(t, f.sheet.IsLocked())
	assert.True(t, decimal.NewFromInt(8).Equal(sub.TotalHours), "total hours: %s", sub.TotalHours)
	require.Len(t, sub.Entries, 1)
	assert.Equal(t, timesheet.EntrySubmitted, f.entries()[0].Status)

	require.NoError(t, f.sheet.Approve(ctx, manager))
	assert.Equal(t, timesheet.StatusApproved, f.sheet.Status())
	assert.Equal(t, timesheet.EntryApproved, f.entries()[0].Status)

	_, err = f.sheet.UpdateDayDuration(ctx, row, mon, "9", true)
	assert.ErrorIs(t, err, timesheet.ErrLocked)
	var locked *timesheet.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, timesheet.StatusApproved, locked.Status)
	assert.Equal(t, 480, f.entries()[0].DurationMinutes)
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func TestGrid_InitializeGroupsSortsAndPads(t *testing.T) {
	// GIVEN: Entries for two keys inside the week and one outside
	// WHEN: The sheet opens
	// THEN: Two sorted rows plus one blank row; the outside entry is ignored

	f := newFixture(t,
		entry(tue, "P2", "b", 90),
		entry(mon, "P1", "a", 480),
		entry(tue, "P1", "a", 30),
		entry(cycle.MustParseDate("2024-12-22"), "P1", "a", 60),
	)

	rows := f.sheet.Rows()
	require.Len(t, rows, 3)

	assert.Equal(t, "P1", rows[0].ProjectID)
	assert.Equal(t, "a", rows[0].Description)
	assert.Equal(t, "08:00", rows[0].DayDurations[mon])
	assert.Equal(t, "00:30", rows[0].DayDurations[tue])
	assert.Equal(t, "", rows[0].DayDurations[wed])
	assert.False(t, rows[0].IsNewRow)

	assert.Equal(t, "P2", rows[1].ProjectID)
	assert.Equal(t, "01:30", rows[1].DayDurations[tue])

	assert.Empty(t, rows[2].ProjectID)
	assert.True(t, rows[2].IsNewRow)

	for _, r := range rows {
		assert.Len(t, r.DayDurations, 7, "one cell per grid date")
	}
}

func TestGrid_RoundTrip(t *testing.T) {
	// GIVEN: Entries saved inside the week
	// WHEN: The sheet opens and flushes without edits
	// THEN: The nonzero cells are exactly the saved entries and the
	//       repository sees no writes

	type cell struct {
		date                 cycle.Date
		project, description string
	}
	tests := []struct {
		name string
		seed []timesheet.TimeEntry
	}{
		{"empty week", nil},
		{"one entry", []timesheet.TimeEntry{entry(mon, "P1", "a", 480)}},
		{"two keys over several days", []timesheet.TimeEntry{
			entry(sun, "P1", "a", 15),
			entry(mon, "P1", "a", 480),
			entry(tue, "P2", "b", 90),
			entry(fri, "P2", "b", 600),
		}},
		{"one project, two descriptions on one day", []timesheet.TimeEntry{
			entry(wed, "P1", "a", 60),
			entry(wed, "P1", "b", 125),
		}},
		{"every day of the week", []timesheet.TimeEntry{
			entry(sun, "P3", "x", 1),
			entry(mon, "P3", "x", 2),
			entry(tue, "P3", "x", 3),
			entry(wed, "P3", "x", 4),
			entry(cycle.MustParseDate("2024-12-19"), "P3", "x", 5),
			entry(fri, "P3", "x", 6),
			entry(cycle.MustParseDate("2024-12-21"), "P3", "x", 7),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.seed...)
			before := f.entries()

			want := make(map[cell]int)
			for _, e := range tt.seed {
				want[cell{e.Date, e.ProjectID, e.Description}] = e.DurationMinutes
			}
			got := make(map[cell]int)
			for _, row := range f.sheet.Rows() {
				for d, text := range row.DayDurations {
					if m := timesheet.ParseMinutes(text); m > 0 {
						got[cell{d, row.ProjectID, row.Description}] = m
					}
				}
			}
			assert.Equal(t, want, got)

			require.NoError(t, f.sheet.Flush())
			creates, updates, deletes := f.repo.writes()
			assert.Zero(t, creates+updates+deletes)
			assert.Equal(t, before, f.entries())
		})
	}
}

// =============================================================================
// DEBOUNCED COMMITS
// =============================================================================

func TestGrid_DebounceKeepsLatestValue(t *testing.T) {
	// GIVEN: A named row
	// WHEN: "1" is typed, then "2" before the first timer fires
	// THEN: Only the second value is written, once

	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")

	_, err := f.sheet.UpdateDayDuration(ctx, row, mon, "1", false)
	require.NoError(t, err)
	f.clock.Advance(1500 * time.Millisecond)
	_, err = f.sheet.UpdateDayDuration(ctx, row, mon, "2", false)
	require.NoError(t, err)

	f.clock.Advance(1500 * time.Millisecond)
	assert.Empty(t, f.entries(), "second timer has not fired yet")

	f.clock.Advance(500 * time.Millisecond)
	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 120, entries[0].DurationMinutes)

	creates, updates, _ := f.repo.writes()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
}

func TestGrid_CommitNowCancelsPendingTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")

	_, err := f.sheet.UpdateDayDuration(ctx, row, mon, "3", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sheet.PendingCommits())

	f.commit(t, row, mon, "4")
	assert.Zero(t, f.sheet.PendingCommits())

	f.clock.Advance(10 * time.Second)
	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 240, entries[0].DurationMinutes)
}

func TestGrid_SameValueTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")

	f.commit(t, row, mon, "08:00")
	f.commit(t, row, mon, "8")

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 480, entries[0].DurationMinutes)
	creates, _, _ := f.repo.writes()
	assert.Equal(t, 1, creates)
}

func TestGrid_ClampsOnCommit(t *testing.T) {
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")

	text, err := f.sheet.UpdateDayDuration(context.Background(), row, mon, "25:99", true)
	require.NoError(t, err)

	assert.Equal(t, "23:59", text)
	assert.Equal(t, 23*60+59, f.entries()[0].DurationMinutes)
}

func TestGrid_RenameMovesEntries(t *testing.T) {
	// GIVEN: Two saved cells under P1/Dev
	// WHEN: The description changes and the field timer fires
	// THEN: The same entries now carry the new description; nothing is duplicated

	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")
	f.commit(t, row, tue, "2")
	ids := []timesheet.EntryID{f.entries()[0].ID, f.entries()[1].ID}

	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldDescription, "Design"))
	f.clock.Advance(timesheet.DefaultFieldDelay)

	entries := f.entries()
	require.Len(t, entries, 2)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
		assert.Equal(t, "Design", e.Description)
	}

	// A later cell edit finds the entry under the new key.
	f.commit(t, row, mon, "7")
	assert.Len(t, f.entries(), 2)
	assert.Equal(t, 420, f.entries()[0].DurationMinutes)
}

func TestGrid_DurationBeforeNameIsHeld(t *testing.T) {
	// GIVEN: Hours typed into a blank row before naming it
	// WHEN: The row is named
	// THEN: Nothing is saved until then, and one entry under the name after

	f := newFixture(t)
	row := f.row(t, 0)
	f.commit(t, row, mon, "1")
	assert.Empty(t, f.entries())
	assert.Equal(t, map[timesheet.RowID][]cycle.Date{row: {mon}}, f.sheet.HeldCells())

	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldProject, "P9"))
	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldDescription, "Ops"))
	f.clock.Advance(timesheet.DefaultFieldDelay)

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "P9", entries[0].ProjectID)
	assert.Equal(t, "Ops", entries[0].Description)
	assert.Equal(t, 60, entries[0].DurationMinutes)
	assert.Empty(t, f.sheet.HeldCells())

	got, ok := f.sheet.Row(row)
	require.True(t, ok)
	assert.False(t, got.IsNewRow, "first successful create clears IsNewRow")
}

func TestGrid_BlankRowsNeverShareEntries(t *testing.T) {
	// GIVEN: Two unnamed rows with hours on the same day
	// WHEN: The second row is cleared
	// THEN: The first keeps its hours, and naming it saves them

	f := newFixture(t)
	ctx := context.Background()
	first, second := f.row(t, 0), f.row(t, 1)
	f.commit(t, first, mon, "1")
	f.commit(t, second, mon, "2")
	assert.Empty(t, f.entries())

	require.NoError(t, f.sheet.ClearRow(ctx, second))

	got, ok := f.sheet.Row(first)
	require.True(t, ok)
	assert.Equal(t, "01:00", got.DayDurations[mon])
	assert.Equal(t, map[timesheet.RowID][]cycle.Date{first: {mon}}, f.sheet.HeldCells())

	f.fill(t, 0, "P1", "Dev")
	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 60, entries[0].DurationMinutes)
	creates, _, deletes := f.repo.writes()
	assert.Equal(t, 1, creates)
	assert.Zero(t, deletes)
}

func TestGrid_RenameOntoTakenKeyIsHeld(t *testing.T) {
	// GIVEN: P1/Dev with 8h and P2/Ops with 2h on Monday
	// WHEN: The second row is renamed to P1/Dev
	// THEN: Neither entry changes and the row is flagged as a duplicate;
	//       a unique name afterwards moves its own entry

	f := newFixture(t, entry(mon, "P1", "Dev", 480), entry(mon, "P2", "Ops", 120))
	rows := f.sheet.Rows()
	owned, dup := rows[0].ID, rows[1].ID
	moving := f.entries()[1].ID

	require.NoError(t, f.sheet.UpdateField(dup, timesheet.FieldProject, "P1"))
	require.NoError(t, f.sheet.UpdateField(dup, timesheet.FieldDescription, "Dev"))
	f.clock.Advance(timesheet.DefaultFieldDelay)

	entries := f.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Dev", entries[0].Description)
	assert.Equal(t, 480, entries[0].DurationMinutes)
	assert.Equal(t, "P2", entries[1].ProjectID)
	assert.Equal(t, 120, entries[1].DurationMinutes)

	got, _ := f.sheet.Row(dup)
	assert.True(t, got.Duplicate)
	kept, _ := f.sheet.Row(owned)
	assert.False(t, kept.Duplicate)
	assert.Equal(t, "08:00", kept.DayDurations[mon])

	errs := f.sheet.ValidationErrors()
	require.Contains(t, errs, dup)
	require.NotNil(t, errs[dup].Key)
	assert.Equal(t, timesheet.CodeDuplicate, errs[dup].Key.Code)
	assert.NotContains(t, errs, owned)
	assert.Equal(t, []cycle.Date{mon}, f.sheet.HeldCells()[dup])

	require.NoError(t, f.sheet.UpdateField(dup, timesheet.FieldDescription, "Review"))
	f.clock.Advance(timesheet.DefaultFieldDelay)

	entries = f.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 480, entries[0].DurationMinutes)
	assert.Equal(t, moving, entries[1].ID)
	assert.Equal(t, "P1", entries[1].ProjectID)
	assert.Equal(t, "Review", entries[1].Description)
	assert.Equal(t, 120, entries[1].DurationMinutes)
	assert.NotContains(t, f.sheet.ValidationErrors(), dup)
	assert.Empty(t, f.sheet.HeldCells())
}

func TestGrid_RemovingOwnerReleasesKey(t *testing.T) {
	// GIVEN: A duplicate row held behind the row that owns P1/Dev
	// WHEN: The owning row is removed
	// THEN: The duplicate takes the key over and its hours are saved under it

	f := newFixture(t, entry(mon, "P1", "Dev", 480), entry(mon, "P2", "Ops", 120))
	ctx := context.Background()
	rows := f.sheet.Rows()
	owned, dup := rows[0].ID, rows[1].ID

	require.NoError(t, f.sheet.UpdateField(dup, timesheet.FieldProject, "P1"))
	require.NoError(t, f.sheet.UpdateField(dup, timesheet.FieldDescription, "Dev"))
	f.clock.Advance(timesheet.DefaultFieldDelay)
	require.Len(t, f.entries(), 2)

	require.NoError(t, f.sheet.RemoveRow(ctx, owned))

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "P1", entries[0].ProjectID)
	assert.Equal(t, "Dev", entries[0].Description)
	assert.Equal(t, 120, entries[0].DurationMinutes)

	got, _ := f.sheet.Row(dup)
	assert.False(t, got.Duplicate)
	assert.Empty(t, f.sheet.HeldCells())
	assert.NotContains(t, f.sheet.ValidationErrors(), dup)
}

// =============================================================================
// RETRACTION
// =============================================================================

func TestGrid_ZeroRetractsEntry(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty text", ""},
		{"zero", "0"},
		{"letters only", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			row := f.fill(t, 0, "P1", "Dev")
			f.commit(t, row, mon, "8")
			require.Len(t, f.entries(), 1)

			f.commit(t, row, mon, tt.text)
			assert.Empty(t, f.entries())
		})
	}
}

func TestGrid_ZeroWithoutEntryIsNoOp(t *testing.T) {
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")

	f.commit(t, row, mon, "")

	creates, updates, deletes := f.repo.writes()
	assert.Zero(t, creates+updates+deletes)
}

func TestGrid_ClearRowRetractsAndKeepsIdentity(t *testing.T) {
	// GIVEN: A row with two saved cells and one pending timer
	// WHEN: The row is cleared
	// THEN: No entries remain, the timer never fires, and the row ID survives

	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")
	f.commit(t, row, tue, "4")
	_, err := f.sheet.UpdateDayDuration(ctx, row, wed, "2", false)
	require.NoError(t, err)

	require.NoError(t, f.sheet.ClearRow(ctx, row))
	assert.Empty(t, f.entries())

	f.clock.Advance(10 * time.Second)
	assert.Empty(t, f.entries(), "cancelled timer must not resurrect the cell")

	got, ok := f.sheet.Row(row)
	require.True(t, ok)
	assert.Empty(t, got.ProjectID)
	assert.Empty(t, got.Description)
	assert.False(t, got.HasDuration())
}

func TestGrid_RemoveRowDropsRow(t *testing.T) {
	f := newFixture(t, entry(mon, "P1", "a", 480), entry(tue, "P2", "b", 60))
	ctx := context.Background()
	row := f.row(t, 0)

	require.NoError(t, f.sheet.RemoveRow(ctx, row))

	_, ok := f.sheet.Row(row)
	assert.False(t, ok)
	assert.Len(t, f.sheet.Rows(), 2)
	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "P2", entries[0].ProjectID)

	assert.ErrorIs(t, f.sheet.RemoveRow(ctx, row), timesheet.ErrRowNotFound)
}

// =============================================================================
// INPUT ERRORS
// =============================================================================

func TestGrid_RejectsUnknownTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	row := f.row(t, 0)

	assert.ErrorIs(t, f.sheet.UpdateField("nope", timesheet.FieldProject, "P1"), timesheet.ErrRowNotFound)
	assert.ErrorIs(t, f.sheet.UpdateField(row, timesheet.Field("rate"), "10"), timesheet.ErrUnknownField)

	_, err := f.sheet.UpdateDayDuration(ctx, row, cycle.MustParseDate("2024-12-22"), "1", true)
	assert.ErrorIs(t, err, timesheet.ErrDateOutsideWindow)
}

func TestGrid_AddRow(t *testing.T) {
	f := newFixture(t)

	id, err := f.sheet.AddRow()
	require.NoError(t, err)

	rows := f.sheet.Rows()
	require.Len(t, rows, timesheet.MinRows+1)
	last := rows[len(rows)-1]
	assert.Equal(t, id, last.ID)
	assert.True(t, last.IsNewRow)
	assert.Len(t, last.DayDurations, 7)
}

// =============================================================================
// SAVE FAILURES
// =============================================================================

func TestGrid_SaveFailureKeepsValueAndBlocksSubmit(t *testing.T) {
	// GIVEN: The repository refuses creates
	// WHEN: A cell is committed
	// THEN: The value stays, the cell is unsynced, and submit is refused until
	//       a retry succeeds

	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	boom := errors.New("disk full")
	f.mem.FailOn(store.OpCreate, boom)

	_, err := f.sheet.UpdateDayDuration(ctx, row, mon, "8", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, timesheet.ErrSaveFailed)
	assert.ErrorIs(t, err, boom)
	assert.True(t, timesheet.IsRetryable(err))

	got, _ := f.sheet.Row(row)
	assert.Equal(t, "08:00", got.DayDurations[mon], "optimistic value is kept")
	require.Len(t, f.sheet.SaveErrors(), 1)
	assert.Equal(t, mon, f.sheet.SaveErrors()[0].Date)

	_, err = f.sheet.Submit(ctx, owner)
	assert.ErrorIs(t, err, timesheet.ErrUnsyncedChanges)
	assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())

	f.mem.FailOn(store.OpCreate, nil)
	f.commit(t, row, mon, "8")
	assert.Empty(t, f.sheet.SaveErrors())

	_, err = f.sheet.Submit(ctx, owner)
	require.NoError(t, err)
}

func TestGrid_FlushRetriesUnsyncedCells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	f.mem.FailOn(store.OpCreate, errors.New("disk full"))

	_, err := f.sheet.UpdateDayDuration(ctx, row, tue, "2", true)
	require.Error(t, err)
	assert.Error(t, f.sheet.Flush(), "still failing")
	require.Len(t, f.sheet.SaveErrors(), 1)

	f.mem.FailOn(store.OpCreate, nil)
	require.NoError(t, f.sheet.Flush())

	assert.Empty(t, f.sheet.SaveErrors())
	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 120, entries[0].DurationMinutes)
}

func TestGrid_DebouncedFailureReachesHook(t *testing.T) {
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")
	f.mem.FailOn(store.OpList, errors.New("offline"))

	_, err := f.sheet.UpdateDayDuration(context.Background(), row, mon, "8", false)
	require.NoError(t, err, "debounced edits do not fail synchronously")

	f.clock.Advance(timesheet.DefaultDurationDelay)

	select {
	case saveErr := <-f.saveErrors:
		assert.Equal(t, row, saveErr.RowID)
		assert.Equal(t, mon, saveErr.Date)
		assert.Equal(t, "list", saveErr.Op)
	default:
		t.Fatal("expected a save error")
	}
}

// =============================================================================
// TEARDOWN AND NAVIGATION
// =============================================================================

func TestSheet_CloseCancelsWithoutFiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")

	_, err := f.sheet.UpdateDayDuration(ctx, row, mon, "8", false)
	require.NoError(t, err)

	f.sheet.Close()
	f.clock.Advance(time.Minute)

	assert.Empty(t, f.entries())
	assert.ErrorIs(t, f.sheet.UpdateField(row, timesheet.FieldProject, "P2"), timesheet.ErrSheetClosed)
	f.sheet.Close()
}

func TestSheet_NavigateFlushesThenRebuilds(t *testing.T) {
	// GIVEN: A pending edit on the current week and an entry next week
	// WHEN: Navigating forward
	// THEN: The edit is saved and the grid shows next week's entry

	nextMon := cycle.MustParseDate("2024-12-23")
	f := newFixture(t, entry(nextMon, "P7", "Next", 60))
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	_, err := f.sheet.UpdateDayDuration(ctx, row, mon, "8", false)
	require.NoError(t, err)

	w, err := f.sheet.Navigate(ctx, timesheet.Next)
	require.NoError(t, err)

	assert.Equal(t, cycle.MustParseDate("2024-12-22"), w.Start)
	assert.Equal(t, "12/22/2024 - 12/28/2024", f.sheet.CycleLabel())
	assert.Len(t, f.entries(), 2)

	rows := f.sheet.Rows()
	assert.Equal(t, "P7", rows[0].ProjectID)
	assert.Equal(t, "01:00", rows[0].DayDurations[nextMon])
	assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())

	w, err = f.sheet.Navigate(ctx, timesheet.Previous)
	require.NoError(t, err)
	assert.Equal(t, sun, w.Start)
	assert.Equal(t, "08:00", f.sheet.Rows()[0].DayDurations[mon])
}

func TestSheet_Totals(t *testing.T) {
	f := newFixture(t, entry(mon, "P1", "a", 90), entry(mon, "P2", "b", 30), entry(tue, "P1", "a", 60))

	totals := f.sheet.Totals()

	assert.True(t, decimal.NewFromInt(2).Equal(totals.ByDate[mon]))
	assert.True(t, decimal.NewFromInt(1).Equal(totals.ByDate[tue]))
	assert.True(t, decimal.NewFromInt(0).Equal(totals.ByDate[wed]))
	assert.True(t, decimal.NewFromFloat(2.5).Equal(totals.ByRow[f.row(t, 0)]))
	assert.True(t, decimal.NewFromInt(3).Equal(totals.Total))
}
