package timesheet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

// submitted returns a fixture whose timesheet has been submitted with one
// 8-hour row.
func submitted(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")
	_, err := f.sheet.Submit(context.Background(), owner)
	require.NoError(t, err)
	return f
}

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from  timesheet.Status
		event timesheet.Event
		to    timesheet.Status
		ok    bool
	}{
		{timesheet.StatusDraft, timesheet.EventSubmit, timesheet.StatusSubmitted, true},
		{timesheet.StatusRejected, timesheet.EventSubmit, timesheet.StatusSubmitted, true},
		{timesheet.StatusSubmitted, timesheet.EventApprove, timesheet.StatusApproved, true},
		{timesheet.StatusSubmitted, timesheet.EventReject, timesheet.StatusRejected, true},
		{timesheet.StatusDraft, timesheet.EventApprove, "", false},
		{timesheet.StatusDraft, timesheet.EventReject, "", false},
		{timesheet.StatusSubmitted, timesheet.EventSubmit, "", false},
		{timesheet.StatusApproved, timesheet.EventSubmit, "", false},
		{timesheet.StatusApproved, timesheet.EventReject, "", false},
		{timesheet.StatusRejected, timesheet.EventApprove, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, err := timesheet.NextStatus(tt.from, tt.event)
			if !tt.ok {
				assert.ErrorIs(t, err, timesheet.ErrIllegalTransition)
				var te *timesheet.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.from, te.From)
				assert.Equal(t, tt.event, te.Event)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestStatus_IsLocked(t *testing.T) {
	assert.False(t, timesheet.StatusDraft.IsLocked())
	assert.True(t, timesheet.StatusSubmitted.IsLocked())
	assert.True(t, timesheet.StatusApproved.IsLocked())
	assert.False(t, timesheet.StatusRejected.IsLocked())
}

// =============================================================================
// SUBMIT GUARDS
// =============================================================================

func TestSubmit_NothingSubmittable(t *testing.T) {
	// GIVEN: A row with hours but no description
	// WHEN: Submitting
	// THEN: Refused, status stays draft, and the row is flagged

	f := newFixture(t)
	row := f.row(t, 0)
	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldProject, "P1"))
	f.commit(t, row, mon, "8")

	_, err := f.sheet.Submit(context.Background(), owner)

	assert.ErrorIs(t, err, timesheet.ErrNothingToSubmit)
	assert.True(t, timesheet.IsClientError(err))
	assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())

	errs := f.sheet.ValidationErrors()
	require.Contains(t, errs, row)
	assert.Nil(t, errs[row].Project)
	require.NotNil(t, errs[row].Description)
	assert.Equal(t, timesheet.CodeRequired, errs[row].Description.Code)

	// Editing the flagged field clears its error at once.
	require.NoError(t, f.sheet.UpdateField(row, timesheet.FieldDescription, "Dev"))
	assert.NotContains(t, f.sheet.ValidationErrors(), row)
}

func TestSubmit_PartialRowsExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	complete := f.fill(t, 0, "P1", "Dev")
	f.commit(t, complete, mon, "8")
	partial := f.fill(t, 1, "P2", "   ")
	f.commit(t, partial, tue, "2")

	sub, err := f.sheet.Submit(ctx, owner)
	require.NoError(t, err)

	require.Len(t, sub.Rows, 1)
	assert.Equal(t, complete, sub.Rows[0].ID)
	require.Len(t, sub.Entries, 1)
	assert.Equal(t, 480, sub.TotalMinutes)
	assert.Empty(t, f.sheet.ValidationErrors())
}

func TestSubmit_IdentityGuards(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		wantErr error
	}{
		{"not an email", "alice", timesheet.ErrInvalidIdentity},
		{"missing domain dot", "alice@corp", timesheet.ErrInvalidIdentity},
		{"someone else", "other@b.com", timesheet.ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			row := f.fill(t, 0, "P1", "Dev")
			f.commit(t, row, mon, "8")

			_, err := f.sheet.Submit(context.Background(), tt.actor)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())
		})
	}
}

func TestSubmit_OwnerMatchIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")

	_, err := f.sheet.Submit(context.Background(), "A@B.com")
	require.NoError(t, err)
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestApprove_RequiresManager(t *testing.T) {
	f := submitted(t)
	ctx := context.Background()

	err := f.sheet.Approve(ctx, "peer@b.com")
	assert.ErrorIs(t, err, timesheet.ErrNotManager)
	assert.True(t, timesheet.IsForbidden(err))

	err = f.sheet.Approve(ctx, "boss")
	assert.ErrorIs(t, err, timesheet.ErrInvalidIdentity)

	assert.Equal(t, timesheet.StatusSubmitted, f.sheet.Status())
}

func TestReject_RequiresReason(t *testing.T) {
	f := submitted(t)

	err := f.sheet.Reject(context.Background(), manager, "  \t ")

	assert.ErrorIs(t, err, timesheet.ErrReasonRequired)
	assert.Equal(t, timesheet.StatusSubmitted, f.sheet.Status())
}

func TestReject_UnlocksAndResubmitClearsReason(t *testing.T) {
	// GIVEN: A submitted timesheet
	// WHEN: Rejected, corrected and resubmitted
	// THEN: The reason shows while rejected, clears on resubmission,
	//       and every transition is audited

	f := submitted(t)
	ctx := context.Background()

	require.NoError(t, f.sheet.Reject(ctx, manager, "Missing Friday"))
	ts := f.sheet.Timesheet()
	assert.Equal(t, timesheet.StatusRejected, ts.Status)
	assert.Equal(t, "Missing Friday", ts.RejectionReason)
	assert.Equal(t, manager, ts.DecidedBy)
	assert.False(t, f.sheet.IsLocked())
	assert.Equal(t, timesheet.EntryRejected, f.entries()[0].Status)

	row := f.row(t, 0)
	f.commit(t, row, fri, "6")

	sub, err := f.sheet.Submit(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, sub.Entries, 2)

	ts = f.sheet.Timesheet()
	assert.Equal(t, timesheet.StatusSubmitted, ts.Status)
	assert.Empty(t, ts.RejectionReason)
	for _, e := range f.entries() {
		assert.Equal(t, timesheet.EntrySubmitted, e.Status)
	}

	audit, err := f.mem.Query(ctx, timesheet.AuditFilter{TimesheetID: &ts.ID})
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, timesheet.AuditSubmitted, audit[0].Action)
	assert.Equal(t, timesheet.AuditRejected, audit[1].Action)
	assert.Equal(t, "Missing Friday", audit[1].Payload["reason"])
	assert.Equal(t, timesheet.StatusSubmitted, audit[1].From)
	assert.Equal(t, timesheet.StatusRejected, audit[1].To)
	assert.Equal(t, timesheet.AuditSubmitted, audit[2].Action)
	assert.Equal(t, owner, audit[2].ActorID)
}

func TestLockedGridRefusesEveryMutation(t *testing.T) {
	f := submitted(t)
	ctx := context.Background()
	row := f.row(t, 0)

	_, err := f.sheet.AddRow()
	assert.ErrorIs(t, err, timesheet.ErrLocked)
	assert.ErrorIs(t, f.sheet.UpdateField(row, timesheet.FieldProject, "X"), timesheet.ErrLocked)
	_, err = f.sheet.UpdateDayDuration(ctx, row, mon, "1", false)
	assert.ErrorIs(t, err, timesheet.ErrLocked)
	assert.ErrorIs(t, f.sheet.ClearRow(ctx, row), timesheet.ErrLocked)
	assert.ErrorIs(t, f.sheet.RemoveRow(ctx, row), timesheet.ErrLocked)
	assert.True(t, timesheet.IsConflict(f.sheet.RemoveRow(ctx, row)))

	_, err = f.sheet.Submit(ctx, owner)
	assert.ErrorIs(t, err, timesheet.ErrIllegalTransition)

	assert.Len(t, f.entries(), 1)
	assert.Equal(t, 480, f.entries()[0].DurationMinutes)
}

func TestTimesheetSurvivesReopen(t *testing.T) {
	// GIVEN: A submitted timesheet
	// WHEN: A new sheet is opened on the same period and store
	// THEN: It comes back submitted and locked

	f := submitted(t)
	ctx := context.Background()

	again, err := timesheet.Open(ctx, timesheet.SheetConfig{
		EmployeeID: owner,
		Window:     f.sheet.Window(),
		Entries:    f.mem,
		Timesheets: f.mem,
		Identity:   f.dir,
		After:      f.clock.AfterFunc,
	})
	require.NoError(t, err)
	defer again.Close()

	assert.Equal(t, timesheet.StatusSubmitted, again.Status())
	assert.True(t, again.IsLocked())
	assert.Equal(t, "08:00", again.Rows()[0].DayDurations[mon])
}

// =============================================================================
// PARTIAL FAILURES
// =============================================================================

func TestSubmit_FailedSaveRestoresEntryStatus(t *testing.T) {
	// GIVEN: A draft with one complete row
	// WHEN: Submitting while the timesheet record cannot be saved
	// THEN: The sheet stays draft and its entries go back to draft, so a
	//       later decision cannot pick them up

	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")

	f.mem.FailOn(store.OpSaveTimesheet, errors.New("disk full"))
	_, err := f.sheet.Submit(ctx, owner)
	require.Error(t, err)

	assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())
	require.Len(t, f.entries(), 1)
	assert.Equal(t, timesheet.EntryDraft, f.entries()[0].Status)
	assert.False(t, f.sheet.IsLocked())

	f.mem.FailOn(store.OpSaveTimesheet, nil)
	sub, err := f.sheet.Submit(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, sub.Entries, 1)
	assert.Equal(t, timesheet.EntrySubmitted, f.entries()[0].Status)
}

func TestApprove_FailedSaveRestoresEntryStatus(t *testing.T) {
	f := submitted(t)
	ctx := context.Background()

	f.mem.FailOn(store.OpSaveTimesheet, errors.New("disk full"))
	require.Error(t, f.sheet.Approve(ctx, manager))

	assert.Equal(t, timesheet.StatusSubmitted, f.sheet.Status())
	assert.Equal(t, timesheet.EntrySubmitted, f.entries()[0].Status)

	f.mem.FailOn(store.OpSaveTimesheet, nil)
	require.NoError(t, f.sheet.Approve(ctx, manager))
	assert.Equal(t, timesheet.EntryApproved, f.entries()[0].Status)
}

func TestSubmit_FailedMarkRestoresMarkedEntries(t *testing.T) {
	// GIVEN: Two complete cells
	// WHEN: Marking fails part way through
	// THEN: No entry is left submitted

	f := newFixture(t)
	ctx := context.Background()
	row := f.fill(t, 0, "P1", "Dev")
	f.commit(t, row, mon, "8")
	f.commit(t, row, tue, "4")

	f.repo.failUpdateAfter(1, errors.New("timeout"))
	_, err := f.sheet.Submit(ctx, owner)
	require.Error(t, err)

	assert.Equal(t, timesheet.StatusDraft, f.sheet.Status())
	for _, e := range f.entries() {
		assert.Equal(t, timesheet.EntryDraft, e.Status, "%s", e.Date)
	}
}

// =============================================================================
// OVERLAPPING CYCLES
// =============================================================================

func TestApprovedEntriesLockedForOtherCycleTypes(t *testing.T) {
	// GIVEN: An approved weekly timesheet with 8 hours on Monday
	// WHEN: A daily sheet for that Monday tries to change the entry
	// THEN: Every change is refused and the entry keeps its value and status;
	//       new entries under another key are still allowed

	f := submitted(t)
	ctx := context.Background()
	require.NoError(t, f.sheet.Approve(ctx, manager))

	daily := f.openOther(t, weekOf(t, mon, cycle.Daily))
	assert.False(t, daily.IsLocked(), "the daily timesheet itself is a draft")
	rows := daily.Rows()
	require.Equal(t, "P1", rows[0].ProjectID)
	assert.Equal(t, []cycle.Date{mon}, rows[0].LockedDates)
	row := rows[0].ID

	_, err := daily.UpdateDayDuration(ctx, row, mon, "1", true)
	assert.ErrorIs(t, err, timesheet.ErrLocked)
	var locked *timesheet.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, timesheet.StatusApproved, locked.Status)
	require.NotNil(t, locked.Entry)
	assert.Equal(t, mon, locked.Entry.Date)

	assert.ErrorIs(t, daily.UpdateField(row, timesheet.FieldDescription, "Other"), timesheet.ErrLocked)
	assert.ErrorIs(t, daily.ClearRow(ctx, row), timesheet.ErrLocked)
	assert.ErrorIs(t, daily.RemoveRow(ctx, row), timesheet.ErrLocked)

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 480, entries[0].DurationMinutes)
	assert.Equal(t, timesheet.EntryApproved, entries[0].Status)

	extra := daily.Rows()[1].ID
	require.NoError(t, daily.UpdateField(extra, timesheet.FieldProject, "P2"))
	require.NoError(t, daily.UpdateField(extra, timesheet.FieldDescription, "Ops"))
	_, err = daily.UpdateDayDuration(ctx, extra, mon, "1", true)
	require.NoError(t, err)
	require.Len(t, f.entries(), 2)

	// Submitting the daily sheet leaves the approved entry alone.
	sub, err := daily.Submit(ctx, owner)
	require.NoError(t, err)
	require.Len(t, sub.Entries, 1)
	assert.Equal(t, "P2", sub.Entries[0].ProjectID)
	assert.Equal(t, timesheet.EntryApproved, f.entries()[0].Status)
}

func TestEntryLockedAfterOtherSheetOpened(t *testing.T) {
	// GIVEN: A daily sheet opened while Monday's entry was still a draft
	// WHEN: The weekly sheet is submitted, then the daily sheet edits Monday
	// THEN: The edit is refused, the cell shows the saved value again
	//       and is read-only from then on

	f := newFixture(t)
	ctx := context.Background()
	weekly := f.fill(t, 0, "P1", "Dev")
	f.commit(t, weekly, mon, "8")

	daily := f.openOther(t, weekOf(t, mon, cycle.Daily))
	row := daily.Rows()[0].ID
	assert.Empty(t, daily.Rows()[0].LockedDates)

	_, err := f.sheet.Submit(ctx, owner)
	require.NoError(t, err)

	_, err = daily.UpdateDayDuration(ctx, row, mon, "1", true)
	assert.ErrorIs(t, err, timesheet.ErrLocked)

	entries := f.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 480, entries[0].DurationMinutes)
	assert.Equal(t, timesheet.EntrySubmitted, entries[0].Status)

	got, ok := daily.Row(row)
	require.True(t, ok)
	assert.Equal(t, "08:00", got.DayDurations[mon])
	assert.Equal(t, []cycle.Date{mon}, got.LockedDates)
	assert.Empty(t, daily.SaveErrors(), "a lock is not a save failure")

	_, err = daily.UpdateDayDuration(ctx, row, mon, "2", false)
	assert.ErrorIs(t, err, timesheet.ErrLocked)
}

func TestReject_ReleasesEntryLocksOnReload(t *testing.T) {
	// GIVEN: A sheet reopened while submitted, so its cells load locked
	// WHEN: The manager rejects it
	// THEN: The same rows become editable again

	f := submitted(t)
	ctx := context.Background()
	reopened := f.openOther(t, f.sheet.Window())
	row := reopened.Rows()[0].ID
	assert.Equal(t, []cycle.Date{mon}, reopened.Rows()[0].LockedDates)

	require.NoError(t, reopened.Reject(ctx, manager, "Split by project"))

	got, ok := reopened.Row(row)
	require.True(t, ok, "row IDs survive the reload")
	assert.Empty(t, got.LockedDates)
	_, err := reopened.UpdateDayDuration(ctx, row, mon, "6", true)
	require.NoError(t, err)
	assert.Equal(t, 360, f.entries()[0].DurationMinutes)
}
