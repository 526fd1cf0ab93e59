package timesheet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
	"github.com/warp/timesheet-engine/timesheet/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	owner   = "a@b.com"
	manager = "boss@b.com"
)

var (
	sun = cycle.MustParseDate("2024-12-15")
	mon = cycle.MustParseDate("2024-12-16")
	tue = cycle.MustParseDate("2024-12-17")
	wed = cycle.MustParseDate("2024-12-18")
	fri = cycle.MustParseDate("2024-12-20")
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Duration
	fn    func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timesheet.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.done && t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		next.done = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// countingRepo counts writes that reach the wrapped repository.
type countingRepo struct {
	timesheet.EntryRepository
	mu                      sync.Mutex
	creates, updates, dels int

	// failAfter, when positive, lets that many more updates through and
	// fails the next one with failErr.
	failAfter int
	failErr   error
}

func (r *countingRepo) failUpdateAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAfter, r.failErr = n+1, err
}

func (r *countingRepo) Create(ctx context.Context, e timesheet.TimeEntry) (timesheet.EntryID, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.EntryRepository.Create(ctx, e)
}

func (r *countingRepo) Update(ctx context.Context, id timesheet.EntryID, p timesheet.EntryPatch) error {
	r.mu.Lock()
	r.updates++
	if r.failAfter > 0 {
		r.failAfter--
		if r.failAfter == 0 {
			err := r.failErr
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()
	return r.EntryRepository.Update(ctx, id, p)
}

func (r *countingRepo) Delete(ctx context.Context, id timesheet.EntryID) error {
	r.mu.Lock()
	r.dels++
	r.mu.Unlock()
	return r.EntryRepository.Delete(ctx, id)
}

func (r *countingRepo) writes() (creates, updates, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates, r.updates, r.dels
}

type fixture struct {
	sheet      *timesheet.Sheet
	mem        *store.Memory
	repo       *countingRepo
	clock      *fakeClock
	dir        *timesheet.StaticDirectory
	saveErrors chan *timesheet.SaveError
}

func weekOf(t *testing.T, ref cycle.Date, typ cycle.Type) cycle.Window {
	w, err := cycle.NewCalculator(cycle.DefaultConfig()).Compute(ref, typ)
	require.NoError(t, err)
	return w
}

// newFixture opens a sheet for owner on the week of 2024-12-18, after
// seeding the repository with seed.
func newFixture(t *testing.T, seed ...timesheet.TimeEntry) *fixture {
	t.Helper()
	return newFixtureFor(t, weekOf(t, wed, cycle.Weekly), seed...)
}

func newFixtureFor(t *testing.T, window cycle.Window, seed ...timesheet.TimeEntry) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	for _, e := range seed {
		if e.EmployeeID == "" {
			e.EmployeeID = owner
		}
		_, err := mem.Create(ctx, e)
		require.NoError(t, err)
	}

	f := &fixture{
		mem:        mem,
		repo:       &countingRepo{EntryRepository: mem},
		clock:      &fakeClock{},
		dir:        timesheet.NewStaticDirectory(timesheet.Person{ID: manager, Name: "Boss", Role: timesheet.RoleManager}),
		saveErrors: make(chan *timesheet.SaveError, 16),
	}
	sheet, err := timesheet.Open(ctx, timesheet.SheetConfig{
		EmployeeID:  owner,
		Window:      window,
		Entries:     f.repo,
		Timesheets:  mem,
		Audit:       mem,
		Identity:    f.dir,
		After:       f.clock.AfterFunc,
		OnSaveError: func(e *timesheet.SaveError) { f.saveErrors <- e },
	})
	require.NoError(t, err)
	t.Cleanup(sheet.Close)
	f.sheet = sheet
	return f
}

// openOther opens a second sheet for owner over window on the same store,
// as another cycle type would see the same days.
func (f *fixture) openOther(t *testing.T, window cycle.Window) *timesheet.Sheet {
	t.Helper()
	clock := &fakeClock{}
	sheet, err := timesheet.Open(context.Background(), timesheet.SheetConfig{
		EmployeeID: owner,
		Window:     window,
		Entries:    f.mem,
		Timesheets: f.mem,
		Audit:      f.mem,
		Identity:   f.dir,
		After:      clock.AfterFunc,
	})
	require.NoError(t, err)
	t.Cleanup(sheet.Close)
	return sheet
}

func (f *fixture) entries() []timesheet.TimeEntry {
	return f.mem.All(owner)
}

// row returns the ID of the i-th displayed row.
func (f *fixture) row(t *testing.T, i int) timesheet.RowID {
	t.Helper()
	rows := f.sheet.Rows()
	require.Greater(t, len(rows), i)
	return rows[i].ID
}

// fill names row i and lets the field timer run so later assertions only
// see cell commits.
func (f *fixture) fill(t *testing.T, i int, project, description string) timesheet.RowID {
	t.Helper()
	id := f.row(t, i)
	require.NoError(t, f.sheet.UpdateField(id, timesheet.FieldProject, project))
	require.NoError(t, f.sheet.UpdateField(id, timesheet.FieldDescription, description))
	f.clock.Advance(timesheet.DefaultFieldDelay)
	return id
}

// commit types text into a cell and commits it immediately.
func (f *fixture) commit(t *testing.T, row timesheet.RowID, day cycle.Date, text string) {
	t.Helper()
	_, err := f.sheet.UpdateDayDuration(context.Background(), row, day, text, true)
	require.NoError(t, err)
}

func entry(day cycle.Date, project, description string, minutes int) timesheet.TimeEntry {
	return timesheet.TimeEntry{
		Date:            day,
		ProjectID:       project,
		Description:     description,
		DurationMinutes: minutes,
	}
}
