package timesheet

import (
	"sort"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// DEBOUNCER - Per-key cancellable delayed tasks
// =============================================================================
//
// Rules:
//   - Schedule replaces any pending task for the same key (cancel-on-reschedule).
//   - A replaced or cancelled task never runs, even if its timer already fired.
//   - Flush runs every pending task immediately, once.
//   - Close cancels every pending task without running it and refuses new ones.
//
// Tasks capture only their key; they read row state when they run, so the
// most recently scheduled task for a key always commits the latest value.

// Stopper is the part of *time.Timer the debouncer needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// RealAfterFunc; tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Stopper

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// DebounceKey identifies a pending commit. A zero Date keys the row-level
// field commit; a non-zero Date keys a single cell.
type DebounceKey struct {
	RowID RowID
	Date  cycle.Date
}

// IsField reports whether the key is a row-level field commit.
func (k DebounceKey) IsField() bool { return k.Date.IsZero() }

type debounceTask struct {
	timer Stopper
	run   func()
}

// Debouncer coalesces tasks per key.
type Debouncer struct {
	mu     sync.Mutex
	after  AfterFunc
	tasks  map[DebounceKey]*debounceTask
	closed bool
}

// NewDebouncer returns a debouncer using after for timers
// (RealAfterFunc when nil).
func NewDebouncer(after AfterFunc) *Debouncer {
	if after == nil {
		after = RealAfterFunc
	}
	return &Debouncer{
		after: after,
		tasks: make(map[DebounceKey]*debounceTask),
	}
}

// Schedule arms run after d for key, replacing any pending task for key.
// Returns false once the debouncer is closed.
func (d *Debouncer) Schedule(key DebounceKey, delay time.Duration, run func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	if old, ok := d.tasks[key]; ok {
		old.timer.Stop()
	}

	task := &debounceTask{run: run}
	d.tasks[key] = task
	task.timer = d.after(delay, func() { d.fire(key, task) })
	return true
}

func (d *Debouncer) fire(key DebounceKey, task *debounceTask) {
	d.mu.Lock()
	if d.tasks[key] != task {
		// Replaced, cancelled, flushed or closed after the timer fired.
		d.mu.Unlock()
		return
	}
	delete(d.tasks, key)
	d.mu.Unlock()

	task.run()
}

// Cancel drops the pending task for key. Returns true if one was pending.
func (d *Debouncer) Cancel(key DebounceKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, ok := d.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(d.tasks, key)
	return true
}

// CancelWhere drops every pending task whose key matches and returns how
// many were dropped.
func (d *Debouncer) CancelWhere(match func(DebounceKey) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for key, task := range d.tasks {
		if match(key) {
			task.timer.Stop()
			delete(d.tasks, key)
			n++
		}
	}
	return n
}

// CancelRow drops every pending task of a row, field and cells alike.
func (d *Debouncer) CancelRow(rowID RowID) int {
	return d.CancelWhere(func(k DebounceKey) bool { return k.RowID == rowID })
}

// Pending returns the number of armed tasks.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// IsPending reports whether key has an armed task.
func (d *Debouncer) IsPending(key DebounceKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tasks[key]
	return ok
}

// Flush runs every pending task now, in the calling goroutine. Field
// commits run before cell commits; otherwise order is by row then date.
func (d *Debouncer) Flush() int {
	d.mu.Lock()
	keys := make([]DebounceKey, 0, len(d.tasks))
	for key := range d.tasks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.IsField() != b.IsField() {
			return a.IsField()
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		return a.Date.Before(b.Date)
	})
	runs := make([]func(), 0, len(keys))
	for _, key := range keys {
		task := d.tasks[key]
		task.timer.Stop()
		delete(d.tasks, key)
		runs = append(runs, task.run)
	}
	d.mu.Unlock()

	for _, run := range runs {
		run()
	}
	return len(runs)
}

// Close cancels every pending task without running it. Later Schedule
// calls are refused.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, task := range d.tasks {
		task.timer.Stop()
		delete(d.tasks, key)
	}
	d.closed = true
}

// =============================================================================
// KEYED MUTEX - Serialises work per key without a global lock
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[any]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key any) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[any]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
