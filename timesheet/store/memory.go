// Package store provides in-memory implementations of the timesheet
// persistence interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Op names a repository operation for fault injection.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"

	OpSaveTimesheet Op = "save-timesheet"
)

// Memory implements EntryRepository, TimesheetStore and AuditLog.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string][]timesheet.TimeEntry // per employee, ordered by date
	byID       map[timesheet.EntryID]string     // entry -> employee
	timesheets map[periodKey]timesheet.Timesheet
	audit      []timesheet.AuditEntry
	faults     map[Op]error
	now        func() time.Time
}

type periodKey struct {
	EmployeeID string
	Type       cycle.Type
	Start      cycle.Date
}

func keyFor(employeeID string, w cycle.Window) periodKey {
	return periodKey{EmployeeID: timesheet.NormalizeID(employeeID), Type: w.Type, Start: w.Start}
}

func NewMemory() *Memory {
	return &Memory{
		entries:    make(map[string][]timesheet.TimeEntry),
		byID:       make(map[timesheet.EntryID]string),
		timesheets: make(map[periodKey]timesheet.Timesheet),
		faults:     make(map[Op]error),
		now:        time.Now,
	}
}

// FailOn makes every later call of op return err until FailOn(op, nil).
func (m *Memory) FailOn(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// =============================================================================
// ENTRY REPOSITORY
// =============================================================================

func (m *Memory) Create(_ context.Context, entry timesheet.TimeEntry) (timesheet.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpCreate]; err != nil {
		return "", err
	}

	if entry.ID == "" {
		entry.ID = timesheet.EntryID(uuid.NewString())
	}
	if entry.Status == "" {
		entry.Status = timesheet.EntryDraft
	}
	now := m.now()
	entry.CreatedAt, entry.UpdatedAt = now, now

	owner := timesheet.NormalizeID(entry.EmployeeID)
	list := m.entries[owner]

	// Insert after every entry on or before the same date.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Date.After(entry.Date)
	})
	list = append(list, timesheet.TimeEntry{})
	copy(list[i+1:], list[i:])
	list[i] = entry
	m.entries[owner] = list
	m.byID[entry.ID] = owner
	return entry.ID, nil
}

func (m *Memory) Update(_ context.Context, id timesheet.EntryID, patch timesheet.EntryPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpUpdate]; err != nil {
		return err
	}

	list, i, ok := m.findLocked(id)
	if !ok {
		return timesheet.ErrEntryNotFound
	}
	e := &list[i]
	if patch.ProjectID != nil {
		e.ProjectID = *patch.ProjectID
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.DurationMinutes != nil {
		e.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	e.UpdatedAt = m.now()
	return nil
}

func (m *Memory) Delete(_ context.Context, id timesheet.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpDelete]; err != nil {
		return err
	}

	list, i, ok := m.findLocked(id)
	if !ok {
		return timesheet.ErrEntryNotFound
	}
	owner := m.byID[id]
	m.entries[owner] = append(list[:i], list[i+1:]...)
	delete(m.byID, id)
	return nil
}

func (m *Memory) List(_ context.Context, q timesheet.EntryQuery) ([]timesheet.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.faults[OpList]; err != nil {
		return nil, err
	}

	var result []timesheet.TimeEntry
	for _, e := range m.entries[timesheet.NormalizeID(q.EmployeeID)] {
		if q.From.BeforeOrEqual(e.Date) && e.Date.BeforeOrEqual(q.To) {
			result = append(result, e)
		}
	}
	return result, nil
}

// All returns every entry of employeeID, ordered by date.
func (m *Memory) All(employeeID string) []timesheet.TimeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[timesheet.NormalizeID(employeeID)]
	out := make([]timesheet.TimeEntry, len(list))
	copy(out, list)
	return out
}

func (m *Memory) findLocked(id timesheet.EntryID) ([]timesheet.TimeEntry, int, bool) {
	owner, ok := m.byID[id]
	if !ok {
		return nil, 0, false
	}
	list := m.entries[owner]
	for i := range list {
		if list[i].ID == id {
			return list, i, true
		}
	}
	return nil, 0, false
}

// =============================================================================
// TIMESHEET STORE
// =============================================================================

func (m *Memory) GetTimesheet(_ context.Context, employeeID string, w cycle.Window) (*timesheet.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.timesheets[keyFor(employeeID, w)]
	if !ok {
		return nil, timesheet.ErrTimesheetNotFound
	}
	return &ts, nil
}

func (m *Memory) SaveTimesheet(_ context.Context, ts timesheet.Timesheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpSaveTimesheet]; err != nil {
		return err
	}
	m.timesheets[keyFor(ts.EmployeeID, ts.Window)] = ts
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) Append(_ context.Context, entry timesheet.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter timesheet.AuditFilter) ([]timesheet.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []timesheet.AuditEntry
	for _, e := range m.audit {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	return result, nil
}
