package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// SESSIONS - Open sheets keyed by employee and period
// =============================================================================

// SessionKey identifies one open sheet. A period spanning several grid
// weeks shares one sheet, which is focused on the requested week.
type SessionKey struct {
	EmployeeID string
	Type       cycle.Type
	Start      cycle.Date
}

func keyFor(employeeID string, w cycle.Window) SessionKey {
	return SessionKey{EmployeeID: timesheet.NormalizeID(employeeID), Type: w.Type, Start: w.Start}
}

func (k SessionKey) String() string {
	return k.EmployeeID + "|" + string(k.Type) + "|" + k.Start.String()
}

// Opener builds a sheet for an employee and window.
type Opener func(ctx context.Context, employeeID string, w cycle.Window) (*timesheet.Sheet, error)

// Sessions caches open sheets so debounced edits survive between requests.
// Opening runs outside mu; concurrent opens of one key share a single call.
type Sessions struct {
	mu      sync.Mutex
	open    map[SessionKey]*session
	opening singleflight.Group
	opener  Opener
	now     func() time.Time
}

type session struct {
	sheet    *timesheet.Sheet
	lastUsed time.Time
}

func NewSessions(opener Opener, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		open:   make(map[SessionKey]*session),
		opener: opener,
		now:    now,
	}
}

// Get returns the open sheet for (employee, window), opening it on first use
// and focusing it on the grid dates of w.
func (s *Sessions) Get(ctx context.Context, employeeID string, w cycle.Window) (*timesheet.Sheet, error) {
	key := keyFor(employeeID, w)

	sheet := s.lookup(key)
	if sheet == nil {
		v, err, _ := s.opening.Do(key.String(), func() (any, error) {
			if sheet := s.lookup(key); sheet != nil {
				return sheet, nil
			}
			// The sheet outlives the request that happened to open it.
			opened, err := s.opener(context.WithoutCancel(ctx), employeeID, w)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if sess, ok := s.open[key]; ok {
				opened.Close()
				return sess.sheet, nil
			}
			s.open[key] = &session{sheet: opened, lastUsed: s.now()}
			return opened, nil
		})
		if err != nil {
			return nil, err
		}
		sheet = v.(*timesheet.Sheet)
	}

	if err := sheet.Focus(ctx, w); err != nil {
		return nil, err
	}
	return sheet, nil
}

func (s *Sessions) lookup(key SessionKey) *timesheet.Sheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.open[key]; ok {
		sess.lastUsed = s.now()
		return sess.sheet
	}
	return nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Keys returns the open session keys in a stable order.
func (s *Sessions) Keys() []SessionKey {
	s.mu.Lock()
	keys := make([]SessionKey, 0, len(s.open))
	for k := range s.open {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].EmployeeID != keys[j].EmployeeID {
			return keys[i].EmployeeID < keys[j].EmployeeID
		}
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Start.Before(keys[j].Start)
	})
	return keys
}

// CloseIdle flushes and closes every session untouched for at least ttl.
// A session whose flush fails stays open so its unsynced cells are not lost;
// the next sweep retries it.
func (s *Sessions) CloseIdle(ttl time.Duration) (closed, kept int, err error) {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	idle := make(map[SessionKey]*session)
	for k, sess := range s.open {
		if !sess.lastUsed.After(cutoff) {
			idle[k] = sess
			delete(s.open, k)
		}
	}
	s.mu.Unlock()

	return s.retire(idle)
}

// CloseAll flushes and closes every session. Used on shutdown.
func (s *Sessions) CloseAll() error {
	s.mu.Lock()
	all := s.open
	s.open = make(map[SessionKey]*session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range all {
		if err := sess.sheet.Flush(); err != nil {
			errs = append(errs, err)
		}
		sess.sheet.Close()
	}
	return errors.Join(errs...)
}

func (s *Sessions) retire(idle map[SessionKey]*session) (closed, kept int, err error) {
	var errs []error
	for k, sess := range idle {
		if ferr := sess.sheet.Flush(); ferr != nil {
			errs = append(errs, ferr)
			s.mu.Lock()
			if _, reopened := s.open[k]; !reopened {
				s.open[k] = sess
				kept++
			} else {
				sess.sheet.Close()
			}
			s.mu.Unlock()
			continue
		}
		sess.sheet.Close()
		closed++
	}
	return closed, kept, errors.Join(errs...)
}
