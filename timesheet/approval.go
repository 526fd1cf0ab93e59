/*
approval.go - Timesheet approval workflow

PURPOSE:
  Moves a timesheet through its lifecycle and locks the grid while a
  decision is pending or final.

STATE MACHINE:
  ┌───────┐  submit   ┌───────────┐  approve  ┌──────────┐
  │ draft │ ────────▶ │ submitted │ ────────▶ │ approved │
  └───────┘           └───────────┘           └──────────┘
                        ▲       │ reject
                 submit │       ▼
                      ┌──────────┐
                      │ rejected │
                      └──────────┘

GUARDS:
  submit:  actor is email-shaped and owns the timesheet; at least one row
           has a project, a description and a nonzero duration
  approve: actor is email-shaped and holds the manager role
  reject:  reason is non-blank; actor holds the manager role

SIDE EFFECTS (only after every guard passed):
  1. Entries in the payload take the new status
  2. The timesheet record is saved
  3. An audit entry is appended

  If 1 or 2 fails the in-memory status does not change. A failed audit
  append is logged; the transition stands.

LOCKING:
  submitted and approved are locked: Workflow.CheckMutable refuses grid
  mutations with *LockedError. Reopening an approved timesheet is not
  supported.

SEE ALSO:
  - validation.go: SubmittableRows
  - grid.go: MutationGate
*/
package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/cycle"
)

// =============================================================================
// STATUS AND EVENTS
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// IsLocked reports whether grid edits are refused in this status.
func (s Status) IsLocked() bool {
	return s == StatusSubmitted || s == StatusApproved
}

func (s Status) entryStatus() EntryStatus { return EntryStatus(s) }

type Event string

const (
	EventSubmit  Event = "submit"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
)

var transitions = map[Status]map[Event]Status{
	StatusDraft:     {EventSubmit: StatusSubmitted},
	StatusRejected:  {EventSubmit: StatusSubmitted},
	StatusSubmitted: {EventApprove: StatusApproved, EventReject: StatusRejected},
}

// NextStatus returns the target of event from s, or *TransitionError.
func NextStatus(s Status, event Event) (Status, error) {
	if to, ok := transitions[s][event]; ok {
		return to, nil
	}
	return s, &TransitionError{From: s, Event: event}
}

// =============================================================================
// TIMESHEET
// =============================================================================

// Timesheet is the workflow record for one employee and one cycle period.
type Timesheet struct {
	ID              TimesheetID
	EmployeeID      string
	Status          Status
	RejectionReason string
	Window          cycle.Window
	SubmittedAt     *time.Time
	DecidedBy       string
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTimesheet returns a draft record for employeeID and window.
func NewTimesheet(employeeID string, window cycle.Window, now time.Time) Timesheet {
	return Timesheet{
		ID:         TimesheetID(uuid.NewString()),
		EmployeeID: employeeID,
		Status:     StatusDraft,
		Window:     window,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Submission is the payload of a successful submit.
type Submission struct {
	TimesheetID  TimesheetID
	EmployeeID   string
	Window       cycle.Window
	Rows         []GridRow
	Entries      []TimeEntry
	TotalMinutes int
	TotalHours   decimal.Decimal
	SubmittedAt  time.Time
}

// =============================================================================
// WORKFLOW
// =============================================================================

// WorkflowConfig wires a Workflow. Identity, Timesheets and Entries are
// required.
type WorkflowConfig struct {
	Identity   Identity
	Timesheets TimesheetStore
	Entries    EntryRepository
	Audit      AuditLog
	Logger     *log.Logger
	Now        func() time.Time
}

// Workflow owns the status of one timesheet. Safe for concurrent use.
type Workflow struct {
	mu         sync.RWMutex
	ts         Timesheet
	identity   Identity
	timesheets TimesheetStore
	entries    EntryRepository
	audit      AuditLog
	logger     *log.Logger
	now        func() time.Time
}

func NewWorkflow(ts Timesheet, cfg WorkflowConfig) *Workflow {
	w := &Workflow{
		ts:         ts,
		identity:   cfg.Identity,
		timesheets: cfg.Timesheets,
		entries:    cfg.Entries,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if w.audit == nil {
		w.audit = nopAuditLog{}
	}
	if w.logger == nil {
		w.logger = log.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

func (w *Workflow) Timesheet() Timesheet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ts
}

func (w *Workflow) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ts.Status
}

func (w *Workflow) IsLocked() bool { return w.Status().IsLocked() }

// CheckMutable implements MutationGate.
func (w *Workflow) CheckMutable() error {
	if s := w.Status(); s.IsLocked() {
		return &LockedError{Status: s}
	}
	return nil
}

// Can reports whether event is legal from the current status. Guards are
// not evaluated.
func (w *Workflow) Can(event Event) bool {
	_, err := NextStatus(w.Status(), event)
	return err == nil
}

// reset swaps in the record of another period.
func (w *Workflow) reset(ts Timesheet) {
	w.mu.Lock()
	w.ts = ts
	w.mu.Unlock()
}

// Submit moves draft or rejected to submitted. rows is the current grid.
func (w *Workflow) Submit(ctx context.Context, employeeID string, rows []GridRow) (*Submission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := NextStatus(w.ts.Status, EventSubmit)
	if err != nil {
		return nil, err
	}
	if err := w.identity.Validate(employeeID); err != nil {
		return nil, err
	}
	if NormalizeID(employeeID) != NormalizeID(w.ts.EmployeeID) {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, employeeID)
	}

	payload := SubmittableRows(rows)
	if len(payload) == 0 {
		return nil, ErrNothingToSubmit
	}

	keys := make(map[EntryKey]bool, len(payload))
	totalMinutes := 0
	for _, row := range payload {
		keys[row.key()] = true
		totalMinutes += row.TotalMinutes()
	}
	entries, err := w.periodEntries(ctx, func(e TimeEntry) bool {
		// Entries locked by an overlapping timesheet stay with it.
		return keys[e.Key()] && e.DurationMinutes > 0 && !e.Status.IsLocked()
	})
	if err != nil {
		return nil, err
	}
	undo, err := w.markEntries(ctx, entries, EntrySubmitted)
	if err != nil {
		return nil, err
	}

	now := w.now()
	updated := w.ts
	updated.Status = next
	updated.RejectionReason = ""
	updated.SubmittedAt = &now
	updated.DecidedBy = ""
	updated.DecidedAt = nil
	updated.UpdatedAt = now
	if err := w.commit(ctx, updated, employeeID, AuditSubmitted, map[string]any{
		"rows":          len(payload),
		"entries":       len(entries),
		"total_minutes": totalMinutes,
	}); err != nil {
		undo()
		return nil, err
	}

	return &Submission{
		TimesheetID:  updated.ID,
		EmployeeID:   updated.EmployeeID,
		Window:       updated.Window,
		Rows:         payload,
		Entries:      entries,
		TotalMinutes: totalMinutes,
		TotalHours:   Hours(totalMinutes),
		SubmittedAt:  now,
	}, nil
}

// Approve moves submitted to approved.
func (w *Workflow) Approve(ctx context.Context, managerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := NextStatus(w.ts.Status, EventApprove)
	if err != nil {
		return err
	}
	if err := w.requireManager(ctx, managerID); err != nil {
		return err
	}
	return w.decide(ctx, next, managerID, "", AuditApproved)
}

// Reject moves submitted to rejected with a mandatory reason.
func (w *Workflow) Reject(ctx context.Context, managerID, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next, err := NextStatus(w.ts.Status, EventReject)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if err := w.requireManager(ctx, managerID); err != nil {
		return err
	}
	return w.decide(ctx, next, managerID, reason, AuditRejected)
}

func (w *Workflow) requireManager(ctx context.Context, managerID string) error {
	if err := w.identity.Validate(managerID); err != nil {
		return err
	}
	ok, err := w.identity.HasRole(ctx, managerID, RoleManager)
	if err != nil {
		return fmt.Errorf("check manager role: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotManager, managerID)
	}
	return nil
}

func (w *Workflow) decide(ctx context.Context, next Status, managerID, reason string, action AuditAction) error {
	entries, err := w.periodEntries(ctx, func(e TimeEntry) bool {
		return e.Status == EntrySubmitted
	})
	if err != nil {
		return err
	}
	undo, err := w.markEntries(ctx, entries, next.entryStatus())
	if err != nil {
		return err
	}

	now := w.now()
	updated := w.ts
	updated.Status = next
	updated.RejectionReason = reason
	updated.DecidedBy = managerID
	updated.DecidedAt = &now
	updated.UpdatedAt = now

	payload := map[string]any{"entries": len(entries)}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := w.commit(ctx, updated, managerID, action, payload); err != nil {
		undo()
		return err
	}
	return nil
}

// periodEntries lists the owner's entries in the period that pass keep.
func (w *Workflow) periodEntries(ctx context.Context, keep func(TimeEntry) bool) ([]TimeEntry, error) {
	all, err := w.entries.List(ctx, EntryQuery{
		EmployeeID: w.ts.EmployeeID,
		From:       w.ts.Window.Start,
		To:         w.ts.Window.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var out []TimeEntry
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// markEntries sets status on every entry. The returned undo puts back the
// previous statuses; the entries and the timesheet record move together or
// not at all. A failure part way through undoes the entries already marked.
func (w *Workflow) markEntries(ctx context.Context, entries []TimeEntry, status EntryStatus) (undo func(), err error) {
	previous := make([]EntryStatus, 0, len(entries))
	undo = func() {
		restoreCtx := context.WithoutCancel(ctx)
		for i := len(previous) - 1; i >= 0; i-- {
			s := previous[i]
			if err := w.entries.Update(restoreCtx, entries[i].ID, EntryPatch{Status: &s}); err != nil {
				w.logger.Printf("[Workflow] restore entry %s to %s failed: %v", entries[i].ID, s, err)
				continue
			}
			entries[i].Status = s
		}
	}
	for i := range entries {
		s := status
		if err := w.entries.Update(ctx, entries[i].ID, EntryPatch{Status: &s}); err != nil {
			undo()
			return nil, fmt.Errorf("mark entry %s %s: %w", entries[i].ID, status, err)
		}
		previous = append(previous, entries[i].Status)
		entries[i].Status = status
	}
	return undo, nil
}

// commit saves updated, swaps it in and appends the audit entry. Caller
// holds w.mu.
func (w *Workflow) commit(ctx context.Context, updated Timesheet, actorID string, action AuditAction, payload map[string]any) error {
	if err := w.timesheets.SaveTimesheet(ctx, updated); err != nil {
		return fmt.Errorf("save timesheet: %w", err)
	}
	from := w.ts.Status
	w.ts = updated

	entry := AuditEntry{
		ID:          uuid.NewString(),
		TimesheetID: updated.ID,
		EmployeeID:  updated.EmployeeID,
		ActorID:     actorID,
		Action:      action,
		From:        from,
		To:          updated.Status,
		Payload:     payload,
		Timestamp:   updated.UpdatedAt,
	}
	if err := w.audit.Append(ctx, entry); err != nil {
		w.logger.Printf("[Workflow] audit append failed for %s (%s): %v", updated.ID, action, err)
	}
	w.logger.Printf("[Workflow] %s: %s -> %s by %s", updated.ID, from, updated.Status, actorID)
	return nil
}

// IsWorkflowError reports whether err came from a refused transition or guard.
func IsWorkflowError(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrNothingToSubmit) ||
		errors.Is(err, ErrInvalidIdentity) ||
		errors.Is(err, ErrNotManager) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrReasonRequired)
}
