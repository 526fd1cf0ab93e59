/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the grid and workflow model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Cycles:     CycleDTO
  Timesheets: SheetDTO, RowDTO, TotalsDTO, UnsyncedDTO
  Edits:      UpdateFieldRequest, UpdateDayRequest, UpdateDayResponse
  Workflow:   SubmitRequest, DecisionRequest, SubmissionDTO, AuditEntryDTO

DATES:
  Dates are "YYYY-MM-DD" everywhere, including map keys. Hours are decimal
  strings ("7.5") so clients never see float rounding.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// CYCLES
// =============================================================================

// CycleDTO describes one reporting window.
type CycleDTO struct {
	Type      cycle.Type   `json:"type"`
	Label     string       `json:"label"`
	Reference cycle.Date   `json:"reference"`
	Start     cycle.Date   `json:"start"`
	End       cycle.Date   `json:"end"`
	GridDates []cycle.Date `json:"grid_dates"`
	Previous  cycle.Date   `json:"previous"`
	Next      cycle.Date   `json:"next"`
}

// =============================================================================
// TIMESHEETS
// =============================================================================

// SheetDTO is the full view the presentation layer renders.
type SheetDTO struct {
	EmployeeID       string                     `json:"employee_id"`
	TimesheetID      string                     `json:"timesheet_id"`
	Cycle            CycleDTO                   `json:"cycle"`
	Status           timesheet.Status           `json:"status"`
	IsLocked         bool                       `json:"is_locked"`
	RejectionReason  string                     `json:"rejection_reason,omitempty"`
	Rows             []RowDTO                   `json:"rows"`
	ValidationErrors timesheet.ValidationErrors `json:"validation_errors"`
	Totals           TotalsDTO                  `json:"totals"`
	Unsynced         []UnsyncedDTO              `json:"unsynced"`
	PendingCommits   int                        `json:"pending_commits"`
}

type RowDTO struct {
	ID          timesheet.RowID       `json:"id"`
	ProjectID   string                `json:"project_id"`
	Description string                `json:"description"`
	Days        map[cycle.Date]string `json:"days"`
	IsNewRow    bool                  `json:"is_new_row"`
	TotalHours  decimal.Decimal       `json:"total_hours"`

	// Held cells are shown but not saved yet; locked cells are read-only.
	Duplicate   bool         `json:"duplicate,omitempty"`
	HeldDates   []cycle.Date `json:"held_dates,omitempty"`
	LockedDates []cycle.Date `json:"locked_dates,omitempty"`
}

type TotalsDTO struct {
	ByDate map[cycle.Date]decimal.Decimal `json:"by_date"`
	Total  decimal.Decimal                `json:"total"`
}

// UnsyncedDTO is a cell whose last autosave failed.
type UnsyncedDTO struct {
	RowID timesheet.RowID `json:"row_id"`
	Date  cycle.Date      `json:"date"`
	Op    string          `json:"op"`
	Error string          `json:"error"`
}

// =============================================================================
// EDITS
// =============================================================================

type AddRowResponse struct {
	RowID timesheet.RowID `json:"row_id"`
	Sheet SheetDTO        `json:"sheet"`
}

type UpdateFieldRequest struct {
	Field timesheet.Field `json:"field"`
	Value string          `json:"value"`
}

// UpdateDayRequest edits one cell. CommitNow mirrors leaving the cell.
type UpdateDayRequest struct {
	Text      string `json:"text"`
	CommitNow bool   `json:"commit_now"`
}

type UpdateDayResponse struct {
	Text  string   `json:"text"`
	Sheet SheetDTO `json:"sheet"`
}

// =============================================================================
// WORKFLOW
// =============================================================================

type SubmitRequest struct {
	EmployeeID string `json:"employee_id"`
}

// DecisionRequest is used for approve (reason ignored) and reject.
type DecisionRequest struct {
	ManagerID string `json:"manager_id"`
	Reason    string `json:"reason,omitempty"`
}

type SubmissionDTO struct {
	TimesheetID  string          `json:"timesheet_id"`
	EmployeeID   string          `json:"employee_id"`
	Rows         int             `json:"rows"`
	Entries      int             `json:"entries"`
	TotalMinutes int             `json:"total_minutes"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	SubmittedAt  string          `json:"submitted_at"`
	Sheet        SheetDTO        `json:"sheet"`
}

type AuditEntryDTO struct {
	ID        string           `json:"id"`
	ActorID   string           `json:"actor_id"`
	Action    string           `json:"action"`
	From      timesheet.Status `json:"from"`
	To        timesheet.Status `json:"to"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string                     `json:"error"`
	Details          string                     `json:"details,omitempty"`
	ValidationErrors timesheet.ValidationErrors `json:"validation_errors,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCycleDTO(calc *cycle.Calculator, w cycle.Window) CycleDTO {
	dto := CycleDTO{
		Type:      w.Type,
		Label:     calc.FormatLabel(w),
		Reference: w.Reference,
		Start:     w.Start,
		End:       w.End,
		GridDates: w.GridDates,
	}
	// Both only fail for unknown types, which Compute already rejected.
	dto.Previous, _ = calc.Previous(w.Reference, w.Type)
	dto.Next, _ = calc.Next(w.Reference, w.Type)
	return dto
}

func toSheetDTO(calc *cycle.Calculator, sheet *timesheet.Sheet) SheetDTO {
	ts := sheet.Timesheet()
	rows := sheet.Rows()
	totals := sheet.Totals()
	held := sheet.HeldCells()

	dto := SheetDTO{
		EmployeeID:       sheet.EmployeeID(),
		TimesheetID:      string(ts.ID),
		Cycle:            toCycleDTO(calc, sheet.Window()),
		Status:           ts.Status,
		IsLocked:         ts.Status.IsLocked(),
		RejectionReason:  ts.RejectionReason,
		Rows:             make([]RowDTO, len(rows)),
		ValidationErrors: sheet.ValidationErrors(),
		Totals:           TotalsDTO{ByDate: totals.ByDate, Total: totals.Total},
		Unsynced:         []UnsyncedDTO{},
		PendingCommits:   sheet.PendingCommits(),
	}
	for i, row := range rows {
		dto.Rows[i] = RowDTO{
			ID:          row.ID,
			ProjectID:   row.ProjectID,
			Description: row.Description,
			Days:        row.DayDurations,
			IsNewRow:    row.IsNewRow,
			TotalHours:  totals.ByRow[row.ID],
			Duplicate:   row.Duplicate,
			HeldDates:   held[row.ID],
			LockedDates: row.LockedDates,
		}
	}
	for _, e := range sheet.SaveErrors() {
		dto.Unsynced = append(dto.Unsynced, UnsyncedDTO{
			RowID: e.RowID,
			Date:  e.Date,
			Op:    e.Op,
			Error: e.Err.Error(),
		})
	}
	return dto
}

func toSubmissionDTO(sub *timesheet.Submission, sheet SheetDTO) SubmissionDTO {
	return SubmissionDTO{
		TimesheetID:  string(sub.TimesheetID),
		EmployeeID:   sub.EmployeeID,
		Rows:         len(sub.Rows),
		Entries:      len(sub.Entries),
		TotalMinutes: sub.TotalMinutes,
		TotalHours:   sub.TotalHours,
		SubmittedAt:  sub.SubmittedAt.Format(time.RFC3339),
		Sheet:        sheet,
	}
}

func toAuditEntryDTO(e timesheet.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		From:      e.From,
		To:        e.To,
		Payload:   e.Payload,
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}
