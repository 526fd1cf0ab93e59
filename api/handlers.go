/*
handlers.go - HTTP API handlers for the timesheet engine

PURPOSE:
  Exposes the grid and approval workflow via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to timesheet.Sheet.

ENDPOINTS:
  Cycles:
    GET    /api/cycles?type=&date=                       Window, label, neighbours

  Timesheets (all accept ?type=&date= to pick the cycle):
    GET    /api/timesheets/{employee}                    Grid view
    POST   /api/timesheets/{employee}/rows               Add blank row
    PUT    /api/timesheets/{employee}/rows/{row}/fields  Edit project/description
    PUT    /api/timesheets/{employee}/rows/{row}/days/{date}  Edit one cell
    POST   /api/timesheets/{employee}/rows/{row}/clear   Blank a row
    DELETE /api/timesheets/{employee}/rows/{row}?confirm=true  Remove a row
    POST   /api/timesheets/{employee}/flush              Commit pending edits

  Workflow:
    POST   /api/timesheets/{employee}/submit             Owner submits
    POST   /api/timesheets/{employee}/approve            Manager approves
    POST   /api/timesheets/{employee}/reject             Manager rejects
    GET    /api/timesheets/{employee}/audit              Transition history

  Scenarios:
    GET    /api/scenarios                                List demo scenarios
    POST   /api/scenarios/load                           Fill a sheet with one

ARCHITECTURE:
  Handler holds the session cache, the cycle calculator and the audit log.
  Each request resolves its window, fetches the cached sheet for
  (employee, window), and renders the sheet after the operation.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, nothing to submit (with validation errors)
  - 403: Actor is not the owner or not a manager
  - 404: Unknown row
  - 409: Locked grid, illegal transition
  - 503: Autosave failed; retrying may succeed
  - 500: Internal errors

SECURITY NOTE:
  Actor identities arrive in request bodies. Authentication belongs in front
  of this API.

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Sheet cache
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HandlerConfig wires a Handler. Sessions and Calculator are required.
type HandlerConfig struct {
	Sessions    *Sessions
	Calculator  *cycle.Calculator
	Audit       timesheet.AuditLog
	DefaultType cycle.Type
	Logger      *log.Logger
	Now         func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	sessions    *Sessions
	calc        *cycle.Calculator
	audit       timesheet.AuditLog
	defaultType cycle.Type
	logger      *log.Logger
	now         func() time.Time
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		sessions:    cfg.Sessions,
		calc:        cfg.Calculator,
		audit:       cfg.Audit,
		defaultType: cfg.DefaultType,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if h.defaultType == "" {
		h.defaultType = cycle.Weekly
	}
	if h.logger == nil {
		h.logger = log.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// GetCycle describes the window containing a date.
// GET /api/cycles?type=weekly&date=2024-12-18
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	window, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(h.calc, window))
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

// GetTimesheet renders the grid.
// GET /api/timesheets/{employee}
func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// AddRow appends a blank row.
// POST /api/timesheets/{employee}/rows
func (h *Handler) AddRow(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	rowID, err := sheet.AddRow()
	if err != nil {
		writeDomainError(w, "Failed to add row", err)
		return
	}
	writeJSON(w, http.StatusCreated, AddRowResponse{RowID: rowID, Sheet: toSheetDTO(h.calc, sheet)})
}

// UpdateField edits a row's project or description.
// PUT /api/timesheets/{employee}/rows/{row}/fields
func (h *Handler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req UpdateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	if err := sheet.UpdateField(rowParam(r), req.Field, req.Value); err != nil {
		writeDomainError(w, "Failed to update field", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// UpdateDay edits one duration cell. The response carries the normalised
// text the cell now shows.
// PUT /api/timesheets/{employee}/rows/{row}/days/{date}
func (h *Handler) UpdateDay(w http.ResponseWriter, r *http.Request) {
	date, err := cycle.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	var req UpdateDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}

	text, err := sheet.UpdateDayDuration(r.Context(), rowParam(r), date, req.Text, req.CommitNow)
	if err != nil && !errors.Is(err, timesheet.ErrSaveFailed) {
		writeDomainError(w, "Failed to update duration", err)
		return
	}
	if err != nil {
		// The value is kept and reported as unsynced in the sheet view.
		h.logger.Printf("[Server] Autosave failed for %s: %v", sheet.EmployeeID(), err)
	}
	writeJSON(w, http.StatusOK, UpdateDayResponse{Text: text, Sheet: toSheetDTO(h.calc, sheet)})
}

// ClearRow blanks a row's fields and cells and retracts its entries.
// POST /api/timesheets/{employee}/rows/{row}/clear
func (h *Handler) ClearRow(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	if err := sheet.ClearRow(r.Context(), rowParam(r)); err != nil {
		writeDomainError(w, "Failed to clear row", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// RemoveRow deletes a row and its entries. Requires ?confirm=true.
// DELETE /api/timesheets/{employee}/rows/{row}
func (h *Handler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "Removing a row requires confirm=true", nil)
		return
	}
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	if err := sheet.RemoveRow(r.Context(), rowParam(r)); err != nil {
		writeDomainError(w, "Failed to remove row", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// Flush commits every pending edit now.
// POST /api/timesheets/{employee}/flush
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	if err := sheet.Flush(); err != nil {
		writeDomainError(w, "Failed to save changes", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// Submit moves the timesheet to submitted.
// POST /api/timesheets/{employee}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}

	sub, err := sheet.Submit(r.Context(), req.EmployeeID)
	if errors.Is(err, timesheet.ErrNothingToSubmit) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "Nothing to submit",
			Details:          err.Error(),
			ValidationErrors: sheet.ValidationErrors(),
		})
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to submit timesheet", err)
		return
	}

	h.logger.Printf("[Server] %s submitted %s (%d min)", sub.EmployeeID, sub.TimesheetID, sub.TotalMinutes)
	writeJSON(w, http.StatusOK, toSubmissionDTO(sub, toSheetDTO(h.calc, sheet)))
}

// Approve moves a submitted timesheet to approved.
// POST /api/timesheets/{employee}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(sheet *timesheet.Sheet, req DecisionRequest) error {
		return sheet.Approve(r.Context(), req.ManagerID)
	})
}

// Reject moves a submitted timesheet to rejected, unlocking the grid.
// POST /api/timesheets/{employee}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(sheet *timesheet.Sheet, req DecisionRequest) error {
		return sheet.Reject(r.Context(), req.ManagerID, req.Reason)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(*timesheet.Sheet, DecisionRequest) error) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	if err := apply(sheet, req); err != nil {
		writeDomainError(w, "Failed to record decision", err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// GetAudit lists the timesheet's transitions, oldest first.
// GET /api/timesheets/{employee}/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	dtos := []AuditEntryDTO{}
	if h.audit != nil {
		id := sheet.Timesheet().ID
		entries, err := h.audit.Query(r.Context(), timesheet.AuditFilter{TimesheetID: &id})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load audit log", err)
			return
		}
		for _, e := range entries {
			dtos = append(dtos, toAuditEntryDTO(e))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// window resolves ?type= and ?date= against the defaults.
func (h *Handler) window(r *http.Request) (cycle.Window, error) {
	q := r.URL.Query()

	t := h.defaultType
	if raw := q.Get("type"); raw != "" {
		parsed, err := cycle.ParseType(raw)
		if err != nil {
			return cycle.Window{}, err
		}
		t = parsed
	}

	ref := cycle.DateOf(h.now())
	if raw := q.Get("date"); raw != "" {
		parsed, err := cycle.ParseDate(raw)
		if err != nil {
			return cycle.Window{}, err
		}
		ref = parsed
	}

	return h.calc.Compute(ref, t)
}

// sheet fetches the session for the request, writing the error response
// itself when it cannot.
func (h *Handler) sheet(w http.ResponseWriter, r *http.Request) (*timesheet.Sheet, bool) {
	window, err := h.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle", err)
		return nil, false
	}
	sheet, err := h.sessions.Get(r.Context(), chi.URLParam(r, "employee"), window)
	if err != nil {
		writeDomainError(w, "Failed to open timesheet", err)
		return nil, false
	}
	return sheet, true
}

func rowParam(r *http.Request) timesheet.RowID {
	return timesheet.RowID(chi.URLParam(r, "row"))
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case timesheet.IsClientError(err):
		return http.StatusBadRequest
	case timesheet.IsForbidden(err):
		return http.StatusForbidden
	case timesheet.IsNotFound(err):
		return http.StatusNotFound
	case timesheet.IsConflict(err):
		return http.StatusConflict
	case timesheet.IsRetryable(err), errors.Is(err, timesheet.ErrSheetClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
