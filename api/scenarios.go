/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that fill a timesheet with realistic data
	for demos. Scenarios drive the same Sheet operations a user would, so
	every entry goes through autosave and every transition through the
	workflow and audit log.

AVAILABLE SCENARIOS:

	first-week:        Three complete rows, Monday to Friday, draft
	incomplete-rows:   One complete row plus one missing its description
	awaiting-approval: first-week, submitted
	rejected:          first-week, submitted then rejected by the manager
	approved:          first-week, submitted then approved

HOW SCENARIOS WORK:
 1. Open the sheet for the employee and the week of the requested date
 2. Refuse if the sheet already holds data or has left draft
 3. Name rows and type durations, committing each cell
 4. Flush, then run the scenario's workflow steps

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "rejected", "employee_id": "a@b.com",
	 "manager_id": "boss@b.com", "date": "2024-12-18"}

NOTE:

	Scenarios write real entries. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared request helpers
  - sessions.go: Sheet cache the scenarios write through
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

// ErrScenarioConflict is returned when the target sheet is not empty.
var ErrScenarioConflict = errors.New("timesheet already has data")

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	RequiresManager bool   `json:"requires_manager"`
}

// LoadScenarioRequest selects a scenario and its target sheet.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	EmployeeID string `json:"employee_id"`
	ManagerID  string `json:"manager_id,omitempty"`
	Date       string `json:"date,omitempty"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type step string

const (
	stepSubmit  step = "submit"
	stepApprove step = "approve"
	stepReject  step = "reject"
)

// demoRow fills weekdays by offset from Sunday (1 = Monday).
type demoRow struct {
	project     string
	description string
	days        map[int]string
}

type scenario struct {
	ScenarioDTO
	rows  []demoRow
	steps []step
}

var workWeek = []demoRow{
	{"ACME-101", "Checkout redesign", map[int]string{1: "4", 2: "0430", 3: "5", 4: "4", 5: "3"}},
	{"ACME-204", "Code review", map[int]string{1: "1", 2: "1", 3: "0:45", 4: "1", 5: "1"}},
	{"INT-001", "Team meetings", map[int]string{1: "130", 3: "1", 5: "2"}},
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "first-week",
			Name:        "First Week",
			Description: "Three complete rows from Monday to Friday, still a draft",
		},
		rows: workWeek,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "incomplete-rows",
			Name:        "Incomplete Rows",
			Description: "One complete row and one without a description; submitting shows validation errors",
		},
		rows: []demoRow{
			workWeek[0],
			{"ACME-204", "", map[int]string{2: "2"}},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "awaiting-approval",
			Name:        "Awaiting Approval",
			Description: "A full week submitted by the employee; the grid is locked",
		},
		rows:  workWeek,
		steps: []step{stepSubmit},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:              "rejected",
			Name:            "Rejected",
			Description:     "Submitted, then rejected with a reason; the grid is editable again",
			RequiresManager: true,
		},
		rows:  workWeek,
		steps: []step{stepSubmit, stepReject},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:              "approved",
			Name:            "Approved",
			Description:     "Submitted and approved; the grid is locked for good",
			RequiresManager: true,
		},
		rows:  workWeek,
		steps: []step{stepSubmit, stepApprove},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario fills a sheet with a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("%q", req.ScenarioID))
		return
	}
	if sc.RequiresManager && req.ManagerID == "" {
		writeError(w, http.StatusBadRequest, "Scenario requires manager_id", nil)
		return
	}

	ref := cycle.DateOf(h.now())
	if req.Date != "" {
		parsed, err := cycle.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		ref = parsed
	}
	window, err := h.calc.Compute(ref, cycle.Weekly)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle", err)
		return
	}

	sheet, err := h.sessions.Get(r.Context(), req.EmployeeID, window)
	if err != nil {
		writeDomainError(w, "Failed to open timesheet", err)
		return
	}
	if err := h.loadScenario(r.Context(), sheet, sc, req); err != nil {
		if errors.Is(err, ErrScenarioConflict) {
			writeError(w, http.StatusConflict, "Scenario cannot be loaded", err)
			return
		}
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.logger.Printf("[Server] Loaded scenario %s for %s (%s)", sc.ID, sheet.EmployeeID(), sheet.CycleLabel())
	writeJSON(w, http.StatusOK, toSheetDTO(h.calc, sheet))
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, sheet *timesheet.Sheet, sc scenario, req LoadScenarioRequest) error {
	if sheet.Status() != timesheet.StatusDraft {
		return fmt.Errorf("%w: status is %s", ErrScenarioConflict, sheet.Status())
	}
	for _, row := range sheet.Rows() {
		if row.ProjectID != "" || row.Description != "" || row.HasDuration() {
			return ErrScenarioConflict
		}
	}

	start := sheet.Window().Start
	for i, demo := range sc.rows {
		rowID, err := h.rowAt(sheet, i)
		if err != nil {
			return err
		}
		if err := sheet.UpdateField(rowID, timesheet.FieldProject, demo.project); err != nil {
			return err
		}
		if err := sheet.UpdateField(rowID, timesheet.FieldDescription, demo.description); err != nil {
			return err
		}
		for offset, text := range demo.days {
			day := start.AddDays(offset)
			if !sheet.Window().InGrid(day) {
				continue
			}
			if _, err := sheet.UpdateDayDuration(ctx, rowID, day, text, true); err != nil {
				return err
			}
		}
	}
	if err := sheet.Flush(); err != nil {
		return err
	}

	for _, s := range sc.steps {
		var err error
		switch s {
		case stepSubmit:
			_, err = sheet.Submit(ctx, req.EmployeeID)
		case stepApprove:
			err = sheet.Approve(ctx, req.ManagerID)
		case stepReject:
			err = sheet.Reject(ctx, req.ManagerID, "Please split meetings by project")
		}
		if err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// rowAt returns the i-th row, adding rows as needed.
func (h *Handler) rowAt(sheet *timesheet.Sheet, i int) (timesheet.RowID, error) {
	rows := sheet.Rows()
	if i < len(rows) {
		return rows[i].ID, nil
	}
	return sheet.AddRow()
}
