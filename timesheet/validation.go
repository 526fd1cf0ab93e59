package timesheet

import (
	"sort"
	"strings"
)

// =============================================================================
// VALIDATION - Per-field row checks before submission
// =============================================================================
//
// A row is:
//   - empty:       no nonzero duration. Never flagged, never submitted.
//   - partial:     has a duration but a blank project or description.
//                  Flagged per field and excluded from submission.
//   - duplicate:   shares its project and description with a row that
//                  owns them. Flagged on the pair and excluded.
//   - submittable: has a duration, a project and a description, and owns them.

const (
	CodeRequired  = "required"
	CodeDuplicate = "duplicate"
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   Field  `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RowErrors holds at most one error per validated field. Key flags the
// project and description pair as a whole.
type RowErrors struct {
	Project     *FieldError `json:"project,omitempty"`
	Description *FieldError `json:"description,omitempty"`
	Key         *FieldError `json:"key,omitempty"`
}

func (e RowErrors) Empty() bool { return e.Project == nil && e.Description == nil && e.Key == nil }

// Without returns a copy with the error for field removed.
func (e RowErrors) Without(field Field) RowErrors {
	switch field {
	case FieldProject:
		e.Project = nil
	case FieldDescription:
		e.Description = nil
	}
	return e
}

// ValidationErrors maps row IDs to their field errors. Rows without errors
// are absent.
type ValidationErrors map[RowID]RowErrors

func (v ValidationErrors) clone() ValidationErrors {
	out := make(ValidationErrors, len(v))
	for id, e := range v {
		out[id] = e
	}
	return out
}

// RowIDs returns the flagged row IDs in sorted order.
func (v ValidationErrors) RowIDs() []RowID {
	ids := make([]RowID, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ValidateRow checks one row. Empty rows never produce errors.
func ValidateRow(row GridRow) RowErrors {
	var errs RowErrors
	if !row.HasDuration() {
		return errs
	}
	if strings.TrimSpace(row.ProjectID) == "" {
		errs.Project = &FieldError{Field: FieldProject, Code: CodeRequired, Message: "Project is required"}
	}
	if strings.TrimSpace(row.Description) == "" {
		errs.Description = &FieldError{Field: FieldDescription, Code: CodeRequired, Message: "Description is required"}
	}
	if row.Duplicate {
		errs.Key = duplicateError()
	}
	return errs
}

func duplicateError() *FieldError {
	return &FieldError{
		Field:   FieldDescription,
		Code:    CodeDuplicate,
		Message: "Another row already uses this project and description",
	}
}

// ValidateAll checks every row and returns the flagged ones.
func ValidateAll(rows []GridRow) ValidationErrors {
	out := make(ValidationErrors)
	for _, row := range rows {
		if errs := ValidateRow(row); !errs.Empty() {
			out[row.ID] = errs
		}
	}
	return out
}

// IsSubmittable reports whether the row has a duration and both fields.
func IsSubmittable(row GridRow) bool {
	return row.HasDuration() && ValidateRow(row).Empty()
}

// SubmittableRows returns the rows that form the submission payload, in
// their original order.
func SubmittableRows(rows []GridRow) []GridRow {
	var out []GridRow
	for _, row := range rows {
		if IsSubmittable(row) {
			out = append(out, row)
		}
	}
	return out
}
