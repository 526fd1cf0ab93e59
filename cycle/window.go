/*
Package cycle computes reporting windows for timesheets.

PURPOSE:
  A timesheet is always recorded against a cycle: a recurring reporting
  period such as a week or a half month. This package turns a cycle type and
  a reference date into the period boundaries, the dates shown as editable
  grid columns, and a human-readable label.

KEY CONCEPTS:
  Date:       A calendar day (no clock, no zone)
  Type:       daily, weekly, bi-weekly, semi-monthly, monthly
  Window:     Period [Start, End] plus the GridDates rendered as columns
  Calculator: Stateless window arithmetic parameterised by Config

GRID SLICE:
  The grid never shows more than seven columns. For bi-weekly and
  semi-monthly cycles, GridDates is the Sunday-Saturday week containing the
  reference date, filtered to the dates that fall inside the period. A
  monthly cycle always shows its first constituent week, whatever the
  reference date. Navigation always moves by whole cycles, so after
  Next/Previous on a semi-monthly cycle the grid shows the first week of
  the new period too.

CONFIGURATION:
  Bi-weekly windows are anchored to a fixed Sunday and semi-monthly periods
  split after a fixed day of month. Neither is inferred from data:

    cfg := cycle.Config{
        BiWeeklyAnchor:      cycle.NewDate(2024, time.January, 7),
        SemiMonthlySplitDay: 15,
    }

USAGE:
  calc := cycle.NewCalculator(cycle.DefaultConfig())
  w, _ := calc.Compute(cycle.NewDate(2024, time.December, 18), cycle.Weekly)
  calc.FormatLabel(w) // "12/15/2024 - 12/21/2024"

SEE ALSO:
  - date.go: Date arithmetic
  - label.go: Label formatting
*/
package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownCycleType is returned for cycle types the calculator does not know.
var ErrUnknownCycleType = errors.New("unknown cycle type")

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid cycle config")

// =============================================================================
// CYCLE TYPE
// =============================================================================

// Type identifies how reporting periods are laid out.
type Type string

const (
	Daily       Type = "daily"
	Weekly      Type = "weekly"
	BiWeekly    Type = "bi-weekly"
	SemiMonthly Type = "semi-monthly"
	Monthly     Type = "monthly"
)

// Types lists every supported cycle type in increasing period length.
func Types() []Type {
	return []Type{Daily, Weekly, BiWeekly, SemiMonthly, Monthly}
}

// ParseType accepts the canonical names plus the unhyphenated spellings.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "bi-weekly", "biweekly":
		return BiWeekly, nil
	case "semi-monthly", "semimonthly":
		return SemiMonthly, nil
	case "monthly":
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCycleType, s)
}

// =============================================================================
// CONFIG
// =============================================================================

// DefaultBiWeeklyAnchor is the epoch Sunday bi-weekly windows are counted from.
var DefaultBiWeeklyAnchor = NewDate(2024, time.January, 7)

// DefaultSemiMonthlySplitDay is the last day of the first semi-monthly half.
const DefaultSemiMonthlySplitDay = 15

// Config holds the fixed anchors used by period calculation.
type Config struct {
	// BiWeeklyAnchor must be a Sunday; every bi-weekly window starts a
	// multiple of 14 days away from it.
	BiWeeklyAnchor Date

	// SemiMonthlySplitDay is the last day of the first half (1st..split).
	// The second half runs split+1 to the end of the month.
	SemiMonthlySplitDay int
}

func DefaultConfig() Config {
	return Config{
		BiWeeklyAnchor:      DefaultBiWeeklyAnchor,
		SemiMonthlySplitDay: DefaultSemiMonthlySplitDay,
	}
}

// Validate checks the anchor is a Sunday and the split day leaves two
// non-empty halves in every month, February included.
func (c Config) Validate() error {
	if c.BiWeeklyAnchor.IsZero() {
		return fmt.Errorf("%w: bi-weekly anchor is required", ErrInvalidConfig)
	}
	if c.BiWeeklyAnchor.Weekday() != time.Sunday {
		return fmt.Errorf("%w: bi-weekly anchor %s is a %s, want Sunday",
			ErrInvalidConfig, c.BiWeeklyAnchor, c.BiWeeklyAnchor.Weekday())
	}
	if c.SemiMonthlySplitDay < 1 || c.SemiMonthlySplitDay > 27 {
		return fmt.Errorf("%w: semi-monthly split day %d outside 1..27",
			ErrInvalidConfig, c.SemiMonthlySplitDay)
	}
	return nil
}

// =============================================================================
// WINDOW
// =============================================================================

// Window is the period for one cycle plus the dates rendered as grid columns.
type Window struct {
	Type      Type
	Reference Date
	Start     Date
	End       Date
	GridDates []Date
}

// Contains returns true if d is within [Start, End].
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// InGrid returns true if d is one of the grid columns.
func (w Window) InGrid(d Date) bool {
	for _, g := range w.GridDates {
		if g == d {
			return true
		}
	}
	return false
}

// Days returns every date of the full period, not just the grid slice.
func (w Window) Days() []Date {
	return Range(w.Start, w.End)
}

// SamePeriod reports whether two windows cover the same period,
// regardless of which week the grid shows.
func (w Window) SamePeriod(other Window) bool {
	return w.Type == other.Type && w.Start == other.Start && w.End == other.End
}

func (w Window) String() string {
	return string(w.Type) + "[" + w.Start.String() + ", " + w.End.String() + "]"
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes windows. The zero value is not usable; use NewCalculator.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a calculator for cfg. An invalid cfg falls back to
// DefaultConfig so the calculator is always usable; callers that load
// configuration from users should call cfg.Validate first.
func NewCalculator(cfg Config) *Calculator {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	return &Calculator{cfg: cfg}
}

// Config returns the anchors in use.
func (c *Calculator) Config() Config { return c.cfg }

// Compute returns the window of type t that contains reference.
func (c *Calculator) Compute(reference Date, t Type) (Window, error) {
	start, end, err := c.periodFor(reference, t)
	if err != nil {
		return Window{}, err
	}
	slice := reference
	if t == Monthly {
		slice = start
	}
	return Window{
		Type:      t,
		Reference: reference,
		Start:     start,
		End:       end,
		GridDates: gridSlice(slice, start, end),
	}, nil
}

func (c *Calculator) periodFor(ref Date, t Type) (Date, Date, error) {
	switch t {
	case Daily:
		return ref, ref, nil

	case Weekly:
		start := StartOfWeek(ref)
		return start, start.AddDays(6), nil

	case BiWeekly:
		start := c.biWeeklyStart(ref)
		return start, start.AddDays(13), nil

	case SemiMonthly:
		return c.semiMonthlyPeriod(ref)

	case Monthly:
		return StartOfMonth(ref.Year, ref.Month), EndOfMonth(ref.Year, ref.Month), nil
	}
	return Date{}, Date{}, fmt.Errorf("%w: %q", ErrUnknownCycleType, t)
}

func (c *Calculator) biWeeklyStart(ref Date) Date {
	offset := DaysBetween(c.cfg.BiWeeklyAnchor, ref)
	// Floor division so dates before the anchor land in the right window.
	k := offset / 14
	if offset%14 < 0 {
		k--
	}
	return c.cfg.BiWeeklyAnchor.AddDays(14 * k)
}

func (c *Calculator) semiMonthlyPeriod(ref Date) (Date, Date, error) {
	split := c.cfg.SemiMonthlySplitDay
	last := DaysInMonth(ref.Year, ref.Month)
	if ref.Day <= split {
		return NewDate(ref.Year, ref.Month, 1), NewDate(ref.Year, ref.Month, split), nil
	}
	return NewDate(ref.Year, ref.Month, split+1), NewDate(ref.Year, ref.Month, last), nil
}

// gridSlice is the Sunday-Saturday week of ref restricted to [start, end].
func gridSlice(ref, start, end Date) []Date {
	weekStart := StartOfWeek(ref)
	dates := make([]Date, 0, 7)
	for i := 0; i < 7; i++ {
		d := weekStart.AddDays(i)
		if d.Before(start) || d.After(end) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// =============================================================================
// NAVIGATION
// =============================================================================

// Next returns the reference date one whole cycle after reference.
func (c *Calculator) Next(reference Date, t Type) (Date, error) {
	return c.shift(reference, t, 1)
}

// Previous returns the reference date one whole cycle before reference.
func (c *Calculator) Previous(reference Date, t Type) (Date, error) {
	return c.shift(reference, t, -1)
}

func (c *Calculator) shift(ref Date, t Type, dir int) (Date, error) {
	switch t {
	case Daily:
		return ref.AddDays(dir), nil
	case Weekly:
		return ref.AddDays(7 * dir), nil
	case BiWeekly:
		return ref.AddDays(14 * dir), nil
	case SemiMonthly, Monthly:
		start, end, err := c.periodFor(ref, t)
		if err != nil {
			return Date{}, err
		}
		if dir > 0 {
			return end.AddDays(1), nil
		}
		prevStart, _, err := c.periodFor(start.AddDays(-1), t)
		if err != nil {
			return Date{}, err
		}
		return prevStart, nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrUnknownCycleType, t)
}

// NextWindow is Compute(Next(w.Reference)).
func (c *Calculator) NextWindow(w Window) (Window, error) {
	ref, err := c.Next(w.Reference, w.Type)
	if err != nil {
		return Window{}, err
	}
	return c.Compute(ref, w.Type)
}

// PreviousWindow is Compute(Previous(w.Reference)).
func (c *Calculator) PreviousWindow(w Window) (Window, error) {
	ref, err := c.Previous(w.Reference, w.Type)
	if err != nil {
		return Window{}, err
	}
	return c.Compute(ref, w.Type)
}
