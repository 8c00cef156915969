package calendar

import (
	"time"

	"studycal/internal/model"
)

// GridCells is the fixed month-grid size: 6 rows of 7 weekday columns.
// The grid never adapts to month length; short months simply carry more
// spill-over cells from the adjacent months.
const GridCells = 42

// WeekStart selects which weekday occupies the first grid column.
type WeekStart string

const (
	WeekStartSunday WeekStart = "sunday"
	WeekStartMonday WeekStart = "monday"
)

// offset is the weekday index (0=Sun..6=Sat) of the first column.
func (w WeekStart) offset() int {
	if w == WeekStartMonday {
		return 1
	}
	return 0
}

// DayCell is one cell of the 42-cell month grid.
type DayCell struct {
	// Day is the display day number within the cell's own month.
	Day int `json:"day"`

	// Date is the cell's resolved absolute date in YYYY-MM-DD form.
	// Spill-over cells resolve to the actual adjacent month, derived
	// from block position rather than from the day number.
	Date string `json:"date"`

	// OtherMonth marks leading/trailing cells that belong to the
	// previous or next month, shown for layout continuity.
	OtherMonth bool `json:"other_month"`

	// Today marks the cell whose resolved date equals the caller's today.
	Today bool `json:"today"`

	// HasEvents is true iff at least one event's date equals Date exactly.
	HasEvents bool `json:"has_events"`
}

// BuildGrid computes the 42-cell grid for the given year/month: leading
// days of the previous month, all days of the active month, then trailing
// days of the next month up to exactly GridCells.
//
// today supplies both the "today" marker and the timezone for date
// arithmetic; events contribute only their Date strings.
func BuildGrid(year int, month time.Month, events []model.Event, today time.Time, weekStart WeekStart) []DayCell {
	loc := today.Location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)

	// Number of leading spill-over cells, relative to the configured
	// first weekday column.
	lead := (int(first.Weekday()) - weekStart.offset() + 7) % 7

	eventDates := make(map[string]bool, len(events))
	for _, ev := range events {
		eventDates[ev.Date] = true
	}
	todayStr := today.Format(model.DateLayout)

	cells := make([]DayCell, 0, GridCells)
	for i := 0; i < GridCells; i++ {
		// AddDate normalizes across month/year boundaries, so leading
		// cells land in the previous month and trailing cells in the
		// next one without any day-number heuristics.
		date := first.AddDate(0, 0, i-lead)
		dateStr := date.Format(model.DateLayout)

		cells = append(cells, DayCell{
			Day:        date.Day(),
			Date:       dateStr,
			OtherMonth: date.Month() != month || date.Year() != year,
			Today:      dateStr == todayStr,
			HasEvents:  eventDates[dateStr],
		})
	}
	return cells
}
