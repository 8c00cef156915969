package calendar

import (
	"fmt"
	"time"
)

// Cursor is the active year/month shown in the grid. It is reset to the
// current date at startup and never persisted.
type Cursor struct {
	Year  int
	Month time.Month
}

// CursorAt returns a cursor positioned on t's year and month.
func CursorAt(t time.Time) Cursor {
	return Cursor{Year: t.Year(), Month: t.Month()}
}

// Next advances the cursor by one month, rolling the year forward at
// December.
func (c *Cursor) Next() {
	if c.Month == time.December {
		c.Month = time.January
		c.Year++
		return
	}
	c.Month++
}

// Previous retreats the cursor by one month, rolling the year backward at
// January.
func (c *Cursor) Previous() {
	if c.Month == time.January {
		c.Month = time.December
		c.Year--
		return
	}
	c.Month--
}

// Label renders the cursor for display, e.g. "February 2024".
func (c Cursor) Label() string {
	return fmt.Sprintf("%s %d", c.Month, c.Year)
}
