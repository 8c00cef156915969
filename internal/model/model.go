package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout and TimeLayout are the storage formats for Event.Date and
// Event.Time. Both are interpreted in the configured display timezone;
// no timezone is stored per event.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// EventType is the category of a study event. It drives visual grouping
// and the reminder title, never scheduling logic.
type EventType string

const (
	TypeAssignment EventType = "assignment"
	TypeExam       EventType = "exam"
	TypeReminder   EventType = "reminder"
)

// Event is a single dated/timed study item.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title" validate:"required"`
	Type  EventType `json:"type" validate:"required,oneof=assignment exam reminder"`
	Date  string    `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string    `json:"time" validate:"required,datetime=15:04"`
	Notes string    `json:"notes,omitempty"`
}

var validate = validator.New()

// Validate checks the required-field and format constraints on an Event.
// A rejected Event must never enter the stored collection.
func Validate(ev Event) error {
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	return nil
}

// Instant combines Date and Time into a single wall-clock instant in loc.
// If loc is nil, the local timezone is used.
func (e Event) Instant(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+"T"+TimeLayout, e.Date+"T"+e.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %q has unparseable date/time: %w", e.ID, err)
	}
	return t, nil
}
