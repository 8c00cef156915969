package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"studycal/internal/model"
)

// defaultEventDuration is used for exported VEVENTs; stored events carry
// only a start instant.
const defaultEventDuration = time.Hour

// Export serializes the event collection as an iCalendar payload so other
// calendar applications can subscribe to or import the study plan.
//
// Events whose date/time cannot be parsed are skipped; export never fails
// on a single bad entry.
func Export(events []model.Event, loc *time.Location) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//studycal//EN")

	exported := 0
	for _, ev := range events {
		start, err := ev.Instant(loc)
		if err != nil {
			continue
		}

		ve := cal.AddEvent(fmt.Sprintf("%s@studycal", ev.ID))
		ve.SetDtStampTime(time.Now().In(loc))
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(defaultEventDuration))
		ve.SetSummary(ev.Title)
		if ev.Notes != "" {
			ve.SetDescription(ev.Notes)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Type))
		exported++
	}

	if exported == 0 && len(events) > 0 {
		return nil, fmt.Errorf("ics: no exportable events out of %d", len(events))
	}
	return []byte(cal.Serialize()), nil
}
