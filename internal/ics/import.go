package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "studycal/internal/log"
	"studycal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ImportConfig controls how an ICS payload is turned into study events.
type ImportConfig struct {
	// Location is the timezone events are stored in. Nil means local.
	Location *time.Location

	// RangeStart / RangeEnd bound recurrence expansion. Occurrences
	// outside the window are not imported.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps expansion of a single recurring VEVENT.
	MaxOccurrencesPerEvent int
}

// Import parses an ICS payload into events ready for the store. Recurring
// VEVENTs are expanded into one concrete event per occurrence within the
// configured window; non-recurring VEVENTs outside the window are kept,
// matching what a user expects when importing a one-off file.
//
// Individual VEVENTs that fail to parse are logged and skipped.
func Import(body []byte, cfg ImportConfig) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("ics: RangeEnd is before RangeStart")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		evs, perr := importVEvent(ve, cfg)
		if perr != nil {
			appLog.Error("ics: vevent import failed", perr, "uid", veUID(ve))
			continue
		}
		events = append(events, evs...)
	}

	appLog.Info("ics import completed", "vevents", len(cal.Events()), "events", len(events))
	return events, nil
}

func importVEvent(ve *ical.VEvent, cfg ImportConfig) ([]model.Event, error) {
	start, err := ve.GetStartAt()
	if err != nil {
		return nil, err
	}

	summary := ""
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		summary = p.Value
	}
	if summary == "" {
		return nil, errors.New("missing SUMMARY")
	}

	notes := ""
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		notes = p.Value
	}

	evType := typeFromCategories(ve)

	var starts []time.Time
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		starts, err = expandRRule(start, p.Value, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		starts = []time.Time{start}
	}

	out := make([]model.Event, 0, len(starts))
	for _, at := range starts {
		local := at.In(cfg.Location)
		out = append(out, model.Event{
			Title: summary,
			Type:  evType,
			Date:  local.Format(model.DateLayout),
			Time:  local.Format(model.TimeLayout),
			Notes: notes,
		})
	}
	return out, nil
}

// expandRRule materializes a recurring event's start times inside the
// import window, capped to avoid runaway rules.
func expandRRule(start time.Time, raw string, cfg ImportConfig) ([]time.Time, error) {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, err
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)

	rangeStart := cfg.RangeStart.In(start.Location())
	rangeEnd := cfg.RangeEnd.In(start.Location())

	times := set.Between(rangeStart, rangeEnd, true)
	if len(times) > cfg.MaxOccurrencesPerEvent {
		appLog.Info("ics: recurrence truncated", "rrule", raw, "cap", cfg.MaxOccurrencesPerEvent)
		times = times[:cfg.MaxOccurrencesPerEvent]
	}
	return times, nil
}

// typeFromCategories maps the first recognized CATEGORIES value onto an
// event type, defaulting to reminder.
func typeFromCategories(ve *ical.VEvent) model.EventType {
	p := ve.GetProperty(ical.ComponentPropertyCategories)
	if p == nil {
		return model.TypeReminder
	}
	for _, raw := range strings.Split(p.Value, ",") {
		switch model.EventType(strings.ToLower(strings.TrimSpace(raw))) {
		case model.TypeAssignment:
			return model.TypeAssignment
		case model.TypeExam:
			return model.TypeExam
		case model.TypeReminder:
			return model.TypeReminder
		}
	}
	return model.TypeReminder
}

func veUID(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}
