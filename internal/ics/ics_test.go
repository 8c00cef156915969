package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycal/internal/model"
)

// icsBody joins lines with CRLF as the iCalendar format requires.
func icsBody(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestExport(t *testing.T) {
	events := []model.Event{
		{ID: "e1", Title: "Algebra homework", Type: model.TypeAssignment, Date: "2025-04-01", Time: "09:30", Notes: "chapters 3-4"},
		{ID: "e2", Title: "Physics exam", Type: model.TypeExam, Date: "2025-04-10", Time: "14:00"},
	}

	body, err := Export(events, time.UTC)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "SUMMARY:Algebra homework")
	assert.Contains(t, out, "SUMMARY:Physics exam")
	assert.Contains(t, out, "CATEGORIES:assignment")
	assert.Contains(t, out, "DESCRIPTION:chapters 3-4")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
}

func TestExport_SkipsUnparseableEvents(t *testing.T) {
	events := []model.Event{
		{ID: "ok", Title: "Fine", Type: model.TypeReminder, Date: "2025-04-01", Time: "09:30"},
		{ID: "bad", Title: "Broken", Type: model.TypeReminder, Date: "nope", Time: "09:30"},
	}

	body, err := Export(events, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(body), "BEGIN:VEVENT"))
}

func TestImport_SingleEvent(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:one@test",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250310T090000Z",
		"SUMMARY:Physics exam",
		"CATEGORIES:EXAM",
		"DESCRIPTION:room 204",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	got, err := Import(body, ImportConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "Physics exam", got[0].Title)
	assert.Equal(t, model.TypeExam, got[0].Type)
	assert.Equal(t, "2025-03-10", got[0].Date)
	assert.Equal(t, "09:00", got[0].Time)
	assert.Equal(t, "room 204", got[0].Notes)
}

func TestImport_ExpandsWeeklyRecurrence(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:weekly@test",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250303T080000Z",
		"RRULE:FREQ=WEEKLY;COUNT=5",
		"SUMMARY:Study group",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	got, err := Import(body, ImportConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Weekly Mondays starting 2025-03-03.
	assert.Equal(t, "2025-03-03", got[0].Date)
	assert.Equal(t, "2025-03-10", got[1].Date)
	assert.Equal(t, "2025-03-31", got[4].Date)
	for _, ev := range got {
		assert.Equal(t, "Study group", ev.Title)
		assert.Equal(t, "08:00", ev.Time)
		// No CATEGORIES: imported as plain reminders.
		assert.Equal(t, model.TypeReminder, ev.Type)
	}
}

func TestImport_WindowBoundsRecurrence(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:daily@test",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250301T070000Z",
		"RRULE:FREQ=DAILY",
		"SUMMARY:Morning review",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	got, err := Import(body, ImportConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.March, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	// An unbounded daily rule yields exactly the window's days.
	assert.Len(t, got, 7)
}

func TestImport_EmptyBody(t *testing.T) {
	_, err := Import(nil, ImportConfig{
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}
