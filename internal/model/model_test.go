package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := Event{
		Title: "Read chapter 5",
		Type:  TypeAssignment,
		Date:  "2025-04-01",
		Time:  "18:00",
	}
	assert.NoError(t, Validate(valid))

	cases := map[string]func(Event) Event{
		"empty title":  func(e Event) Event { e.Title = ""; return e },
		"empty date":   func(e Event) Event { e.Date = ""; return e },
		"empty time":   func(e Event) Event { e.Time = ""; return e },
		"bad date":     func(e Event) Event { e.Date = "01.04.2025"; return e },
		"bad time":     func(e Event) Event { e.Time = "6pm"; return e },
		"unknown type": func(e Event) Event { e.Type = "holiday"; return e },
	}
	for name, mutate := range cases {
		assert.Error(t, Validate(mutate(valid)), name)
	}
}

func TestInstant(t *testing.T) {
	ev := Event{Date: "2025-04-01", Time: "18:30"}

	at, err := ev.Instant(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.April, 1, 18, 30, 0, 0, time.UTC), at)

	// Nil location means local time.
	at, err = ev.Instant(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Local, at.Location())

	_, err = Event{Date: "2025-13-40", Time: "18:30"}.Instant(time.UTC)
	assert.Error(t, err)
}
