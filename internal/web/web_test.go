package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycal/internal/clock"
	"studycal/internal/config"
	"studycal/internal/model"
	"studycal/internal/notify"
	"studycal/internal/remind"
	"studycal/internal/store"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *store.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.DataPath = filepath.Join(t.TempDir(), "studycal.db")
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()

	st, err := store.Open(cfg.DataPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFixed(testNow)
	feed := notify.NewFeed(5)
	sched := remind.New(clk, feed, remind.WithLead(cfg.Lead()))

	srv := NewServer(cfg, st, sched, feed, clk)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEvents_AppendAndList(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/events", model.Event{
		Title: "Physics exam",
		Type:  model.TypeExam,
		Date:  "2025-03-12",
		Time:  "14:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Event
	decodeJSON(t, resp, &created)
	assert.NotEmpty(t, created.ID)

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	var events []model.Event
	decodeJSON(t, resp, &events)
	require.Len(t, events, 1)
	assert.Equal(t, "Physics exam", events[0].Title)
}

func TestEvents_RejectsInvalid(t *testing.T) {
	ts, st := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/events", model.Event{
		Title: "",
		Type:  model.TypeExam,
		Date:  "2025-03-12",
		Time:  "14:00",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, st.Events())
}

func TestGrid(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/events", model.Event{
		Title: "Essay due",
		Type:  model.TypeAssignment,
		Date:  "2025-03-15",
		Time:  "23:59",
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/grid?year=2025&month=3")
	require.NoError(t, err)

	var grid struct {
		Year     int    `json:"year"`
		Month    int    `json:"month"`
		Label    string `json:"label"`
		DayNames []string `json:"day_names"`
		Cells    []struct {
			Date       string `json:"date"`
			OtherMonth bool   `json:"other_month"`
			Today      bool   `json:"today"`
			HasEvents  bool   `json:"has_events"`
		} `json:"cells"`
	}
	decodeJSON(t, resp, &grid)

	assert.Equal(t, "March 2025", grid.Label)
	require.Len(t, grid.Cells, 42)
	require.Len(t, grid.DayNames, 7)
	assert.Equal(t, "Sun", grid.DayNames[0])

	var today, marked int
	for _, c := range grid.Cells {
		if c.Today {
			today++
			assert.Equal(t, "2025-03-10", c.Date)
		}
		if c.HasEvents {
			marked++
			assert.Equal(t, "2025-03-15", c.Date)
		}
	}
	assert.Equal(t, 1, today)
	assert.Equal(t, 1, marked)
}

func TestGrid_BadMonth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/grid?year=2025&month=13")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpcoming(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for _, ev := range []model.Event{
		{Title: "past", Type: model.TypeReminder, Date: "2025-03-09", Time: "10:00"},
		{Title: "later", Type: model.TypeReminder, Date: "2025-03-11", Time: "10:00"},
		{Title: "sooner", Type: model.TypeReminder, Date: "2025-03-10", Time: "15:00"},
	} {
		resp := postJSON(t, ts.URL+"/api/events", ev)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/upcoming")
	require.NoError(t, err)
	var upcoming []model.Event
	decodeJSON(t, resp, &upcoming)

	require.Len(t, upcoming, 2)
	assert.Equal(t, "sooner", upcoming[0].Title)
	assert.Equal(t, "later", upcoming[1].Title)
}

func TestSettings_RoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	// Defaults come from config until a theme is saved.
	resp, err := http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	var s settingsDTO
	decodeJSON(t, resp, &s)
	assert.Equal(t, "system", s.Theme)
	assert.Equal(t, "#007aff", s.Accent)

	body, _ := json.Marshal(settingsDTO{Theme: "dark", Accent: "#ff9500"})
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	decodeJSON(t, resp, &s)
	assert.Equal(t, "dark", s.Theme)
	assert.Equal(t, "#ff9500", s.Accent)
}

func TestExportICS(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/events", model.Event{
		Title: "Final exam",
		Type:  model.TypeExam,
		Date:  "2025-05-20",
		Time:  "09:00",
	})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/export.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SUMMARY:Final exam")
}

func TestImportICS(t *testing.T) {
	ts, st := newTestServer(t, nil)

	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:imp@test",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250320T100000Z",
		"SUMMARY:Imported exam",
		"CATEGORIES:exam",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n") + "\r\n"

	resp, err := http.Post(ts.URL+"/api/import", "text/calendar", strings.NewReader(ics))
	require.NoError(t, err)
	var out map[string]int
	decodeJSON(t, resp, &out)
	assert.Equal(t, 1, out["imported"])

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Imported exam", events[0].Title)
	assert.Equal(t, model.TypeExam, events[0].Type)
	assert.Equal(t, "2025-03-20", events[0].Date)
}

func TestAPIUnknownPathIs404(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "study", Password: "secret"}
	})

	// /health stays open.
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("study", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
