package web

import (
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studycal/internal/calendar"
	"studycal/internal/clock"
	"studycal/internal/config"
	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/notify"
	"studycal/internal/remind"
	"studycal/internal/store"
)

// maxImportBody bounds an uploaded ICS payload.
const maxImportBody = 4 << 20

// Server provides the JSON API and the embedded widget UI.
type Server struct {
	cfg   *config.Config
	store *store.Store
	sched *remind.Scheduler
	feed  *notify.Feed
	clk   clock.Clock
	mux   *http.ServeMux

	// previewPath is where the snapshot pipeline writes its PNG; empty
	// when snapshots are disabled.
	previewPath string
}

// embeddedStatic contains the widget UI: month grid, entry form,
// upcoming panel, theme picker, service worker.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. feed may be nil when notifications are
// disabled; the /api/notifications endpoint then reports an empty list.
func NewServer(cfg *config.Config, st *store.Store, sched *remind.Scheduler, feed *notify.Feed, clk clock.Clock) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		sched: sched,
		feed:  feed,
		clk:   clk,
		mux:   http.NewServeMux(),
	}
	if cfg.Snapshot != nil {
		s.previewPath = cfg.Snapshot.Output
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health is always reachable without credentials.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="studycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/grid", s.handleGrid)
	s.mux.HandleFunc("/api/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/reminders", s.handleReminders)
	s.mux.HandleFunc("/api/notifications", s.handleNotifications)
	s.mux.HandleFunc("/api/export.ics", s.handleExport)
	s.mux.HandleFunc("/api/import", s.handleImport)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// Everything else is the embedded widget UI.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents lists the collection (GET) or appends one event (POST).
//
// A successful append persists the collection and resyncs pending
// reminders before the response is written, so no subsequent request can
// observe a half-updated state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.Events())

	case http.MethodPost:
		var ev model.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, "malformed event payload")
			return
		}
		created, err := s.store.Append(ev)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.sched.Resync(s.store.Events())
		writeJSON(w, http.StatusCreated, created)

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// gridResponse is the JSON response shape for /api/grid.
type gridResponse struct {
	Year      int                `json:"year"`
	Month     int                `json:"month"`
	Label     string             `json:"label"`
	WeekStart string             `json:"week_start"`
	DayNames  []string           `json:"day_names"`
	Cells     []calendar.DayCell `json:"cells"`
}

// handleGrid returns the 42-cell grid for the requested year/month.
//
// GET /api/grid?year=2024&month=2 (month is 1-based; defaults to the
// current month in the configured timezone).
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	now := s.clk.Now().In(loc)

	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), now.Year())
	month := parseIntDefault(q.Get("month"), int(now.Month()))
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1..12")
		return
	}

	weekStart := calendar.WeekStart(s.cfg.WeekStart)
	cells := calendar.BuildGrid(year, time.Month(month), s.store.Events(), now, weekStart)
	cursor := calendar.Cursor{Year: year, Month: time.Month(month)}

	writeJSON(w, http.StatusOK, gridResponse{
		Year:      year,
		Month:     month,
		Label:     cursor.Label(),
		WeekStart: s.cfg.WeekStart,
		DayNames:  dayNames(weekStart),
		Cells:     cells,
	})
}

func dayNames(weekStart calendar.WeekStart) []string {
	names := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if weekStart == calendar.WeekStartMonday {
		return append(names[1:], names[0])
	}
	return names
}

// handleUpcoming returns the next events, capped by ?limit (default from
// config).
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	now := s.clk.Now().In(loc)
	limit := parseIntDefault(r.URL.Query().Get("limit"), s.cfg.UpcomingLimit)

	upcoming := calendar.SelectUpcoming(s.store.Events(), now, limit)
	if upcoming == nil {
		upcoming = []model.Event{}
	}
	writeJSON(w, http.StatusOK, upcoming)
}

// settingsDTO is the JSON shape for /api/settings.
type settingsDTO struct {
	Theme  string `json:"theme"`
	Accent string `json:"accent"`
}

// handleSettings reads (GET) or updates (PUT) the persisted theme and
// accent color, falling back to config defaults when unset.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		theme, accent := s.store.Theme()
		if theme == "" {
			theme = s.cfg.Theme
		}
		if accent == "" {
			accent = s.cfg.Accent
		}
		writeJSON(w, http.StatusOK, settingsDTO{Theme: theme, Accent: accent})

	case http.MethodPut:
		var in settingsDTO
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "malformed settings payload")
			return
		}
		if err := s.store.SetTheme(in.Theme, in.Accent); err != nil {
			appLog.Error("settings save failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, in)

	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleReminders exposes the scheduler's pending set for the UI.
func (s *Server) handleReminders(w http.ResponseWriter, _ *http.Request) {
	pending := s.sched.Pending()
	if pending == nil {
		pending = []remind.Pending{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleNotifications returns recently delivered reminders; the UI polls
// this and raises platform notifications.
func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	items := []notify.Notification{}
	if s.feed != nil {
		items = s.feed.Recent()
	}
	writeJSON(w, http.StatusOK, items)
}

// handleExport serves the whole collection as an iCalendar file.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body, err := ics.Export(s.store.Events(), s.cfg.Location())
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="studycal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleImport ingests an ICS payload, either uploaded in the request
// body or fetched from ?url=, expands recurrences within the configured
// horizon and appends the result to the collection.
//
// POST /api/import[?url=https://...]
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if len(body) == 0 {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "provide an ICS body or ?url=")
			return
		}
		fetcher := ics.NewFetcher(icsCacheDir(s.cfg))
		body, err = fetcher.Fetch(r.Context(), url)
		if err != nil {
			appLog.Error("ics feed fetch failed", err)
			writeError(w, http.StatusBadGateway, "failed to fetch ICS feed")
			return
		}
	}

	loc := s.cfg.Location()
	now := s.clk.Now().In(loc)
	imported, err := ics.Import(body, ics.ImportConfig{
		Location:   loc,
		RangeStart: now.AddDate(0, 0, -1),
		RangeEnd:   now.AddDate(0, 0, s.cfg.HorizonDays),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse ICS payload")
		return
	}

	// Per-item validation: skip entries the store would reject so one
	// odd VEVENT does not sink the whole import.
	valid := imported[:0]
	for _, ev := range imported {
		if verr := model.Validate(ev); verr != nil {
			appLog.Debug("import: skipping invalid event", "title", ev.Title, "err", verr)
			continue
		}
		valid = append(valid, ev)
	}

	n, err := s.store.AppendBatch(valid)
	if err != nil {
		appLog.Error("import append failed", err)
		writeError(w, http.StatusInternalServerError, "failed to store imported events")
		return
	}
	s.sched.Resync(s.store.Events())

	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// icsCacheDir places the feed cache next to the event database.
func icsCacheDir(cfg *config.Config) string {
	if cfg.DataPath == "" {
		return "./var/ics-cache"
	}
	return cfg.DataPath + ".ics-cache"
}

// handlePreview serves the last snapshot PNG written by the capture
// pipeline. 404 when snapshots are disabled or none was taken yet.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewPath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.previewPath)
}

// staticFileServer serves the embedded widget UI from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// API paths never fall through to the static UI; a missing API
		// route must 404, not return HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
