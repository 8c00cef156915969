package remind

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"studycal/internal/clock"
	appLog "studycal/internal/log"
	"studycal/internal/model"
)

// DefaultLead is how long before an event's instant its reminder fires.
const DefaultLead = 15 * time.Minute

// Notifier delivers reminders. Implementations must treat
// RequestPermission as idempotent; calling it when already granted or
// denied is safe.
type Notifier interface {
	RequestPermission(ctx context.Context) error
	Notify(ctx context.Context, title, body string) error
}

// Timer is the handle of a scheduled one-shot delivery.
type Timer interface {
	Stop() bool
}

// TimerFactory arranges fn to run once after d. The default wraps
// time.AfterFunc; tests inject a manual factory.
type TimerFactory func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Pending describes one scheduled, not-yet-fired reminder.
type Pending struct {
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	FireAt  time.Time `json:"fire_at"`
}

// Scheduler owns the pending reminder timers for the event collection.
// Resync is the only way in: it cancels everything and re-derives the
// pending set from scratch, so it is safe to call on every mutation and
// on a periodic tick.
//
// Timers are best-effort and in-memory only. If the process is not
// running at fire time, the reminder is simply never delivered; there is
// no persistence and no catch-up on restart.
type Scheduler struct {
	mu       sync.Mutex
	clk      clock.Clock
	notifier Notifier
	lead     time.Duration
	newTimer TimerFactory

	pending map[string]*pendingTimer
}

type pendingTimer struct {
	info  Pending
	timer Timer
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLead overrides the default reminder lead time.
func WithLead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lead = d
		}
	}
}

// WithTimerFactory replaces the timer implementation (used in tests).
func WithTimerFactory(f TimerFactory) Option {
	return func(s *Scheduler) {
		if f != nil {
			s.newTimer = f
		}
	}
}

// New constructs a Scheduler delivering through notifier.
func New(clk clock.Clock, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		clk:      clk,
		notifier: notifier,
		lead:     DefaultLead,
		newTimer: afterFunc,
		pending:  make(map[string]*pendingTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resync cancels all outstanding reminders and schedules one delivery per
// event whose fire time (instant minus lead) is still strictly in the
// future. Events already inside the lead window, or in the past, are
// silently skipped. Calling Resync twice with the same events never
// duplicates deliveries.
func (s *Scheduler) Resync(events []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAllLocked()

	now := s.clk.Now()
	scheduled := 0
	for _, ev := range events {
		at, err := ev.Instant(now.Location())
		if err != nil {
			appLog.Debug("remind: skipping event with bad instant", "id", ev.ID, "err", err)
			continue
		}
		fireAt := at.Add(-s.lead)
		if !fireAt.After(now) {
			continue
		}

		ev := ev
		pt := &pendingTimer{
			info: Pending{EventID: ev.ID, Title: ev.Title, FireAt: fireAt},
		}
		pt.timer = s.newTimer(fireAt.Sub(now), func() {
			s.deliver(ev)
		})
		s.pending[ev.ID] = pt
		scheduled++
	}

	appLog.Info("reminders resynced", "scheduled", scheduled, "events", len(events))
}

// CancelAll stops every pending reminder.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() {
	for id, pt := range s.pending {
		pt.timer.Stop()
		delete(s.pending, id)
	}
}

// Pending returns the outstanding reminders ordered by fire time.
func (s *Scheduler) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pending, 0, len(s.pending))
	for _, pt := range s.pending {
		out = append(out, pt.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// deliver runs on the timer goroutine when a reminder fires.
func (s *Scheduler) deliver(ev model.Event) {
	s.mu.Lock()
	delete(s.pending, ev.ID)
	s.mu.Unlock()

	title := Title(ev.Type)
	body := fmt.Sprintf("%s starts in %d minutes", ev.Title, int(s.lead.Minutes()))

	if err := s.notifier.Notify(context.Background(), title, body); err != nil {
		appLog.Error("reminder delivery failed", err, "event_id", ev.ID)
		return
	}
	appLog.Info("reminder delivered", "event_id", ev.ID, "title", title)
}

// Title derives the notification title from the event type: the
// capitalized category suffixed with "Reminder", e.g. "Exam Reminder".
func Title(t model.EventType) string {
	name := string(t)
	if name == "" {
		name = string(model.TypeReminder)
	}
	return strings.ToUpper(name[:1]) + name[1:] + " Reminder"
}
