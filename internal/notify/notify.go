package notify

import (
	"context"
	"sync"
	"time"

	appLog "studycal/internal/log"
)

// Notification is one delivered reminder, as exposed to the web UI.
type Notification struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Feed is the default delivery backend: it logs each reminder and keeps
// a bounded ring of recent deliveries that the web UI polls and turns
// into platform notifications.
type Feed struct {
	mu    sync.Mutex
	max   int
	items []Notification
}

// NewFeed returns a feed retaining at most max deliveries.
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 20
	}
	return &Feed{max: max}
}

// RequestPermission always grants; the feed has no platform gate.
func (f *Feed) RequestPermission(_ context.Context) error {
	return nil
}

// Notify records the delivery and logs it.
func (f *Feed) Notify(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, Notification{
		Title:       title,
		Body:        body,
		DeliveredAt: time.Now(),
	})
	if len(f.items) > f.max {
		f.items = f.items[len(f.items)-f.max:]
	}

	appLog.Info("notification", "title", title, "body", body)
	return nil
}

// Recent returns the retained deliveries, oldest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Nop silently drops deliveries. Used when notifications are disabled in
// config or permission was denied; scheduling still runs unaffected.
type Nop struct{}

func (Nop) RequestPermission(_ context.Context) error { return nil }

func (Nop) Notify(_ context.Context, _, _ string) error { return nil }
