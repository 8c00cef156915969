package calendar

import (
	"sort"
	"time"

	appLog "studycal/internal/log"
	"studycal/internal/model"
)

// DefaultUpcomingLimit caps the upcoming-events panel when the caller
// passes a non-positive limit.
const DefaultUpcomingLimit = 5

// SelectUpcoming filters events to those whose instant is at or after now
// (the boundary is inclusive), orders them ascending by instant with a
// stable tie-break on collection order, and truncates to limit.
//
// Events with an unparseable date/time are logged and skipped; the stored
// collection is never assumed clean.
func SelectUpcoming(events []model.Event, now time.Time, limit int) []model.Event {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}

	type candidate struct {
		ev model.Event
		at time.Time
	}

	candidates := make([]candidate, 0, len(events))
	for _, ev := range events {
		at, err := ev.Instant(now.Location())
		if err != nil {
			appLog.Debug("upcoming: skipping event with bad instant", "id", ev.ID, "err", err)
			continue
		}
		if at.Before(now) {
			continue
		}
		candidates = append(candidates, candidate{ev: ev, at: at})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].at.Before(candidates[j].at)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]model.Event, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.ev)
	}
	return out
}
