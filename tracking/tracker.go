// Package tracking converts cursor samples into spatial ENTER/EXIT/HOVER
// events against the Zone Registry.
package tracking

import (
	"sync"
	"time"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/registry"
)

// Tracker maintains the current zone the cursor occupies and its dwell
// timer. It only records and publishes events; it never acts on them.
type Tracker struct {
	zones          *registry.Registry
	hoverThreshold time.Duration
	logger         core.Logger

	mu           sync.Mutex
	currentZone  string
	dwellStart   time.Time
	hoverEmitted bool
	lastEventAt  time.Time
}

// New builds a Tracker reading zones from the given registry.
func New(zones *registry.Registry, hoverThresholdMs int, logger core.Logger) *Tracker {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Tracker{
		zones:          zones,
		hoverThreshold: time.Duration(hoverThresholdMs) * time.Millisecond,
		logger:         logger,
	}
}

// CurrentZone returns the id of the zone the cursor currently occupies, or
// "" if none.
func (t *Tracker) CurrentZone() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentZone
}

// Sample processes one cursor position at time ts, returning any events it
// produces. Event order is strictly monotonic in time across calls.
func (t *Tracker) Sample(x, y float64, ts time.Time) []core.SpatialEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastEventAt.IsZero() && ts.Before(t.lastEventAt) {
		ts = t.lastEventAt
	}

	var events []core.SpatialEvent

	if t.currentZone != "" {
		if _, stillExists := t.zones.Get(t.currentZone); !stillExists {
			events = append(events, t.exit(t.currentZone, x, y, ts))
		}
	}

	if t.currentZone == "" {
		if hit, found := t.zones.FindAtPoint(x, y); found {
			events = append(events, t.enter(hit.ID, x, y, ts))
		}
		return events
	}

	zone, _ := t.zones.Get(t.currentZone)
	if !zone.Bounds.Contains(x, y) {
		events = append(events, t.exit(t.currentZone, x, y, ts))
		return events
	}

	if !t.hoverEmitted && ts.Sub(t.dwellStart) >= t.hoverThreshold {
		t.hoverEmitted = true
		events = append(events, t.stamp(core.SpatialEvent{
			Kind:    core.EventHover,
			ZoneID:  t.currentZone,
			X:       x,
			Y:       y,
			DwellMs: ts.Sub(t.dwellStart).Milliseconds(),
		}, ts))
	}

	return events
}

func (t *Tracker) enter(id string, x, y float64, ts time.Time) core.SpatialEvent {
	t.currentZone = id
	t.dwellStart = ts
	t.hoverEmitted = false
	return t.stamp(core.SpatialEvent{Kind: core.EventEnter, ZoneID: id, X: x, Y: y}, ts)
}

func (t *Tracker) exit(id string, x, y float64, ts time.Time) core.SpatialEvent {
	t.currentZone = ""
	t.hoverEmitted = false
	return t.stamp(core.SpatialEvent{Kind: core.EventExit, ZoneID: id, X: x, Y: y}, ts)
}

func (t *Tracker) stamp(e core.SpatialEvent, ts time.Time) core.SpatialEvent {
	e.Timestamp = ts
	t.lastEventAt = ts
	return e
}
