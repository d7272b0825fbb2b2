// Package registry implements the Zone Registry: the concurrent,
// authoritative store of currently known screen zones.
package registry

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/telemetry"
)

// Registry is a concurrent store of zones keyed by id. All mutating
// operations serialize on a single lock; readers take the same lock
// briefly and return cloned data so no long-held references escape.
type Registry struct {
	mu     sync.RWMutex
	zones  map[string]core.Zone
	logger core.Logger
}

// New creates an empty Registry.
func New(logger core.Logger) *Registry {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Registry{
		zones:  make(map[string]core.Zone),
		logger: logger,
	}
}

// Register inserts a new zone or refreshes an existing one: fields are
// overwritten and last_seen is advanced, never moved backwards (a zero
// LastSeen is stamped with the current time). A zone with no id is
// assigned a stable generated one.
func (r *Registry) Register(z core.Zone) core.Zone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(z)
}

func (r *Registry) registerLocked(z core.Zone) core.Zone {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	if z.LastSeen.IsZero() {
		z.LastSeen = time.Now()
	}
	if prev, ok := r.zones[z.ID]; ok && prev.LastSeen.After(z.LastSeen) {
		z.LastSeen = prev.LastSeen
	}
	r.zones[z.ID] = z
	return z
}

// RegisterMany registers each zone in order, returning the stored copies
// (with generated ids filled in where needed).
func (r *Registry) RegisterMany(zones []core.Zone) []core.Zone {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Zone, 0, len(zones))
	for _, z := range zones {
		out = append(out, r.registerLocked(z))
	}
	r.recordSize()
	return out
}

// ReplaceAll atomically swaps the entire zone set. Zones not present in
// the new set are removed; this is the only operation that may shrink the
// set non-monotonically in one step.
func (r *Registry) ReplaceAll(zones []core.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]core.Zone, len(zones))
	now := time.Now()
	for _, z := range zones {
		if z.ID == "" {
			z.ID = uuid.NewString()
		}
		if z.LastSeen.IsZero() {
			z.LastSeen = now
		}
		next[z.ID] = z
	}
	r.zones = next
	r.recordSize()

	r.logger.Info("registry replaced", map[string]interface{}{
		"count": len(next),
	})
}

// Remove deletes a zone by id, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.zones[id]
	delete(r.zones, id)
	return existed
}

// Get returns a clone of the zone with the given id, if present.
func (r *Registry) Get(id string) (core.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	return z, ok
}

// All returns a clone of every zone currently stored.
func (r *Registry) All() []core.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	return out
}

// Count returns the number of zones currently stored.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// FindByLabel returns every zone whose label contains s, case-insensitive.
func (r *Registry) FindByLabel(s string) []core.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(s)
	var out []core.Zone
	for _, z := range r.zones {
		if strings.Contains(strings.ToLower(z.Label), needle) {
			out = append(out, z)
		}
	}
	return out
}

// FindByKind returns every zone of the given kind.
func (r *Registry) FindByKind(k core.ZoneKind) []core.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Zone
	for _, z := range r.zones {
		if z.Kind == k {
			out = append(out, z)
		}
	}
	return out
}

// FindAtPoint returns the smallest zone containing (x, y), breaking ties by
// highest confidence then most recent last_seen.
func (r *Registry) FindAtPoint(x, y float64) (core.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best core.Zone
	found := false
	for _, z := range r.zones {
		if !z.Bounds.Contains(x, y) {
			continue
		}
		if !found || betterMatch(z, best) {
			best = z
			found = true
		}
	}
	return best, found
}

func betterMatch(candidate, current core.Zone) bool {
	if candidate.Bounds.Area() != current.Bounds.Area() {
		return candidate.Bounds.Area() < current.Bounds.Area()
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	return candidate.LastSeen.After(current.LastSeen)
}

// NearestTo returns the zone whose bounds edge is closest to (x, y).
func (r *Registry) NearestTo(x, y float64) (core.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best core.Zone
	bestDist := math.Inf(1)
	found := false
	for _, z := range r.zones {
		d := distanceToRect(x, y, z.Bounds)
		if !found || d < bestDist {
			best, bestDist, found = z, d, true
		}
	}
	return best, found
}

func distanceToRect(x, y float64, r core.Rect) float64 {
	dx := math.Max(r.X-x, math.Max(0, x-(r.X+r.W)))
	dy := math.Max(r.Y-y, math.Max(0, y-(r.Y+r.H)))
	return math.Hypot(dx, dy)
}

// ExpireStale removes zones whose last_seen is older than maxAge relative
// to now, returning the removed ids.
func (r *Registry) ExpireStale(now time.Time, maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, z := range r.zones {
		if now.Sub(z.LastSeen) > maxAge {
			removed = append(removed, id)
			delete(r.zones, id)
		}
	}
	if len(removed) > 0 {
		r.recordSize()
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.IncrCounter(telemetry.MetricRegistryExpired, map[string]string{"count": itoa(len(removed))})
		}
		r.logger.Debug("expired stale zones", map[string]interface{}{
			"count": len(removed),
		})
	}
	sort.Strings(removed)
	return removed
}

func (r *Registry) recordSize() {
	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.RecordGauge(telemetry.MetricRegistrySize, float64(len(r.zones)), nil)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
