package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/registry"
)

func TestSampleEmitsEnterThenHover(t *testing.T) {
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})

	tracker := New(zones, 100, nil)
	base := time.Unix(0, 0)

	events := tracker.Sample(5, 5, base)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventEnter, events[0].Kind)

	events = tracker.Sample(5, 5, base.Add(150*time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, core.EventHover, events[0].Kind)
	assert.GreaterOrEqual(t, events[0].DwellMs, int64(100))
}

func TestSampleEmitsExitWhenCursorLeaves(t *testing.T) {
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})

	tracker := New(zones, 500, nil)
	base := time.Unix(0, 0)
	tracker.Sample(5, 5, base)

	events := tracker.Sample(500, 500, base.Add(10*time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, core.EventExit, events[0].Kind)
	assert.Empty(t, tracker.CurrentZone())
}

func TestSampleEmitsExitWhenZoneDisappears(t *testing.T) {
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})

	tracker := New(zones, 500, nil)
	base := time.Unix(0, 0)
	tracker.Sample(5, 5, base)

	zones.Remove("z1")

	events := tracker.Sample(5, 5, base.Add(10*time.Millisecond))
	require.Len(t, events, 1)
	assert.Equal(t, core.EventExit, events[0].Kind)
}

func TestSampleNoEventWhenNeverEntersAZone(t *testing.T) {
	zones := registry.New(nil)
	tracker := New(zones, 500, nil)

	events := tracker.Sample(500, 500, time.Unix(0, 0))
	assert.Empty(t, events)
}

func TestEventTimestampsMonotonic(t *testing.T) {
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})
	tracker := New(zones, 50, nil)

	e1 := tracker.Sample(5, 5, time.Unix(10, 0))
	e2 := tracker.Sample(500, 500, time.Unix(5, 0)) // out of order

	require.Len(t, e1, 1)
	require.Len(t, e2, 1)
	assert.False(t, e2[0].Timestamp.Before(e1[0].Timestamp))
}

func TestTieBreakSmallestAreaThenConfidence(t *testing.T) {
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "outer", Bounds: core.Rect{X: 0, Y: 0, W: 100, H: 100}, Confidence: 0.9})
	zones.Register(core.Zone{ID: "inner", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.1})

	tracker := New(zones, 500, nil)
	events := tracker.Sample(5, 5, time.Unix(0, 0))
	require.Len(t, events, 1)
	assert.Equal(t, "inner", events[0].ZoneID)
}
