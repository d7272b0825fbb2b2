package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/platform"
)

func testSettings(t *testing.T) *core.Settings {
	t.Helper()
	s, err := core.NewSettings(core.WithTargetFPS(5), core.WithBufferSeconds(1))
	require.NoError(t, err)
	return s
}

func TestCaptureOnceFillsRing(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	adapter.PushFrame(&core.Frame{Width: 800, Height: 600, Timestamp: time.Unix(1, 0)})

	loop := New(adapter, testSettings(t), nil)
	f, err := loop.CaptureOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, f, loop.Latest())
}

func TestRingEvictsOldestWhenFull(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	settings, err := core.NewSettings(core.WithTargetFPS(2), core.WithBufferSeconds(1))
	require.NoError(t, err)
	loop := New(adapter, settings, nil)

	for i := 0; i < 5; i++ {
		adapter.PushFrame(&core.Frame{Timestamp: time.Unix(int64(i), 0)})
		_, err := loop.CaptureOnce(context.Background())
		require.NoError(t, err)
	}

	all := loop.Range(time.Unix(0, 0), time.Unix(100, 0))
	assert.LessOrEqual(t, len(all), settings.RingCapacity())
	assert.Equal(t, time.Unix(4, 0), loop.Latest().Timestamp)
}

func TestRangeFiltersByTimestamp(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	settings, err := core.NewSettings(core.WithTargetFPS(10), core.WithBufferSeconds(2))
	require.NoError(t, err)
	loop := New(adapter, settings, nil)

	for i := 0; i < 10; i++ {
		adapter.PushFrame(&core.Frame{Timestamp: time.Unix(int64(i), 0)})
		_, err := loop.CaptureOnce(context.Background())
		require.NoError(t, err)
	}

	got := loop.Range(time.Unix(3, 0), time.Unix(5, 0))
	require.Len(t, got, 3)
	assert.Equal(t, time.Unix(3, 0), got[0].Timestamp)
	assert.Equal(t, time.Unix(5, 0), got[2].Timestamp)
}

func TestLatestNilWhenEmpty(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	loop := New(adapter, testSettings(t), nil)
	assert.Nil(t, loop.Latest())
}
