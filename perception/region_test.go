package perception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
)

func TestRegionAnalyzerReturnsNoZonesOnEmptyBbox(t *testing.T) {
	s, err := core.NewSettings()
	require.NoError(t, err)
	a := NewRegionAnalyzer(s)

	frame := solidFrame(64, 64, 50, time.Now(), 0, 0)
	zones := a.Analyze(frame, core.Rect{})
	assert.Nil(t, zones)
}

func TestRegionAnalyzerZonesStayWithinBbox(t *testing.T) {
	s, err := core.NewSettings(core.WithBudget(30, 5, 3))
	require.NoError(t, err)
	a := NewRegionAnalyzer(s)
	a.minConfidence = 0 // accept every candidate for this boundary check

	base := solidFrame(128, 128, 0, time.Now(), 0, 0)
	frame := patchFrame(base, 20, 20, 60, 60, 255)
	bbox := core.Rect{X: 0, Y: 0, W: 80, H: 80}

	zones := a.Analyze(frame, bbox)
	for _, z := range zones {
		assert.GreaterOrEqual(t, z.Bounds.X, bbox.X)
		assert.GreaterOrEqual(t, z.Bounds.Y, bbox.Y)
		assert.LessOrEqual(t, z.Bounds.X+z.Bounds.W, bbox.X+bbox.W)
		assert.LessOrEqual(t, z.Bounds.Y+z.Bounds.H, bbox.Y+bbox.H)
	}
}

func TestRegionAnalyzerDropsLowConfidence(t *testing.T) {
	s, err := core.NewSettings()
	require.NoError(t, err)
	a := NewRegionAnalyzer(s)
	a.minConfidence = 1.1 // impossible to satisfy

	base := solidFrame(64, 64, 0, time.Now(), 0, 0)
	frame := patchFrame(base, 0, 0, 32, 32, 255)

	zones := a.Analyze(frame, core.Rect{X: 0, Y: 0, W: 64, H: 64})
	assert.Empty(t, zones)
}

func TestRegionAnalyzerNilFrameReturnsEmpty(t *testing.T) {
	s, err := core.NewSettings()
	require.NoError(t, err)
	a := NewRegionAnalyzer(s)
	assert.Nil(t, a.Analyze(nil, core.Rect{X: 0, Y: 0, W: 10, H: 10}))
}
