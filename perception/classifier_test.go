package perception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
)

func solidFrame(w, h int, gray byte, ts time.Time, cx, cy int) *core.Frame {
	pixels := make([]byte, w*h*4)
	for i := 0; i < len(pixels); i += 4 {
		pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = gray, gray, gray, 255
	}
	return &core.Frame{Pixels: pixels, Width: w, Height: h, Timestamp: ts, CursorX: cx, CursorY: cy}
}

func patchFrame(base *core.Frame, x0, y0, x1, y1 int, gray byte) *core.Frame {
	f := *base
	f.Pixels = append([]byte(nil), base.Pixels...)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			idx := (y*f.Width + x) * 4
			f.Pixels[idx], f.Pixels[idx+1], f.Pixels[idx+2] = gray, gray, gray
		}
	}
	return &f
}

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	s, err := core.NewSettings()
	require.NoError(t, err)
	return New(s)
}

func TestClassifyIdleOnIdenticalFrames(t *testing.T) {
	c := testClassifier(t)
	base := solidFrame(64, 64, 100, time.Unix(0, 0), 0, 0)
	curr := solidFrame(64, 64, 100, time.Unix(10, 0), 0, 0)

	verdict, diff := c.Classify(base, curr)
	assert.Equal(t, VerdictIdle, verdict)
	assert.Zero(t, diff.Percent)
}

func TestClassifyContentChangeOnLargeDiff(t *testing.T) {
	c := testClassifier(t)
	base := solidFrame(64, 64, 0, time.Unix(0, 0), 0, 0)
	curr := solidFrame(64, 64, 255, time.Unix(10, 0), 0, 0)

	verdict, _ := c.Classify(base, curr)
	assert.Equal(t, VerdictContentChange, verdict)
}

func TestClassifyMinorUpdateOnSmallPatch(t *testing.T) {
	c := testClassifier(t)
	base := solidFrame(160, 160, 0, time.Unix(0, 0), 0, 0)
	curr := patchFrame(base, 0, 0, 32, 32, 255)
	curr.Timestamp = time.Unix(10, 0)

	verdict, diff := c.Classify(base, curr)
	assert.Equal(t, VerdictMinorUpdate, verdict)
	assert.Greater(t, diff.Percent, 0.0)
}

func TestClassifyTransitioningWithinStabilityWindow(t *testing.T) {
	c := testClassifier(t)
	base := solidFrame(160, 160, 0, time.Unix(0, 0), 0, 0)
	curr := patchFrame(base, 0, 0, 32, 32, 255)
	curr.Timestamp = base.Timestamp.Add(50 * time.Millisecond)

	verdict, _ := c.Classify(base, curr)
	assert.Equal(t, VerdictTransitioning, verdict)
}

func TestClassifyDeterministicForSamePair(t *testing.T) {
	c := testClassifier(t)
	base := solidFrame(64, 64, 10, time.Unix(0, 0), 5, 5)
	curr := patchFrame(base, 0, 0, 16, 16, 200)
	curr.Timestamp = time.Unix(10, 0)

	v1, d1 := c.Classify(base, curr)
	v2, d2 := c.Classify(base, curr)
	assert.Equal(t, v1, v2)
	assert.Equal(t, d1, d2)
}
