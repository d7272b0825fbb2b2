// Package perception implements the three-tier change/zone detection
// pipeline: a pure local classifier, a local region analyzer, and a remote
// vision analyzer.
package perception

import (
	"github.com/zonepilot/zonepilot/core"
)

// Verdict is the Change Classifier's output for one frame pair.
type Verdict string

const (
	VerdictIdle         Verdict = "IDLE"
	VerdictCursorOnly   Verdict = "CURSOR_ONLY"
	VerdictMinorUpdate  Verdict = "MINOR_UPDATE"
	VerdictContentChange Verdict = "CONTENT_CHANGE"
	VerdictTransitioning Verdict = "TRANSITIONING"
)

// Diff is the quantified result of comparing two frames: the changed block
// fraction and the bounding box of changed blocks, in pixel coordinates.
type Diff struct {
	Percent float64
	BBox    core.Rect
}

const (
	blockSize          = 16
	perBlockThreshold  = 0.1 // normalized luminance delta that marks a block "changed"
	maxMinorBBoxFraction = 0.4
)

// Classifier compares frame pairs using thresholds pinned to Settings.
// Frame.Pixels is interpreted as 4-byte RGBA, row-major, tightly packed.
type Classifier struct {
	diffThreshold      float64
	tier2Threshold     float64
	cursorAreaCeiling  float64
	stabilityWaitNanos int64
}

// New builds a Classifier from the shared Settings value.
func New(settings *core.Settings) *Classifier {
	return &Classifier{
		diffThreshold:      settings.DiffThresholdPercent / 100.0,
		tier2Threshold:     settings.Tier2ThresholdPercent / 100.0,
		cursorAreaCeiling:  settings.CursorDiffAreaCeiling,
		stabilityWaitNanos: int64(settings.StabilityWaitMs) * 1_000_000,
	}
}

// Classify compares prev and curr, both required to share dimensions, and
// returns a verdict plus the underlying diff. Deterministic given the same
// frame pair.
func (c *Classifier) Classify(prev, curr *core.Frame) (Verdict, Diff) {
	diff := computeDiff(prev, curr)

	verdict := c.classifyDiff(diff, curr)

	if (verdict == VerdictMinorUpdate || verdict == VerdictContentChange) &&
		curr.Timestamp.Sub(prev.Timestamp).Nanoseconds() < c.stabilityWaitNanos {
		verdict = VerdictTransitioning
	}

	return verdict, diff
}

func (c *Classifier) classifyDiff(diff Diff, curr *core.Frame) Verdict {
	if diff.Percent < c.diffThreshold {
		return VerdictIdle
	}

	screenArea := float64(curr.Width * curr.Height)
	bboxFraction := 0.0
	if screenArea > 0 {
		bboxFraction = diff.BBox.Area() / screenArea
	}

	if bboxFraction < c.cursorAreaCeiling && bboxCenteredOnCursor(diff.BBox, curr) {
		return VerdictCursorOnly
	}

	if diff.Percent < c.tier2Threshold && bboxFraction <= maxMinorBBoxFraction {
		return VerdictMinorUpdate
	}

	return VerdictContentChange
}

func bboxCenteredOnCursor(bbox core.Rect, curr *core.Frame) bool {
	if bbox.Empty() {
		return false
	}
	cx, cy := bbox.Center()
	dx := cx - float64(curr.CursorX)
	dy := cy - float64(curr.CursorY)
	// "centered on the cursor" allows the cursor to sit within a one-block
	// radius of the bbox midpoint, not pixel-exact.
	radius := float64(blockSize)
	return dx*dx+dy*dy <= radius*radius
}

// computeDiff buckets both frames into blockSize×blockSize blocks, compares
// average luminance per block, and returns the fraction of changed blocks
// plus their bounding box.
func computeDiff(prev, curr *core.Frame) Diff {
	if prev == nil || curr == nil || prev.Width != curr.Width || prev.Height != curr.Height || prev.Width == 0 || prev.Height == 0 {
		return Diff{}
	}

	width, height := curr.Width, curr.Height
	cols := (width + blockSize - 1) / blockSize
	rows := (height + blockSize - 1) / blockSize
	if cols == 0 || rows == 0 {
		return Diff{}
	}

	changed := 0
	total := cols * rows
	minX, minY := width, height
	maxX, maxY := 0, 0

	for by := 0; by < rows; by++ {
		for bx := 0; bx < cols; bx++ {
			x0, y0 := bx*blockSize, by*blockSize
			x1, y1 := min(x0+blockSize, width), min(y0+blockSize, height)

			lumPrev := avgLuminance(prev, x0, y0, x1, y1)
			lumCurr := avgLuminance(curr, x0, y0, x1, y1)
			delta := lumCurr - lumPrev
			if delta < 0 {
				delta = -delta
			}

			if delta > perBlockThreshold {
				changed++
				if x0 < minX {
					minX = x0
				}
				if y0 < minY {
					minY = y0
				}
				if x1 > maxX {
					maxX = x1
				}
				if y1 > maxY {
					maxY = y1
				}
			}
		}
	}

	diff := Diff{}
	if total > 0 {
		diff.Percent = float64(changed) / float64(total)
	}
	if changed > 0 {
		diff.BBox = core.Rect{
			X: float64(minX), Y: float64(minY),
			W: float64(maxX - minX), H: float64(maxY - minY),
		}
	}
	return diff
}

// avgLuminance returns the normalized [0,1] average luminance of the pixel
// block [x0,x1)×[y0,y1) using the standard Rec. 601 weights.
func avgLuminance(f *core.Frame, x0, y0, x1, y1 int) float64 {
	if len(f.Pixels) < f.Width*f.Height*4 {
		return 0
	}
	var sum float64
	count := 0
	for y := y0; y < y1; y++ {
		rowBase := y * f.Width * 4
		for x := x0; x < x1; x++ {
			idx := rowBase + x*4
			r := float64(f.Pixels[idx])
			g := float64(f.Pixels[idx+1])
			b := float64(f.Pixels[idx+2])
			sum += (0.299*r + 0.587*g + 0.114*b) / 255.0
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
