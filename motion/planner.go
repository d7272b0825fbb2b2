// Package motion generates cursor trajectories between two points, paced so
// the effective speed never exceeds the configured ceiling.
package motion

import (
	"math"

	"github.com/zonepilot/zonepilot/core"
)

// TrajectoryKind selects the path-generation strategy.
type TrajectoryKind string

const (
	TrajectoryDirect      TrajectoryKind = "DIRECT"
	TrajectorySafe        TrajectoryKind = "SAFE"
	TrajectoryExploratory TrajectoryKind = "EXPLORATORY"
)

// Point is one intermediate cursor position in a generated trajectory.
type Point struct {
	X, Y float64
}

// Planner is pure and deterministic: the same inputs always produce the
// same trajectory.
type Planner struct {
	speedPixelsPerSec float64
}

// New builds a Planner from the shared Settings value.
func New(settings *core.Settings) *Planner {
	return &Planner{speedPixelsPerSec: settings.MotionSpeedPixelsPerSec}
}

// tickSeconds is the per-tick pacing interval motion steps are bounded to,
// given the ceiling speed. A 40ms tick (25Hz) matches the platform adapter's
// expected input cadence.
const tickSeconds = 0.04

// Plan produces an ordered trajectory from `from` to `to`. avoid is a set of
// rectangles SAFE should route around; ignored by DIRECT and EXPLORATORY.
func (p *Planner) Plan(from, to Point, kind TrajectoryKind, avoid []core.Rect) []Point {
	switch kind {
	case TrajectorySafe:
		return p.planSafe(from, to, avoid)
	case TrajectoryExploratory:
		return p.planExploratory(from, to)
	default:
		return p.planDirect(from, to)
	}
}

func (p *Planner) maxStepDistance() float64 {
	d := p.speedPixelsPerSec * tickSeconds
	if d <= 0 {
		d = 1
	}
	return d
}

func (p *Planner) planDirect(from, to Point) []Point {
	return interpolate(from, to, p.maxStepDistance())
}

// planSafe detours around any "avoid" rectangle the straight line would
// cross, by routing through a point 10px above or below the rectangle at its
// horizontal center before continuing to the destination. Rare in practice; used for
// drag operations that must not clip an intervening control.
func (p *Planner) planSafe(from, to Point, avoid []core.Rect) []Point {
	waypoint, blocked := firstBlockingDetour(from, to, avoid)
	if !blocked {
		return p.planDirect(from, to)
	}
	out := interpolate(from, waypoint, p.maxStepDistance())
	rest := interpolate(waypoint, to, p.maxStepDistance())
	if len(rest) > 0 {
		out = append(out, rest[1:]...)
	}
	return out
}

func firstBlockingDetour(from, to Point, avoid []core.Rect) (Point, bool) {
	for _, r := range avoid {
		if r.Empty() {
			continue
		}
		if !segmentIntersectsRect(from, to, r) {
			continue
		}
		// route around the rectangle with a small margin
		margin := 10.0
		cx, cy := r.Center()
		if cx >= r.X && cx <= r.X+r.W {
			// detour above if the start point is above the rectangle's center, else below
			if from.Y < cy {
				return Point{X: cx, Y: r.Y - margin}, true
			}
			return Point{X: cx, Y: r.Y + r.H + margin}, true
		}
		if from.X < cx {
			return Point{X: r.X - margin, Y: cy}, true
		}
		return Point{X: r.X + r.W + margin, Y: cy}, true
	}
	return Point{}, false
}

func segmentIntersectsRect(a, b Point, r core.Rect) bool {
	steps := interpolate(a, b, 8)
	for _, p := range steps {
		if r.Contains(p.X, p.Y) {
			return true
		}
	}
	return false
}

// planExploratory sweeps a small grid around the destination to elicit
// hover tooltips before settling on the target.
func (p *Planner) planExploratory(from, to Point) []Point {
	const sweepRadius = 20.0
	offsets := []Point{
		{X: -sweepRadius, Y: 0}, {X: sweepRadius, Y: 0},
		{X: 0, Y: -sweepRadius}, {X: 0, Y: sweepRadius},
	}

	out := []Point{}
	cursor := from
	for _, off := range offsets {
		wp := Point{X: to.X + off.X, Y: to.Y + off.Y}
		leg := interpolate(cursor, wp, p.maxStepDistance())
		if len(out) > 0 && len(leg) > 0 {
			leg = leg[1:]
		}
		out = append(out, leg...)
		cursor = wp
	}
	final := interpolate(cursor, to, p.maxStepDistance())
	if len(out) > 0 && len(final) > 0 {
		final = final[1:]
	}
	return append(out, final...)
}

// interpolate returns evenly spaced points from a to b (inclusive of both
// ends) whose consecutive distance does not exceed maxStep.
func interpolate(a, b Point, maxStep float64) []Point {
	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	if dist == 0 {
		return []Point{a}
	}
	if maxStep <= 0 {
		maxStep = 1
	}
	steps := int(math.Ceil(dist / maxStep))
	if steps < 1 {
		steps = 1
	}

	points := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		points = append(points, Point{
			X: a.X + (b.X-a.X)*t,
			Y: a.Y + (b.Y-a.Y)*t,
		})
	}
	return points
}
