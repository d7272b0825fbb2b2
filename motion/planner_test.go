package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	s, err := core.NewSettings()
	require.NoError(t, err)
	return New(s)
}

func TestPlanDirectStartsAndEndsAtExactPoints(t *testing.T) {
	p := testPlanner(t)
	path := p.Plan(Point{X: 0, Y: 0}, Point{X: 100, Y: 0}, TrajectoryDirect, nil)

	require.NotEmpty(t, path)
	assert.Equal(t, Point{X: 0, Y: 0}, path[0])
	assert.Equal(t, Point{X: 100, Y: 0}, path[len(path)-1])
}

func TestPlanDirectStepSizeBounded(t *testing.T) {
	p := testPlanner(t)
	path := p.Plan(Point{X: 0, Y: 0}, Point{X: 1000, Y: 0}, TrajectoryDirect, nil)

	maxStep := p.maxStepDistance()
	for i := 1; i < len(path); i++ {
		dx := path[i].X - path[i-1].X
		dy := path[i].Y - path[i-1].Y
		dist := dx*dx + dy*dy
		assert.LessOrEqual(t, dist, maxStep*maxStep+1e-6)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := testPlanner(t)
	a := p.Plan(Point{X: 1, Y: 2}, Point{X: 50, Y: 80}, TrajectoryDirect, nil)
	b := p.Plan(Point{X: 1, Y: 2}, Point{X: 50, Y: 80}, TrajectoryDirect, nil)
	assert.Equal(t, a, b)
}

func TestPlanSameStartAndEndReturnsSinglePoint(t *testing.T) {
	p := testPlanner(t)
	path := p.Plan(Point{X: 5, Y: 5}, Point{X: 5, Y: 5}, TrajectoryDirect, nil)
	assert.Equal(t, []Point{{X: 5, Y: 5}}, path)
}

func TestPlanSafeDetoursAroundAvoidRect(t *testing.T) {
	p := testPlanner(t)
	avoid := []core.Rect{{X: 40, Y: -10, W: 20, H: 20}}
	path := p.Plan(Point{X: 0, Y: 0}, Point{X: 100, Y: 0}, TrajectorySafe, avoid)

	require.NotEmpty(t, path)
	for _, pt := range path {
		assert.False(t, avoid[0].Contains(pt.X, pt.Y), "path point %v should not enter avoided rect", pt)
	}
}

func TestPlanExploratoryEndsAtTarget(t *testing.T) {
	p := testPlanner(t)
	path := p.Plan(Point{X: 0, Y: 0}, Point{X: 200, Y: 200}, TrajectoryExploratory, nil)

	require.NotEmpty(t, path)
	last := path[len(path)-1]
	assert.InDelta(t, 200, last.X, 0.001)
	assert.InDelta(t, 200, last.Y, 0.001)
}
