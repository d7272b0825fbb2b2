package execution

import (
	"context"
	"time"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/motion"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
	"github.com/zonepilot/zonepilot/tracking"
)

// BrushActionResult bundles the navigation outcome and the action outcome
// for one zone-targeted step.
type BrushActionResult struct {
	NavigationError string
	NavigationKind  core.ErrorKind
	Action          ActionResult
}

// Success reports whether both navigation and the dispatched action succeeded.
func (r BrushActionResult) Success() bool {
	return r.NavigationError == "" && r.Action.Success
}

// BrushController composes, for one zone-targeted action: zone lookup,
// motion planning, trajectory driving, a tracker arrival check, then
// delegation to the Action Executor.
type BrushController struct {
	zones    *registry.Registry
	planner  *motion.Planner
	tracker  *tracking.Tracker
	adapter  platform.Adapter
	executor *ActionExecutor
	logger   core.Logger
}

// NewBrushController builds a BrushController.
func NewBrushController(zones *registry.Registry, planner *motion.Planner, tracker *tracking.Tracker, adapter platform.Adapter, executor *ActionExecutor, logger core.Logger) *BrushController {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &BrushController{zones: zones, planner: planner, tracker: tracker, adapter: adapter, executor: executor, logger: logger}
}

// Perform drives the cursor to zoneID's aim point and dispatches action,
// which must already carry TargetZoneID == zoneID.
func (b *BrushController) Perform(ctx context.Context, zoneID string, action core.Action) BrushActionResult {
	zone, ok := b.zones.Get(zoneID)
	if !ok {
		return BrushActionResult{NavigationError: "zone not found", NavigationKind: core.ErrKindZoneNotFound}
	}

	cx, cy, err := b.adapter.GetCursorPos(ctx)
	if err != nil {
		return BrushActionResult{NavigationError: err.Error(), NavigationKind: core.ErrKindPlatformError}
	}

	aimX, aimY := zone.Bounds.Center()
	path := b.planner.Plan(motion.Point{X: cx, Y: cy}, motion.Point{X: aimX, Y: aimY}, motion.TrajectoryDirect, nil)

	// One trajectory point per motion-planner tick keeps the effective speed
	// at or below the planner's ceiling.
	const moveTick = 40 * time.Millisecond
	for i, p := range path {
		if i > 0 {
			select {
			case <-ctx.Done():
				return BrushActionResult{NavigationError: ctx.Err().Error(), NavigationKind: core.ErrKindTimeout}
			case <-time.After(moveTick):
			}
		}
		if err := b.adapter.MoveCursor(ctx, p.X, p.Y); err != nil {
			return BrushActionResult{NavigationError: err.Error(), NavigationKind: core.ErrKindPlatformError}
		}
		if b.tracker != nil {
			b.tracker.Sample(p.X, p.Y, time.Now())
		}
	}

	if b.tracker != nil && b.tracker.CurrentZone() != zoneID {
		return BrushActionResult{NavigationError: "cursor did not arrive in target zone", NavigationKind: core.ErrKindBrushLost}
	}

	return BrushActionResult{Action: b.executor.Execute(ctx, action)}
}
