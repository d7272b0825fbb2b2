// Package execution dispatches atomic input actions, composes them with
// motion and tracking for zone-targeted steps, and routes plan steps to the
// right execution path.
package execution

import (
	"context"
	"fmt"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
)

// ActionResult is the Action Executor's outcome for one dispatched action.
type ActionResult struct {
	Success        bool
	Error          string
	ErrorKind      core.ErrorKind
	ObservedEvents []core.SpatialEvent
}

// ActionExecutor dispatches one Action atomically, re-verifying the cursor
// is inside the target zone's bounds for zone-bearing kinds before acting.
type ActionExecutor struct {
	adapter platform.Adapter
	zones   *registry.Registry
	logger  core.Logger
}

// NewActionExecutor builds an ActionExecutor.
func NewActionExecutor(adapter platform.Adapter, zones *registry.Registry, logger core.Logger) *ActionExecutor {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &ActionExecutor{adapter: adapter, zones: zones, logger: logger}
}

var zoneBearingKinds = map[core.ActionKind]bool{
	core.ActionClick:       true,
	core.ActionDoubleClick: true,
	core.ActionTypeText:    true,
	core.ActionScroll:      true,
	core.ActionMove:        true,
	core.ActionDrag:        true,
}

// Execute dispatches action. For zone-bearing kinds it first re-reads the
// target zone and the adapter's reported cursor position, failing
// brush_lost if the cursor is not inside the zone's bounds.
func (e *ActionExecutor) Execute(ctx context.Context, action core.Action) ActionResult {
	if zoneBearingKinds[action.Kind] && action.TargetZoneID != "" {
		zone, ok := e.zones.Get(action.TargetZoneID)
		if !ok {
			return ActionResult{Success: false, Error: "target zone not found", ErrorKind: core.ErrKindZoneNotFound}
		}
		cx, cy, err := e.adapter.GetCursorPos(ctx)
		if err != nil {
			return ActionResult{Success: false, Error: err.Error(), ErrorKind: core.ErrKindPlatformError}
		}
		if !zone.Bounds.Contains(cx, cy) {
			return ActionResult{Success: false, Error: "cursor left target zone before action", ErrorKind: core.ErrKindBrushLost}
		}
	}

	if err := e.dispatch(ctx, action); err != nil {
		return ActionResult{Success: false, Error: err.Error(), ErrorKind: core.ErrKindActionFailed}
	}
	return ActionResult{Success: true}
}

func (e *ActionExecutor) dispatch(ctx context.Context, action core.Action) error {
	switch action.Kind {
	case core.ActionClick:
		x, button := paramCoords(action.Parameters), paramButton(action.Parameters)
		return e.adapter.Click(ctx, x.X, x.Y, button)
	case core.ActionDoubleClick:
		x := paramCoords(action.Parameters)
		return e.adapter.DoubleClick(ctx, x.X, x.Y)
	case core.ActionMove:
		x := paramCoords(action.Parameters)
		return e.adapter.MoveCursor(ctx, x.X, x.Y)
	case core.ActionScroll:
		x := paramCoords(action.Parameters)
		amount := paramInt(action.Parameters, "amount")
		return e.adapter.Scroll(ctx, x.X, x.Y, amount)
	case core.ActionTypeText:
		return e.adapter.TypeText(ctx, paramString(action.Parameters, "text"))
	case core.ActionKeyPress:
		return e.adapter.KeyPress(ctx, paramString(action.Parameters, "key"))
	case core.ActionDrag:
		return e.dispatchDrag(ctx, action.Parameters)
	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

func (e *ActionExecutor) dispatchDrag(ctx context.Context, params map[string]interface{}) error {
	fromX, fromY := paramFloat(params, "from_x"), paramFloat(params, "from_y")
	toX, toY := paramFloat(params, "to_x"), paramFloat(params, "to_y")

	if err := e.adapter.MoveCursor(ctx, fromX, fromY); err != nil {
		return err
	}
	if err := e.adapter.Click(ctx, fromX, fromY, platform.ButtonLeft); err != nil {
		return err
	}
	return e.adapter.MoveCursor(ctx, toX, toY)
}

type point struct{ X, Y float64 }

func paramCoords(params map[string]interface{}) point {
	return point{X: paramFloat(params, "x"), Y: paramFloat(params, "y")}
}

func paramFloat(params map[string]interface{}, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func paramInt(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func paramString(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func paramButton(params map[string]interface{}) platform.Button {
	s, _ := params["button"].(string)
	switch s {
	case "right":
		return platform.ButtonRight
	case "middle":
		return platform.ButtonMiddle
	default:
		return platform.ButtonLeft
	}
}
