package execution

import (
	"context"
	"time"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/platform"
)

// StepExecutor is the single entry point for executing one TaskStep: it
// dispatches to the global-action path, the replan no-op fallback, or the
// Brush Controller.
type StepExecutor struct {
	adapter platform.Adapter
	brush   *BrushController
	logger  core.Logger
}

// NewStepExecutor builds a StepExecutor.
func NewStepExecutor(adapter platform.Adapter, brush *BrushController, logger core.Logger) *StepExecutor {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &StepExecutor{adapter: adapter, brush: brush, logger: logger}
}

// Execute dispatches step and returns its result. The __replan__ sentinel
// is handled here purely as a safety fallback: the Director is expected to
// intercept it before the step ever reaches the executor.
func (e *StepExecutor) Execute(ctx context.Context, step core.TaskStep) core.StepResult {
	now := time.Now()

	if step.IsReplan() {
		e.logger.Warn("replan sentinel reached step executor directly", map[string]interface{}{
			"step_number": step.StepNumber,
		})
		return core.StepResult{Step: step, Success: true, Timestamp: now}
	}

	if step.IsGlobal() {
		return e.executeGlobal(ctx, step, now)
	}

	action := core.Action{Kind: step.ActionType, TargetZoneID: step.ZoneID, Parameters: step.Parameters}
	result := e.brush.Perform(ctx, step.ZoneID, action)

	if !result.Success() {
		kind := result.NavigationKind
		msg := result.NavigationError
		if kind == "" {
			kind = result.Action.ErrorKind
			msg = result.Action.Error
		}
		return core.StepResult{Step: step, Success: false, Error: msg, ErrorKind: kind, Timestamp: now}
	}
	return core.StepResult{Step: step, Success: true, Events: result.Action.ObservedEvents, Timestamp: now}
}

func (e *StepExecutor) executeGlobal(ctx context.Context, step core.TaskStep, now time.Time) core.StepResult {
	var err error

	switch step.ActionType {
	case core.ActionKeyPress:
		err = e.adapter.KeyPress(ctx, paramString(step.Parameters, "key"))
	case core.ActionTypeText:
		err = e.adapter.TypeText(ctx, paramString(step.Parameters, "text"))
	case core.ActionClick:
		x, y := paramFloat(step.Parameters, "x"), paramFloat(step.Parameters, "y")
		err = e.adapter.Click(ctx, x, y, paramButton(step.Parameters))
	default:
		return core.StepResult{
			Step:      step,
			Success:   false,
			Error:     "unsupported action kind for __global__ step: " + string(step.ActionType),
			ErrorKind: core.ErrKindUnsupportedGlobalAction,
			Timestamp: now,
		}
	}

	if err != nil {
		return core.StepResult{Step: step, Success: false, Error: err.Error(), ErrorKind: core.ErrKindActionFailed, Timestamp: now}
	}
	return core.StepResult{Step: step, Success: true, Timestamp: now}
}
