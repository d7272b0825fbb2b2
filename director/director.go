// Package director implements the top-level task state machine: plan,
// execute, recapture, replan, retry — all under a fixed API and retry
// budget.
package director

import (
	"context"
	"strings"
	"time"

	"github.com/zonepilot/zonepilot/canvas"
	"github.com/zonepilot/zonepilot/capture"
	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/execution"
	"github.com/zonepilot/zonepilot/planning"
	"github.com/zonepilot/zonepilot/recovery"
	"github.com/zonepilot/zonepilot/registry"
	"github.com/zonepilot/zonepilot/telemetry"
)

// RecordingSink is the best-effort observability seam a Director reports
// to during a task run. Calls must never block the task loop; a caller
// wanting to persist a session wires its own implementation.
type RecordingSink interface {
	OnFrame(*core.Frame)
	OnStep(core.StepResult)
	OnPlan(core.TaskPlan)
}

// NoOpRecordingSink discards everything. The default when no sink is wired.
type NoOpRecordingSink struct{}

func (NoOpRecordingSink) OnFrame(*core.Frame)       {}
func (NoOpRecordingSink) OnStep(core.StepResult)    {}
func (NoOpRecordingSink) OnPlan(core.TaskPlan)      {}

// Director owns the four budget counters for one task attempt and drives
// the plan/execute/recapture/replan loop.
type Director struct {
	settings *core.Settings
	zones    *registry.Registry
	mapper   *canvas.Mapper
	capture  *capture.Loop
	steps    *execution.StepExecutor
	planner  planning.Planner
	logger   core.Logger
	sink     RecordingSink

	platformName string
}

// New builds a Director wired to the rest of the pipeline.
func New(settings *core.Settings, zones *registry.Registry, mapper *canvas.Mapper, captureLoop *capture.Loop, steps *execution.StepExecutor, planner planning.Planner, platformName string, logger core.Logger, sink RecordingSink) *Director {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if sink == nil {
		sink = NoOpRecordingSink{}
	}
	return &Director{
		settings:     settings,
		zones:        zones,
		mapper:       mapper,
		capture:      captureLoop,
		steps:        steps,
		planner:      planner,
		logger:       logger,
		sink:         sink,
		platformName: platformName,
	}
}

// Startup performs one initial vision call to populate the registry. It
// must complete before RunTask is called.
func (d *Director) Startup(ctx context.Context) error {
	frame, err := d.capture.CaptureOnce(ctx)
	if err != nil {
		return core.NewTaskError("Director.Startup", core.ErrKindPlatformError, err)
	}
	d.sink.OnFrame(frame)
	count := d.mapper.Recapture(ctx, frame)
	d.logger.Info("startup recapture complete", map[string]interface{}{"zone_count": count})
	return nil
}

// Shutdown stops the capture loop. Idempotent: safe to call any number of
// times, including when Startup was never called.
func (d *Director) Shutdown() {
	d.capture.Stop()
}

// budget tracks the four counters for one task attempt.
type budget struct {
	apiCallsUsed    int
	replansUsed     int
	stepRetriesUsed int
	plansProduced   int
}

func (b *budget) apiCallAllowed(max int) bool { return b.apiCallsUsed < max }

// RunTask executes taskDescription to completion, failure, or budget
// exhaustion.
func (d *Director) RunTask(ctx context.Context, taskDescription string) core.TaskResult {
	b := &budget{}
	var completedSteps []string

	if d.settings.StepDelaySeconds != 0 {
		d.logger.Info("signaling control to user", map[string]interface{}{"task": taskDescription})
	}

	plan, ok := d.producePlan(ctx, b, taskDescription, completedSteps)
	if !ok {
		return d.budgetExhaustedResult(b, len(completedSteps))
	}
	if !plan.Success || len(plan.Steps) == 0 {
		return core.TaskResult{Success: false, PlansUsed: b.plansProduced, APICallsUsed: b.apiCallsUsed, FinalError: plan.Error, FinalErrorKind: core.ErrKindPlanInvalid}
	}

	stepIndex := 0
	for {
		if stepIndex >= len(plan.Steps) {
			d.recordBudgetMetrics(b)
			return core.TaskResult{Success: true, CompletedSteps: len(completedSteps), PlansUsed: b.plansProduced, APICallsUsed: b.apiCallsUsed}
		}

		core.GetGlobalMetricsRegistry().IncrCounter(telemetry.MetricDirectorIterations, nil)
		step := plan.Steps[stepIndex]

		if step.IsReplan() {
			if b.replansUsed >= d.settings.MaxReplans {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			if !b.apiCallAllowed(d.settings.MaxAPICalls) {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			frame := d.capture.Latest()
			if frame != nil {
				d.mapper.Recapture(ctx, frame)
			}
			b.apiCallsUsed++

			newPlan, ok := d.producePlan(ctx, b, taskDescription, completedSteps)
			if !ok {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			b.replansUsed++
			if !newPlan.Success || len(newPlan.Steps) == 0 {
				return core.TaskResult{Success: false, CompletedSteps: len(completedSteps), PlansUsed: b.plansProduced, APICallsUsed: b.apiCallsUsed, FinalError: newPlan.Error, FinalErrorKind: core.ErrKindPlanInvalid}
			}
			plan = newPlan
			stepIndex = 0
			b.stepRetriesUsed = 0
			continue
		}

		if d.settings.StepDelaySeconds > 0 {
			time.Sleep(time.Duration(d.settings.StepDelaySeconds * float64(time.Second)))
		}

		result := d.steps.Execute(ctx, step)
		d.sink.OnStep(result)

		if result.Success {
			completedSteps = append(completedSteps, step.Description)
			if d.shouldRecapture(step) {
				if !b.apiCallAllowed(d.settings.MaxAPICalls) {
					return d.budgetExhaustedResult(b, len(completedSteps))
				}
				if frame := d.capture.Latest(); frame != nil {
					d.mapper.Recapture(ctx, frame)
				}
				b.apiCallsUsed++
			}
			stepIndex++
			b.stepRetriesUsed = 0
			continue
		}

		classification := recovery.Classify(result, b.stepRetriesUsed, d.settings.MaxStepRetries)

		switch classification.Recovery {
		case core.RecoveryRetry:
			b.stepRetriesUsed++
			continue

		case core.RecoveryReanalyze:
			if !b.apiCallAllowed(d.settings.MaxAPICalls) {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			if frame := d.capture.Latest(); frame != nil {
				d.mapper.Recapture(ctx, frame)
			}
			b.apiCallsUsed++
			b.stepRetriesUsed++
			continue

		case core.RecoveryReplan:
			if b.replansUsed >= d.settings.MaxReplans {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			if classification.ReanalyzeCanvas {
				if !b.apiCallAllowed(d.settings.MaxAPICalls) {
					return d.budgetExhaustedResult(b, len(completedSteps))
				}
				if frame := d.capture.Latest(); frame != nil {
					d.mapper.Recapture(ctx, frame)
				}
				b.apiCallsUsed++
			}
			newPlan, ok := d.producePlan(ctx, b, taskDescription, completedSteps)
			if !ok {
				return d.budgetExhaustedResult(b, len(completedSteps))
			}
			b.replansUsed++
			if !newPlan.Success || len(newPlan.Steps) == 0 {
				return core.TaskResult{Success: false, CompletedSteps: len(completedSteps), PlansUsed: b.plansProduced, APICallsUsed: b.apiCallsUsed, FinalError: newPlan.Error, FinalErrorKind: core.ErrKindPlanInvalid}
			}
			plan = newPlan
			stepIndex = 0
			b.stepRetriesUsed = 0
			continue

		case core.RecoverySkip:
			stepIndex++
			b.stepRetriesUsed = 0
			continue

		default: // ABORT
			return core.TaskResult{
				Success: false, CompletedSteps: len(completedSteps),
				PlansUsed: b.plansProduced, APICallsUsed: b.apiCallsUsed,
				FinalError: result.Error, FinalErrorKind: classification.Kind,
			}
		}
	}
}

func (d *Director) producePlan(ctx context.Context, b *budget, taskDescription string, completedSteps []string) (core.TaskPlan, bool) {
	if !b.apiCallAllowed(d.settings.MaxAPICalls) {
		return core.TaskPlan{}, false
	}

	req := planning.Request{
		TaskDescription: taskDescription,
		PlatformName:    d.platformName,
		CompletedSteps:  append([]string(nil), completedSteps...),
	}
	for _, z := range d.zones.All() {
		cx, cy := z.Bounds.Center()
		req.Zones = append(req.Zones, planning.ZoneSummary{ID: z.ID, Label: z.Label, Kind: z.Kind, State: z.State, X: cx, Y: cy})
	}

	plan := d.planner.Plan(ctx, req)
	b.apiCallsUsed++
	b.plansProduced++

	if plan.Success {
		if violations := planning.Validate(plan, d.zones.All()); len(violations) > 0 {
			d.logger.Warn("planner returned an invalid plan", map[string]interface{}{"violations": len(violations)})
			plan.Success = false
			plan.Error = "plan_invalid"
		}
	}

	d.sink.OnPlan(plan)
	core.GetGlobalMetricsRegistry().IncrCounter(telemetry.MetricPlansProduced, nil)
	return plan, true
}

func (d *Director) shouldRecapture(step core.TaskStep) bool {
	hint := strings.ToLower(step.ExpectedChange)
	if hint == "" {
		return false
	}
	for _, kw := range d.settings.RecapturedKeywords {
		if strings.Contains(hint, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (d *Director) recordBudgetMetrics(b *budget) {
	core.GetGlobalMetricsRegistry().RecordGauge(telemetry.MetricDirectorBudgetUsed, float64(b.apiCallsUsed), map[string]string{"counter": "api_calls"})
	core.GetGlobalMetricsRegistry().RecordGauge(telemetry.MetricDirectorBudgetUsed, float64(b.replansUsed), map[string]string{"counter": "replans"})
}

func (d *Director) budgetExhaustedResult(b *budget, completed int) core.TaskResult {
	d.recordBudgetMetrics(b)
	return core.TaskResult{
		Success:        false,
		CompletedSteps: completed,
		PlansUsed:      b.plansProduced,
		APICallsUsed:   b.apiCallsUsed,
		FinalError:     "task budget exhausted",
		FinalErrorKind: core.ErrKindBudgetExhausted,
	}
}
