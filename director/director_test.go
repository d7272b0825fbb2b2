package director

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/canvas"
	"github.com/zonepilot/zonepilot/capture"
	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/execution"
	"github.com/zonepilot/zonepilot/motion"
	"github.com/zonepilot/zonepilot/perception"
	"github.com/zonepilot/zonepilot/planning"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
	"github.com/zonepilot/zonepilot/tracking"
)

// fakePlanner returns a scripted sequence of plans, one per call, and
// records every request it was given.
type fakePlanner struct {
	plans    []core.TaskPlan
	calls    int
	requests []planning.Request
}

func (f *fakePlanner) Plan(ctx context.Context, req planning.Request) core.TaskPlan {
	f.requests = append(f.requests, req)
	if f.calls >= len(f.plans) {
		return core.TaskPlan{Success: false, Error: "fakePlanner exhausted"}
	}
	p := f.plans[f.calls]
	f.calls++
	return p
}

var _ planning.Planner = (*fakePlanner)(nil)

func testZone(id, label string, x, y, w, h float64) core.Zone {
	return core.Zone{
		ID: id, Label: label, Kind: core.ZoneKindButton, State: core.ZoneStateEnabled,
		Bounds: core.Rect{X: x, Y: y, W: w, H: h}, Confidence: 0.9, LastSeen: time.Now(),
	}
}

func newTestDirector(t *testing.T, settings *core.Settings, planner planning.Planner) (*Director, *registry.Registry, *platform.Recording) {
	t.Helper()
	zones := registry.New(nil)
	adapter := platform.NewRecording(1920, 1080)
	captureLoop := capture.New(adapter, settings, nil)
	motionPlanner := motion.New(settings)
	tracker := tracking.New(zones, settings.HoverThresholdMs, nil)
	actionExec := execution.NewActionExecutor(adapter, zones, nil)
	brush := execution.NewBrushController(zones, motionPlanner, tracker, adapter, actionExec, nil)
	stepExec := execution.NewStepExecutor(adapter, brush, nil)

	classifier := perception.New(settings)
	region := perception.NewRegionAnalyzer(settings)
	vision := perception.NewVisionAnalyzer("unused", "", settings, nil)
	mapper := canvas.New(classifier, region, vision, zones, nil)

	d := New(settings, zones, mapper, captureLoop, stepExec, planner, "test-platform", nil, nil)
	return d, zones, adapter
}

func TestRunTaskCompletesAllStepsOnSuccess(t *testing.T) {
	settings := core.DefaultSettings()
	settings.StepDelaySeconds = 0

	planner := &fakePlanner{plans: []core.TaskPlan{
		{Success: true, Steps: []core.TaskStep{
			{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionKeyPress, Parameters: map[string]interface{}{"key": "enter"}, Description: "press enter"},
		}},
	}}
	d, zones, _ := newTestDirector(t, settings, planner)
	zones.Register(testZone("z1", "ok button", 10, 10, 20, 20))

	result := d.RunTask(context.Background(), "press enter")

	require.True(t, result.Success)
	assert.Equal(t, 1, result.CompletedSteps)
	assert.Equal(t, 1, result.PlansUsed)
	assert.Equal(t, 1, result.APICallsUsed)
}

func TestRunTaskAbortsWhenInitialPlanFails(t *testing.T) {
	settings := core.DefaultSettings()
	planner := &fakePlanner{plans: []core.TaskPlan{{Success: false, Error: "no idea"}}}
	d, _, _ := newTestDirector(t, settings, planner)

	result := d.RunTask(context.Background(), "do something impossible")

	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindPlanInvalid, result.FinalErrorKind)
}

func TestRunTaskStopsAtAPICallBudget(t *testing.T) {
	settings := core.DefaultSettings()
	settings.MaxAPICalls = 1
	settings.StepDelaySeconds = 0

	// Every plan ends with __replan__, forcing a second API call that the
	// budget should refuse.
	planner := &fakePlanner{plans: []core.TaskPlan{
		{Success: true, Steps: []core.TaskStep{{StepNumber: 1, ZoneID: core.ZoneReplan}}},
	}}
	d, _, _ := newTestDirector(t, settings, planner)

	result := d.RunTask(context.Background(), "loop forever")

	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindBudgetExhausted, result.FinalErrorKind)
	assert.LessOrEqual(t, result.APICallsUsed, settings.MaxAPICalls)
}

func TestRunTaskAppendsCompletedStepsAcrossReplans(t *testing.T) {
	settings := core.DefaultSettings()
	settings.StepDelaySeconds = 0
	settings.MaxReplans = 5

	planner := &fakePlanner{plans: []core.TaskPlan{
		{Success: true, Steps: []core.TaskStep{
			{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionKeyPress, Parameters: map[string]interface{}{"key": "tab"}, Description: "press tab"},
			{StepNumber: 2, ZoneID: core.ZoneReplan},
		}},
		{Success: true, Steps: []core.TaskStep{
			{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionKeyPress, Parameters: map[string]interface{}{"key": "enter"}, Description: "press enter"},
		}},
	}}
	d, _, _ := newTestDirector(t, settings, planner)

	result := d.RunTask(context.Background(), "tab then enter")

	require.True(t, result.Success)
	assert.Equal(t, 2, result.CompletedSteps)

	// completed steps supplied to the replan request must be append-only:
	// the second request carries the first step's description.
	require.Len(t, planner.requests, 2)
	assert.Empty(t, planner.requests[0].CompletedSteps)
	require.Len(t, planner.requests[1].CompletedSteps, 1)
	assert.Equal(t, "press tab", planner.requests[1].CompletedSteps[0])
}

func TestRunTaskPreservesZonesAcrossReplan(t *testing.T) {
	settings := core.DefaultSettings()
	settings.StepDelaySeconds = 0

	planner := &fakePlanner{plans: []core.TaskPlan{
		{Success: true, Steps: []core.TaskStep{{StepNumber: 1, ZoneID: core.ZoneReplan}}},
		{Success: true, Steps: []core.TaskStep{
			{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionKeyPress, Parameters: map[string]interface{}{"key": "enter"}, Description: "press enter"},
		}},
	}}
	d, zones, _ := newTestDirector(t, settings, planner)
	zones.Register(testZone("preexisting", "stays put", 5, 5, 10, 10))

	result := d.RunTask(context.Background(), "replan without losing zones")

	require.True(t, result.Success)
	_, ok := zones.Get("preexisting")
	assert.True(t, ok, "zone registered before the replan must still be present after it")
}

func TestRunTaskUnsupportedGlobalActionAborts(t *testing.T) {
	settings := core.DefaultSettings()
	settings.StepDelaySeconds = 0
	settings.MaxStepRetries = 0

	planner := &fakePlanner{plans: []core.TaskPlan{
		{Success: true, Steps: []core.TaskStep{
			{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionScroll, Description: "scroll globally, unsupported"},
		}},
	}}
	d, _, _ := newTestDirector(t, settings, planner)

	result := d.RunTask(context.Background(), "scroll without a zone")

	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindUnsupportedGlobalAction, result.FinalErrorKind)
}

func TestStartupPopulatesRegistryFromVisionPass(t *testing.T) {
	settings := core.DefaultSettings()
	planner := &fakePlanner{}
	d, zones, adapter := newTestDirector(t, settings, planner)
	adapter.PushFrame(&core.Frame{Width: 1920, Height: 1080, Pixels: make([]byte, 1920*1080*4), Timestamp: time.Now()})

	err := d.Startup(context.Background())

	require.NoError(t, err)
	// Vision isn't configured (no endpoint URL), so the pass degrades and
	// preserves whatever the registry already held — here, nothing.
	assert.Equal(t, 0, zones.Count())
}

func TestShutdownIsIdempotent(t *testing.T) {
	settings := core.DefaultSettings()
	d, _, _ := newTestDirector(t, settings, &fakePlanner{})
	assert.NotPanics(t, func() {
		d.Shutdown()
		d.Shutdown()
	})
}
