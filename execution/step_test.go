package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/motion"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
	"github.com/zonepilot/zonepilot/tracking"
)

func newStepFixture(t *testing.T) (*StepExecutor, *platform.Recording, *registry.Registry) {
	t.Helper()
	settings, err := core.NewSettings()
	require.NoError(t, err)

	adapter := platform.NewRecording(800, 600)
	zones := registry.New(nil)
	tracker := tracking.New(zones, settings.HoverThresholdMs, nil)
	planner := motion.New(settings)
	actionExec := NewActionExecutor(adapter, zones, nil)
	brush := NewBrushController(zones, planner, tracker, adapter, actionExec, nil)
	return NewStepExecutor(adapter, brush, nil), adapter, zones
}

func TestExecuteReplanSentinelIsNoOpSuccess(t *testing.T) {
	exec, _, _ := newStepFixture(t)
	result := exec.Execute(context.Background(), core.TaskStep{ZoneID: core.ZoneReplan})
	assert.True(t, result.Success)
}

func TestExecuteGlobalTypeText(t *testing.T) {
	exec, adapter, _ := newStepFixture(t)
	result := exec.Execute(context.Background(), core.TaskStep{
		ZoneID: core.ZoneGlobal, ActionType: core.ActionTypeText,
		Parameters: map[string]interface{}{"text": "hello"},
	})
	require.True(t, result.Success)
	require.Len(t, adapter.Events, 1)
	assert.Equal(t, "hello", adapter.Events[0].Text)
}

func TestExecuteGlobalUnsupportedActionFails(t *testing.T) {
	exec, _, _ := newStepFixture(t)
	result := exec.Execute(context.Background(), core.TaskStep{
		ZoneID: core.ZoneGlobal, ActionType: core.ActionScroll,
	})
	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindUnsupportedGlobalAction, result.ErrorKind)
}

func TestExecuteVisualStepNavigatesAndActs(t *testing.T) {
	exec, adapter, zones := newStepFixture(t)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 100, Y: 100, W: 20, H: 20}})

	result := exec.Execute(context.Background(), core.TaskStep{
		ZoneID: "z1", ActionType: core.ActionClick,
		Parameters: map[string]interface{}{"x": 110.0, "y": 110.0},
	})

	require.True(t, result.Success)
	var sawClick bool
	for _, e := range adapter.Events {
		if e.Kind == "click" {
			sawClick = true
		}
	}
	assert.True(t, sawClick)
}

func TestExecuteVisualStepZoneNotFound(t *testing.T) {
	exec, _, _ := newStepFixture(t)
	result := exec.Execute(context.Background(), core.TaskStep{
		ZoneID: "missing", ActionType: core.ActionClick,
	})
	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindZoneNotFound, result.ErrorKind)
}
