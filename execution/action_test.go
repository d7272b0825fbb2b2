package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/registry"
)

func TestExecuteClickSucceedsWhenCursorInZone(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	adapter.SetCursor(5, 5)
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})

	e := NewActionExecutor(adapter, zones, nil)
	result := e.Execute(context.Background(), core.Action{
		Kind: core.ActionClick, TargetZoneID: "z1",
		Parameters: map[string]interface{}{"x": 5.0, "y": 5.0},
	})

	require.True(t, result.Success)
	require.Len(t, adapter.Events, 1)
	assert.Equal(t, "click", adapter.Events[0].Kind)
}

func TestExecuteFailsBrushLostWhenCursorOutsideZone(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	adapter.SetCursor(500, 500)
	zones := registry.New(nil)
	zones.Register(core.Zone{ID: "z1", Bounds: core.Rect{X: 0, Y: 0, W: 10, H: 10}})

	e := NewActionExecutor(adapter, zones, nil)
	result := e.Execute(context.Background(), core.Action{
		Kind: core.ActionClick, TargetZoneID: "z1",
		Parameters: map[string]interface{}{"x": 5.0, "y": 5.0},
	})

	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindBrushLost, result.ErrorKind)
}

func TestExecuteFailsZoneNotFound(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	zones := registry.New(nil)

	e := NewActionExecutor(adapter, zones, nil)
	result := e.Execute(context.Background(), core.Action{Kind: core.ActionClick, TargetZoneID: "missing"})

	assert.False(t, result.Success)
	assert.Equal(t, core.ErrKindZoneNotFound, result.ErrorKind)
}

func TestExecuteGlobalKindsSkipZoneVerification(t *testing.T) {
	adapter := platform.NewRecording(800, 600)
	zones := registry.New(nil)

	e := NewActionExecutor(adapter, zones, nil)
	result := e.Execute(context.Background(), core.Action{
		Kind:       core.ActionKeyPress,
		Parameters: map[string]interface{}{"key": "ctrl+s"},
	})

	assert.True(t, result.Success)
	require.Len(t, adapter.Events, 1)
	assert.Equal(t, "ctrl+s", adapter.Events[0].Chord)
}
