// Package platform pins the capability-set contract the core is polymorphic
// over: frame capture, cursor control, and synthetic input. Concrete
// per-OS implementations and the in-memory Recording fake used by tests
// both satisfy Adapter; nothing in zonepilot names a concrete
// implementation directly.
package platform

import (
	"context"

	"github.com/zonepilot/zonepilot/core"
)

// Button identifies which mouse button an input operation uses.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Adapter is the external platform contract (§6): frame/cursor capture plus
// synthetic input, in logical (DPI-normalized) screen coordinates.
type Adapter interface {
	CaptureFrame(ctx context.Context) (*core.Frame, error)
	GetCursorPos(ctx context.Context) (x, y float64, err error)
	MoveCursor(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64, button Button) error
	DoubleClick(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, x, y float64, amount int) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, chord string) error
	GetScreenSize(ctx context.Context) (w, h int, err error)
}
