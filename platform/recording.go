package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zonepilot/zonepilot/core"
)

// InputEvent records one call made against a Recording adapter, for test
// assertions about what the core drove the platform to do.
type InputEvent struct {
	Kind   string
	X, Y   float64
	Button Button
	Amount int
	Text   string
	Chord  string
	At     time.Time
}

// Recording is an in-memory Adapter used by tests in place of a real OS
// binding. Frames are supplied by the test via PushFrame; every call the
// core makes against it is appended to Events for assertions.
type Recording struct {
	mu sync.Mutex

	frames      []*core.Frame
	cursorX     float64
	cursorY     float64
	screenW     int
	screenH     int
	Events      []InputEvent
	FailNext    int // number of subsequent CaptureFrame calls to fail
	failCounter int
}

// NewRecording creates a Recording adapter with the given logical screen size.
func NewRecording(screenW, screenH int) *Recording {
	return &Recording{screenW: screenW, screenH: screenH}
}

// PushFrame queues a frame to be returned by the next CaptureFrame call.
func (r *Recording) PushFrame(f *core.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

// SetCursor sets the position GetCursorPos will report, independent of any
// MoveCursor calls already recorded.
func (r *Recording) SetCursor(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursorX, r.cursorY = x, y
}

func (r *Recording) record(e InputEvent) {
	e.At = time.Now()
	r.Events = append(r.Events, e)
}

// CaptureFrame implements Adapter.
func (r *Recording) CaptureFrame(ctx context.Context) (*core.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCounter < r.FailNext {
		r.failCounter++
		return nil, fmt.Errorf("recording: simulated capture failure")
	}

	if len(r.frames) == 0 {
		return &core.Frame{
			Width: r.screenW, Height: r.screenH,
			Timestamp: time.Now(),
			CursorX:   int(r.cursorX), CursorY: int(r.cursorY),
		}, nil
	}
	f := r.frames[0]
	r.frames = r.frames[1:]
	return f, nil
}

// GetCursorPos implements Adapter.
func (r *Recording) GetCursorPos(ctx context.Context) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursorX, r.cursorY, nil
}

// MoveCursor implements Adapter.
func (r *Recording) MoveCursor(ctx context.Context, x, y float64) error {
	r.mu.Lock()
	r.cursorX, r.cursorY = x, y
	r.record(InputEvent{Kind: "move", X: x, Y: y})
	r.mu.Unlock()
	return nil
}

// Click implements Adapter.
func (r *Recording) Click(ctx context.Context, x, y float64, button Button) error {
	r.mu.Lock()
	r.cursorX, r.cursorY = x, y
	r.record(InputEvent{Kind: "click", X: x, Y: y, Button: button})
	r.mu.Unlock()
	return nil
}

// DoubleClick implements Adapter.
func (r *Recording) DoubleClick(ctx context.Context, x, y float64) error {
	r.mu.Lock()
	r.cursorX, r.cursorY = x, y
	r.record(InputEvent{Kind: "double_click", X: x, Y: y})
	r.mu.Unlock()
	return nil
}

// Scroll implements Adapter.
func (r *Recording) Scroll(ctx context.Context, x, y float64, amount int) error {
	r.mu.Lock()
	r.record(InputEvent{Kind: "scroll", X: x, Y: y, Amount: amount})
	r.mu.Unlock()
	return nil
}

// TypeText implements Adapter.
func (r *Recording) TypeText(ctx context.Context, text string) error {
	r.mu.Lock()
	r.record(InputEvent{Kind: "type_text", Text: text})
	r.mu.Unlock()
	return nil
}

// KeyPress implements Adapter.
func (r *Recording) KeyPress(ctx context.Context, chord string) error {
	r.mu.Lock()
	r.record(InputEvent{Kind: "key_press", Chord: chord})
	r.mu.Unlock()
	return nil
}

// GetScreenSize implements Adapter.
func (r *Recording) GetScreenSize(ctx context.Context) (int, int, error) {
	return r.screenW, r.screenH, nil
}

var _ Adapter = (*Recording)(nil)
