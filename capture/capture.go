// Package capture runs the producer loop that samples the platform adapter
// into a bounded frame ring at a target rate.
package capture

import (
	"context"
	"sync"
	"time"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/platform"
	"github.com/zonepilot/zonepilot/telemetry"
)

const consecutiveFailuresBeforeBackoff = 3

// Loop owns the bounded frame ring and the producer goroutine that fills it
// from a platform.Adapter at a target rate.
type Loop struct {
	adapter  platform.Adapter
	settings *core.Settings
	logger   core.Logger

	mu     sync.RWMutex
	ring   []*core.Frame
	cap    int
	head   int
	count  int

	backoffBase time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Loop with a ring sized by settings.BufferCapacity().
func New(adapter platform.Adapter, settings *core.Settings, logger core.Logger) *Loop {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	capacity := settings.RingCapacity()
	if capacity < 1 {
		capacity = 1
	}
	return &Loop{
		adapter:     adapter,
		settings:    settings,
		logger:      logger,
		ring:        make([]*core.Frame, capacity),
		cap:         capacity,
		backoffBase: time.Duration(settings.APIBackoffBaseSeconds * float64(time.Second)),
	}
}

// CaptureOnce pulls a single frame from the adapter and pushes it into the
// ring, without waiting for the next tick.
func (l *Loop) CaptureOnce(ctx context.Context) (*core.Frame, error) {
	f, err := l.adapter.CaptureFrame(ctx)
	if err != nil {
		return nil, err
	}
	l.push(f)
	return f, nil
}

// Start launches the producer goroutine at target_fps until ctx is canceled
// or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop cancels the producer goroutine and waits for it to exit.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	interval := time.Second / time.Duration(max(l.settings.TargetFPS, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := l.adapter.CaptureFrame(ctx)
			if err != nil {
				consecutiveFailures++
				l.logger.Warn("capture failed", map[string]interface{}{
					"consecutive_failures": consecutiveFailures,
					"error":                err.Error(),
				})
				if reg := core.GetGlobalMetricsRegistry(); reg != nil {
					reg.IncrCounter(telemetry.MetricCaptureFailures, nil)
				}
				if consecutiveFailures >= consecutiveFailuresBeforeBackoff {
					l.logger.Warn("pausing capture loop after repeated failures", map[string]interface{}{
						"backoff": l.backoffBase.String(),
					})
					select {
					case <-ctx.Done():
						return
					case <-time.After(l.backoffBase):
					}
					consecutiveFailures = 0
				}
				continue
			}
			consecutiveFailures = 0
			l.push(f)
			if reg := core.GetGlobalMetricsRegistry(); reg != nil {
				reg.IncrCounter(telemetry.MetricCaptureFrames, nil)
			}
		}
	}
}

func (l *Loop) push(f *core.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == l.cap {
		l.head = (l.head + 1) % l.cap
		if reg := core.GetGlobalMetricsRegistry(); reg != nil {
			reg.IncrCounter(telemetry.MetricCaptureDrops, nil)
		}
	} else {
		l.count++
	}
	idx := (l.head + l.count - 1) % l.cap
	l.ring[idx] = f
}

// Latest returns the most recently captured frame, or nil if none yet.
func (l *Loop) Latest() *core.Frame {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.count == 0 {
		return nil
	}
	idx := (l.head + l.count - 1) % l.cap
	return l.ring[idx]
}

// Range returns every buffered frame whose timestamp falls within
// [from, to], oldest first.
func (l *Loop) Range(from, to time.Time) []*core.Frame {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*core.Frame, 0, l.count)
	for i := 0; i < l.count; i++ {
		f := l.ring[(l.head+i)%l.cap]
		if f == nil {
			continue
		}
		if (f.Timestamp.Equal(from) || f.Timestamp.After(from)) && (f.Timestamp.Equal(to) || f.Timestamp.Before(to)) {
			out = append(out, f)
		}
	}
	return out
}
