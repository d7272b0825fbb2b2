// Package canvas routes captured frames through the classifier, the region
// analyzer, and the vision analyzer, writing results into the Zone Registry.
package canvas

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/perception"
	"github.com/zonepilot/zonepilot/registry"
)

// Tier records which analysis tier a process_frame pass actually ran.
type Tier string

const (
	TierNone    Tier = "NONE"
	TierRegion  Tier = "REGION"
	TierVision  Tier = "VISION"
	TierWaiting Tier = "TRANSITIONING"
)

// MapperOutcome is the result of one process_frame pass.
type MapperOutcome struct {
	Verdict  perception.Verdict
	Tier     Tier
	Degraded bool // vision call returned empty-with-success or failed
	ZoneCount int
}

// Mapper wires the classifier, region analyzer, and vision analyzer against
// a shared Zone Registry.
type Mapper struct {
	classifier *perception.Classifier
	region     *perception.RegionAnalyzer
	vision     *perception.VisionAnalyzer
	zones      *registry.Registry
	logger     core.Logger

	recaptureGroup singleflight.Group
}

// New builds a Mapper over the given registry.
func New(classifier *perception.Classifier, region *perception.RegionAnalyzer, vision *perception.VisionAnalyzer, zones *registry.Registry, logger core.Logger) *Mapper {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	return &Mapper{
		classifier: classifier,
		region:     region,
		vision:     vision,
		zones:      zones,
		logger:     logger,
	}
}

// ProcessFrame routes frame through the tiering policy against previous (nil
// if this is the first frame of the session).
func (m *Mapper) ProcessFrame(ctx context.Context, frame, previous *core.Frame) MapperOutcome {
	if previous == nil {
		return m.runVision(ctx, frame)
	}

	verdict, diff := m.classifier.Classify(previous, frame)

	switch verdict {
	case perception.VerdictIdle, perception.VerdictCursorOnly:
		return MapperOutcome{Verdict: verdict, Tier: TierNone, ZoneCount: m.zones.Count()}

	case perception.VerdictTransitioning:
		return MapperOutcome{Verdict: verdict, Tier: TierWaiting, ZoneCount: m.zones.Count()}

	case perception.VerdictMinorUpdate:
		zones := m.region.Analyze(frame, diff.BBox)
		for _, z := range zones {
			m.zones.Register(z)
		}
		return MapperOutcome{Verdict: verdict, Tier: TierRegion, ZoneCount: m.zones.Count()}

	default: // CONTENT_CHANGE
		outcome := m.runVision(ctx, frame)
		outcome.Verdict = verdict
		return outcome
	}
}

func (m *Mapper) runVision(ctx context.Context, frame *core.Frame) MapperOutcome {
	result := m.vision.Analyze(ctx, frame, "")

	if result.Success && len(result.Zones) > 0 {
		m.zones.ReplaceAll(result.Zones)
		return MapperOutcome{Verdict: perception.VerdictContentChange, Tier: TierVision, ZoneCount: m.zones.Count()}
	}

	// Parse-success-empty or outright failure: preserve existing registry
	// contents and report degraded data.
	m.logger.Warn("vision pass degraded, preserving registry", map[string]interface{}{
		"success": result.Success,
		"error":   result.Error,
	})
	return MapperOutcome{
		Verdict:   perception.VerdictContentChange,
		Tier:      TierVision,
		Degraded:  true,
		ZoneCount: m.zones.Count(),
	}
}

// Recapture unconditionally invokes the Vision Analyzer and applies the same
// preservation rule as ProcessFrame. Concurrent callers collapse onto a
// single in-flight call.
func (m *Mapper) Recapture(ctx context.Context, frame *core.Frame) int {
	v, _, _ := m.recaptureGroup.Do("recapture", func() (interface{}, error) {
		outcome := m.runVision(ctx, frame)
		return outcome.ZoneCount, nil
	})
	return v.(int)
}

// RunIdleTicker periodically expires stale zones while no task is active,
// stopping when ctx is canceled. It is the idle-monitoring heartbeat; it
// never invokes the vision analyzer on its own.
func (m *Mapper) RunIdleTicker(ctx context.Context, interval time.Duration, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.zones.ExpireStale(time.Now(), maxAge)
			if len(removed) > 0 {
				m.logger.Debug("idle ticker expired zones", map[string]interface{}{
					"count": len(removed),
				})
			}
		}
	}
}
