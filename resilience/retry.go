package resilience

import (
	"math"
	"time"
)

// APIBackoff computes the delay before retry attempt N (0-indexed) per the
// api_backoff_base_seconds × 2^attempt schedule used by the Vision Analyzer
// and Task Planner (spec §4.4, §6). Attempt 0 yields baseSeconds itself, so
// callers seed backoff.WithInitialInterval with APIBackoff(base, 0).
func APIBackoff(baseSeconds float64, attempt int) time.Duration {
	return time.Duration(baseSeconds*math.Pow(2, float64(attempt))*1000) * time.Millisecond
}
