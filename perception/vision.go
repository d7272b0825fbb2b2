package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zonepilot/zonepilot/core"
	"github.com/zonepilot/zonepilot/resilience"
)

// VisionResult is the full outcome of one Vision Analyzer call, including
// the parse-success-empty distinction the Canvas Mapper needs for the
// preservation rule.
type VisionResult struct {
	Zones       []core.Zone
	RawResponse string
	LatencyMs   int64
	TokenCount  int
	Success     bool
	Error       string
}

// zoneRecord mirrors the wire contract's JSON zone shape.
type zoneRecord struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Kind       string  `json:"kind"`
	State      string  `json:"state"`
	Bounds     boundsRecord `json:"bounds"`
	Confidence float64 `json:"confidence"`
	ParentID   string  `json:"parent_id,omitempty"`
}

type boundsRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type visionRequest struct {
	Image        []byte `json:"image"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	ContextHint  string `json:"context_hint"`
}

// VisionAnalyzer encodes a frame and requests a full zone inventory from a
// remote vision-capable LLM endpoint.
type VisionAnalyzer struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
	breaker    *resilience.CircuitBreaker

	timeout     time.Duration
	maxRetries  int
	backoffBase float64
}

// NewVisionAnalyzer builds a VisionAnalyzer. baseURL defaults to the
// endpoint named by ZONEPILOT_VISION_API_URL if empty; apiKey defaults to
// ZONEPILOT_VISION_API_KEY.
func NewVisionAnalyzer(apiKey, baseURL string, settings *core.Settings, logger core.Logger) *VisionAnalyzer {
	if apiKey == "" {
		apiKey = os.Getenv("ZONEPILOT_VISION_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("ZONEPILOT_VISION_API_URL")
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	cbConfig := resilience.DefaultConfig()
	cbConfig.Name = "vision_analyzer"
	cbConfig.Logger = logger
	breaker, err := resilience.NewCircuitBreaker(cbConfig)
	if err != nil {
		logger.Warn("vision analyzer circuit breaker misconfigured, running without one", map[string]interface{}{"error": err.Error()})
		breaker = nil
	}

	return &VisionAnalyzer{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:      logger,
		breaker:     breaker,
		timeout:     time.Duration(settings.APITimeoutVisionSeconds * float64(time.Second)),
		maxRetries:  settings.APIMaxRetries,
		backoffBase: settings.APIBackoffBaseSeconds,
	}
}

// Analyze encodes frame and context hint, calls the remote endpoint with
// retries on transient failure, and parses the structured reply.
func (v *VisionAnalyzer) Analyze(ctx context.Context, frame *core.Frame, contextHint string) VisionResult {
	if v.apiKey == "" || v.baseURL == "" {
		return VisionResult{Success: false, Error: "vision analyzer not configured"}
	}

	start := time.Now()

	op := func() (VisionResult, error) {
		if v.breaker == nil {
			return v.call(ctx, frame, contextHint)
		}
		var res VisionResult
		cbErr := v.breaker.Execute(ctx, func() error {
			var callErr error
			res, callErr = v.call(ctx, frame, contextHint)
			return callErr
		})
		if cbErr != nil && errors.Is(cbErr, core.ErrCircuitBreakerOpen) {
			return res, backoff.Permanent(cbErr)
		}
		return res, cbErr
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(maxInt(v.maxRetries, 1))),
		backoff.WithBackOff(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(resilience.APIBackoff(v.backoffBase, 0)),
		)),
	)
	result.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		v.logger.Warn("vision analyzer call failed after retries", map[string]interface{}{
			"error": err.Error(),
		})
		return VisionResult{Success: false, Error: err.Error(), LatencyMs: result.LatencyMs}
	}
	return result
}

func (v *VisionAnalyzer) call(ctx context.Context, frame *core.Frame, contextHint string) (VisionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	reqBody := visionRequest{
		Image:        frame.Pixels,
		ScreenWidth:  frame.Width,
		ScreenHeight: frame.Height,
		ContextHint:  contextHint,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return VisionResult{}, fmt.Errorf("marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL, bytes.NewReader(payload))
	if err != nil {
		return VisionResult{}, fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return VisionResult{}, err // network error: retryable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VisionResult{}, fmt.Errorf("read vision response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return VisionResult{}, fmt.Errorf("vision endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// Client errors are not transient; stop retrying by returning a
		// permanent error wrapper.
		return VisionResult{Success: false, Error: fmt.Sprintf("vision endpoint returned %d", resp.StatusCode), RawResponse: string(body)},
			backoff.Permanent(fmt.Errorf("vision endpoint returned %d", resp.StatusCode))
	}

	var records []zoneRecord
	if err := json.Unmarshal(body, &records); err != nil {
		// A parse failure is transient per the wire contract: it may be a
		// truncated or malformed response worth retrying.
		return VisionResult{}, fmt.Errorf("parse vision response: %w", err)
	}

	zones := make([]core.Zone, 0, len(records))
	now := frame.Timestamp
	for _, rec := range records {
		zones = append(zones, core.Zone{
			ID:         rec.ID,
			Label:      rec.Label,
			Kind:       core.ZoneKind(rec.Kind),
			State:      core.ZoneState(rec.State),
			Bounds:     core.Rect{X: rec.Bounds.X, Y: rec.Bounds.Y, W: rec.Bounds.W, H: rec.Bounds.H},
			Confidence: rec.Confidence,
			ParentID:   rec.ParentID,
			LastSeen:   now,
		})
	}

	// success=true with an empty zone list is a valid, distinct outcome
	// (parse-success-empty) that the caller must distinguish from failure.
	return VisionResult{
		Zones:       zones,
		RawResponse: string(body),
		Success:     true,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
