package planning

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

// HTTPPlanner is the default Planner implementation: it POSTs the wire
// contract request to a remote text LLM endpoint and parses the JSON step
// array reply.
type HTTPPlanner struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
	breaker    *resilience.CircuitBreaker

	timeout     time.Duration
	maxRetries  int
	backoffBase float64
}

// NewHTTPPlanner builds an HTTPPlanner. apiKey/baseURL default to
// ZONEPILOT_PLANNER_API_KEY / ZONEPILOT_PLANNER_API_URL when empty.
func NewHTTPPlanner(apiKey, baseURL string, settings *core.Settings, logger core.Logger) *HTTPPlanner {
	if apiKey == "" {
		apiKey = os.Getenv("ZONEPILOT_PLANNER_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("ZONEPILOT_PLANNER_API_URL")
	}
	if logger == nil {
		logger = core.NoOpLogger{}
	}

	cbConfig := resilience.DefaultConfig()
	cbConfig.Name = "task_planner"
	cbConfig.Logger = logger
	breaker, err := resilience.NewCircuitBreaker(cbConfig)
	if err != nil {
		logger.Warn("task planner circuit breaker misconfigured, running without one", map[string]interface{}{"error": err.Error()})
		breaker = nil
	}

	return &HTTPPlanner{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:      logger,
		breaker:     breaker,
		timeout:     time.Duration(settings.APITimeoutTextSeconds * float64(time.Second)),
		maxRetries:  settings.APIMaxRetries,
		backoffBase: settings.APIBackoffBaseSeconds,
	}
}

type zoneWire struct {
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Kind   string            `json:"kind"`
	State  string            `json:"state"`
	Center [2]float64        `json:"center"`
}

type planRequestWire struct {
	TaskDescription string     `json:"task_description"`
	PlatformName    string     `json:"platform_name"`
	Zones           []zoneWire `json:"zones"`
	CompletedSteps  []string   `json:"completed_steps"`
}

type stepWire struct {
	StepNumber     int                    `json:"step_number"`
	ZoneID         string                 `json:"zone_id"`
	ZoneLabel      string                 `json:"zone_label"`
	ActionType     string                 `json:"action_type"`
	Parameters     map[string]interface{} `json:"parameters"`
	ExpectedChange string                 `json:"expected_change"`
	Description    string                 `json:"description"`
}

// Plan implements Planner.
func (p *HTTPPlanner) Plan(ctx context.Context, req Request) core.TaskPlan {
	if p.apiKey == "" || p.baseURL == "" {
		return core.TaskPlan{TaskDescription: req.TaskDescription, Success: false, Error: "task planner not configured"}
	}

	start := time.Now()
	op := func() (core.TaskPlan, error) {
		if p.breaker == nil {
			return p.call(ctx, req)
		}
		var res core.TaskPlan
		cbErr := p.breaker.Execute(ctx, func() error {
			var callErr error
			res, callErr = p.call(ctx, req)
			return callErr
		})
		if cbErr != nil && errors.Is(cbErr, core.ErrCircuitBreakerOpen) {
			return res, backoff.Permanent(cbErr)
		}
		return res, cbErr
	}
	result, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(maxInt(p.maxRetries, 1))),
		backoff.WithBackOff(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(resilience.APIBackoff(p.backoffBase, 0)),
		)),
	)

	result.LatencyMs = time.Since(start).Milliseconds()
	result.APICallsUsed = 1
	result.TaskDescription = req.TaskDescription

	if err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	return result
}

func (p *HTTPPlanner) call(ctx context.Context, req Request) (core.TaskPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	wire := planRequestWire{
		TaskDescription: req.TaskDescription,
		PlatformName:    req.PlatformName,
		CompletedSteps:  req.CompletedSteps,
	}
	for _, z := range req.Zones {
		wire.Zones = append(wire.Zones, zoneWire{
			ID: z.ID, Label: z.Label, Kind: string(z.Kind), State: string(z.State),
			Center: [2]float64{z.X, z.Y},
		})
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return core.TaskPlan{}, fmt.Errorf("marshal plan request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return core.TaskPlan{}, fmt.Errorf("build plan request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.TaskPlan{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.TaskPlan{}, fmt.Errorf("read plan response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return core.TaskPlan{}, fmt.Errorf("planner endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return core.TaskPlan{RawResponse: string(body)}, backoff.Permanent(fmt.Errorf("planner endpoint returned %d", resp.StatusCode))
	}

	var steps []stepWire
	if err := json.Unmarshal(body, &steps); err != nil {
		return core.TaskPlan{}, fmt.Errorf("parse plan response: %w", err)
	}
	if len(steps) == 0 {
		return core.TaskPlan{RawResponse: string(body), Success: false, Error: "empty plan"}, nil
	}

	out := make([]core.TaskStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, core.TaskStep{
			StepNumber:     s.StepNumber,
			ZoneID:         s.ZoneID,
			ZoneLabel:      s.ZoneLabel,
			ActionType:     core.ActionKind(s.ActionType),
			Parameters:     s.Parameters,
			ExpectedChange: s.ExpectedChange,
			Description:    s.Description,
		})
	}

	return core.TaskPlan{Steps: out, RawResponse: string(body), Success: true}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ Planner = (*HTTPPlanner)(nil)
