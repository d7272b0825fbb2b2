// Package planning defines the external Task Planner contract and the
// deterministic validation rules the Director applies to every plan it
// returns.
package planning

import (
	"context"

	"github.com/zonepilot/zonepilot/core"
)

// ZoneSummary is the reduced zone shape sent to the Task Planner: enough to
// target a step without leaking full registry internals.
type ZoneSummary struct {
	ID    string
	Label string
	Kind  core.ZoneKind
	State core.ZoneState
	X, Y  float64 // bounds center
}

// Request carries everything the Task Planner needs to produce a plan.
type Request struct {
	TaskDescription string
	PlatformName    string
	Zones           []ZoneSummary
	CompletedSteps  []string
}

// Planner is the external contract the Director calls into. Concrete
// implementations talk to a remote text LLM; this package only pins the
// interface and the response-shape validation rules.
type Planner interface {
	Plan(ctx context.Context, req Request) core.TaskPlan
}

// Violation is one deterministic rule breach found in a TaskPlan.
type Violation struct {
	StepNumber int
	Rule       string
	Message    string
}

// Validate checks a returned plan against the planner contract's explicit
// rules (§4.12), independent of whatever the planner's prompt claims to
// enforce. Any violation means the Director should treat the plan as
// plan_invalid rather than executing it. It checks that every zone-bound
// CLICK carries a zone id present in zones, that no CLICK targets
// __global__, and that every TYPE_TEXT is a __global__ step. It does not
// check zone-id reuse, whether a UI transition is followed by __replan__,
// or whether a step repeats an already completed one.
func Validate(plan core.TaskPlan, zones []core.Zone) []Violation {
	var violations []Violation

	known := make(map[string]bool, len(zones))
	for _, z := range zones {
		known[z.ID] = true
	}

	for _, step := range plan.Steps {
		if step.ActionType == core.ActionClick && !step.IsGlobal() && !step.IsReplan() {
			if step.ZoneID == "" {
				violations = append(violations, Violation{
					StepNumber: step.StepNumber, Rule: "click_requires_zone",
					Message: "CLICK step carries no zone id",
				})
			} else if !known[step.ZoneID] {
				violations = append(violations, Violation{
					StepNumber: step.StepNumber, Rule: "click_requires_known_zone",
					Message: "CLICK targets zone id not present in supplied zone list: " + step.ZoneID,
				})
			}
		}

		if step.ActionType == core.ActionClick && step.IsGlobal() {
			violations = append(violations, Violation{
				StepNumber: step.StepNumber, Rule: "click_not_global",
				Message: "CLICK step must never target __global__",
			})
		}

		if step.ActionType == core.ActionTypeText && !step.IsGlobal() {
			violations = append(violations, Violation{
				StepNumber: step.StepNumber, Rule: "type_text_must_be_global",
				Message: "TYPE_TEXT must be dispatched as a __global__ step, optionally preceded by a CLICK into the target field",
			})
		}
	}

	return violations
}
