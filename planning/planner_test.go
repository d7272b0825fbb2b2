package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zonepilot/zonepilot/core"
)

func TestValidateClickRequiresKnownZone(t *testing.T) {
	plan := core.TaskPlan{Steps: []core.TaskStep{
		{StepNumber: 1, ZoneID: "missing", ActionType: core.ActionClick},
	}}
	violations := Validate(plan, nil)
	assertHasRule(t, violations, "click_requires_known_zone")
}

func TestValidateClickMustCarryZoneID(t *testing.T) {
	plan := core.TaskPlan{Steps: []core.TaskStep{
		{StepNumber: 1, ZoneID: "", ActionType: core.ActionClick},
	}}
	violations := Validate(plan, nil)
	assertHasRule(t, violations, "click_requires_zone")
}

func TestValidateClickCannotTargetGlobal(t *testing.T) {
	plan := core.TaskPlan{Steps: []core.TaskStep{
		{StepNumber: 1, ZoneID: core.ZoneGlobal, ActionType: core.ActionClick},
	}}
	violations := Validate(plan, nil)
	assertHasRule(t, violations, "click_not_global")
}

func TestValidateTypeTextMustBeGlobal(t *testing.T) {
	plan := core.TaskPlan{Steps: []core.TaskStep{
		{StepNumber: 1, ZoneID: "z1", ActionType: core.ActionTypeText},
	}}
	violations := Validate(plan, []core.Zone{{ID: "z1"}})
	assertHasRule(t, violations, "type_text_must_be_global")
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	plan := core.TaskPlan{Steps: []core.TaskStep{
		{StepNumber: 1, ZoneID: "z1", ActionType: core.ActionClick},
		{StepNumber: 2, ZoneID: core.ZoneGlobal, ActionType: core.ActionTypeText},
		{StepNumber: 3, ZoneID: core.ZoneReplan},
	}}
	violations := Validate(plan, []core.Zone{{ID: "z1"}})
	assert.Empty(t, violations)
}

func assertHasRule(t *testing.T, violations []Violation, rule string) bool {
	t.Helper()
	for _, v := range violations {
		if v.Rule == rule {
			return true
		}
	}
	t.Errorf("expected a violation with rule %q, got %+v", rule, violations)
	return false
}
