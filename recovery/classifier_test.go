package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zonepilot/zonepilot/core"
)

func TestClassifyRetriesWhileBudgetRemains(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindActionFailed}
	c := Classify(result, 0, 3)
	assert.Equal(t, core.RecoveryRetry, c.Recovery)
	assert.Equal(t, core.SeverityLow, c.Severity)
}

func TestClassifyFallsBackToExhaustedRecoveryAtLimit(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindActionFailed}
	c := Classify(result, 3, 3)
	assert.Equal(t, core.RecoveryReplan, c.Recovery)
}

func TestClassifyBrushLostReanalyzes(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindBrushLost}
	c := Classify(result, 0, 3)
	assert.Equal(t, core.RecoveryReanalyze, c.Recovery)
	assert.True(t, c.ReanalyzeCanvas)
}

func TestClassifyUnsupportedGlobalActionAlwaysAborts(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindUnsupportedGlobalAction}
	assert.Equal(t, core.RecoveryAbort, Classify(result, 0, 3).Recovery)
	assert.Equal(t, core.RecoveryAbort, Classify(result, 3, 3).Recovery)
}

func TestClassifyBudgetExhaustedIsCritical(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindBudgetExhausted}
	c := Classify(result, 0, 3)
	assert.Equal(t, core.SeverityCritical, c.Severity)
	assert.Equal(t, core.RecoveryAbort, c.Recovery)
}

func TestClassifyParseErrorAlwaysSkips(t *testing.T) {
	result := core.StepResult{ErrorKind: core.ErrKindParseError}
	assert.Equal(t, core.RecoverySkip, Classify(result, 0, 3).Recovery)
	assert.Equal(t, core.RecoverySkip, Classify(result, 3, 3).Recovery)
}
