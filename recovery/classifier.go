// Package recovery implements the Error Classifier: a pure function mapping
// a failed step outcome and its retry count to a recovery decision.
package recovery

import "github.com/zonepilot/zonepilot/core"

type recoveryRow struct {
	severity        core.Severity
	whenRetries     core.RecoveryKind
	whenExhausted   core.RecoveryKind
	reanalyzeCanvas bool
}

var table = map[core.ErrorKind]recoveryRow{
	core.ErrKindZoneNotFound:            {core.SeverityMedium, core.RecoveryReplan, core.RecoveryAbort, true},
	core.ErrKindActionFailed:            {core.SeverityLow, core.RecoveryRetry, core.RecoveryReplan, false},
	core.ErrKindBrushLost:               {core.SeverityMedium, core.RecoveryReanalyze, core.RecoveryReplan, true},
	core.ErrKindTimeout:                 {core.SeverityLow, core.RecoveryRetry, core.RecoveryReplan, false},
	core.ErrKindParseError:              {core.SeverityLow, core.RecoverySkip, core.RecoverySkip, false},
	core.ErrKindUnsupportedGlobalAction: {core.SeverityHigh, core.RecoveryAbort, core.RecoveryAbort, false},
	core.ErrKindPlanInvalid:             {core.SeverityHigh, core.RecoveryReplan, core.RecoveryAbort, true},
	core.ErrKindBudgetExhausted:         {core.SeverityCritical, core.RecoveryAbort, core.RecoveryAbort, false},
}

// Classify maps result and the step's current retry count against the
// maximum allowed retries to a recovery decision. Unrecognized error kinds
// fall back to platform_error's row, treating the failure as abort-bound.
func Classify(result core.StepResult, retryCount, maxRetries int) core.Classification {
	row, ok := table[result.ErrorKind]
	if !ok {
		row = recoveryRow{core.SeverityHigh, core.RecoveryRetry, core.RecoveryAbort, false}
	}

	kind := result.ErrorKind
	if kind == "" {
		kind = core.ErrKindPlatformError
	}

	recovery := row.whenRetries
	if retryCount >= maxRetries {
		recovery = row.whenExhausted
	}

	return core.Classification{
		Kind:            kind,
		Severity:        row.severity,
		Recovery:        recovery,
		ReanalyzeCanvas: row.reanalyzeCanvas,
	}
}
