package core

import "time"

// Frame is an owned pixel buffer with its capture metadata. Immutable
// after production; the Capture Loop is the only writer.
type Frame struct {
	Pixels    []byte
	Width     int
	Height    int
	Timestamp time.Time
	CursorX   int
	CursorY   int
}

// ZoneKind enumerates the interactive element categories a zone can be.
type ZoneKind string

const (
	ZoneKindButton     ZoneKind = "button"
	ZoneKindTextField  ZoneKind = "text_field"
	ZoneKindMenuItem   ZoneKind = "menu_item"
	ZoneKindIcon       ZoneKind = "icon"
	ZoneKindCheckbox   ZoneKind = "checkbox"
	ZoneKindLink       ZoneKind = "link"
	ZoneKindScrollArea ZoneKind = "scroll_area"
	ZoneKindOther      ZoneKind = "other"
)

// ZoneState enumerates the observed interaction state of a zone.
type ZoneState string

const (
	ZoneStateEnabled  ZoneState = "enabled"
	ZoneStateDisabled ZoneState = "disabled"
	ZoneStateFocused  ZoneState = "focused"
	ZoneStateHovered  ZoneState = "hovered"
	ZoneStatePressed  ZoneState = "pressed"
	ZoneStateChecked  ZoneState = "checked"
	ZoneStateUnchecked ZoneState = "unchecked"
)

// Rect is an axis-aligned rectangle in logical screen coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Empty reports whether the rectangle has zero or negative area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Area returns the rectangle's area.
func (r Rect) Area() float64 { return r.W * r.H }

// Center returns the rectangle's midpoint, the default aim point for motion.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Contains reports whether (x, y) lies within the rectangle, inclusive of
// the lower bound and exclusive of the upper bound.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Zone is a bounded, labeled, interactive region of the screen.
type Zone struct {
	ID         string
	Label      string
	Kind       ZoneKind
	State      ZoneState
	Bounds     Rect
	Confidence float64
	ParentID   string
	LastSeen   time.Time
}

// SpatialEventKind distinguishes cursor/zone interaction transitions.
type SpatialEventKind string

const (
	EventEnter SpatialEventKind = "ENTER"
	EventExit  SpatialEventKind = "EXIT"
	EventHover SpatialEventKind = "HOVER"
)

// SpatialEvent records one cursor-to-zone transition observed by the tracker.
type SpatialEvent struct {
	Kind      SpatialEventKind
	ZoneID    string
	X, Y      float64
	Timestamp time.Time
	DwellMs   int64 // HOVER only
}

// ActionKind enumerates the atomic input operations the Action Executor
// and Step Executor can dispatch.
type ActionKind string

const (
	ActionClick       ActionKind = "CLICK"
	ActionDoubleClick ActionKind = "DOUBLE_CLICK"
	ActionTypeText    ActionKind = "TYPE_TEXT"
	ActionKeyPress    ActionKind = "KEY_PRESS"
	ActionScroll      ActionKind = "SCROLL"
	ActionMove        ActionKind = "MOVE"
	ActionDrag        ActionKind = "DRAG"
)

// ActionStatus tracks one Action's lifecycle.
type ActionStatus string

const (
	ActionPending    ActionStatus = "PENDING"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionFailed     ActionStatus = "FAILED"
)

// Action is one dispatchable input operation, optionally targeted at a zone.
type Action struct {
	Kind         ActionKind
	TargetZoneID string
	Parameters   map[string]interface{}
	Status       ActionStatus
}

// Sentinel zone ids reserved by the external Task Planner contract.
const (
	ZoneGlobal  = "__global__"
	ZoneReplan  = "__replan__"
)

// TaskStep is one instruction in a TaskPlan.
type TaskStep struct {
	StepNumber     int
	ZoneID         string
	ZoneLabel      string
	ActionType     ActionKind
	Parameters     map[string]interface{}
	ExpectedChange string
	Description    string
}

// IsGlobal reports whether the step targets no zone and executes via the
// platform adapter directly.
func (s TaskStep) IsGlobal() bool { return s.ZoneID == ZoneGlobal }

// IsReplan reports whether the step is the replan sentinel.
func (s TaskStep) IsReplan() bool { return s.ZoneID == ZoneReplan }

// TaskPlan is an ordered sequence of steps returned by the Task Planner.
type TaskPlan struct {
	TaskDescription string
	Steps           []TaskStep
	RawResponse     string
	Success         bool
	Error           string
	APICallsUsed    int
	LatencyMs       int64
}

// StepResult records the outcome of executing a single TaskStep.
type StepResult struct {
	Step      TaskStep
	Success   bool
	Events    []SpatialEvent
	Error     string
	ErrorKind ErrorKind
	Timestamp time.Time
}

// TaskResult is the final, user-visible outcome of a run_task invocation.
type TaskResult struct {
	Success          bool
	CompletedSteps   int
	PlansUsed        int
	APICallsUsed     int
	FinalError       string
	FinalErrorKind   ErrorKind
}

// RecoveryKind enumerates how the Director should respond to a classified
// step failure.
type RecoveryKind string

const (
	RecoveryRetry     RecoveryKind = "RETRY"
	RecoveryReplan    RecoveryKind = "REPLAN"
	RecoveryReanalyze RecoveryKind = "REANALYZE"
	RecoverySkip      RecoveryKind = "SKIP"
	RecoveryAbort     RecoveryKind = "ABORT"
)

// Severity ranks how serious a classified error is, informal but carried
// through to logs/metrics.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the Error Classifier's verdict for one failed step.
type Classification struct {
	Kind             ErrorKind
	Severity         Severity
	Recovery         RecoveryKind
	ReanalyzeCanvas  bool
}
