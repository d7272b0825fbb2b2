package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the single immutable configuration value shared by read-only
// reference across every component. It is constructed once via NewSettings
// and never mutated afterward.
type Settings struct {
	TargetFPS      int     `yaml:"target_fps" env:"ZONEPILOT_TARGET_FPS" default:"15"`
	MaxFPS         int     `yaml:"max_fps" env:"ZONEPILOT_MAX_FPS" default:"30"`
	BufferSeconds  int     `yaml:"buffer_seconds" env:"ZONEPILOT_BUFFER_SECONDS" default:"5"`

	DiffThresholdPercent  float64 `yaml:"diff_threshold_percent" env:"ZONEPILOT_DIFF_THRESHOLD_PERCENT" default:"0.5"`
	Tier2ThresholdPercent float64 `yaml:"tier2_threshold_percent" env:"ZONEPILOT_TIER2_THRESHOLD_PERCENT" default:"30.0"`
	CursorDiffAreaCeiling float64 `yaml:"cursor_diff_area_ceiling" env:"ZONEPILOT_CURSOR_DIFF_AREA_CEILING" default:"0.01"`
	StabilityWaitMs       int     `yaml:"stability_wait_ms" env:"ZONEPILOT_STABILITY_WAIT_MS" default:"250"`

	MinZoneConfidence float64 `yaml:"min_zone_confidence" env:"ZONEPILOT_MIN_ZONE_CONFIDENCE" default:"0.4"`
	MaxZonesPerRegion int     `yaml:"max_zones_per_region" env:"ZONEPILOT_MAX_ZONES_PER_REGION" default:"50"`
	ZoneExpirySeconds int     `yaml:"zone_expiry_seconds" env:"ZONEPILOT_ZONE_EXPIRY_SECONDS" default:"60"`

	HoverThresholdMs         int     `yaml:"hover_threshold_ms" env:"ZONEPILOT_HOVER_THRESHOLD_MS" default:"500"`
	MotionSpeedPixelsPerSec  float64 `yaml:"motion_speed_pixels_per_sec" env:"ZONEPILOT_MOTION_SPEED_PIXELS_PER_SEC" default:"1500"`
	StepDelaySeconds         float64 `yaml:"step_delay_seconds" env:"ZONEPILOT_STEP_DELAY_SECONDS" default:"2.0"`

	APITimeoutVisionSeconds float64 `yaml:"api_timeout_vision_seconds" env:"ZONEPILOT_API_TIMEOUT_VISION_SECONDS" default:"60"`
	APITimeoutTextSeconds   float64 `yaml:"api_timeout_text_seconds" env:"ZONEPILOT_API_TIMEOUT_TEXT_SECONDS" default:"30"`
	APIMaxRetries           int     `yaml:"api_max_retries" env:"ZONEPILOT_API_MAX_RETRIES" default:"3"`
	APIBackoffBaseSeconds   float64 `yaml:"api_backoff_base_seconds" env:"ZONEPILOT_API_BACKOFF_BASE_SECONDS" default:"2.0"`

	MaxAPICalls     int `yaml:"max_api_calls" env:"ZONEPILOT_MAX_API_CALLS" default:"30"`
	MaxReplans      int `yaml:"max_replans" env:"ZONEPILOT_MAX_REPLANS" default:"5"`
	MaxStepRetries  int `yaml:"max_step_retries" env:"ZONEPILOT_MAX_STEP_RETRIES" default:"3"`

	RecapturedKeywords []string `yaml:"recapture_keywords" env:"ZONEPILOT_RECAPTURE_KEYWORDS"`

	RecordingEnabled bool   `yaml:"recording_enabled" env:"ZONEPILOT_RECORDING_ENABLED" default:"false"`
	SessionDir       string `yaml:"session_dir" env:"ZONEPILOT_SESSION_DIR" default:"./sessions"`

	LogLevel  string `yaml:"log_level" env:"ZONEPILOT_LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"ZONEPILOT_LOG_FORMAT" default:"text"`
}

// defaultRecaptureKeywords is the pinned keyword set from the wire contract
// (§6); configurable per Open Question (b) in DESIGN.md.
var defaultRecaptureKeywords = []string{
	"window", "dialog", "open", "launch", "appear", "application", "menu", "save as",
}

// Option mutates a Settings value during construction. Applied after
// defaults and environment variables, matching core.Config's three-layer
// priority.
type Option func(*Settings) error

// DefaultSettings returns the spec-mandated defaults before env/option
// overrides are applied.
func DefaultSettings() *Settings {
	return &Settings{
		TargetFPS:               15,
		MaxFPS:                  30,
		BufferSeconds:           5,
		DiffThresholdPercent:    0.5,
		Tier2ThresholdPercent:   30.0,
		CursorDiffAreaCeiling:   0.01,
		StabilityWaitMs:         250,
		MinZoneConfidence:       0.4,
		MaxZonesPerRegion:       50,
		ZoneExpirySeconds:       60,
		HoverThresholdMs:        500,
		MotionSpeedPixelsPerSec: 1500,
		StepDelaySeconds:        2.0,
		APITimeoutVisionSeconds: 60,
		APITimeoutTextSeconds:   30,
		APIMaxRetries:           3,
		APIBackoffBaseSeconds:   2.0,
		MaxAPICalls:             30,
		MaxReplans:              5,
		MaxStepRetries:          3,
		RecapturedKeywords:      append([]string(nil), defaultRecaptureKeywords...),
		RecordingEnabled:        false,
		SessionDir:              "./sessions",
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadFromEnv overrides s's fields from ZONEPILOT_* environment variables
// when present. Unknown or malformed values are ignored rather than
// rejected, per §6's forward-compatibility rule.
func (s *Settings) loadFromEnv() {
	if v := os.Getenv("ZONEPILOT_TARGET_FPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.TargetFPS = n
		}
	}
	if v := os.Getenv("ZONEPILOT_MAX_FPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxFPS = n
		}
	}
	if v := os.Getenv("ZONEPILOT_BUFFER_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.BufferSeconds = n
		}
	}
	if v := os.Getenv("ZONEPILOT_DIFF_THRESHOLD_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.DiffThresholdPercent = f
		}
	}
	if v := os.Getenv("ZONEPILOT_TIER2_THRESHOLD_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.Tier2ThresholdPercent = f
		}
	}
	if v := os.Getenv("ZONEPILOT_CURSOR_DIFF_AREA_CEILING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.CursorDiffAreaCeiling = f
		}
	}
	if v := os.Getenv("ZONEPILOT_STABILITY_WAIT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.StabilityWaitMs = n
		}
	}
	if v := os.Getenv("ZONEPILOT_MIN_ZONE_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.MinZoneConfidence = f
		}
	}
	if v := os.Getenv("ZONEPILOT_MAX_ZONES_PER_REGION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxZonesPerRegion = n
		}
	}
	if v := os.Getenv("ZONEPILOT_ZONE_EXPIRY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.ZoneExpirySeconds = n
		}
	}
	if v := os.Getenv("ZONEPILOT_HOVER_THRESHOLD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.HoverThresholdMs = n
		}
	}
	if v := os.Getenv("ZONEPILOT_MOTION_SPEED_PIXELS_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.MotionSpeedPixelsPerSec = f
		}
	}
	if v := os.Getenv("ZONEPILOT_STEP_DELAY_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.StepDelaySeconds = f
		}
	}
	if v := os.Getenv("ZONEPILOT_API_TIMEOUT_VISION_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.APITimeoutVisionSeconds = f
		}
	}
	if v := os.Getenv("ZONEPILOT_API_TIMEOUT_TEXT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.APITimeoutTextSeconds = f
		}
	}
	if v := os.Getenv("ZONEPILOT_API_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.APIMaxRetries = n
		}
	}
	if v := os.Getenv("ZONEPILOT_API_BACKOFF_BASE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.APIBackoffBaseSeconds = f
		}
	}
	if v := os.Getenv("ZONEPILOT_MAX_API_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxAPICalls = n
		}
	}
	if v := os.Getenv("ZONEPILOT_MAX_REPLANS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxReplans = n
		}
	}
	if v := os.Getenv("ZONEPILOT_MAX_STEP_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxStepRetries = n
		}
	}
	if v := os.Getenv("ZONEPILOT_RECAPTURE_KEYWORDS"); v != "" {
		s.RecapturedKeywords = parseStringList(v)
	}
	if v := os.Getenv("ZONEPILOT_RECORDING_ENABLED"); v != "" {
		s.RecordingEnabled = parseBool(v)
	}
	if v := os.Getenv("ZONEPILOT_SESSION_DIR"); v != "" {
		s.SessionDir = v
	}
	if v := os.Getenv("ZONEPILOT_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("ZONEPILOT_LOG_FORMAT"); v != "" {
		s.LogFormat = v
	}
}

// Validate checks cross-field invariants that a bad env value or option
// could otherwise silently violate.
func (s *Settings) Validate() error {
	if s.TargetFPS < 1 {
		return NewTaskError("Settings.Validate", ErrKindPlatformError, fmt.Errorf("target_fps must be >= 1: %w", ErrInvalidSettings))
	}
	if s.MaxFPS < s.TargetFPS {
		return NewTaskError("Settings.Validate", ErrKindPlatformError, fmt.Errorf("max_fps must be >= target_fps: %w", ErrInvalidSettings))
	}
	if s.BufferSeconds < 1 {
		return NewTaskError("Settings.Validate", ErrKindPlatformError, fmt.Errorf("buffer_seconds must be >= 1: %w", ErrInvalidSettings))
	}
	if s.MaxAPICalls < 0 || s.MaxReplans < 0 || s.MaxStepRetries < 0 {
		return NewTaskError("Settings.Validate", ErrKindPlatformError, fmt.Errorf("budget ceilings must be non-negative: %w", ErrInvalidSettings))
	}
	return nil
}

// NewSettings builds a Settings value: defaults, then environment overrides,
// then functional options, then validation.
func NewSettings(opts ...Option) (*Settings, error) {
	s := DefaultSettings()
	s.loadFromEnv()

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply settings option: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// BufferCapacity is the frame ring's depth in frames.
func (s *Settings) BufferCapacity() int {
	return s.BufferSeconds * s.TargetFPS
}

// RingCapacity is an alias of BufferCapacity kept for readability at call
// sites that talk about the capture ring rather than the buffer window.
func (s *Settings) RingCapacity() int { return s.BufferCapacity() }

// Dump serializes Settings to YAML, used by the recorded-session replay
// format to pin the configuration a session was captured under.
func (s *Settings) Dump() ([]byte, error) {
	return yaml.Marshal(s)
}

// LoadSettingsFromYAML parses a YAML document produced by Dump back into a
// Settings value, validating the result.
func LoadSettingsFromYAML(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Functional options, one per configurable concern a caller is likely to
// override explicitly rather than via environment.

func WithTargetFPS(fps int) Option {
	return func(s *Settings) error { s.TargetFPS = fps; return nil }
}

func WithMaxFPS(fps int) Option {
	return func(s *Settings) error { s.MaxFPS = fps; return nil }
}

func WithBufferSeconds(sec int) Option {
	return func(s *Settings) error { s.BufferSeconds = sec; return nil }
}

func WithStepDelaySeconds(sec float64) Option {
	return func(s *Settings) error { s.StepDelaySeconds = sec; return nil }
}

func WithBudget(maxAPICalls, maxReplans, maxStepRetries int) Option {
	return func(s *Settings) error {
		s.MaxAPICalls = maxAPICalls
		s.MaxReplans = maxReplans
		s.MaxStepRetries = maxStepRetries
		return nil
	}
}

func WithRecaptureKeywords(keywords []string) Option {
	return func(s *Settings) error {
		s.RecapturedKeywords = append([]string(nil), keywords...)
		return nil
	}
}

func WithRecording(enabled bool, sessionDir string) Option {
	return func(s *Settings) error {
		s.RecordingEnabled = enabled
		s.SessionDir = sessionDir
		return nil
	}
}

func WithLogging(level, format string) Option {
	return func(s *Settings) error {
		s.LogLevel = level
		s.LogFormat = format
		return nil
	}
}
