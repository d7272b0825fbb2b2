package perception

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonepilot/zonepilot/core"
)

func visionSettings(t *testing.T) *core.Settings {
	t.Helper()
	s, err := core.NewSettings()
	require.NoError(t, err)
	s.APITimeoutVisionSeconds = 2
	s.APIMaxRetries = 2
	return s
}

func TestVisionAnalyzerParsesZones(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]zoneRecord{
			{ID: "z1", Label: "OK", Kind: "button", State: "enabled", Bounds: boundsRecord{X: 1, Y: 2, W: 3, H: 4}, Confidence: 0.9},
		})
	}))
	defer server.Close()

	v := NewVisionAnalyzer("test-key", server.URL, visionSettings(t), nil)
	frame := &core.Frame{Width: 100, Height: 100, Timestamp: time.Now()}

	result := v.Analyze(context.Background(), frame, "")
	require.True(t, result.Success)
	require.Len(t, result.Zones, 1)
	assert.Equal(t, "z1", result.Zones[0].ID)
	assert.Equal(t, core.ZoneKindButton, result.Zones[0].Kind)
}

func TestVisionAnalyzerParseSuccessEmptyIsDistinctFromFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	v := NewVisionAnalyzer("test-key", server.URL, visionSettings(t), nil)
	frame := &core.Frame{Width: 100, Height: 100, Timestamp: time.Now()}

	result := v.Analyze(context.Background(), frame, "")
	assert.True(t, result.Success)
	assert.Empty(t, result.Zones)
	assert.Empty(t, result.Error)
}

func TestVisionAnalyzerServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	v := NewVisionAnalyzer("test-key", server.URL, visionSettings(t), nil)
	frame := &core.Frame{Width: 100, Height: 100, Timestamp: time.Now()}

	result := v.Analyze(context.Background(), frame, "")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestVisionAnalyzerMissingConfigFailsFast(t *testing.T) {
	v := NewVisionAnalyzer("", "", visionSettings(t), nil)
	frame := &core.Frame{Width: 100, Height: 100, Timestamp: time.Now()}

	result := v.Analyze(context.Background(), frame, "")
	assert.False(t, result.Success)
	assert.Equal(t, "vision analyzer not configured", result.Error)
}
