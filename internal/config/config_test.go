package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEnvironment(t *testing.T) {
	tests := []struct {
		hostname string
		want     Environment
	}{
		{"localhost", Development},
		{"app.localhost", Development},
		{"127.0.0.1", Development},
		{"shop.example.com", Production},
		{"", Production},
	}
	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEnvironment(tt.hostname))
		})
	}
}

func TestResolve_ProductionDefaults(t *testing.T) {
	cfg, err := Resolve(Settings{ProjectID: "proj-1"}, Production)
	require.NoError(t, err)

	assert.Equal(t, ProductionBaseURL, cfg.APIBaseURL)
	assert.Equal(t, "proj-1", cfg.ProjectID)
	assert.Equal(t, 15*time.Minute, cfg.ActivityTimeout)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.BatchInterval)
	assert.False(t, cfg.IsDevelopment())
}

func TestResolve_DevelopmentDefaults(t *testing.T) {
	cfg, err := Resolve(Settings{}, Development)
	require.NoError(t, err)

	assert.Equal(t, DevelopmentBaseURL, cfg.APIBaseURL)
	assert.Equal(t, DevelopmentProjectID, cfg.ProjectID)
	assert.Equal(t, 5*time.Minute, cfg.ActivityTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestResolve_MissingProjectIDIsFatal(t *testing.T) {
	_, err := Resolve(Settings{APIBaseURL: "https://collector.example.com"}, Production)
	require.ErrorIs(t, err, ErrMissingProjectID)
}

func TestResolve_ExplicitSettingsWin(t *testing.T) {
	cfg, err := Resolve(Settings{
		APIBaseURL:              "https://collector.example.com/api/v1/",
		ProjectID:               "proj-2",
		ActivityTrackingTimeout: 60000,
		EventBatchSize:          3,
		EventBatchInterval:      500,
	}, Development)
	require.NoError(t, err)

	assert.Equal(t, "https://collector.example.com/api/v1", cfg.APIBaseURL)
	assert.Equal(t, "proj-2", cfg.ProjectID)
	assert.Equal(t, time.Minute, cfg.ActivityTimeout)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchInterval)
}

func TestResolve_RejectsInvalidBaseURL(t *testing.T) {
	_, err := Resolve(Settings{APIBaseURL: "not a url", ProjectID: "p"}, Production)
	require.Error(t, err)
}

func TestLoadSettingsFile_AllowsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagetrack.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  // collector
	  "apiBaseUrl": "https://collector.example.com/api/v1",
	  "projectId": "proj-3",
	  "eventBatchSize": 25, /* flush sooner */
	}`), 0o644))

	settings, err := LoadSettingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://collector.example.com/api/v1", settings.APIBaseURL)
	assert.Equal(t, "proj-3", settings.ProjectID)
	assert.Equal(t, 25, settings.EventBatchSize)
}

func TestLoadSettingsFile_Missing(t *testing.T) {
	_, err := LoadSettingsFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvProjectID:       "from-env",
		EnvActivityTimeout: "120000",
		EnvBatchSize:       "4",
		EnvBatchInterval:   "2000",
	}
	settings, err := ApplyEnv(Settings{ProjectID: "from-file", APIBaseURL: "https://a.example"}, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "from-env", settings.ProjectID)
	assert.Equal(t, "https://a.example", settings.APIBaseURL)
	assert.Equal(t, int64(120000), settings.ActivityTrackingTimeout)
	assert.Equal(t, 4, settings.EventBatchSize)
	assert.Equal(t, int64(2000), settings.EventBatchInterval)
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	_, err := ApplyEnv(Settings{}, func(k string) string {
		if k == EnvBatchSize {
			return "ten"
		}
		return ""
	})
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAGETRACK_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PAGETRACK_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("PAGETRACK_TEST_DOTENV"))
}
