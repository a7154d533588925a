package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 2*time.Second, cfg.AutosaveQuietPeriod)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOSAVE_QUIET_PERIOD", "500ms")
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("ENABLE_METRICS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.AutosaveQuietPeriod)
	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.False(t, cfg.EnableMetrics)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		DocumentServiceURL:  "http://localhost:5000",
		KnowledgeServiceURL: "http://localhost:5001",
		AutosaveQuietPeriod: time.Second,
	}
	assert.NoError(t, cfg.Validate())

	cfg.KnowledgeServiceURL = ""
	assert.Error(t, cfg.Validate())

	cfg.KnowledgeServiceURL = "http://localhost:5001"
	cfg.AutosaveQuietPeriod = 0
	assert.Error(t, cfg.Validate())
}

func TestTuningWatcher_NoFile(t *testing.T) {
	defaults := Tuning{MainNodeSpacing: 100, AutosaveQuietPeriod: 2 * time.Second}
	w, err := NewTuningWatcher("", defaults, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, defaults, w.Current())
}

func TestTuningWatcher_LoadsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("main_node_spacing: 150\n"), 0o644))

	w, err := NewTuningWatcher(path, Tuning{MainNodeSpacing: 100}, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, 150.0, w.Current().MainNodeSpacing)

	changed := make(chan Tuning, 1)
	w.OnChange(func(tuning Tuning) {
		select {
		case changed <- tuning:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("main_node_spacing: 200\n"), 0o644))

	select {
	case tuning := <-changed:
		assert.Equal(t, 200.0, tuning.MainNodeSpacing)
	case <-time.After(5 * time.Second):
		t.Fatal("tuning reload was not observed")
	}
}

func TestTuningWatcher_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("autosave_quiet_period: -1s\n"), 0o644))

	_, err := NewTuningWatcher(path, Tuning{}, zap.NewNop())
	assert.Error(t, err)
}
