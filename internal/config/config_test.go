package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/konsulin-care/focus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte(body), 0644))
	return root
}

func TestLoad_Defaults(t *testing.T) {
	conf, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "5050", conf.Server.Port)
	assert.False(t, conf.Database.Enabled)
	assert.Equal(t, 648, conf.Test.TotalTrials)
	assert.Equal(t, 100.0, conf.Test.StimulusDurationMs)
	assert.Equal(t, 1900.0, conf.Test.InterstimulusIntervalMs)
	assert.Equal(t, 3000.0, conf.Test.BufferMs)
	assert.Equal(t, 1.80, conf.Scoring.CompositeConstant)
	assert.Equal(t, -1.80, conf.Scoring.BorderlineThreshold)
	assert.Equal(t, 5, conf.Scoring.MinValidResponses)

	settings := conf.SessionSettings()
	assert.Equal(t, 648, settings.TotalTrials)
	assert.Equal(t, 2*time.Second, settings.Timing.Period())
	assert.Equal(t, 3*time.Second, settings.Timing.Buffer)
	assert.Equal(t, 10.0, settings.Scoring.AnticipatoryMaxPercent)
}

func TestLoad_FileAndEnv(t *testing.T) {
	root := writeConfig(t, `
test:
  total_trials: 40
  buffer_ms: 500
scoring:
  min_valid_responses: 3
`)
	t.Setenv("FOCUS_SERVER_PORT", "9090")
	t.Setenv("FOCUS_TEST_STIMULUS_DURATION_MS", "250")

	conf, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "9090", conf.Server.Port)
	assert.Equal(t, 40, conf.Test.TotalTrials)
	assert.Equal(t, 250.0, conf.Test.StimulusDurationMs)
	assert.Equal(t, 500*time.Millisecond, conf.Timing().Buffer)
	assert.Equal(t, 3, conf.ScoringConfig().MinValidResponses)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"odd trials":           "test:\n  total_trials: 649\n",
		"too few trials":       "test:\n  total_trials: 0\n",
		"zero stimulus":        "test:\n  stimulus_duration_ms: 0\n",
		"negative isi":         "test:\n  interstimulus_interval_ms: -1\n",
		"negative buffer":      "test:\n  buffer_ms: -10\n",
		"inverted thresholds":  "scoring:\n  borderline_threshold: 1\n  normal_threshold: 0\n",
		"negative anticipated": "scoring:\n  anticipatory_max_percent: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestInit_ReturnsHolder(t *testing.T) {
	root := writeConfig(t, "test:\n  total_trials: 20\n")
	holder, err := Init(root, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 20, holder.Get().Test.TotalTrials)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "focus"}
	assert.Equal(t, "host=db user=u password=p dbname=focus port=5432 sslmode=disable", d.DSN())
}
