package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Distribution, cfg.Distribution)
	assert.Equal(t, 48, cfg.Sweeper.GraceHours)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docketflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file/db
distribution:
  default_limit: 7
sweeper:
  grace_hours: 72
logging:
  format: json
`), 0o600))
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("KAFKA_TOPIC", "docket.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "docket.test", cfg.Kafka.Topic)
	assert.Equal(t, 7, cfg.Distribution.DefaultLimit)
	assert.Equal(t, 72, cfg.Sweeper.GraceHours)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestApplyEnvRejectsBadInteger(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "RELAY_BATCH_SIZE" {
			return "lots"
		}
		return ""
	})
	assert.ErrorContains(t, err, "RELAY_BATCH_SIZE")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Distribution.DefaultLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Distribution.TimeZone = "Mars/Olympus_Mons"
	assert.ErrorContains(t, cfg.Validate(), "time_zone")
}

func TestDistributionLocation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.UTC, cfg.Distribution.Location())

	require.NoError(t, cfg.ApplyEnv(func(k string) string {
		if k == "DISTRIBUTION_TIME_ZONE" {
			return "America/New_York"
		}
		return ""
	}))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "America/New_York", cfg.Distribution.Location().String())
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())

	NewLogger(LoggingConfig{Level: "debug", Format: "json"}, &buf).Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
