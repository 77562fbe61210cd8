package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 600, cfg.Server.WriteTimeoutSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Log.Kafka.Brokers)
	assert.Equal(t, "http", cfg.Cache.Driver)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 300, cfg.HTTP.TimeoutSecs)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30, cfg.Breaker.ResetTimeoutSecs)
	assert.Equal(t, "tba-source-matcher", cfg.Registry.ServiceName)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 4, cfg.Engine.ParallelFetch)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
cache:
  driver: redis
  redis:
    addr: cache:6379
    db: 2
rules:
  url: http://rules.local/evaluate
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "http://rules.local/evaluate", cfg.Rules.URL)
	// Defaults still apply for unset values
	assert.Equal(t, 300, cfg.HTTP.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: redis
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MATCHER_CACHE_DRIVER", "http")
	t.Setenv("MATCHER_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MATCHER_SERVER_PORT", "3000")
	t.Setenv("MATCHER_INQUIRY_URL", "http://inquiry.local/tba")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "http://inquiry.local/tba", cfg.Inquiry.URL)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := chdirTemp(t)

	path := filepath.Join(dir, "matcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\nrules:\n  url: http://rules.local/eval\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://rules.local/eval", cfg.Rules.URL)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := chdirTemp(t)

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MATCHER_CACHE_DRIVER", "memcached")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: validate")
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Cache.Driver = "http"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "Port"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "Level"},
		{"bad url", func(c *Config) { c.Rules.URL = "not a url" }, "URL"},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }, "RateLimit"},
		{"kafka without topic", func(c *Config) { c.Log.Kafka.Brokers = []string{"k:9092"} }, "log.kafka.topic"},
		{"kafka with topic", func(c *Config) {
			c.Log.Kafka.Brokers = []string{"k:9092"}
			c.Log.Kafka.Topic = "logs"
		}, ""},
		{"consul without name", func(c *Config) { c.Registry.ConsulAddr = "consul:8500" }, "ServiceName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaCoreRecordLayout(t *testing.T) {
	rec := &recordingWriter{}
	sink := &KafkaSink{w: rec}
	logger := zap.New(NewKafkaCore(sink, zapcore.InfoLevel))

	logger.Info("hitting rule engine", zap.String("uid", "RQ-1"))
	logger.Debug("dropped")

	require.Len(t, rec.msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(rec.msgs[0].Value), &got))
	assert.Equal(t, "INFO", got["severity"])
	assert.Equal(t, "hitting rule engine", got["LogMessage"])
	assert.Equal(t, ServiceName, got["service"])
	assert.Equal(t, "true", got["exportable"])
	assert.Equal(t, "RQ-1", got["uid"])
	assert.Contains(t, got, "timestamp")

	require.NoError(t, sink.Close())
	assert.True(t, rec.closed)
}

func TestCloseLoggerWithoutSink(t *testing.T) {
	setSink(nil)
	assert.NotPanics(t, CloseLogger)
}
