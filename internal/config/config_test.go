package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "replybot/pkg/logx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJSONAppliesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", `{"scheduler":{"timezone":"Asia/Jakarta"}}`)
	cfg, err := NewManager(p).Parse()
	require.NoError(t, err)
	require.Equal(t, "Asia/Jakarta", cfg.Scheduler.Timezone)
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, "file", cfg.Storage.Driver)
	require.Equal(t, "./replybot_store", cfg.Storage.Path)
	require.Equal(t, "log", cfg.Dispatch.Driver)
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", `
logging:
  level: DEBUG
storage:
  driver: sqlite
  path: ./replybot.db
  busy_timeout: 2s
task_engine:
  workers: 4
`)
	cfg, err := NewManager(p).Parse()
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "2s", cfg.Storage.BusyTimeout)
	require.Equal(t, 4, cfg.TaskEngine.Workers)
}

func TestParseRejects(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"unknown.json":  `{"storage":{"driver":"file","pth":"x"}}`,
		"trailing.json": `{} {}`,
		"driver.json":   `{"storage":{"driver":"postgres"}}`,
		"tz.json":       `{"scheduler":{"timezone":"Mars/Olympus"}}`,
		"dur.json":      `{"scheduler":{"job_timeout":"soon"}}`,
		"neg.json":      `{"task_engine":{"workers":-1}}`,
		"redis.json":    `{"storage":{"driver":"redis"}}`,
		"token.json":    `{"dispatch":{"driver":"telegram"}}`,
		"bad.yaml":      "storage: [unterminated",
	}
	for name, body := range tests {
		p := writeFile(t, dir, name, body)
		_, err := NewManager(p).Parse()
		require.Error(t, err, name)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.TaskEngine.Workers = -1
	cfg.Storage.Redis.DB = -2
	err := Validate(cfg)
	require.ErrorContains(t, err, "TaskEngine.Workers")
	require.ErrorContains(t, err, "Storage.Redis.DB")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REPLYBOT_STORAGE_DRIVER", "redis")
	t.Setenv("REPLYBOT_REDIS_ADDR", "localhost:6379")
	t.Setenv("REPLYBOT_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("REPLYBOT_DISPATCH_DRIVER", "telegram")
	p := writeFile(t, t.TempDir(), "config.json", `{"storage":{"driver":"file","path":"./x"}}`)
	cfg, err := NewManager(p).Parse()
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Storage.Driver)
	require.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Equal(t, "telegram", cfg.Dispatch.Driver)
}

func TestLoadDotenvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "test.env", "REPLYBOT_TEST_DOTENV=loaded\n")
	t.Setenv("REPLYBOT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("REPLYBOT_TEST_DOTENV"))
	require.NoError(t, LoadDotenv(filepath.Join(dir, "missing.env"), p))
	require.Equal(t, "loaded", os.Getenv("REPLYBOT_TEST_DOTENV"))
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := NewManager("").Load()
	require.NoError(t, err)
	require.True(t, cfg.Logging.Console)
	require.Equal(t, "file", cfg.Storage.Driver)
}

func TestDurationHelpers(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)
	d, err = ParseDurationField("x", "90s")
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, d)
	_, err = ParseDurationField("x", "-1s")
	require.EqualError(t, err, "x: duration must be >= 0")
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a := Default()
	b := Default()
	b.Telegram.Token = "secret-token"
	b.Scheduler.Timezone = "UTC"
	sections, attrs := SummarizeChange(a, b)
	require.Equal(t, []string{"scheduler", "telegram"}, sections)
	require.Equal(t, []string{"telegram"}, RestartRequired(sections))
	require.NotEmpty(t, attrs)

	sections, _ = SummarizeChange(a, Default())
	require.Empty(t, sections)
}

func TestWatchPublishesChanges(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", `{"logging":{"level":"INFO"}}`)
	m := NewManager(p)
	m.SetLogger(logx.Nop())
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// the watcher may need a moment to register; rewrite until it sees one
	require.Eventually(t, func() bool {
		_ = os.WriteFile(p, []byte(`{"logging":{"level":"DEBUG"}}`), 0o600)
		select {
		case cfg := <-sub:
			return cfg.Logging.Level == "DEBUG"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, "DEBUG", m.Get().Logging.Level)
}
