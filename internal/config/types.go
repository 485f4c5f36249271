package config

import "strings"

// Config is the daemon and CLI configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Telegram   TelegramConfig   `json:"telegram"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=TRACE DEBUG INFO WARN WARNING ERROR trace debug info warn warning error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

// StorageConfig selects the durable store for conversation configurations.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./replybot.db" }
type StorageConfig struct {
	Driver      string      `json:"driver" validate:"omitempty,oneof=memory file sqlite sqlite3 badger redis"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty" validate:"gte=0"`
	Prefix   string `json:"prefix,omitempty"`
}

// SchedulerConfig controls the cron trigger service.
//
// Defaults:
//   - timezone: Local
//   - job_timeout: "30s" (bounds one delivery)
//   - resync_interval: "1m" (reconcile with the store; "0s" disables)
type SchedulerConfig struct {
	Timezone       string `json:"timezone,omitempty"`
	JobTimeout     string `json:"job_timeout,omitempty"`
	ResyncInterval string `json:"resync_interval,omitempty"`
}

// TaskEngineConfig controls execution of fired jobs.
//
// Defaults: workers 2, queue_size 256, history_size 200, retry_max 3.
type TaskEngineConfig struct {
	Workers       int    `json:"workers,omitempty" validate:"gte=0,lte=256"`
	QueueSize     int    `json:"queue_size,omitempty" validate:"gte=0"`
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`
	HistorySize   int    `json:"history_size,omitempty" validate:"gte=0"`
	RetryMax      int    `json:"retry_max,omitempty" validate:"gte=0"`
}

type DispatchConfig struct {
	// Driver is "telegram" or "log" (default).
	Driver string `json:"driver,omitempty" validate:"omitempty,oneof=log telegram"`
}

type TelegramConfig struct {
	Token          string  `json:"token,omitempty"`
	APIURL         string  `json:"api_url,omitempty" validate:"omitempty,url"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	ParseMode      string  `json:"parse_mode,omitempty" validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
	DisablePreview bool    `json:"disable_preview,omitempty"`
	Timeout        string  `json:"timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Logging: LoggingConfig{Console: true}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills fields left empty by the file and the environment.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "INFO"
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.EqualFold(cfg.Storage.Driver, "file") && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./replybot_store"
	}
	if strings.TrimSpace(cfg.Dispatch.Driver) == "" {
		cfg.Dispatch.Driver = "log"
	}
}
