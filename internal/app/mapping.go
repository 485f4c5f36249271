package app

import (
	"fmt"
	"strings"
	"time"

	"replybot/internal/config"
	"replybot/internal/dispatch"
	"replybot/internal/storage"
	"replybot/internal/task/engine"
	"replybot/internal/task/scheduler"
	logx "replybot/pkg/logx"
)

const (
	defaultJobTimeout     = 30 * time.Second
	defaultResyncInterval = time.Minute
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	out := storage.Config{
		Driver: driver,
		Path:   strings.TrimSpace(sc.Path),
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	}
	return out, nil
}

func mapEngine(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.RetryMax < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: values must be >= 0")
	}
	// zero values pick the engine defaults
	return engine.Config{
		Workers:       te.Workers,
		QueueSize:     te.QueueSize,
		MaxQueueDelay: maxDelay,
		HistorySize:   te.HistorySize,
		RetryMax:      te.RetryMax,
	}, nil
}

func mapScheduler(cfg *config.Config) (scheduler.Config, time.Duration, time.Duration, error) {
	jobTimeout, err := config.ParseDurationOrDefault("scheduler.job_timeout", cfg.Scheduler.JobTimeout, defaultJobTimeout)
	if err != nil {
		return scheduler.Config{}, 0, 0, err
	}
	resync := defaultResyncInterval
	if raw := strings.TrimSpace(cfg.Scheduler.ResyncInterval); raw != "" {
		// an explicit "0s" disables the periodic reconcile
		if resync, err = config.ParseDurationField("scheduler.resync_interval", raw); err != nil {
			return scheduler.Config{}, 0, 0, err
		}
	}
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}, jobTimeout, resync, nil
}

func mapDispatch(cfg *config.Config) (dispatch.Config, error) {
	timeout, err := config.ParseDurationField("telegram.timeout", cfg.Telegram.Timeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Driver: cfg.Dispatch.Driver,
		Telegram: dispatch.TelegramConfig{
			Token:          cfg.Telegram.Token,
			URL:            strings.TrimSpace(cfg.Telegram.APIURL),
			RatePerSec:     cfg.Telegram.RatePerSec,
			ParseMode:      cfg.Telegram.ParseMode,
			DisablePreview: cfg.Telegram.DisablePreview,
			Timeout:        timeout,
		},
	}, nil
}
