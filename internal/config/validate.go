package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks field constraints, duration strings, the timezone and the
// cross-section rules. It reports every violated field tag at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	for path, raw := range map[string]string{
		"storage.busy_timeout":        cfg.Storage.BusyTimeout,
		"scheduler.job_timeout":       cfg.Scheduler.JobTimeout,
		"scheduler.resync_interval":   cfg.Scheduler.ResyncInterval,
		"task_engine.max_queue_delay": cfg.TaskEngine.MaxQueueDelay,
		"telegram.timeout":            cfg.Telegram.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", cfg.Storage.Driver))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required when storage.driver=redis"))
		}
	}
	if strings.EqualFold(cfg.Dispatch.Driver, "telegram") && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when dispatch.driver=telegram"))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Storage.Redis.DB" into "Storage.Redis.DB".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
