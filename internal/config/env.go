package config

import (
	"errors"
	"io/fs"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every override variable.
const EnvPrefix = "REPLYBOT_"

// overrides are applied on top of the file. Unset variables leave the
// file value alone.
type overrides struct {
	LogLevel      *string `env:"REPLYBOT_LOG_LEVEL"`
	StorageDriver *string `env:"REPLYBOT_STORAGE_DRIVER"`
	StoragePath   *string `env:"REPLYBOT_STORAGE_PATH"`
	RedisAddr     *string `env:"REPLYBOT_REDIS_ADDR"`
	RedisPassword *string `env:"REPLYBOT_REDIS_PASSWORD"`
	Timezone      *string `env:"REPLYBOT_SCHEDULER_TIMEZONE"`
	Dispatch      *string `env:"REPLYBOT_DISPATCH_DRIVER"`
	TelegramToken *string `env:"REPLYBOT_TELEGRAM_TOKEN"`
}

// LoadDotenv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var o overrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Path, o.StoragePath)
	set(&cfg.Storage.Redis.Addr, o.RedisAddr)
	set(&cfg.Storage.Redis.Password, o.RedisPassword)
	set(&cfg.Scheduler.Timezone, o.Timezone)
	set(&cfg.Dispatch.Driver, o.Dispatch)
	set(&cfg.Telegram.Token, o.TelegramToken)
	return nil
}
