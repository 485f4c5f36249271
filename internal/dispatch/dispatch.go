package dispatch

import (
	"fmt"
	"strings"
	"time"

	"replybot/internal/task/scheduler"
	logx "replybot/pkg/logx"
)

// Config selects and configures the dispatcher. An empty driver means "log".
type Config struct {
	Driver   string
	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token string
	// URL overrides the Bot API endpoint (empty means api.telegram.org).
	URL            string
	RatePerSec     float64
	Burst          int
	ParseMode      string
	DisablePreview bool
	Timeout        time.Duration
	// Offline skips the getMe handshake on creation.
	Offline bool
}

// New builds the configured dispatcher.
func New(cfg Config, log logx.Logger) (scheduler.Dispatcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "log":
		return NewLog(log), nil
	case "telegram":
		return NewTelegram(cfg.Telegram, log)
	default:
		return nil, fmt.Errorf("unknown dispatch driver: %s", driver)
	}
}
