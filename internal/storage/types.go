package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"replybot/internal/configuration"
)

// Config configures storage.
//
// Driver values: "memory" (default), "file", "sqlite", "badger", "redis".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "replybot:".
	Prefix string
}

// checkVersion enforces the conditional-write rule shared by all drivers:
// the stored version (0 when absent) must equal the caller's version.
func checkVersion(id string, stored int64, exists bool, want int64) error {
	cur := int64(0)
	if exists {
		cur = stored
	}
	if cur != want {
		return fmt.Errorf("%w: %s is at version %d, write based on %d", configuration.ErrVersionConflict, id, cur, want)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", configuration.ErrStoreUnavailable, op, err)
}

func encode(cfg configuration.ConversationConfig) ([]byte, error) {
	if cfg.Entries == nil {
		cfg.Entries = []configuration.ConfigEntry{}
	}
	return json.Marshal(cfg)
}

func decode(b []byte) (configuration.ConversationConfig, error) {
	var cfg configuration.ConversationConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return configuration.ConversationConfig{}, err
	}
	if cfg.Entries == nil {
		cfg.Entries = []configuration.ConfigEntry{}
	}
	return cfg, nil
}
