package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"replybot/internal/configuration"
	logx "replybot/pkg/logx"
)

// redisStore keeps one JSON document per conversation under prefix+id and
// the set of known ids under prefix+"ids".
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (configuration.Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("ping", err)
	}
	return newRedisStore(rdb, cfg.Redis.Prefix, log), nil
}

func newRedisStore(rdb *redis.Client, prefix string, log logx.Logger) *redisStore {
	if prefix == "" {
		prefix = "replybot:"
	}
	return &redisStore{rdb: rdb, prefix: prefix, log: log}
}

func (s *redisStore) key(id string) string { return s.prefix + "conv:" + id }

func (s *redisStore) idsKey() string { return s.prefix + "ids" }

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) Find(ctx context.Context, id string) (configuration.ConversationConfig, bool, error) {
	cfg, ok, err := s.get(ctx, s.rdb, id)
	if err != nil {
		return configuration.ConversationConfig{}, false, unavailable("find", err)
	}
	return cfg, ok, nil
}

func (s *redisStore) Create(ctx context.Context, cfg configuration.ConversationConfig) error {
	cfg = cfg.Clone()
	cfg.Version = 1
	data, err := encode(cfg)
	if err != nil {
		return unavailable("encode", err)
	}
	key := s.key(cfg.ConversationID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.idsKey(), cfg.ConversationID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// someone else touched the key between WATCH and EXEC
		return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
	}
	return s.mapErr("create", err)
}

func (s *redisStore) Save(ctx context.Context, cfg configuration.ConversationConfig) error {
	cfg = cfg.Clone()
	key := s.key(cfg.ConversationID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, ok, err := s.get(ctx, tx, cfg.ConversationID)
		if err != nil {
			return err
		}
		if err := checkVersion(cfg.ConversationID, cur.Version, ok, cfg.Version); err != nil {
			return err
		}
		cfg.Version++
		data, err := encode(cfg)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.idsKey(), cfg.ConversationID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s", configuration.ErrVersionConflict, cfg.ConversationID)
	}
	return s.mapErr("save", err)
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.idsKey(), id)
		return nil
	})
	return s.mapErr("delete", err)
}

func (s *redisStore) ConversationIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, unavailable("list", err)
	}
	sort.Strings(ids)
	return ids, nil
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisStore) get(ctx context.Context, c redisGetter, id string) (configuration.ConversationConfig, bool, error) {
	b, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return configuration.ConversationConfig{}, false, nil
	}
	if err != nil {
		return configuration.ConversationConfig{}, false, err
	}
	cfg, err := decode(b)
	if err != nil {
		return configuration.ConversationConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *redisStore) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, configuration.ErrVersionConflict), errors.Is(err, configuration.ErrConversationExists):
		return err
	default:
		return unavailable(op, err)
	}
}
