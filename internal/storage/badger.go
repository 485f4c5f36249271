package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"replybot/internal/configuration"
	logx "replybot/pkg/logx"
)

const badgerPrefix = "conv:"

type badgerStore struct {
	db  *badger.DB
	log logx.Logger
}

// openBadger opens a badger directory at cfg.Path. An empty path keeps the
// data in memory.
func openBadger(cfg Config, log logx.Logger) (configuration.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, unavailable("open", err)
	}
	return newBadgerStore(db, log), nil
}

func newBadgerStore(db *badger.DB, log logx.Logger) *badgerStore {
	return &badgerStore{db: db, log: log}
}

func badgerKey(id string) []byte { return []byte(badgerPrefix + id) }

func (s *badgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *badgerStore) Find(ctx context.Context, id string) (configuration.ConversationConfig, bool, error) {
	_ = ctx
	var (
		cfg   configuration.ConversationConfig
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		cfg, found, err = badgerGet(txn, id)
		return err
	})
	if err != nil {
		return configuration.ConversationConfig{}, false, unavailable("find", err)
	}
	return cfg, found, nil
}

func (s *badgerStore) Create(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	cfg = cfg.Clone()
	cfg.Version = 1
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(cfg.ConversationID)); err == nil {
			return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := encode(cfg)
		if err != nil {
			return err
		}
		return txn.Set(badgerKey(cfg.ConversationID), data)
	})
	return s.mapErr("create", err)
}

func (s *badgerStore) Save(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	cfg = cfg.Clone()
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, ok, err := badgerGet(txn, cfg.ConversationID)
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
		return txn.Set(badgerKey(cfg.ConversationID), data)
	})
	return s.mapErr("save", err)
}

func (s *badgerStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(id))
	})
	return s.mapErr("delete", err)
}

func (s *badgerStore) ConversationIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), badgerPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("list", err)
	}
	// badger iterates keys in byte order, which is already sorted
	return ids, nil
}

func (s *badgerStore) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w", configuration.ErrVersionConflict, err)
	case errors.Is(err, configuration.ErrVersionConflict), errors.Is(err, configuration.ErrConversationExists):
		return err
	default:
		return unavailable(op, err)
	}
}

func badgerGet(txn *badger.Txn, id string) (configuration.ConversationConfig, bool, error) {
	item, err := txn.Get(badgerKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return configuration.ConversationConfig{}, false, nil
	}
	if err != nil {
		return configuration.ConversationConfig{}, false, err
	}
	var cfg configuration.ConversationConfig
	err = item.Value(func(val []byte) error {
		cfg, err = decode(val)
		return err
	})
	if err != nil {
		return configuration.ConversationConfig{}, false, err
	}
	return cfg, true, nil
}
