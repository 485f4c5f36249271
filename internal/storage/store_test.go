package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"replybot/internal/configuration"
	logx "replybot/pkg/logx"
)

type driverCase struct {
	name string
	open func(t *testing.T) configuration.Store
}

func drivers() []driverCase {
	return []driverCase{
		{"memory", func(t *testing.T) configuration.Store { return NewMemory() }},
		{"file", func(t *testing.T) configuration.Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "conv.json")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"sqlite", func(t *testing.T) configuration.Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "replybot.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"badger", func(t *testing.T) configuration.Store {
			st, err := Open(Config{Driver: "badger"}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"redis", func(t *testing.T) configuration.Store {
			mr := miniredis.RunT(t)
			st, err := Open(Config{Driver: "redis", Redis: RedisConfig{Addr: mr.Addr(), Prefix: "test:"}}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
	}
}

func sampleEntries() []configuration.ConfigEntry {
	return []configuration.ConfigEntry{
		{ConfigName: "greet", Regex: lo.ToPtr("hello"), Reply: "hi!"},
		{ConfigName: "daily", CronExpression: lo.ToPtr("0 9 * * *"), Reply: "good morning"},
	}
}

func TestStoreContract(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })

			_, ok, err := st.Find(ctx, "c1")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, st.Create(ctx, configuration.NewConversationConfig("c1")))
			err = st.Create(ctx, configuration.NewConversationConfig("c1"))
			require.ErrorIs(t, err, configuration.ErrConversationExists)

			cfg, ok, err := st.Find(ctx, "c1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(1), cfg.Version)
			require.NotNil(t, cfg.Entries)
			require.Empty(t, cfg.Entries)

			cfg.Entries = sampleEntries()
			cfg.UpdatedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			require.NoError(t, st.Save(ctx, cfg))

			got, ok, err := st.Find(ctx, "c1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(2), got.Version)
			require.Equal(t, sampleEntries(), got.Entries)
			require.True(t, cfg.UpdatedAt.Equal(got.UpdatedAt))

			// stale write based on version 1
			err = st.Save(ctx, cfg)
			require.ErrorIs(t, err, configuration.ErrVersionConflict)

			require.NoError(t, st.Create(ctx, configuration.NewConversationConfig("a0")))
			ids, err := st.ConversationIDs(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a0", "c1"}, ids)

			require.NoError(t, st.Delete(ctx, "c1"))
			require.NoError(t, st.Delete(ctx, "c1"))
			_, ok, err = st.Find(ctx, "c1")
			require.NoError(t, err)
			require.False(t, ok)

			ids, err = st.ConversationIDs(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a0"}, ids)
		})
	}
}

func TestStoreSaveWithoutCreate(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })

			cfg := configuration.NewConversationConfig("fresh")
			cfg.Entries = sampleEntries()[:1]
			require.NoError(t, st.Save(ctx, cfg))

			got, ok, err := st.Find(ctx, "fresh")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(1), got.Version)

			require.ErrorIs(t, st.Save(ctx, cfg), configuration.ErrVersionConflict)
		})
	}
}

func TestStoreFindReturnsCopy(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })

			cfg := configuration.NewConversationConfig("c")
			cfg.Entries = sampleEntries()
			require.NoError(t, st.Save(ctx, cfg))

			got, _, err := st.Find(ctx, "c")
			require.NoError(t, err)
			got.Entries[0].Reply = "mutated"
			*got.Entries[1].CronExpression = "@yearly"

			again, _, err := st.Find(ctx, "c")
			require.NoError(t, err)
			require.Equal(t, "hi!", again.Entries[0].Reply)
			require.Equal(t, "0 9 * * *", *again.Entries[1].CronExpression)
		})
	}
}

func TestStoreConcurrentSavesConflict(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t)
			t.Cleanup(func() { _ = st.Close() })

			require.NoError(t, st.Create(ctx, configuration.NewConversationConfig("c")))
			base, _, err := st.Find(ctx, "c")
			require.NoError(t, err)

			const writers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				ok        int
				conflicts int
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := st.Save(ctx, base)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, configuration.ErrVersionConflict):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, ok)
			require.Equal(t, writers-1, conflicts)
		})
	}
}

func TestPersistentDriversSurviveReopen(t *testing.T) {
	cases := []Config{
		{Driver: "file", Path: filepath.Join(t.TempDir(), "conv.json")},
		{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "replybot.db")},
		{Driver: "badger", Path: t.TempDir()},
	}
	for _, cfg := range cases {
		cfg := cfg
		t.Run(cfg.Driver, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)

			conv := configuration.NewConversationConfig("c1")
			conv.Entries = sampleEntries()
			require.NoError(t, st.Save(ctx, conv))
			require.NoError(t, st.Create(ctx, configuration.NewConversationConfig("gone")))
			require.NoError(t, st.Delete(ctx, "gone"))
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })

			got, ok, err := st.Find(ctx, "c1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(1), got.Version)
			require.Equal(t, sampleEntries(), got.Entries)

			ids, err := st.ConversationIDs(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"c1"}, ids)
		})
	}
}

func TestFileStoreReplaysJournalWithoutClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conv.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx, configuration.NewConversationConfig("c1")))

	// a second handle sees the journal even though the first never compacted
	again, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close(); _ = st.Close() })

	_, ok, err := again.Find(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestRedisUnreachableIsUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	st := newRedisStore(rdb, "", logx.Nop())
	t.Cleanup(func() { _ = st.Close() })

	mr.Close()
	_, _, err = st.Find(context.Background(), "c1")
	require.ErrorIs(t, err, configuration.ErrStoreUnavailable)
}

func TestRedisKeysArePrefixed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := newRedisStore(rdb, "bot:", logx.Nop())
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Create(context.Background(), configuration.NewConversationConfig("42")))
	require.True(t, mr.Exists("bot:conv:42"))
	ok, err := mr.SIsMember("bot:ids", "42")
	require.NoError(t, err)
	require.True(t, ok)
}

func newMockSQLStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conversations").WillReturnResult(sqlmock.NewResult(0, 0))
	st, err := newSQLStore(context.Background(), db, logx.Nop())
	require.NoError(t, err)
	return st, mock
}

func TestSQLStoreErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("update touching no rows is a conflict", func(t *testing.T) {
		st, mock := newMockSQLStore(t)
		mock.ExpectExec("UPDATE conversations").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "c1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		cfg := configuration.NewConversationConfig("c1")
		cfg.Version = 3
		require.ErrorIs(t, st.Save(ctx, cfg), configuration.ErrVersionConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is unavailable", func(t *testing.T) {
		st, mock := newMockSQLStore(t)
		mock.ExpectExec("UPDATE conversations").WillReturnError(errors.New("disk I/O error"))

		cfg := configuration.NewConversationConfig("c1")
		cfg.Version = 1
		err := st.Save(ctx, cfg)
		require.ErrorIs(t, err, configuration.ErrStoreUnavailable)
		require.NotErrorIs(t, err, configuration.ErrVersionConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert ignored means exists", func(t *testing.T) {
		st, mock := newMockSQLStore(t)
		mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, st.Create(ctx, configuration.NewConversationConfig("c1")), configuration.ErrConversationExists)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find query failure is unavailable", func(t *testing.T) {
		st, mock := newMockSQLStore(t)
		mock.ExpectQuery("SELECT version, entries, updated_at FROM conversations").
			WithArgs("c1").
			WillReturnError(errors.New("connection reset"))
		_, _, err := st.Find(ctx, "c1")
		require.ErrorIs(t, err, configuration.ErrStoreUnavailable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("find decodes row", func(t *testing.T) {
		st, mock := newMockSQLStore(t)
		rows := sqlmock.NewRows([]string{"version", "entries", "updated_at"}).
			AddRow(int64(4), `[{"configName":"greet","regex":"hello","reply":"hi!"}]`, "2024-05-01T09:00:00Z")
		mock.ExpectQuery("SELECT version, entries, updated_at FROM conversations").WithArgs("c1").WillReturnRows(rows)

		cfg, ok, err := st.Find(ctx, "c1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(4), cfg.Version)
		require.Equal(t, []configuration.ConfigEntry{{ConfigName: "greet", Regex: lo.ToPtr("hello"), Reply: "hi!"}}, cfg.Entries)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
