package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"replybot/internal/configuration"
	logx "replybot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

type sqlStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (configuration.Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable("mkdir", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st, err := newSQLStore(context.Background(), db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// newSQLStore applies the schema and wraps db.
func newSQLStore(ctx context.Context, db *sql.DB, log logx.Logger) (*sqlStore, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, unavailable("migrate", err)
	}
	return &sqlStore{db: db, log: log}, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) Find(ctx context.Context, id string) (configuration.ConversationConfig, bool, error) {
	var (
		version int64
		entries string
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, entries, updated_at FROM conversations WHERE conversation_id = ?`, id,
	).Scan(&version, &entries, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return configuration.ConversationConfig{}, false, nil
	}
	if err != nil {
		return configuration.ConversationConfig{}, false, unavailable("find", err)
	}
	cfg, err := decodeRow(id, version, entries, updated)
	if err != nil {
		return configuration.ConversationConfig{}, false, unavailable("decode", err)
	}
	return cfg, true, nil
}

func (s *sqlStore) Create(ctx context.Context, cfg configuration.ConversationConfig) error {
	entries, err := encodeEntries(cfg.Entries)
	if err != nil {
		return unavailable("encode", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(conversation_id, version, entries, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(conversation_id) DO NOTHING`,
		cfg.ConversationID, 1, entries, cfg.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable("create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("create", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
	}
	return nil
}

func (s *sqlStore) Save(ctx context.Context, cfg configuration.ConversationConfig) error {
	entries, err := encodeEntries(cfg.Entries)
	if err != nil {
		return unavailable("encode", err)
	}
	updated := cfg.UpdatedAt.UTC().Format(time.RFC3339Nano)

	var res sql.Result
	if cfg.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO conversations(conversation_id, version, entries, updated_at) VALUES(?,?,?,?)
			 ON CONFLICT(conversation_id) DO NOTHING`,
			cfg.ConversationID, 1, entries, updated,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE conversations SET version = version + 1, entries = ?, updated_at = ?
			 WHERE conversation_id = ? AND version = ?`,
			entries, updated, cfg.ConversationID, cfg.Version,
		)
	}
	if err != nil {
		return unavailable("save", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("save", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s changed since version %d", configuration.ErrVersionConflict, cfg.ConversationID, cfg.Version)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *sqlStore) ConversationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM conversations ORDER BY conversation_id`)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return ids, nil
}

func encodeEntries(entries []configuration.ConfigEntry) (string, error) {
	if entries == nil {
		entries = []configuration.ConfigEntry{}
	}
	b, err := json.Marshal(entries)
	return string(b), err
}

func decodeRow(id string, version int64, entries, updated string) (configuration.ConversationConfig, error) {
	cfg := configuration.ConversationConfig{ConversationID: id, Version: version}
	if err := json.Unmarshal([]byte(entries), &cfg.Entries); err != nil {
		return configuration.ConversationConfig{}, err
	}
	if cfg.Entries == nil {
		cfg.Entries = []configuration.ConfigEntry{}
	}
	if updated != "" {
		t, err := time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return configuration.ConversationConfig{}, err
		}
		cfg.UpdatedAt = t
	}
	return cfg, nil
}
