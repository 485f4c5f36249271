package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"replybot/internal/configuration"
	logx "replybot/pkg/logx"
)

const compactEvery = 200

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of every conversation)
//   - <prefix>.journal.jsonl (append-only journal of puts and deletes)
//
// The journal is replayed on open and compacted into the snapshot every
// compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	convs        map[string]configuration.ConversationConfig

	writes int
}

type journalRecord struct {
	Op   string                             `json:"op"` // "put" | "del"
	ID   string                             `json:"id"`
	Conv *configuration.ConversationConfig `json:"conv,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (configuration.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("mkdir", err)
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	convs := map[string]configuration.ConversationConfig{}
	if err := loadSnapshot(snapPath, convs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("load snapshot", err)
	}
	if err := replayJournal(journalPath, convs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("replay journal", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, unavailable("open journal", err)
	}
	log.Debug("file store opened", logx.String("path", prefix), logx.Int("conversations", len(convs)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		convs:        convs,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) Find(ctx context.Context, id string) (configuration.ConversationConfig, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.convs[id]
	if !ok {
		return configuration.ConversationConfig{}, false, nil
	}
	return cfg.Clone(), true, nil
}

func (s *fileStore) Create(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[cfg.ConversationID]; ok {
		return fmt.Errorf("%w: %s", configuration.ErrConversationExists, cfg.ConversationID)
	}
	cfg = cfg.Clone()
	cfg.Version = 1
	return s.putLocked(cfg)
}

func (s *fileStore) Save(ctx context.Context, cfg configuration.ConversationConfig) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.convs[cfg.ConversationID]
	if err := checkVersion(cfg.ConversationID, cur.Version, ok, cfg.Version); err != nil {
		return err
	}
	cfg = cfg.Clone()
	cfg.Version++
	return s.putLocked(cfg)
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.convs, id)
	return nil
}

func (s *fileStore) ConversationIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// putLocked journals cfg before exposing it, so a failed append leaves the
// in-memory view untouched.
func (s *fileStore) putLocked(cfg configuration.ConversationConfig) error {
	if err := s.appendLocked(journalRecord{Op: "put", ID: cfg.ConversationID, Conv: &cfg}); err != nil {
		return err
	}
	s.convs[cfg.ConversationID] = cfg
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return unavailable("append", errors.New("journal closed"))
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return unavailable("append", err)
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort: the journal stays authoritative if this fails.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.convs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]configuration.ConversationConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]configuration.ConversationConfig
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]configuration.ConversationConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write; everything before it is still valid
			continue
		}
		switch r.Op {
		case "put":
			if r.Conv != nil && r.ID != "" {
				out[r.ID] = *r.Conv
			}
		case "del":
			delete(out, r.ID)
		}
	}
	return sc.Err()
}
