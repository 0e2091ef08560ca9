// Package file keeps game states and ending unlocks as YAML files under a
// save directory, one subdirectory per owner:
//
//	<dir>/user-42/active.yaml
//	<dir>/user-42/history/<game id>.yaml
//	<dir>/user-42/unlocks.yaml
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/castle-adventure/internal/models"
	"github.com/tatianab/castle-adventure/internal/storage"
)

const (
	activeFile  = "active.yaml"
	historyDir  = "history"
	unlocksFile = "unlocks.yaml"
)

// Store is a storage.Store over a directory tree. A single process should own
// the directory; the mutex serializes access within it.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open prepares dir for use, creating it if needed.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("save directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create save directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) ownerDir(owner models.Identity) string {
	return filepath.Join(s.dir, string(owner.Kind())+"-"+url.PathEscape(owner.Key()))
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeYAML replaces path through a temp file so readers never see a partial
// document.
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) readState(path string) (*models.GameState, error) {
	var st models.GameState
	if err := readYAML(path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ActiveState(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readState(filepath.Join(s.ownerDir(owner), activeFile))
}

func (s *Store) LastCompleted(ctx context.Context, owner models.Identity) (*models.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.ownerDir(owner), historyDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list completed games: %w", err)
	}

	var latest *models.GameState
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		st, err := s.readState(filepath.Join(s.ownerDir(owner), historyDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if latest == nil || st.UpdatedAt.After(latest.UpdatedAt) {
			latest = st
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

func (s *Store) CreateState(ctx context.Context, st *models.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(st.ID) == "" {
		return fmt.Errorf("game state id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.ownerDir(st.Owner)
	if st.IsComplete {
		return writeYAML(s.historyPath(dir, st.ID), st)
	}
	path := filepath.Join(dir, activeFile)
	if _, err := os.Stat(path); err == nil {
		return storage.ErrAlreadyExists
	}
	return writeYAML(path, st)
}

func (s *Store) historyPath(ownerDir, id string) string {
	return filepath.Join(ownerDir, historyDir, url.PathEscape(id)+".yaml")
}

// SaveState overwrites the stored copy. A state saved as complete moves from
// active.yaml into the owner's history.
func (s *Store) SaveState(ctx context.Context, st *models.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.ownerDir(st.Owner)
	activePath := filepath.Join(dir, activeFile)
	histPath := s.historyPath(dir, st.ID)

	active, err := s.readState(activePath)
	switch {
	case err == nil && active.ID == st.ID:
		if !st.IsComplete {
			return writeYAML(activePath, st)
		}
		if err := writeYAML(histPath, st); err != nil {
			return err
		}
		return os.Remove(activePath)
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return err
	}

	if _, err := os.Stat(histPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return err
	}
	return writeYAML(histPath, st)
}

func (s *Store) DeleteState(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owners, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		dir := filepath.Join(s.dir, owner.Name())
		activePath := filepath.Join(dir, activeFile)
		if st, err := s.readState(activePath); err == nil && st.ID == id {
			return os.Remove(activePath)
		}
		err := os.Remove(s.historyPath(dir, id))
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return storage.ErrNotFound
}

// ReplaceState overwrites the owner's active.yaml with next when it still
// holds oldID. The rename in writeYAML makes the swap atomic.
func (s *Store) ReplaceState(ctx context.Context, oldID string, next *models.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := next.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(next.ID) == "" {
		return fmt.Errorf("game state id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.ownerDir(next.Owner), activeFile)
	active, err := s.readState(path)
	if err != nil {
		return err
	}
	if active.ID != oldID {
		return storage.ErrNotFound
	}
	return writeYAML(path, next)
}

type unlockRecord struct {
	EndingID   string    `yaml:"ending_id"`
	UnlockedAt time.Time `yaml:"unlocked_at"`
}

func (s *Store) readUnlocks(owner models.Identity) ([]unlockRecord, error) {
	var records []unlockRecord
	err := readYAML(filepath.Join(s.ownerDir(owner), unlocksFile), &records)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return records, nil
}

func (s *Store) RecordUnlock(ctx context.Context, owner models.Identity, endingID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := owner.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readUnlocks(owner)
	if err != nil {
		return false, err
	}
	if slices.ContainsFunc(records, func(r unlockRecord) bool { return r.EndingID == endingID }) {
		return false, nil
	}
	records = append(records, unlockRecord{EndingID: endingID, UnlockedAt: at.UTC()})
	if err := writeYAML(filepath.Join(s.ownerDir(owner), unlocksFile), records); err != nil {
		return false, fmt.Errorf("record ending unlock: %w", err)
	}
	return true, nil
}

func (s *Store) UnlockedEndings(ctx context.Context, owner models.Identity) ([]models.EndingUnlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readUnlocks(owner)
	if err != nil {
		return nil, err
	}
	out := make([]models.EndingUnlock, 0, len(records))
	for _, r := range records {
		out = append(out, models.EndingUnlock{Owner: owner, EndingID: r.EndingID, UnlockedAt: r.UnlockedAt})
	}
	return out, nil
}
