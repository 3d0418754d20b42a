// Package ledgerfile implements the position ledger as a single JSON file.
// It is the default backend for single-host deployments; the postgres
// backend replaces it when the bot shares state across hosts.
//
// Writes go through a temp file plus atomic rename so a crash mid-write can
// never leave a truncated ledger. The whole file is held in memory; position
// caps keep it tiny.
package ledgerfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// Store implements domain.LedgerStore on a JSON file.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[string]domain.LedgerEntry
}

// Open loads the ledger at path, creating an empty one if the file does not
// exist. A file that exists but fails to parse is an error, not an empty
// ledger; silently starting fresh would forget hedge state.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]domain.LedgerEntry),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledgerfile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("ledgerfile: parse %s: %w", path, err)
	}
	return s, nil
}

// Upsert inserts or replaces the entry and persists the file.
func (s *Store) Upsert(_ context.Context, e domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[e.ID]
	s.entries[e.ID] = e
	if err := s.flushLocked(); err != nil {
		// Roll the in-memory map back so memory and disk stay consistent.
		if existed {
			s.entries[e.ID] = prev
		} else {
			delete(s.entries, e.ID)
		}
		return err
	}
	return nil
}

// Get returns the entry for the given position id.
func (s *Store) Get(_ context.Context, id string) (domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	return e, nil
}

// All returns a copy of every entry keyed by position id.
func (s *Store) All(_ context.Context) (map[string]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.LedgerEntry, len(s.entries))
	for id, e := range s.entries {
		out[id] = e
	}
	return out, nil
}

// ListClosedBefore returns entries absent from the active set and last
// updated before the cutoff, oldest first.
func (s *Store) ListClosedBefore(_ context.Context, active map[string]bool, before time.Time) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LedgerEntry
	for id, e := range s.entries {
		if active[id] {
			continue
		}
		if !e.LastUpdated.Before(before) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.Before(out[j].LastUpdated) })
	return out, nil
}

// Delete removes the given entries and persists the file.
func (s *Store) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]domain.LedgerEntry, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			removed[id] = e
			delete(s.entries, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	if err := s.flushLocked(); err != nil {
		for id, e := range removed {
			s.entries[id] = e
		}
		return err
	}
	return nil
}

// flushLocked writes the whole map to a temp file in the ledger's directory
// and renames it over the ledger. Callers hold s.mu.
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ledgerfile: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ledgerfile: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledgerfile: rename: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*Store)(nil)
