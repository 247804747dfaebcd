package fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.StateStore = (*StateStore)(nil)

// StateStore implements sitediff.StateStore with one JSON file per site.
// Commits replace the file atomically.
type StateStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStateStore creates a StateStore that keeps files in dir.
func NewStateStore(dir string) *StateStore {
	return &StateStore{dir: dir, locks: make(map[string]*sync.Mutex)}
}

type stateFile struct {
	Site    string      `json:"site"`
	LastRun time.Time   `json:"last_run"`
	Seen    []seenEntry `json:"seen"`
}

type seenEntry struct {
	ID        sitediff.ItemID `json:"id"`
	FirstSeen time.Time       `json:"first_seen"`
}

// Path returns the state file for site.
func (s *StateStore) Path(site string) string {
	return filepath.Join(s.dir, SiteFileName(site, ".json"))
}

func (s *StateStore) lock(site string) func() {
	s.mu.Lock()
	l, ok := s.locks[site]
	if !ok {
		l = &sync.Mutex{}
		s.locks[site] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Load reads the state for site. A missing file yields an empty state.
func (s *StateStore) Load(ctx context.Context, site string) (*sitediff.CrawlState, error) {
	if err := ctx.Err(); err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	unlock := s.lock(site)
	defer unlock()

	state, err := s.read(site)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	return state, nil
}

// Commit merges ids into the stored state and replaces the file.
func (s *StateStore) Commit(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	unlock := s.lock(site)
	defer unlock()

	state, err := s.read(site)
	if err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	for _, id := range ids {
		if !state.Has(id) {
			state.Seen[id] = ts
		}
	}
	state.LastRun = ts

	if err := s.write(state); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	return nil
}

// Reset deletes the state file for site.
func (s *StateStore) Reset(ctx context.Context, site string) error {
	if err := ctx.Err(); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	unlock := s.lock(site)
	defer unlock()

	if err := os.Remove(s.Path(site)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	return nil
}

func (s *StateStore) read(site string) (*sitediff.CrawlState, error) {
	state := sitediff.NewCrawlState(site)

	data, err := os.ReadFile(s.Path(site))
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, err
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	state.LastRun = f.LastRun
	for _, e := range f.Seen {
		state.Seen[e.ID] = e.FirstSeen
	}
	return state, nil
}

func (s *StateStore) write(state *sitediff.CrawlState) error {
	f := stateFile{Site: state.Site, LastRun: state.LastRun}
	for _, id := range state.IDs() {
		f.Seen = append(f.Seen, seenEntry{ID: id, FirstSeen: state.Seen[id]})
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.Path(state.Site), data)
}
