package sitediff

import (
	"context"
	"sort"
	"time"
)

// CrawlState is the durable record of identifiers already seen for a site.
type CrawlState struct {
	Site    string
	Seen    map[ItemID]time.Time // identifier -> first-seen timestamp
	LastRun time.Time
}

// NewCrawlState returns an empty state for site.
func NewCrawlState(site string) *CrawlState {
	return &CrawlState{Site: site, Seen: make(map[ItemID]time.Time)}
}

// Has reports whether id has been seen. A nil state has seen nothing.
func (s *CrawlState) Has(id ItemID) bool {
	if s == nil {
		return false
	}
	_, ok := s.Seen[id]
	return ok
}

// Len returns the number of seen identifiers.
func (s *CrawlState) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Seen)
}

// IDs returns the seen identifiers sorted by first-seen time, then by value.
func (s *CrawlState) IDs() []ItemID {
	if s == nil {
		return nil
	}
	ids := make([]ItemID, 0, len(s.Seen))
	for id := range s.Seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.Seen[ids[i]], s.Seen[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// StateStore persists crawl state per site.
type StateStore interface {
	// Load returns the committed state for site. A site that was never
	// committed yields an empty state, not an error.
	Load(ctx context.Context, site string) (*CrawlState, error)

	// Commit atomically adds ids to the site's state with first-seen time ts
	// and records ts as the last run. Identifiers already present keep their
	// original first-seen time. Readers never observe a partial commit.
	Commit(ctx context.Context, site string, ids []ItemID, ts time.Time) error

	// Reset removes all state for site.
	Reset(ctx context.Context, site string) error
}
