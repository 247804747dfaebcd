package sqlite

import (
	"context"
	"time"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.StateStore = (*StateStore)(nil)

// StateStore implements sitediff.StateStore on SQLite. Each commit is a
// single transaction.
type StateStore struct {
	db *DB
}

// NewStateStore creates a new StateStore.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// Load returns the committed state for site.
func (s *StateStore) Load(ctx context.Context, site string) (*sitediff.CrawlState, error) {
	state := sitediff.NewCrawlState(site)

	var lastRun string
	err := s.db.QueryRowContext(ctx, "SELECT last_run FROM site_runs WHERE site = ?", site).Scan(&lastRun)
	switch {
	case err == nil:
		if state.LastRun, err = parseTime(lastRun, "last_run"); err != nil {
			return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
		}
	case isNoRows(err):
	default:
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT item_id, first_seen FROM seen_items WHERE site = ?", site)
	if err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, firstSeen string
		if err := rows.Scan(&id, &firstSeen); err != nil {
			return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
		}
		ts, err := parseTime(firstSeen, "first_seen")
		if err != nil {
			return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
		}
		state.Seen[sitediff.ItemID(id)] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	return state, nil
}

// Commit adds ids with first-seen time ts and records ts as the last run.
// Existing identifiers keep their first-seen time.
func (s *StateStore) Commit(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stamp := formatTime(ts)
	if len(ids) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO seen_items (site, item_id, first_seen) VALUES (?, ?, ?)")
		if err != nil {
			return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, site, string(id), stamp); err != nil {
				return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO site_runs (site, last_run) VALUES (?, ?)
		ON CONFLICT(site) DO UPDATE SET last_run = excluded.last_run
	`, site, stamp); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}

	if err := tx.Commit(); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	return nil
}

// Reset removes all state for site. Stored records are kept.
func (s *StateStore) Reset(ctx context.Context, site string) (err error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM seen_items WHERE site = ?", site); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM site_runs WHERE site = ?", site); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	if err := tx.Commit(); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	return nil
}
