package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fwojciec/sitediff"
)

var _ sitediff.RecordSink = (*RecordStore)(nil)

// RecordStore stores parsed records in the records table.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// RecordFilter narrows FindRecords. Zero values match everything.
type RecordFilter struct {
	Site   *string
	ItemID *sitediff.ItemID
	Limit  int
	Offset int
}

// WriteRecords inserts records in one transaction.
func (s *RecordStore) WriteRecords(ctx context.Context, site string, records []*sitediff.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (site, item_id, url, content_hash, retrieved_at, fields)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, site, string(rec.ItemID), rec.URL, rec.ContentHash,
			formatTime(rec.RetrievedAt), string(fields)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FindRecords returns records matching filter, oldest first.
func (s *RecordStore) FindRecords(ctx context.Context, filter RecordFilter) ([]*sitediff.Record, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT site, item_id, url, content_hash, retrieved_at, fields FROM records WHERE 1=1")

	if filter.Site != nil {
		query.WriteString(" AND site = ?")
		args = append(args, *filter.Site)
	}
	if filter.ItemID != nil {
		query.WriteString(" AND item_id = ?")
		args = append(args, string(*filter.ItemID))
	}
	query.WriteString(" ORDER BY id ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*sitediff.Record
	for rows.Next() {
		var rec sitediff.Record
		var itemID, retrievedAt, fields string
		if err := rows.Scan(&rec.Site, &itemID, &rec.URL, &rec.ContentHash, &retrievedAt, &fields); err != nil {
			return nil, err
		}
		rec.ItemID = sitediff.ItemID(itemID)
		if rec.RetrievedAt, err = parseTime(retrievedAt, "retrieved_at"); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
