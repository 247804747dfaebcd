// Package mongo implements crawl state storage on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/sitediff"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection holds one document per seen item. Run times live in the
// collection of the same name with a "_runs" suffix.
const DefaultCollection = "crawl_state"

const duplicateKey = 11000

var _ sitediff.StateStore = (*StateStore)(nil)

// StateStore implements sitediff.StateStore with one document per
// (site, item) pair, so a site's history is not bound by the document size
// limit. Commits are not transactional: a concurrent reader may see part of
// a commit's items before its run time. MongoDB stores times with
// millisecond precision.
type StateStore struct {
	client *mongo.Client
	items  *mongo.Collection
	runs   *mongo.Collection
}

// Connect dials uri, verifies the connection and returns a store using the
// given database and collection. The unique item index is created if missing.
func Connect(ctx context.Context, uri, database, collection string) (*StateStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	db := client.Database(database)
	store := NewStateStore(client, db.Collection(collection), db.Collection(collection+"_runs"))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// NewStateStore wraps existing item and run collections. Call EnsureIndexes
// before the first Commit.
func NewStateStore(client *mongo.Client, items, runs *mongo.Collection) *StateStore {
	return &StateStore{client: client, items: items, runs: runs}
}

// EnsureIndexes creates the unique (site, item_id) index.
func (s *StateStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.items.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "site", Value: 1}, {Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("site_item"),
	})
	if err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "create index: %v", err)
	}
	return nil
}

// Close disconnects the client.
func (s *StateStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type itemDoc struct {
	Site      string    `bson:"site"`
	ItemID    string    `bson:"item_id"`
	FirstSeen time.Time `bson:"first_seen"`
}

type runDoc struct {
	Site    string    `bson:"_id"`
	LastRun time.Time `bson:"last_run"`
}

// Load returns the stored state for site.
func (s *StateStore) Load(ctx context.Context, site string) (*sitediff.CrawlState, error) {
	state := sitediff.NewCrawlState(site)

	var run runDoc
	err := s.runs.FindOne(ctx, bson.M{"_id": site}).Decode(&run)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	default:
		state.LastRun = run.LastRun
	}

	cur, err := s.items.Find(ctx, bson.M{"site": site})
	if err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc itemDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
		}
		state.Seen[sitediff.ItemID(doc.ItemID)] = doc.FirstSeen
	}
	if err := cur.Err(); err != nil {
		return nil, sitediff.Errorf(sitediff.ESTATE, "load %s: %v", site, err)
	}
	return state, nil
}

// Commit upserts one document per identifier, then records the run time.
// Each upsert only sets first_seen on insert, so repeating a commit, or a
// commit that failed halfway, is safe: stored first-seen times never move
// and the run time is written only after every item landed.
func (s *StateStore) Commit(ctx context.Context, site string, ids []sitediff.ItemID, ts time.Time) error {
	if models := itemModels(site, ids, ts); len(models) > 0 {
		_, err := s.items.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil && !onlyDuplicates(err) {
			return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
		}
	}

	_, err := s.runs.UpdateOne(ctx,
		bson.M{"_id": site},
		bson.M{"$set": bson.M{"last_run": ts}},
		options.Update().SetUpsert(true))
	if err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "commit %s: %v", site, err)
	}
	return nil
}

// Reset deletes the site's items and run time.
func (s *StateStore) Reset(ctx context.Context, site string) error {
	if _, err := s.items.DeleteMany(ctx, bson.M{"site": site}); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	if _, err := s.runs.DeleteOne(ctx, bson.M{"_id": site}); err != nil {
		return sitediff.Errorf(sitediff.ESTATE, "reset %s: %v", site, err)
	}
	return nil
}

// itemModels returns one insert-only upsert per distinct identifier.
func itemModels(site string, ids []sitediff.ItemID, ts time.Time) []mongo.WriteModel {
	seen := make(map[sitediff.ItemID]bool, len(ids))
	models := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "site", Value: site}, {Key: "item_id", Value: string(id)}}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"first_seen": ts}}).
			SetUpsert(true))
	}
	return models
}

// onlyDuplicates reports whether err is a bulk write failure made up solely
// of duplicate key errors. Two writers upserting the same new item race on
// the unique index; the loser's item is already stored.
func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return false
	}
	if bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKey {
			return false
		}
	}
	return true
}
