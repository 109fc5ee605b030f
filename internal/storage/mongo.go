package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// MongoStorage upserts items into a MongoDB collection, replacing the
// document with the same key fields.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	keys       []string
	batchSize  int
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects to MongoDB and ensures a unique index on keys.
func NewMongoStorage(cfg config.MongoConfig, collection string, keys []string, batchSize int, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	coll := client.Database(cfg.Database).Collection(collection)
	if _, err := coll.Indexes().CreateOne(ctx, uniqueIndex(keys)); err != nil {
		client.Disconnect(ctx)
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("create index: %w", err)}
	}

	if batchSize < 1 {
		batchSize = 100
	}
	return &MongoStorage{
		client:     client,
		collection: coll,
		keys:       keys,
		batchSize:  batchSize,
		logger:     logger.With("component", "mongo_storage", "collection", collection),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// Store upserts items in batches of the configured size.
func (s *MongoStorage) Store(items []*types.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, skipped := upsertModels(items, s.keys)
	if skipped > 0 {
		s.logger.Warn("items without key fields skipped", "count", skipped, "keys", s.keys)
	}

	for start := 0; start < len(models); start += s.batchSize {
		batch := models[start:min(start+s.batchSize, len(models))]

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := s.collection.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
		cancel()
		if err != nil {
			return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("bulk write: %w", err)}
		}
		s.count += len(batch)
		s.logger.Debug("items upserted", "matched", res.MatchedCount, "upserted", res.UpsertedCount)
	}
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_items", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func uniqueIndex(keys []string) mongo.IndexModel {
	spec := bson.D{}
	for _, k := range keys {
		spec = append(spec, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: spec, Options: options.Index().SetUnique(true)}
}

// upsertModels builds one replace-or-insert per item. Items missing a key
// field are skipped.
func upsertModels(items []*types.Item, keys []string) ([]mongo.WriteModel, int) {
	models := make([]mongo.WriteModel, 0, len(items))
	skipped := 0

	for _, item := range items {
		doc := record(item)
		filter := bson.D{}
		for _, k := range keys {
			v, ok := doc[k]
			if !ok {
				filter = nil
				break
			}
			filter = append(filter, bson.E{Key: k, Value: v})
		}
		if filter == nil {
			skipped++
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(filter).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return models, skipped
}
