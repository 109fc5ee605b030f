// Package storage persists scraped items to files or MongoDB.
package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of items.
	Store(items []*types.Item) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// KeysFor returns the document fields that identify an item of a listing.
// Stores upsert on them.
func KeysFor(listing string) []string {
	switch listing {
	case "timeline":
		return []string{"owner", "name", "id", "itemId"}
	case "dependents":
		return []string{"target", "owner", "name"}
	case "repos":
		return []string{"id"}
	default:
		return []string{"owner", "name", "id"}
	}
}

// New opens the backend selected by cfg.Storage.Type for one listing. File
// backends write <output_path>/<listing>.<ext>; MongoDB writes to the
// collection named after the listing.
func New(cfg *config.Config, listing string, logger *slog.Logger) (Storage, error) {
	switch cfg.Storage.Type {
	case "json", "jsonl", "csv":
		path := filepath.Join(cfg.Storage.OutputPath, listing+"."+cfg.Storage.Type)
		return NewFileStorage(cfg.Storage.Type, path, logger)
	case "mongo":
		return NewMongoStorage(cfg.Mongo, listing, KeysFor(listing), cfg.Storage.BatchSize, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// MultiStorage writes items to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store writes to every backend and returns the first failure.
func (s *MultiStorage) Store(items []*types.Item) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(items); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// record is the stored shape of an item: its document plus provenance.
func record(item *types.Item) map[string]any {
	doc := item.Document()
	doc["_url"] = item.URL
	doc["_listing"] = item.Listing
	doc["_timestamp"] = item.Timestamp
	return doc
}
