package storage

import (
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func issueItems() []*types.Item {
	a := types.NewItem(42, "https://github.com/octo/widgets/issues")
	a.Listing = "issues"
	a.Owner, a.Name = "octo", "widgets"
	a.Set("id", 42)
	a.Set("title", "Crash")
	a.Set("labels", []string{"bug"})

	b := types.NewItem(40, "https://github.com/octo/widgets/issues")
	b.Listing = "issues"
	b.Owner, b.Name = "octo", "widgets"
	b.Set("id", 40)
	b.Set("title", "Old, bug")
	return []*types.Item{a, b}
}

func TestJSONStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "issues.json")
	s, err := NewJSONStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(issueItems()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0]["owner"] != "octo" || docs[0]["title"] != "Crash" || docs[0]["_listing"] != "issues" {
		t.Errorf("unexpected document: %v", docs[0])
	}
}

func TestJSONLStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.jsonl")
	s, err := NewJSONLStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	s.Store(issueItems())
	s.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["id"] != float64(40) {
		t.Errorf("id = %v, want 40", doc["id"])
	}
}

func TestCSVStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.csv")
	s, err := NewCSVStorage(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(issueItems()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[h] = i
	}
	if got := rows[2][col["title"]]; got != "Old, bug" {
		t.Errorf("title = %q", got)
	}
	if got := rows[1][col["labels"]]; got != `["bug"]` {
		t.Errorf("labels = %q", got)
	}
	if got := rows[2][col["labels"]]; got != "" {
		t.Errorf("labels of second row = %q, want empty", got)
	}
}

func TestNewSelectsFileBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.OutputPath = t.TempDir()
	cfg.Storage.Type = "jsonl"

	s, err := New(cfg, "dependents", testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Name() != "jsonl" {
		t.Errorf("Name = %q, want jsonl", s.Name())
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.OutputPath, "dependents.jsonl")); err != nil {
		t.Errorf("output file: %v", err)
	}

	cfg.Storage.Type = "parquet"
	if _, err := New(cfg, "issues", testLogger); err == nil {
		t.Error("expected error for unsupported type")
	}
}

type memStorage struct {
	items  []*types.Item
	closed bool
}

func (m *memStorage) Store(items []*types.Item) error { m.items = append(m.items, items...); return nil }
func (m *memStorage) Close() error                    { m.closed = true; return nil }
func (m *memStorage) Name() string                    { return "mem" }

func TestMultiStorage(t *testing.T) {
	a, b := &memStorage{}, &memStorage{}
	s := NewMultiStorage([]Storage{a, b}, testLogger)
	if err := s.Store(issueItems()); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if len(a.items) != 2 || len(b.items) != 2 || !a.closed || !b.closed {
		t.Errorf("fan-out incomplete: a=%d b=%d", len(a.items), len(b.items))
	}
}

func TestUpsertModels(t *testing.T) {
	items := issueItems()
	noID := types.NewItem(nil, "u")
	noID.Owner, noID.Name = "octo", "widgets"
	items = append(items, noID)

	models, skipped := upsertModels(items, KeysFor("issues"))
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}

	m, ok := models[0].(*mongo.ReplaceOneModel)
	if !ok {
		t.Fatalf("model type %T", models[0])
	}
	want := bson.D{{Key: "owner", Value: "octo"}, {Key: "name", Value: "widgets"}, {Key: "id", Value: 42}}
	got, _ := m.Filter.(bson.D)
	if len(got) != len(want) {
		t.Fatalf("filter = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("filter[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.Upsert == nil || !*m.Upsert {
		t.Error("expected upsert")
	}
}

func TestKeysFor(t *testing.T) {
	if got := KeysFor("timeline"); len(got) != 4 || got[3] != "itemId" {
		t.Errorf("timeline keys = %v", got)
	}
	if got := KeysFor("pulls"); len(got) != 3 {
		t.Errorf("pulls keys = %v", got)
	}
}
