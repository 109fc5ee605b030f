package transform

import (
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleCollection() *extract.Collection {
	c := extract.NewCollection()
	c.Add(extract.Uncollected, "stray", "early")
	c.Add(extract.IntKey(12), "title", "  Fix\n the  thing ")
	c.Add(extract.IntKey(12), "comments", "1,204")
	c.Add(extract.IntKey(12), "reactionLabels", "+1")
	c.Add(extract.IntKey(12), "reactionLabels", "heart")
	c.Add(extract.IntKey(12), "reactionCounts", "3")
	c.Add(extract.IntKey(12), "reactionCounts", "1")
	c.Add(extract.IntKey(7), "title", "Second")
	c.Add(extract.IntKey(7), "comments", "n/a")
	c.Add(extract.GlobalKey, "openCount", "3 Open")
	c.Add(extract.PaginationKey, "next", "/o/n/issues?page=2")
	c.Add(extract.PaginationKey, "current", "1")
	c.Add(extract.PaginationKey, "total", "5")
	return c
}

func samplePipeline() *Pipeline {
	return New("issues", testLogger).
		Field("title", Text()).
		Field("comments", Int()).
		Field("openCount", Int()).
		Field("next", Link("https://github.com")).
		KeyField("id").
		Use(Combine("reactions", ZipReactions("reactionLabels", "reactionCounts"))).
		Use(Drop("reactionLabels", "reactionCounts"))
}

func TestApplySplitsBuckets(t *testing.T) {
	res := samplePipeline().Apply(sampleCollection(), "https://github.com/o/n/issues")

	if len(res.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(res.Entities))
	}
	if res.Entities[0].ID != 7 || res.Entities[1].ID != 12 {
		t.Errorf("expected ascending keys 7, 12; got %v, %v", res.Entities[0].ID, res.Entities[1].ID)
	}

	if got := res.Global["openCount"]; got != 3 {
		t.Errorf("expected global openCount 3, got %v", got)
	}
	if got, ok := res.Uncollected["stray"].([]string); !ok || got[0] != "early" {
		t.Errorf("expected uncollected raw values, got %v", res.Uncollected["stray"])
	}

	pg := res.Pagination
	if pg.Next != "https://github.com/o/n/issues?page=2" {
		t.Errorf("unexpected next %q", pg.Next)
	}
	if pg.Current == nil || *pg.Current != 1 || pg.Total == nil || *pg.Total != 5 {
		t.Errorf("unexpected pagination %+v", pg)
	}
	if pg.URL != "https://github.com/o/n/issues" {
		t.Errorf("unexpected pagination url %q", pg.URL)
	}
}

func TestApplyEntityFields(t *testing.T) {
	res := samplePipeline().Apply(sampleCollection(), "https://github.com/o/n/issues")
	second, first := res.Entities[0], res.Entities[1]

	if first.GetString("title") != "Fix the thing" {
		t.Errorf("expected collapsed title, got %q", first.GetString("title"))
	}
	if n, _ := first.GetInt("comments"); n != 1204 {
		t.Errorf("expected 1204 comments, got %v", first.Fields["comments"])
	}
	if first.Fields["id"] != 12 {
		t.Errorf("expected key copied into id, got %v", first.Fields["id"])
	}

	want := []types.Reaction{{Label: "+1", Count: 3}, {Label: "heart", Count: 1}}
	if !reflect.DeepEqual(first.Fields["reactions"], want) {
		t.Errorf("expected reactions %v, got %v", want, first.Fields["reactions"])
	}
	if first.Has("reactionLabels") || first.Has("reactionCounts") {
		t.Error("auxiliary fields should be dropped")
	}

	if second.Has("comments") {
		t.Errorf("malformed count should be absent, got %v", second.Fields["comments"])
	}
	if second.Has("reactions") {
		t.Error("no reactions should leave the field absent")
	}
}

func TestApplyUntransformedFieldsKeepRawValues(t *testing.T) {
	c := extract.NewCollection()
	c.Add(extract.IntKey(1), "labels", "bug")
	c.Add(extract.IntKey(1), "labels", "ui")

	res := New("issues", testLogger).Apply(c, "")
	if got := res.Entities[0].Fields["labels"]; !reflect.DeepEqual(got, []string{"bug", "ui"}) {
		t.Errorf("expected raw labels, got %v", got)
	}
}

func TestApplyRecoversFromPanickingTransform(t *testing.T) {
	c := extract.NewCollection()
	c.Add(extract.IntKey(1), "title", "x")
	c.Add(extract.IntKey(1), "body", "y")

	p := New("issues", testLogger).
		Field("title", func([]string, extract.Key) (any, bool) { panic("boom") }).
		Field("body", Text())

	res := p.Apply(c, "")
	if len(res.Entities) != 1 {
		t.Fatalf("page should survive a failing transform")
	}
	if res.Entities[0].Has("title") {
		t.Error("failed transform should leave the field absent")
	}
	if res.Entities[0].GetString("body") != "y" {
		t.Error("other fields must be untouched")
	}
}

func TestRequireStage(t *testing.T) {
	c := extract.NewCollection()
	c.Add(extract.IntKey(1), "title", "kept")
	c.Add(extract.IntKey(2), "body", "no title")

	res := New("issues", testLogger).Use(Require("title")).Apply(c, "")
	if len(res.Entities) != 1 || res.Entities[0].ID != 1 {
		t.Errorf("expected only entity 1 to survive, got %d entities", len(res.Entities))
	}
}

func TestApplyEmptyCollection(t *testing.T) {
	res := samplePipeline().Apply(extract.NewCollection(), "https://github.com/x")
	if len(res.Entities) != 0 || res.Pagination.HasNext() {
		t.Errorf("expected empty result, got %+v", res)
	}
	if res.Pagination.URL != "https://github.com/x" {
		t.Errorf("pagination url should default to the page, got %q", res.Pagination.URL)
	}
}
