package github

import (
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/transform"
)

const (
	timelineItem = ".js-timeline-item"
	header       = "#partial-discussion-header"
)

var eventIcons = []struct{ icon, event string }{
	{"octicon-cross-reference", "referenced"},
	{"octicon-issue-closed", "closed"},
	{"octicon-circle-slash", "closed"},
	{"octicon-issue-reopened", "reopened"},
	{"octicon-git-merge", "merged"},
	{"octicon-git-commit", "committed"},
	{"octicon-tag", "labeled"},
	{"octicon-person", "assigned"},
	{"octicon-eye", "reviewed"},
	{"octicon-pencil", "renamed"},
	{"octicon-milestone", "milestoned"},
	{"octicon-lock", "locked"},
	{"octicon-pin", "pinned"},
}

// Timeline is the event and comment thread of one issue or pull request,
// one entity per timeline item keyed by its node id.
func Timeline(baseURL string, logger *slog.Logger) *Listing {
	cases := []extract.Case{{Selector: timelineItem + " .timeline-comment", Value: "comment"}}
	for _, e := range eventIcons {
		cases = append(cases, extract.Case{
			Selector: timelineItem + " .TimelineItem-badge svg." + e.icon,
			Value:    e.event,
		})
	}

	reg := extract.NewRegistry(
		extract.KeyRule{Selector: timelineItem + "[data-gid]", Derive: extract.StringFromAttr("data-gid")},

		extract.CaseRule{Name: "type", Cases: cases},
		extract.TextRule{Name: "author", Selector: timelineItem + " a.author"},
		extract.AttributeRule{Name: "createdAt", Selector: timelineItem + " relative-time", Attribute: "datetime"},
		extract.TextRule{Name: "body", Selector: timelineItem + " .comment-body"},
		extract.AttributeRule{Name: "mentionedLinks", Selector: timelineItem + " .comment-body a[href]", Attribute: "href"},
		extract.AttributeRule{Name: "reactionLabels", Selector: timelineItem + " .social-reaction-summary-item g-emoji", Attribute: "alias"},
		extract.TextRule{Name: "reactionCounts", Selector: timelineItem + " .social-reaction-summary-item .js-discussion-reaction-group-count"},

		extract.TextRule{Name: "title", Selector: header + " .js-issue-title", Key: extract.GlobalKey},
		extract.CaseRule{Name: "state", Key: extract.GlobalKey, Cases: []extract.Case{
			{Selector: header + " .State--open", Value: "open"},
			{Selector: header + " .State--closed", Value: "closed"},
			{Selector: header + " .State--merged", Value: "merged"},
			{Selector: header + " .State--draft", Value: "draft"},
		}},
		extract.TextRule{Name: "author", Selector: header + " .gh-header-meta a.author", Key: extract.GlobalKey},
		extract.AttributeRule{Name: "createdAt", Selector: header + " .gh-header-meta relative-time", Attribute: "datetime", Key: extract.GlobalKey},

		extract.AttributeRule{Name: "next", Selector: ".ajax-pagination-form", Attribute: "action", Key: extract.PaginationKey},
	)

	p := transform.New(string(KindTimeline), logger).
		Field("type", transform.First()).
		Field("author", transform.First()).
		Field("createdAt", transform.Time()).
		Field("body", transform.Text()).
		Field("mentionedLinks", transform.Links(baseURL)).
		Field("title", transform.Text()).
		Field("state", transform.First()).
		Use(transform.Combine("reactions", transform.ZipReactions("reactionLabels", "reactionCounts"))).
		Use(transform.Drop("reactionLabels", "reactionCounts")).
		KeyField("itemId")

	return &Listing{Kind: KindTimeline, Registry: reg, Pipeline: p, Merge: crawl.UnionByID}
}
