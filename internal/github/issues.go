package github

import (
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/transform"
)

const issueRow = ".js-issue-row"

// stateIcon is the octicon in the first column of a list row.
func stateIcon(icon string) string {
	return issueRow + " > div:first-child svg." + icon
}

// IssueList is the issue or pull request list of a repository, one entity
// per row keyed by issue number.
func IssueList(kind Kind, baseURL string, logger *slog.Logger) *Listing {
	reg := extract.NewRegistry(
		extract.KeyRule{Selector: issueRow, Derive: extract.IDFromAttr("id", "issue_")},

		extract.TextRule{Name: "title", Selector: issueRow + " a.js-navigation-open"},
		extract.CaseRule{Name: "state", Cases: []extract.Case{
			{Selector: stateIcon("octicon-issue-opened"), Value: "open"},
			{Selector: stateIcon("octicon-issue-closed"), Value: "closed"},
			{Selector: stateIcon("octicon-skip"), Value: "closed"},
			{Selector: stateIcon("octicon-git-pull-request"), Value: "open"},
			{Selector: stateIcon("octicon-git-pull-request-closed"), Value: "closed"},
			{Selector: stateIcon("octicon-git-pull-request-draft"), Value: "draft"},
			{Selector: stateIcon("octicon-git-merge"), Value: "merged"},
		}},
		extract.AttributeRule{Name: "actedAt", Selector: issueRow + " relative-time", Attribute: "datetime"},
		extract.TextRule{Name: "author", Selector: issueRow + " .opened-by a"},
		extract.TextRule{Name: "labels", Selector: issueRow + " a.IssueLabel"},
		extract.TextRule{Name: "comments", Selector: issueRow + ` a[aria-label*="comment"]`},
		extract.AttributeRule{Name: "checks", Selector: issueRow + " .commit-build-statuses summary", Attribute: "aria-label"},
		extract.AttributeRule{Name: "linkedPRs", Selector: issueRow + ` a[data-hovercard-type="pull_request"]`, Attribute: "href"},

		extract.TextRule{Name: "openCount", Selector: ".table-list-header-toggle.states > a:nth-child(1)", Key: extract.GlobalKey},
		extract.TextRule{Name: "closedCount", Selector: ".table-list-header-toggle.states > a:nth-child(2)", Key: extract.GlobalKey},

		extract.AttributeRule{Name: "next", Selector: "a.next_page", Attribute: "href", Key: extract.PaginationKey},
		extract.TextRule{Name: "current", Selector: "em.current", Key: extract.PaginationKey},
		extract.AttributeRule{Name: "total", Selector: "em.current", Attribute: "data-total-pages", Key: extract.PaginationKey},
	)

	p := transform.New(string(kind), logger).
		Field("title", transform.Text()).
		Field("state", transform.First()).
		Field("actedAt", transform.Time()).
		Field("author", transform.First()).
		Field("labels", transform.Values()).
		Field("comments", transform.Int()).
		Field("checks", transform.Checks()).
		Field("linkedPRs", transform.Links(baseURL)).
		Field("openCount", transform.Int()).
		Field("closedCount", transform.Int()).
		Field("current", transform.Int()).
		Field("total", transform.Int()).
		KeyField("id")

	return &Listing{Kind: kind, Registry: reg, Pipeline: p, Merge: crawl.UnionByID}
}
