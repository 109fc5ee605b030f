package github

import (
	"log/slog"

	"github.com/osslab-pku/github-scraper/internal/crawl"
	"github.com/osslab-pku/github-scraper/internal/extract"
	"github.com/osslab-pku/github-scraper/internal/transform"
)

const dependentRow = "#dependents .Box-row"

// Dependents is the "used by" list of a repository or package. Rows carry
// no stable id, so they are numbered in crawl order.
func Dependents(logger *slog.Logger) *Listing {
	reg := extract.NewRegistry(
		extract.KeyRule{Selector: dependentRow, Derive: extract.Ordinal()},

		extract.TextRule{
			Name: "owner",
			Selector: dependentRow + ` a[data-hovercard-type="user"], ` +
				dependentRow + ` a[data-hovercard-type="organization"]`,
		},
		extract.TextRule{Name: "name", Selector: dependentRow + ` a[data-hovercard-type="repository"]`},
		extract.TextRule{Name: "stars", Selector: dependentRow + " .flex-justify-end > span:nth-child(1)"},
		extract.TextRule{Name: "forks", Selector: dependentRow + " .flex-justify-end > span:nth-child(2)"},

		extract.TextRule{Name: "total", Selector: "#dependents .table-list-header-toggle a.selected", Key: extract.PaginationKey},
		extract.AttributeRule{Name: "next", Selector: `#dependents .paginate-container a[href*="dependents_after"]`, Attribute: "href", Key: extract.PaginationKey},
	)

	p := transform.New(string(KindDependents), logger).
		Field("owner", transform.First()).
		Field("name", transform.First()).
		Field("stars", transform.Int()).
		Field("forks", transform.Int()).
		Field("total", transform.Int())

	return &Listing{Kind: KindDependents, Registry: reg, Pipeline: p, Merge: crawl.ShiftByCount}
}
