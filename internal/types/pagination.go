package types

// Pagination is the page-wide metadata of the most recently merged page.
type Pagination struct {
	// URL is the page the metadata was read from.
	URL string `json:"url,omitempty"`

	// Total is the advertised number of pages or items, when the page shows one.
	Total *int `json:"total,omitempty"`

	// Current is the page number the listing reports itself to be on.
	Current *int `json:"current,omitempty"`

	// Next is the absolute URL of the next page, empty on the last page.
	Next string `json:"next,omitempty"`
}

// HasNext reports whether another page follows.
func (p Pagination) HasNext() bool { return p.Next != "" }

// Checks summarizes the CI checks of a pull request.
type Checks struct {
	Status string `json:"status" bson:"status"`
	Passed int    `json:"passed" bson:"passed"`
	Total  int    `json:"total" bson:"total"`
}

// Reaction is one emoji reaction and how many users left it.
type Reaction struct {
	Label string `json:"label" bson:"label"`
	Count int    `json:"count" bson:"count"`
}
