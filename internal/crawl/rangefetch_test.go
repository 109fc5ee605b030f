package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osslab-pku/github-scraper/internal/types"
)

func TestFetchRangeDedupesByID(t *testing.T) {
	pages := map[int][]*types.Item{
		1: {{ID: 1, Fields: map[string]any{"v": "p1"}}, {ID: 2, Fields: map[string]any{"v": "p1"}}},
		2: {{ID: 2, Fields: map[string]any{"v": "p2"}}, {ID: 3, Fields: map[string]any{"v": "p2"}}},
		3: {{ID: 4, Fields: map[string]any{"v": "p3"}}},
	}
	fetch := func(_ context.Context, page int) ([]*types.Item, error) {
		return pages[page], nil
	}

	acc, err := FetchRange(context.Background(), 1, 3, 2, fetch)
	require.NoError(t, err)

	assert.Equal(t, []any{1, 2, 3, 4}, ids(acc.Items()))
	dup, _ := acc.Get(2)
	assert.Equal(t, "p2", dup.Fields["v"])
	assert.Equal(t, 3, acc.Pages)
}

func TestFetchRangeFailure(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, page int) ([]*types.Item, error) {
		if page == 2 {
			return nil, boom
		}
		return nil, nil
	}

	acc, err := FetchRange(context.Background(), 1, 4, 1, fetch)
	assert.Nil(t, acc)
	assert.ErrorIs(t, err, boom)
}

func TestFetchRangeEmpty(t *testing.T) {
	acc, err := FetchRange(context.Background(), 1, 0, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, acc.Len())
}

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://GitHub.com/o/n/issues/", "https://github.com/o/n/issues"},
		{"https://github.com:443/o/n?b=2&a=1", "https://github.com/o/n?a=1&b=2"},
		{"https://github.com/o/n#frag", "https://github.com/o/n"},
		{"https://github.com", "https://github.com/"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
