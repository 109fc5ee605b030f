// Package client talks to a running github-scraper API. It follows a
// listing's pages across requests, retries failed pages and runs many
// queries on a bounded worker pool.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Params are the query parameters of one API request.
type Params map[string]string

// Callback receives everything collected for one query. Callbacks run on
// worker goroutines and must be safe for concurrent use.
type Callback func(results []map[string]any, params Params) error

// Page is one response of a listing route.
type Page struct {
	Data    []map[string]any `json:"data"`
	URL     string           `json:"url"`
	Current *int             `json:"current"`
	Next    string           `json:"next"`
	Total   *int             `json:"total"`
}

// ErrNoProgress is returned when a listing's next page would request the
// same parameters again.
var ErrNoProgress = errors.New("listing made no progress")

type errorBody struct {
	Error string `json:"error"`
}

// Client fetches listings from the API.
type Client struct {
	http       *resty.Client
	retries    int
	retryDelay time.Duration
	workers    int
	maxPages   int
	logger     *slog.Logger
}

// New creates a client for the server in cfg.
func New(cfg config.ClientConfig, logger *slog.Logger) *Client {
	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "github-scraper-client/"+config.Version)
	if cfg.AuthToken != "" {
		h.SetHeader("Authorization", cfg.AuthToken)
	}

	return &Client{
		http:       h,
		retries:    max(cfg.Retries, 1),
		retryDelay: cfg.RetryDelay,
		workers:    max(cfg.Workers, 1),
		maxPages:   cfg.MaxPages,
		logger:     logger.With("component", "client"),
	}
}

// Get follows a listing until it has no next page. Every page is attempted
// up to the configured number of retries; a not-found or other permanent
// failure ends the walk at once, as does a next page that would repeat the
// previous request. On failure the items collected so far are returned
// with the error.
func (c *Client) Get(ctx context.Context, path string, params Params) ([]map[string]any, error) {
	params = maps.Clone(params)
	if params == nil {
		params = Params{}
	}
	if _, ok := params["maxPages"]; !ok && c.maxPages > 0 {
		params["maxPages"] = strconv.Itoa(c.maxPages)
	}

	var all []map[string]any
	attempts := c.retries
	for {
		page, err := c.Fetch(ctx, path, params)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			if !retryable(err) {
				return all, err
			}
			attempts--
			if attempts == 0 {
				return all, fmt.Errorf("%s %v failed after %d attempts: %w", path, params, c.retries, err)
			}
			c.logger.Warn("request failed, retrying",
				"path", path,
				"params", params,
				"attempt", c.retries-attempts,
				"error", err,
			)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return all, err
			}
			continue
		}

		all = append(all, page.Data...)
		if page.Next == "" {
			return all, nil
		}

		attempts = c.retries
		prev := maps.Clone(params)
		if page.Current != nil {
			params["fromPage"] = strconv.Itoa(*page.Current + 1)
			delete(params, "cursor")
		} else {
			params["cursor"] = page.Next
		}
		if maps.Equal(prev, params) {
			return all, fmt.Errorf("%s %v: %w: next page %s repeats the last request", path, params, ErrNoProgress, page.Next)
		}
		c.logger.Debug("following next page", "path", path, "next", page.Next, "items", len(all))
	}
}

// Fetch performs a single API request.
func (c *Client) Fetch(ctx context.Context, path string, params Params) (*Page, error) {
	var page Page
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		ForceContentType("application/json").
		SetResult(&page).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return nil, &types.FetchError{URL: path, Err: err, Retryable: true}
	}

	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		fe := &types.FetchError{
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(msg),
			Retryable:  resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests,
		}
		switch resp.StatusCode() {
		case http.StatusNotFound:
			fe.Err = fmt.Errorf("%w: %s", types.ErrNotFound, msg)
		case http.StatusUnauthorized:
			fe.Err = fmt.Errorf("%w: %s", types.ErrUnauthorized, msg)
		}
		return nil, fe
	}
	if page.Data == nil {
		return nil, &types.FetchError{URL: resp.Request.URL, StatusCode: resp.StatusCode(), Err: types.ErrEmptyResponse, Retryable: true}
	}
	return &page, nil
}

// GetAll runs Get for every query on the worker pool and hands each
// result to callback, partial results included. A callback error stops
// the run; failed queries are reported together once all have finished.
func (c *Client) GetAll(ctx context.Context, path string, queries []Params, callback Callback) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var (
		mu     sync.Mutex
		failed []error
	)
	for _, q := range queries {
		g.Go(func() error {
			results, err := c.Get(ctx, path, q)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("query failed", "path", path, "params", q, "collected", len(results), "error", err)
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
			if callback == nil {
				return nil
			}
			return callback(results, q)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(failed...)
}

// retryable reports whether another attempt at the same request could
// succeed. Not-found is never retried; other API errors follow the status
// code.
func retryable(err error) bool {
	if errors.Is(err, types.ErrNotFound) || strings.Contains(strings.ToLower(err.Error()), "not found") {
		return false
	}
	var fe *types.FetchError
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
