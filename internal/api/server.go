// Package api serves the scrapes over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osslab-pku/github-scraper/internal/config"
	"github.com/osslab-pku/github-scraper/internal/github"
	"github.com/osslab-pku/github-scraper/internal/observability"
	"github.com/osslab-pku/github-scraper/internal/pagecount"
	"github.com/osslab-pku/github-scraper/internal/types"
)

// Scraper is what the API needs from github.Service.
type Scraper interface {
	Issues(ctx context.Context, q github.ListQuery) (*github.Result, error)
	Pulls(ctx context.Context, q github.ListQuery) (*github.Result, error)
	Timeline(ctx context.Context, q github.ThreadQuery) (*github.Result, error)
	Dependents(ctx context.Context, q github.DependentsQuery) (*github.Result, error)
	CountRepos(ctx context.Context, namespace string, estimate int) (pagecount.Result, error)
	ListRepos(ctx context.Context, namespace string, estimate int) ([]*types.Item, pagecount.Result, error)
}

// Server exposes a Scraper as a REST API.
type Server struct {
	mux     *http.ServeMux
	cfg     config.ServerConfig
	scraper Scraper
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Response is the body of a successful listing request.
type Response struct {
	Data        []map[string]any `json:"data"`
	URL         string           `json:"url"`
	Current     *int             `json:"current,omitempty"`
	Next        string           `json:"next,omitempty"`
	Total       *int             `json:"total,omitempty"`
	Global      map[string]any   `json:"global,omitempty"`
	Uncollected map[string]any   `json:"uncollected,omitempty"`
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, scraper Scraper, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		cfg:     cfg.Server,
		scraper: scraper,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
	}

	s.registerRoutes()
	if cfg.Metrics.Enabled && metrics != nil {
		s.mux.Handle("GET "+cfg.Metrics.Path, metrics)
	}
	return s
}

// Handler returns the server's handler with request ids, logging and
// authentication applied.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.logged(s.mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /github/issues", s.authed(s.handleList(github.KindIssues)))
	s.mux.HandleFunc("GET /github/pulls", s.authed(s.handleList(github.KindPulls)))
	s.mux.HandleFunc("GET /github/issue", s.authed(s.handleThread(false)))
	s.mux.HandleFunc("GET /github/pull", s.authed(s.handleThread(true)))
	s.mux.HandleFunc("GET /github/dependents", s.authed(s.handleDependents))
	s.mux.HandleFunc("GET /github/repos", s.authed(s.handleRepos))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleList(kind github.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := params{r: r}
		query := github.ListQuery{
			Owner:    q.required("owner"),
			Name:     q.required("name"),
			Query:    r.URL.Query().Get("query"),
			FromPage: q.int("fromPage", 1),
			Cursor:   r.URL.Query().Get("cursor"),
			MaxPages: q.int("maxPages", 0),
		}
		if q.err != nil {
			s.errorResponse(w, r, q.err)
			return
		}

		ctx, cancel := s.scrapeContext(r)
		defer cancel()

		var res *github.Result
		var err error
		if kind == github.KindPulls {
			res, err = s.scraper.Pulls(ctx, query)
		} else {
			res, err = s.scraper.Issues(ctx, query)
		}
		s.result(w, r, res, err)
	}
}

func (s *Server) handleThread(pull bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := params{r: r}
		query := github.ThreadQuery{
			Owner:    q.required("owner"),
			Name:     q.required("name"),
			Number:   q.int("id", 0),
			Pull:     pull,
			Cursor:   r.URL.Query().Get("cursor"),
			MaxPages: q.int("maxPages", 0),
		}
		if q.err == nil && query.Number < 1 {
			q.err = fmt.Errorf("%w: id must be a positive integer", errBadRequest)
		}
		if q.err != nil {
			s.errorResponse(w, r, q.err)
			return
		}

		ctx, cancel := s.scrapeContext(r)
		defer cancel()
		res, err := s.scraper.Timeline(ctx, query)
		s.result(w, r, res, err)
	}
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	q := params{r: r}
	query := github.DependentsQuery{
		Owner:     q.required("owner"),
		Name:      q.required("name"),
		Type:      r.URL.Query().Get("type"),
		PackageID: r.URL.Query().Get("package_id"),
		Cursor:    r.URL.Query().Get("cursor"),
		MaxPages:  q.int("maxPages", 0),
	}
	if q.err != nil {
		s.errorResponse(w, r, q.err)
		return
	}

	ctx, cancel := s.scrapeContext(r)
	defer cancel()
	res, err := s.scraper.Dependents(ctx, query)
	s.result(w, r, res, err)
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	q := params{r: r}
	namespace := q.required("namespace")
	estimate := q.int("estimate", 0)
	countOnly := r.URL.Query().Get("countOnly") == "true"
	if q.err != nil {
		s.errorResponse(w, r, q.err)
		return
	}

	ctx, cancel := s.scrapeContext(r)
	defer cancel()

	if countOnly {
		res, err := s.scraper.CountRepos(ctx, namespace, estimate)
		if err != nil {
			s.errorResponse(w, r, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, res)
		return
	}

	items, res, err := s.scraper.ListRepos(ctx, namespace, estimate)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	total := res.TotalItems
	s.jsonResponse(w, http.StatusOK, Response{
		Data:  documents(items),
		URL:   r.URL.String(),
		Total: &total,
	})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request, res *github.Result, err error) {
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, Response{
		Data:        documents(res.Items),
		URL:         res.URL,
		Current:     res.Pagination.Current,
		Next:        res.Pagination.Next,
		Total:       res.Pagination.Total,
		Global:      res.Global,
		Uncollected: res.Uncollected,
	})
}

func (s *Server) scrapeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

func documents(items []*types.Item) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = item.Document()
	}
	return out
}

var errBadRequest = errors.New("bad request")

// params reads query parameters, keeping the first error.
type params struct {
	r   *http.Request
	err error
}

func (p *params) required(name string) string {
	v := strings.TrimSpace(p.r.URL.Query().Get(name))
	if v == "" && p.err == nil {
		p.err = fmt.Errorf("%w: missing parameter %q", errBadRequest, name)
	}
	return v
}

func (p *params) int(name string, def int) int {
	raw := p.r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: parameter %q is not an integer", errBadRequest, name)
	}
	return n
}

// statusOf maps an error to the HTTP status reported to clients.
func statusOf(err error) int {
	var fe *types.FetchError
	var xe *types.ExtractError
	var pe *types.ProbeError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, types.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fe), errors.As(err, &xe), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusNotFound {
		msg = "not found: " + msg
	}
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err,
			"request_id", w.Header().Get(requestIDHeader))
	}
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.APIRequest(rec.status)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", w.Header().Get(requestIDHeader),
		)
	})
}

// authed rejects requests without the configured token. The token may be
// sent bare or as a bearer token.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AuthToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got != s.cfg.AuthToken {
			s.errorResponse(w, r, types.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}
