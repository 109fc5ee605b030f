package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for scrapes and the API. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Fetch metrics
	PagesFetched    atomic.Int64
	PagesFailed     atomic.Int64
	BytesDownloaded atomic.Int64
	ProxyRotations  atomic.Int64

	// Extraction metrics
	ExtractErrors atomic.Int64
	Crawls        atomic.Int64
	Probes        atomic.Int64

	// Item metrics
	ItemsScraped atomic.Int64
	ItemsStored  atomic.Int64

	// API metrics
	APIRequests atomic.Int64
	API4xx      atomic.Int64
	API5xx      atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// PageFetched counts a page whose headers arrived successfully.
func (m *Metrics) PageFetched() {
	if m != nil {
		m.PagesFetched.Add(1)
	}
}

// PageFailed counts a failed page fetch.
func (m *Metrics) PageFailed() {
	if m != nil {
		m.PagesFailed.Add(1)
	}
}

// ExtractFailed counts a page that could not be extracted.
func (m *Metrics) ExtractFailed() {
	if m != nil {
		m.ExtractErrors.Add(1)
	}
}

// CrawlDone counts a completed crawl and the items it produced.
func (m *Metrics) CrawlDone(items int) {
	if m != nil {
		m.Crawls.Add(1)
		m.ItemsScraped.Add(int64(items))
	}
}

// ProbeSent counts a page-length probe.
func (m *Metrics) ProbeSent() {
	if m != nil {
		m.Probes.Add(1)
	}
}

// Stored counts items written to storage.
func (m *Metrics) Stored(n int) {
	if m != nil {
		m.ItemsStored.Add(int64(n))
	}
}

// Downloaded counts response bytes.
func (m *Metrics) Downloaded(n int64) {
	if m != nil {
		m.BytesDownloaded.Add(n)
	}
}

// ProxyRotated counts a proxy switch.
func (m *Metrics) ProxyRotated() {
	if m != nil {
		m.ProxyRotations.Add(1)
	}
}

// APIRequest counts a served API request by status.
func (m *Metrics) APIRequest(status int) {
	if m == nil {
		return
	}
	m.APIRequests.Add(1)
	switch {
	case status >= 500:
		m.API5xx.Add(1)
	case status >= 400:
		m.API4xx.Add(1)
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"ghscraper_pages_fetched_total", "Total pages fetched", m.PagesFetched.Load()},
		{"ghscraper_pages_failed_total", "Total failed page fetches", m.PagesFailed.Load()},
		{"ghscraper_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"ghscraper_proxy_rotations_total", "Total proxy rotations", m.ProxyRotations.Load()},
		{"ghscraper_extract_errors_total", "Total pages that failed extraction", m.ExtractErrors.Load()},
		{"ghscraper_crawls_total", "Total completed crawls", m.Crawls.Load()},
		{"ghscraper_probes_total", "Total page-length probes", m.Probes.Load()},
		{"ghscraper_items_scraped_total", "Total items scraped", m.ItemsScraped.Load()},
		{"ghscraper_items_stored_total", "Total items stored", m.ItemsStored.Load()},
		{"ghscraper_api_requests_total", "Total API requests", m.APIRequests.Load()},
		{"ghscraper_api_4xx_total", "Total API 4xx responses", m.API4xx.Load()},
		{"ghscraper_api_5xx_total", "Total API 5xx responses", m.API5xx.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":    m.PagesFetched.Load(),
		"pages_failed":     m.PagesFailed.Load(),
		"bytes_downloaded": m.BytesDownloaded.Load(),
		"extract_errors":   m.ExtractErrors.Load(),
		"crawls":           m.Crawls.Load(),
		"probes":           m.Probes.Load(),
		"items_scraped":    m.ItemsScraped.Load(),
		"items_stored":     m.ItemsStored.Load(),
		"api_requests":     m.APIRequests.Load(),
	}
}
