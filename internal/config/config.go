package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for github-scraper.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper" yaml:"scraper"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Mongo   MongoConfig   `mapstructure:"mongo"   yaml:"mongo"`
	Server  ServerConfig  `mapstructure:"server"  yaml:"server"`
	Client  ClientConfig  `mapstructure:"client"  yaml:"client"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ScraperConfig controls crawling and page counting.
type ScraperConfig struct {
	BaseURL          string `mapstructure:"base_url"          yaml:"base_url"`
	APIBaseURL       string `mapstructure:"api_base_url"      yaml:"api_base_url"`
	MaxPages         int    `mapstructure:"max_pages"         yaml:"max_pages"`
	PageSize         int    `mapstructure:"page_size"         yaml:"page_size"`
	RangeConcurrency int    `mapstructure:"range_concurrency" yaml:"range_concurrency"`
	Backend          string `mapstructure:"backend"           yaml:"backend"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type              string            `mapstructure:"type"                yaml:"type"`
	RequestTimeout    time.Duration     `mapstructure:"request_timeout"     yaml:"request_timeout"`
	UserAgents        []string          `mapstructure:"user_agents"         yaml:"user_agents"`
	Headers           map[string]string `mapstructure:"headers"             yaml:"headers"`
	FollowRedirects   bool              `mapstructure:"follow_redirects"    yaml:"follow_redirects"`
	MaxRedirects      int               `mapstructure:"max_redirects"       yaml:"max_redirects"`
	MaxBodySize       int64             `mapstructure:"max_body_size"       yaml:"max_body_size"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int               `mapstructure:"burst"               yaml:"burst"`
	TLSInsecure       bool              `mapstructure:"tls_insecure"        yaml:"tls_insecure"`
	IdleConnTimeout   time.Duration     `mapstructure:"idle_conn_timeout"   yaml:"idle_conn_timeout"`
	MaxIdleConns      int               `mapstructure:"max_idle_conns"      yaml:"max_idle_conns"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	BatchSize  int    `mapstructure:"batch_size"  yaml:"batch_size"`
}

// MongoConfig locates the MongoDB database used by the mongo storage.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port           int           `mapstructure:"port"            yaml:"port"`
	AuthToken      string        `mapstructure:"auth_token"      yaml:"auth_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// ClientConfig controls the client of a remote github-scraper server.
type ClientConfig struct {
	ServerURL  string        `mapstructure:"server_url"  yaml:"server_url"`
	AuthToken  string        `mapstructure:"auth_token"  yaml:"auth_token"`
	Workers    int           `mapstructure:"workers"     yaml:"workers"`
	Retries    int           `mapstructure:"retries"     yaml:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxPages   int           `mapstructure:"max_pages"   yaml:"max_pages"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			BaseURL:          "https://github.com",
			APIBaseURL:       "https://api.github.com",
			MaxPages:         10,
			PageSize:         100,
			RangeConcurrency: 4,
			Backend:          "stream",
		},
		Fetcher: FetcherConfig{
			Type:           "http",
			RequestTimeout: 30 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			FollowRedirects:   true,
			MaxRedirects:      10,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			RequestsPerSecond: 2,
			Burst:             1,
			IdleConnTimeout:   90 * time.Second,
			MaxIdleConns:      100,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Storage: StorageConfig{
			Type:       "json",
			OutputPath: "./output",
			BatchSize:  100,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "github",
		},
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 5 * time.Minute,
		},
		Client: ClientConfig{
			ServerURL:  "http://localhost:8080",
			Workers:    4,
			Retries:    3,
			RetryDelay: 10 * time.Second,
			MaxPages:   10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
