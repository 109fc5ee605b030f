package fetcher

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/osslab-pku/github-scraper/internal/config"
)

func TestProxyManagerRoundRobin(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Enabled:  true,
		Rotation: "round_robin",
		URLs:     []string{"http://a:8080", "http://b:8080", "not a url"},
	}, nil, slog.Default())

	if pm.Count() != 2 {
		t.Fatalf("Count = %d, want 2", pm.Count())
	}

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[pm.Next().Host]++
	}
	if seen["a:8080"] != 2 || seen["b:8080"] != 2 {
		t.Errorf("uneven rotation: %v", seen)
	}
}

func TestProxyManagerHealth(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Enabled: true,
		URLs:    []string{"http://a:8080", "http://b:8080"},
	}, nil, slog.Default())

	a := pm.Next()
	pm.MarkFailed(a, errors.New("refused"))
	if pm.HealthyCount() != 1 {
		t.Fatalf("HealthyCount = %d, want 1", pm.HealthyCount())
	}
	for i := 0; i < 3; i++ {
		if got := pm.Next(); got.Host == a.Host {
			t.Fatalf("unhealthy proxy %s returned", got.Host)
		}
	}

	pm.MarkHealthy(a)
	if pm.HealthyCount() != 2 {
		t.Errorf("HealthyCount = %d, want 2", pm.HealthyCount())
	}
}

func TestProxyManagerEmpty(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{}, nil, slog.Default())
	if pm.Next() != nil {
		t.Error("expected nil proxy for an empty manager")
	}
}
