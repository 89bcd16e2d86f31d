package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSource serves snapshots preloaded from a JSON export. Offline scans
// and fixtures run against one of these instead of a live feed.
type FileSource struct {
	name  string
	snaps map[string]Snapshot
}

// NewFileSource loads a JSON array of snapshots and indexes it by symbol.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}

	var snaps []Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", path, err)
	}

	m := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		sym := strings.ToUpper(strings.TrimSpace(s.Symbol))
		if sym == "" {
			continue
		}
		s.Symbol = sym
		m[sym] = s
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("snapshot file %s contains no snapshots", path)
	}
	return &FileSource{name: "file:" + filepath.Base(path), snaps: m}, nil
}

func (s *FileSource) Name() string { return s.name }

func (s *FileSource) Snapshot(_ context.Context, symbol string) (Snapshot, error) {
	snap, ok := s.snaps[symbol]
	if !ok {
		return Snapshot{}, fmt.Errorf("no snapshot for %s", symbol)
	}
	return snap, nil
}

// Len reports how many symbols the file covers.
func (s *FileSource) Len() int { return len(s.snaps) }

// HTTPSource fetches snapshots from a JSON endpoint, one symbol per request.
// The enricher supplies the rate limit and circuit breaker around it.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource validates the base URL and builds the client.
func NewHTTPSource(baseURL string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid snapshot source URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Snapshot(ctx context.Context, symbol string) (Snapshot, error) {
	endpoint := fmt.Sprintf("%s/premarket/%s", s.base, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch snapshot for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("snapshot request for %s returned %d", symbol, resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot for %s: %w", symbol, err)
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	return snap, nil
}
