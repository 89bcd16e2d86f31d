package fingerprint

import (
	"context"
	"sync"
	"time"

	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/scoring"
)

// Entry is the cached outcome for one symbol: the fingerprint it was
// computed under plus the score and plan that fingerprint produced.
type Entry struct {
	Fingerprint string         `json:"fingerprint"`
	Result      scoring.Result `json:"result"`
	Plan        playbook.Plan  `json:"plan"`
	StoredAt    time.Time      `json:"stored_at"`
}

// Store persists entries keyed by symbol.
type Store interface {
	Get(ctx context.Context, symbol string) (Entry, bool, error)
	Put(ctx context.Context, symbol string, e Entry) error
	Delete(ctx context.Context, symbol string) error
}

// Config selects and tunes the fingerprint store backend.
type Config struct {
	Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"` // Default: memory
	RedisAddr     string        `yaml:"redis_addr"`                                             // Default: "" (required for redis backend)
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	KeyPrefix     string        `yaml:"key_prefix" default:"openprep:fp:"` // Default: openprep:fp:
	TTL           time.Duration `yaml:"ttl" default:"24h"`                 // Default: 24h
	AgeBucketSec  float64       `yaml:"age_bucket_sec" default:"300" validate:"gt=0"`
}

// DefaultConfig returns the in-memory backend with a trading-day TTL.
func DefaultConfig() Config {
	return Config{
		Backend:      "memory",
		KeyPrefix:    "openprep:fp:",
		TTL:          24 * time.Hour,
		AgeBucketSec: DefaultAgeBucketSec,
	}
}

type memoryStore struct {
	mu  sync.Mutex
	m   map[string]memoryEntry
	ttl time.Duration
}

type memoryEntry struct {
	e   Entry
	exp time.Time
}

// NewMemoryStore returns a mutex-guarded map store with per-entry expiry.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{m: make(map[string]memoryEntry), ttl: ttl}
}

func (s *memoryStore) Get(_ context.Context, symbol string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.m[symbol]
	if !ok || (!me.exp.IsZero() && time.Now().After(me.exp)) {
		delete(s.m, symbol)
		return Entry{}, false, nil
	}
	return me.e, true, nil
}

func (s *memoryStore) Put(_ context.Context, symbol string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	me := memoryEntry{e: e}
	if s.ttl > 0 {
		me.exp = time.Now().Add(s.ttl)
	}
	s.m[symbol] = me
	return nil
}

func (s *memoryStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, symbol)
	return nil
}
