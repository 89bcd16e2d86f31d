package fingerprint

import (
	"context"
	"time"

	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/scoring"
)

// Status is the outcome of a dirty check for one symbol.
type Status struct {
	Fingerprint string
	Dirty       bool
	Cached      Entry
}

// Manager decides per symbol whether the cached outcome is still valid.
type Manager struct {
	store        Store
	ageBucketSec float64
}

// NewManager wires a store to the fingerprint function.
func NewManager(store Store, ageBucketSec float64) *Manager {
	if ageBucketSec <= 0 {
		ageBucketSec = DefaultAgeBucketSec
	}
	return &Manager{store: store, ageBucketSec: ageBucketSec}
}

// Check computes the fingerprint for in and compares it to the stored one.
// A store error fails open: the symbol is reported dirty and the error is
// returned so the caller can log the degradation.
func (m *Manager) Check(ctx context.Context, in Inputs) (Status, error) {
	fp := Compute(in, m.ageBucketSec)

	cached, ok, err := m.store.Get(ctx, in.Candidate.Symbol)
	if err != nil {
		return Status{Fingerprint: fp, Dirty: true}, err
	}
	if !ok || cached.Fingerprint != fp {
		return Status{Fingerprint: fp, Dirty: true, Cached: cached}, nil
	}
	return Status{Fingerprint: fp, Dirty: false, Cached: cached}, nil
}

// MarkClean records a freshly computed outcome under its fingerprint.
func (m *Manager) MarkClean(ctx context.Context, symbol, fp string, res scoring.Result, plan playbook.Plan) error {
	return m.store.Put(ctx, symbol, Entry{
		Fingerprint: fp,
		Result:      res,
		Plan:        plan,
		StoredAt:    time.Now().UTC(),
	})
}

// Invalidate drops the cached outcome for one symbol.
func (m *Manager) Invalidate(ctx context.Context, symbol string) error {
	return m.store.Delete(ctx, symbol)
}
