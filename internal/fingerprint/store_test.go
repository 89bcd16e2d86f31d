package fingerprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/playbook"
	"github.com/quantprep/openprep/internal/scoring"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	_, ok, err := store.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.False(t, ok, "empty store must miss")

	e := Entry{Fingerprint: "abc123", StoredAt: time.Now().UTC()}
	require.NoError(t, store.Put(ctx, "ACME", e))

	got, ok, err := store.Get(ctx, "ACME")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", got.Fingerprint)

	require.NoError(t, store.Delete(ctx, "ACME"))
	_, ok, err = store.Get(ctx, "ACME")
	require.NoError(t, err)
	assert.False(t, ok, "deleted entry must miss")
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(30 * time.Millisecond)

	require.NoError(t, store.Put(ctx, "ACME", Entry{Fingerprint: "abc"}))
	_, ok, _ := store.Get(ctx, "ACME")
	assert.True(t, ok, "fresh entry must hit")

	time.Sleep(60 * time.Millisecond)
	_, ok, _ = store.Get(ctx, "ACME")
	assert.False(t, ok, "expired entry must miss")
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	require.NoError(t, store.Put(ctx, "ACME", Entry{Fingerprint: "abc"}))
	time.Sleep(20 * time.Millisecond)
	_, ok, _ := store.Get(ctx, "ACME")
	assert.True(t, ok)
}

func TestManagerDirtyCycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Hour), 300)

	in := baseInputs()

	st, err := m.Check(ctx, in)
	require.NoError(t, err)
	assert.True(t, st.Dirty, "unseen symbol starts dirty")
	require.NotEmpty(t, st.Fingerprint)

	res := scoring.Result{Symbol: "ACME", TotalScore: 71.5}
	plan := playbook.Plan{Symbol: "ACME", Kind: "GAP_AND_GO"}
	require.NoError(t, m.MarkClean(ctx, "ACME", st.Fingerprint, res, plan))

	st, err = m.Check(ctx, in)
	require.NoError(t, err)
	assert.False(t, st.Dirty, "unchanged inputs must be clean after MarkClean")
	assert.Equal(t, 71.5, st.Cached.Result.TotalScore)
	assert.Equal(t, plan.Kind, st.Cached.Plan.Kind)

	// Any score-relevant change flips it back to dirty.
	in.Candidate.Price = 25.10
	st, err = m.Check(ctx, in)
	require.NoError(t, err)
	assert.True(t, st.Dirty)
	assert.Equal(t, 71.5, st.Cached.Result.TotalScore, "stale entry rides along for diffing")
}

func TestManagerFailsOpenOnStoreError(t *testing.T) {
	ctx := context.Background()
	m := NewManager(failingStore{}, 300)

	st, err := m.Check(ctx, baseInputs())
	assert.Error(t, err, "store failure must surface for logging")
	assert.True(t, st.Dirty, "store failure must not serve stale results")
	assert.NotEmpty(t, st.Fingerprint, "fingerprint is still computed for MarkClean later")
}

func TestManagerInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, 300)

	in := baseInputs()
	st, _ := m.Check(ctx, in)
	require.NoError(t, m.MarkClean(ctx, "ACME", st.Fingerprint, scoring.Result{}, playbook.Plan{}))

	require.NoError(t, m.Invalidate(ctx, "ACME"))
	st, err := m.Check(ctx, in)
	require.NoError(t, err)
	assert.True(t, st.Dirty, "invalidated symbol must re-score")
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("store unavailable")
}

func (failingStore) Put(context.Context, string, Entry) error {
	return errors.New("store unavailable")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("store unavailable")
}
