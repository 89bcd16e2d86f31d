package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/regime"
)

func TestNewRecordersAreIndependent(t *testing.T) {
	// Each recorder has its own registry, so double construction must not
	// panic with duplicate registration.
	a := New()
	b := New()

	a.RecordCacheHit()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.cacheEvents.WithLabelValues("hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheEvents.WithLabelValues("hit")))
}

func TestCacheHitRatio(t *testing.T) {
	r := New()
	assert.Equal(t, 0.0, r.CacheHitRatio(), "empty counters must not divide by zero")

	r.RecordCacheHit()
	r.RecordCacheHit()
	r.RecordCacheHit()
	r.RecordCacheMiss()
	assert.InDelta(t, 0.75, r.CacheHitRatio(), 1e-9)
}

func TestRecordRegimeGaugeAndSwitches(t *testing.T) {
	r := New()

	r.RecordRegime(regime.Classification{Regime: regime.RiskOff, Changed: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeRegime.WithLabelValues("RISK_OFF")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeRegime.WithLabelValues("RISK_ON")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regimeSwitches))

	// An unchanged classification moves the gauge but not the switch count.
	r.RecordRegime(regime.Classification{Regime: regime.RiskOff, Changed: false})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regimeSwitches))
}

func TestRecordCandidatesIgnoresNonPositive(t *testing.T) {
	r := New()
	r.RecordCandidates("ranked", 0)
	r.RecordCandidates("ranked", 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(r.candidates.WithLabelValues("ranked")))
}

func TestStepTimerObserves(t *testing.T) {
	r := New()
	done := r.StepTimer("score")
	time.Sleep(5 * time.Millisecond)
	done()

	assert.Equal(t, 1, testutil.CollectAndCount(r.stepDuration, "openprep_step_duration_seconds"))
}

func TestHandlerServesExposition(t *testing.T) {
	r := New()
	r.RecordRun("ok")
	r.SetLastRun(time.Unix(1756100000, 0))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "openprep_runs_total")
	assert.Contains(t, string(body), "openprep_last_run_timestamp_seconds")
}
