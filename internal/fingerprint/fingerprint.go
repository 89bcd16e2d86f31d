// Package fingerprint implements the dirty-flag cache: a candidate is
// re-scored only when the sha256 of its score-relevant inputs changes.
//
// Two failure modes guard the field set. Including a volatile field (a raw
// age, a wall clock) makes every run a cache miss; excluding a score-relevant
// field serves stale scores. Ages are therefore bucketed before hashing, and
// the exact field set is pinned by tests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/quantprep/openprep/internal/domain"
	"github.com/quantprep/openprep/internal/regime"
)

// Inputs collects everything one candidate's score and plan depend on.
type Inputs struct {
	Candidate        domain.Candidate
	Regime           regime.Regime
	MacroBias        float64
	SectorTilt       float64
	WeightSet        string
	WeightSetVersion int
	InOpenWindow     bool
}

// DefaultAgeBucketSec is the default flooring granularity for signal ages:
// the clock alone never dirties a candidate inside a bucket.
const DefaultAgeBucketSec = 300.0

// Compute returns the hex sha256 over a canonical encoding of the inputs.
func Compute(in Inputs, ageBucketSec float64) string {
	if ageBucketSec <= 0 {
		ageBucketSec = DefaultAgeBucketSec
	}
	h := sha256.New()

	ws := func(key, val string) {
		io.WriteString(h, key)
		io.WriteString(h, "=")
		io.WriteString(h, val)
		io.WriteString(h, "\n")
	}
	wf := func(key string, v float64) {
		ws(key, strconv.FormatFloat(v, 'g', -1, 64))
	}
	wp := func(key string, p *float64) {
		if p == nil {
			ws(key, "nil")
			return
		}
		wf(key, *p)
	}
	wbucket := func(key string, p *float64) {
		if p == nil {
			ws(key, "nil")
			return
		}
		ws(key, strconv.FormatInt(int64(math.Floor(*p/ageBucketSec)), 10))
	}

	c := in.Candidate
	ws("symbol", c.Symbol)
	wf("price", c.Price)
	wp("previous_close", c.PreviousClose)
	wp("gap_pct", c.GapPct)
	wp("relative_volume", c.RelativeVolume)
	wp("atr_pct", c.ATRPct)
	wp("momentum_z", c.MomentumZ)
	ws("sector", c.Sector)
	wp("news_score", c.NewsScore)
	wbucket("news_age_bucket", c.NewsAgeSec)
	wbucket("premarket_age_bucket", c.PremarketAgeSec)
	wp("spread_bps", c.SpreadBps)

	flags := make([]string, 0, len(c.QualityFlags))
	for _, f := range c.QualityFlags {
		flags = append(flags, string(f))
	}
	sort.Strings(flags)
	ws("quality_flags", fmt.Sprint(flags))

	ws("regime", in.Regime.String())
	wf("macro_bias", in.MacroBias)
	wf("sector_tilt", in.SectorTilt)
	ws("weight_set", fmt.Sprintf("%s@%d", in.WeightSet, in.WeightSetVersion))
	ws("open_window", strconv.FormatBool(in.InOpenWindow))

	return hex.EncodeToString(h.Sum(nil))
}
