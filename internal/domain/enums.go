package domain

// ConfidenceTier buckets scored candidates by conviction.
type ConfidenceTier string

const (
	TierHighConviction ConfidenceTier = "HIGH_CONVICTION"
	TierStandard       ConfidenceTier = "STANDARD"
	TierWatchlist      ConfidenceTier = "WATCHLIST"
)

// PlaybookKind names the trade archetype assigned to a scored candidate.
type PlaybookKind string

const (
	PlaybookGapAndGo      PlaybookKind = "GAP_AND_GO"
	PlaybookGapFade       PlaybookKind = "GAP_FADE"
	PlaybookPostNewsDrift PlaybookKind = "POST_NEWS_DRIFT"
	PlaybookNoTrade       PlaybookKind = "NO_TRADE"
)

// Side is the trade direction implied by an archetype.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = "NONE"
)
