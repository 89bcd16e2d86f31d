package regime

import "time"

// Switch records one regime transition.
type Switch struct {
	At   time.Time `json:"at"`
	From Regime    `json:"from"`
	To   Regime    `json:"to"`
}

// History tracks the regime across runs. The orchestrator owns one instance
// and threads it into every classification; the hysteresis rules read the
// prior regime from here.
type History struct {
	current     Regime
	hasCurrent  bool
	consecutive int
	switches    []Switch
}

// NewHistory returns an empty history with no prior regime.
func NewHistory() *History {
	return &History{}
}

// Current returns the last recorded regime, false when none recorded yet.
func (h *History) Current() (Regime, bool) {
	return h.current, h.hasCurrent
}

// Consecutive is the number of consecutive runs in the current regime.
func (h *History) Consecutive() int {
	return h.consecutive
}

// Switches returns the recorded transitions, oldest first.
func (h *History) Switches() []Switch {
	out := make([]Switch, len(h.switches))
	copy(out, h.switches)
	return out
}

// Reset clears all recorded state, as if no run had happened.
func (h *History) Reset() {
	*h = History{}
}

// Record notes the regime chosen for a run and reports whether it differs
// from the previous run's regime. The first recording is not a switch.
func (h *History) Record(at time.Time, r Regime) bool {
	if !h.hasCurrent {
		h.current = r
		h.hasCurrent = true
		h.consecutive = 1
		return false
	}
	if r == h.current {
		h.consecutive++
		return false
	}
	h.switches = append(h.switches, Switch{At: at, From: h.current, To: r})
	h.current = r
	h.consecutive = 1
	return true
}
