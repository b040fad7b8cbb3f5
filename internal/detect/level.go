package detect

// AmplitudeTracker keeps the running microphone level used as the last two
// classifier features. Every read folds its absolute sample sum into the
// level and divides by the read length, so the most recent read dominates
// and older reads decay geometrically. Reset is called once a window has
// been classified.
type AmplitudeTracker struct {
	level1, level2 float64
}

// Update folds one read into the levels. sum1 and sum2 are the absolute
// sample sums of each channel, samples is the interleaved sample count.
func (a *AmplitudeTracker) Update(sum1, sum2 float64, samples int) {
	if samples <= 0 {
		return
	}
	a.level1 = (a.level1 + sum1) / float64(samples)
	a.level2 = (a.level2 + sum2) / float64(samples)
}

// Levels returns the current level of both microphones.
func (a *AmplitudeTracker) Levels() (amp1, amp2 float64) {
	return a.level1, a.level2
}

// Reset zeroes both levels.
func (a *AmplitudeTracker) Reset() {
	a.level1, a.level2 = 0, 0
}

// Default run lengths for Hysteresis.
const (
	DefaultWaterCount = 3
	DefaultAirCount   = 2
)

// Hysteresis debounces per-window decisions. The state flips to submerged
// after WaterCount consecutive water decisions and back to dry after
// AirCount consecutive air decisions.
type Hysteresis struct {
	waterCount, airCount int

	water, air int // current run lengths
	submerged  bool
}

// NewHysteresis returns a debouncer starting dry. Counts below one take the
// defaults.
func NewHysteresis(waterCount, airCount int) Hysteresis {
	if waterCount < 1 {
		waterCount = DefaultWaterCount
	}
	if airCount < 1 {
		airCount = DefaultAirCount
	}
	return Hysteresis{waterCount: waterCount, airCount: airCount}
}

// Update records one decision. confirmed is true while the current run has
// reached its threshold; changed is true only on the decision that flipped
// the state.
func (h *Hysteresis) Update(water bool) (submerged, confirmed, changed bool) {
	if water {
		h.water++
		h.air = 0
	} else {
		h.air++
		h.water = 0
	}

	switch {
	case h.water >= h.waterCount:
		confirmed = true
		changed = !h.submerged
		h.submerged = true
	case h.air >= h.airCount:
		confirmed = true
		changed = h.submerged
		h.submerged = false
	}
	return h.submerged, confirmed, changed
}

// Submerged returns the debounced state.
func (h *Hysteresis) Submerged() bool { return h.submerged }
