// SPDX-License-Identifier: MIT

// Package classifier turns per-window spectral statistics and microphone
// amplitudes into a submerged / not submerged decision.
//
// The first windows after start are used to calibrate a baseline of every
// feature. Afterwards each live feature is divided by its baseline and fed
// to a two-class linear discriminant; the device is reported submerged when
// the water score beats the air score.
package classifier

import (
	"errors"
	"fmt"

	"waterdetect/internal/spectrogram"
)

// NumFeatures is the length of the feature vector.
const NumFeatures = 8

// BaselineEpsilon replaces baseline entries that average to exactly zero.
const BaselineEpsilon = 0.01

// DefaultFirstAcc is the number of calibration windows.
const DefaultFirstAcc = 2

// ErrFirstAcc is returned for calibration lengths below one window.
var ErrFirstAcc = errors.New("calibration needs at least one window")

// Feature vector layout.
const (
	Mean1 = iota
	Max1
	Var1
	Mean2
	Max2
	Var2
	Amp1
	Amp2
)

// Features is one raw feature vector.
type Features [NumFeatures]float64

// FeaturesFrom assembles the feature vector of one window.
func FeaturesFrom(s1, s2 spectrogram.Stats, amp1, amp2 float64) Features {
	return Features{
		Mean1: s1.Mean,
		Max1:  s1.Max,
		Var1:  s1.Variance,
		Mean2: s2.Mean,
		Max2:  s2.Max,
		Var2:  s2.Variance,
		Amp1:  amp1,
		Amp2:  amp2,
	}
}

// AmplitudeRatio is the differential amplitude term (a2-a1)/mean(a1, a2).
// Two silent microphones give 0.
func (f Features) AmplitudeRatio() float64 {
	sum := f[Amp1] + f[Amp2]
	if sum == 0 {
		return 0
	}
	return (f[Amp2] - f[Amp1]) / (sum / 2)
}

// Phase is the classifier life-cycle stage.
type Phase int

const (
	// Inactive windows are consumed without touching the baseline.
	Inactive Phase = iota
	// Calibrating windows are summed into the baseline.
	Calibrating
	// Classifying windows are scored against the baseline.
	Classifying
)

func (p Phase) String() string {
	switch p {
	case Inactive:
		return "inactive"
	case Calibrating:
		return "calibrating"
	case Classifying:
		return "classifying"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, q := range []Phase{Inactive, Calibrating, Classifying} {
		if string(b) == q.String() {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Classifier holds the phase machine and baseline of one detector. It is
// not safe for concurrent use.
type Classifier struct {
	model    Model
	firstAcc int
	warmup   int

	phase      Phase
	cycles     int // windows consumed in any phase
	calibrated int // windows summed into the baseline
	baseline   Features
}

// New returns a classifier for model that skips warmup windows and then
// calibrates over firstAcc windows.
func New(model Model, firstAcc, warmup int) (*Classifier, error) {
	if firstAcc < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrFirstAcc, firstAcc)
	}
	c := &Classifier{
		model:    model,
		firstAcc: firstAcc,
		warmup:   max(warmup, 0),
		phase:    Calibrating,
	}
	if c.warmup > 0 {
		c.phase = Inactive
	}
	return c, nil
}

// Decide consumes one completed window. It returns false while inactive or
// calibrating, and the discriminant result once classifying.
func (c *Classifier) Decide(f Features) bool {
	c.cycles++

	switch c.phase {
	case Inactive:
		if c.cycles >= c.warmup {
			c.phase = Calibrating
		}
		return false

	case Calibrating:
		for i, v := range f {
			c.baseline[i] += v
		}
		c.calibrated++
		if c.calibrated == c.firstAcc {
			for i := range c.baseline {
				c.baseline[i] /= float64(c.firstAcc)
				if c.baseline[i] == 0 {
					c.baseline[i] = BaselineEpsilon
				}
			}
			c.phase = Classifying
		}
		return false

	default:
		air, water := c.Scores(f)
		return water > air
	}
}

// Scores evaluates both discriminant scores of f against the current
// baseline. It is only meaningful once the classifier is classifying.
func (c *Classifier) Scores(f Features) (air, water float64) {
	w := &c.model.Weights
	air = c.model.Bias[ClassAir] * c.model.BiasScale
	water = c.model.Bias[ClassWater]

	for i, v := range f {
		norm := v / c.baseline[i]
		air += w[ClassAir][i] * norm
		water += w[ClassWater][i] * norm
	}

	ratio := f.AmplitudeRatio()
	air += w[ClassAir][NumFeatures] * ratio
	water += w[ClassWater][NumFeatures] * ratio
	return air, water
}

// Phase returns the current life-cycle stage.
func (c *Classifier) Phase() Phase { return c.phase }

// Cycles returns the number of windows consumed.
func (c *Classifier) Cycles() int { return c.cycles }

// Calibrated returns the number of windows summed into the baseline.
func (c *Classifier) Calibrated() int { return c.calibrated }

// Baseline returns the running baseline. While calibrating it holds the
// partial sum; ok is true once it is the final average.
func (c *Classifier) Baseline() (baseline Features, ok bool) {
	return c.baseline, c.phase == Classifying
}

// Model returns the discriminant in use.
func (c *Classifier) Model() Model { return c.model }
