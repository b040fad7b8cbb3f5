// SPDX-License-Identifier: MIT

// Package spectrogram collects successive power spectra of the two
// microphone channels into fixed size windows and summarises the
// low-frequency sub-band of each completed window.
package spectrogram

import (
	"errors"
	"fmt"
)

// DefaultSubBandWidth is the number of low bins summarised per window.
const DefaultSubBandWidth = 3

var (
	ErrSpectrumLength = errors.New("spectrum length does not match bin count")
	ErrWindowOverrun  = errors.New("channel window already full")
	ErrChannel        = errors.New("unknown channel")
	ErrGeometry       = errors.New("invalid spectrogram geometry")
)

// Channel identifies one of the two microphones.
type Channel int

const (
	Channel1 Channel = iota
	Channel2
)

func (c Channel) String() string {
	switch c {
	case Channel1:
		return "ch1"
	case Channel2:
		return "ch2"
	default:
		return fmt.Sprintf("ch?(%d)", int(c))
	}
}

// Accumulator owns one Buffer per channel. A window completes when both
// channels hold frames rows; the append that completes it normalises both
// buffers, computes their Stats and rewinds the cursors.
type Accumulator struct {
	frames  int
	bins    int
	width   int
	buffers [2]*Buffer
	stats   [2]Stats
	windows int
}

// New allocates an accumulator for windows of frames spectra of bins values,
// summarising bins [0, width).
func New(frames, bins, width int) (*Accumulator, error) {
	if frames <= 0 || bins <= 0 || width <= 0 || width > bins {
		return nil, fmt.Errorf("%w: frames=%d bins=%d width=%d", ErrGeometry, frames, bins, width)
	}
	return &Accumulator{
		frames:  frames,
		bins:    bins,
		width:   width,
		buffers: [2]*Buffer{NewBuffer(frames, bins), NewBuffer(frames, bins)},
	}, nil
}

// AppendSpectrum stores spectrum as the next row of ch. It returns true
// exactly when this append completes a window for both channels.
func (a *Accumulator) AppendSpectrum(ch Channel, spectrum []float64) (bool, error) {
	if ch != Channel1 && ch != Channel2 {
		return false, fmt.Errorf("%w: %d", ErrChannel, int(ch))
	}
	if err := a.buffers[ch].AppendRow(spectrum); err != nil {
		return false, fmt.Errorf("%s: %w", ch, err)
	}
	if !a.buffers[Channel1].Full() || !a.buffers[Channel2].Full() {
		return false, nil
	}

	for i, b := range a.buffers {
		b.Normalize()
		a.stats[i] = b.Stats(a.width)
		b.Reset()
	}
	a.windows++
	return true, nil
}

// AppendPair appends one spectrum per channel.
func (a *Accumulator) AppendPair(s1, s2 []float64) (bool, error) {
	if _, err := a.AppendSpectrum(Channel1, s1); err != nil {
		return false, err
	}
	return a.AppendSpectrum(Channel2, s2)
}

// Stats returns the statistics of the last completed window for ch.
func (a *Accumulator) Stats(ch Channel) Stats {
	if ch != Channel1 && ch != Channel2 {
		return Stats{}
	}
	return a.stats[ch]
}

// Cursor returns the number of rows ch has written in the current window.
func (a *Accumulator) Cursor(ch Channel) int {
	if ch != Channel1 && ch != Channel2 {
		return 0
	}
	return a.buffers[ch].Rows()
}

// Buffer exposes the raw grid of ch for inspection.
func (a *Accumulator) Buffer(ch Channel) *Buffer { return a.buffers[ch] }

// Frames returns the window length in spectra.
func (a *Accumulator) Frames() int { return a.frames }

// Bins returns the spectrum length.
func (a *Accumulator) Bins() int { return a.bins }

// Windows returns the number of windows completed so far.
func (a *Accumulator) Windows() int { return a.windows }
