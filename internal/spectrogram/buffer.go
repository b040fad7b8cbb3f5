// SPDX-License-Identifier: MIT
package spectrogram

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LogFloor is added to every power value before log compression.
const LogFloor = 0.01

// LogScale multiplies the natural log of each compressed value.
const LogScale = 10.0

// Stats summarises the low-frequency sub-band of one full window.
type Stats struct {
	Mean     float64 `json:"mean"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"` // population variance
}

// Buffer is a dense frames × bins grid of power values addressed row-major,
// frame first. Rows are written in order until the buffer is full; Reset
// rewinds the cursor without reallocating.
type Buffer struct {
	frames int
	bins   int
	rows   int
	data   []float64
	band   []float64 // sub-band scratch used by Stats
}

// NewBuffer allocates a buffer for frames rows of bins values.
func NewBuffer(frames, bins int) *Buffer {
	return &Buffer{
		frames: frames,
		bins:   bins,
		data:   make([]float64, frames*bins),
		band:   make([]float64, 0, frames*bins),
	}
}

// AppendRow copies one spectrum into the next free row.
func (b *Buffer) AppendRow(spectrum []float64) error {
	if len(spectrum) != b.bins {
		return fmt.Errorf("%w: got %d, want %d", ErrSpectrumLength, len(spectrum), b.bins)
	}
	if b.rows == b.frames {
		return ErrWindowOverrun
	}
	copy(b.data[b.rows*b.bins:], spectrum)
	b.rows++
	return nil
}

// Rows returns the number of rows written since the last Reset.
func (b *Buffer) Rows() int { return b.rows }

// Full reports whether every row of the window has been written.
func (b *Buffer) Full() bool { return b.rows == b.frames }

// At returns the value stored for frame and bin.
func (b *Buffer) At(frame, bin int) float64 { return b.data[frame*b.bins+bin] }

// Normalize log-compresses every stored value in place.
func (b *Buffer) Normalize() {
	for i, v := range b.data {
		b.data[i] = math.Log(v+LogFloor) * LogScale
	}
}

// Stats returns mean, maximum and population variance over bins [0, width)
// of every frame. The maximum never drops below zero.
func (b *Buffer) Stats(width int) Stats {
	width = min(max(width, 1), b.bins)

	band := b.band[:0]
	for f := range b.frames {
		row := b.data[f*b.bins:]
		band = append(band, row[:width]...)
	}
	b.band = band

	mean, variance := stat.PopMeanVariance(band, nil)
	return Stats{
		Mean:     mean,
		Max:      math.Max(0, floats.Max(band)),
		Variance: variance,
	}
}

// Reset rewinds the row cursor. Stored values are overwritten by the next
// window.
func (b *Buffer) Reset() { b.rows = 0 }
