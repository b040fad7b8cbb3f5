// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"fmt"
	"math"

	"waterdetect/pkg/bitint"
)

var (
	// ErrSize is returned by New for lengths that are not a power of two >= 2.
	ErrSize = errors.New("fft size must be a power of 2")
	// ErrFrameLength is returned by Transform when the buffer is not N long.
	ErrFrameLength = errors.New("frame length does not match fft size")
)

// Context holds the lookup tables and scratch space of a fixed size real
// input FFT. Tables are built once in New and never written again; the
// imaginary scratch is re-zeroed on each Transform so a Context performs no
// allocation after construction.
//
// A Context is not safe for concurrent use.
type Context struct {
	n     int
	log2n int
	cos   []float64 // cos(2πi/n), i in [0, n/2)
	sin   []float64 // -sin(2πi/n), i in [0, n/2)
	imag  []float64 // imaginary part of the running transform
}

// New creates a Context for n point transforms.
func New(n int) (*Context, error) {
	if n < 2 || !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w, got %d", ErrSize, n)
	}

	half := n / 2
	c := &Context{
		n:     n,
		log2n: bitint.Log2(n),
		cos:   make([]float64, half),
		sin:   make([]float64, half),
		imag:  make([]float64, n),
	}

	step := 2 * math.Pi / float64(n)
	for i := range half {
		c.cos[i] = math.Cos(float64(i) * step)
		c.sin[i] = -math.Sin(float64(i) * step)
	}

	return c, nil
}

// Size returns the transform length N.
func (c *Context) Size() int { return c.n }

// Bins returns the number of spectrum bins up to and including Nyquist.
func (c *Context) Bins() int { return c.n/2 + 1 }

// Transform runs the FFT over buf and overwrites it with the power spectrum
// (re²+im², no square root) for bins in [lowBin, highBin). Every other index
// is set to zero. Bin bounds are clamped to [0, N].
func (c *Context) Transform(buf []float64, lowBin, highBin int) error {
	if len(buf) != c.n {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(buf), c.n)
	}

	lowBin = min(max(lowBin, 0), c.n)
	highBin = min(max(highBin, lowBin), c.n)

	clear(c.imag)
	c.BitSwapInPlace(buf)

	n := c.n
	imag := c.imag
	span := 1
	for stage := range c.log2n {
		half := span
		span <<= 1
		stride := 1 << (c.log2n - stage - 1)

		for j, x := 0, 0; j < half; j, x = j+1, x+stride {
			cosx := c.cos[x]
			sinx := c.sin[x]

			for k := j; k < n; k += span {
				re := cosx*buf[k+half] - sinx*imag[k+half]
				im := sinx*buf[k+half] + cosx*imag[k+half]

				buf[k+half] = buf[k] - re
				imag[k+half] = imag[k] - im
				buf[k] += re
				imag[k] += im
			}
		}
	}

	clear(buf[:lowBin])
	clear(buf[highBin:])
	for i := lowBin; i < highBin; i++ {
		buf[i] = buf[i]*buf[i] + imag[i]*imag[i]
	}

	return nil
}

// BitSwapInPlace reorders buf so that the element at index i moves to the
// bit-reversed index of i. Applying it twice restores the original order.
// len(buf) must equal Size.
func (c *Context) BitSwapInPlace(buf []float64) {
	bin := 0
	half := c.n >> 1

	for i := 1; i < c.n-1; i++ {
		cursor := half
		for cursor <= bin {
			bin -= cursor
			cursor >>= 1
		}
		bin += cursor

		if i < bin {
			buf[i], buf[bin] = buf[bin], buf[i]
		}
	}
}
