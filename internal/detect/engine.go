// SPDX-License-Identifier: MIT
/*
Package detect wires the FFT, spectrogram accumulator and classifier into a
submersion detector.

Engine is the synchronous core: feed it one frame per microphone with
AppendFramePair and, whenever that completes a window, ask Decide for the
verdict. Detector sits on top and turns an interleaved 16-bit stereo stream
into Events.

Thread Safety:
- Engine is single-owner and not safe for concurrent use
- Detector serialises its own calls and may be fed from a capture callback
*/
package detect

import (
	"errors"
	"fmt"

	"waterdetect/internal/classifier"
	"waterdetect/internal/fft"
	"waterdetect/internal/spectrogram"
)

// Defaults used when an Options field is zero.
const (
	DefaultFFTSize      = 512
	DefaultWindowFrames = 100
)

var (
	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("detect: engine closed")

	// ErrNoWindow is returned by Decide when no window has completed since
	// the previous decision.
	ErrNoWindow = errors.New("detect: no completed window")

	// ErrModelIndex is returned by Initialize for an unknown model.
	ErrModelIndex = classifier.ErrModelIndex

	// ErrInvalidOptions wraps every other Initialize rejection.
	ErrInvalidOptions = errors.New("detect: invalid options")
)

// Options configures an Engine. Zero fields take their defaults.
type Options struct {
	FFTSize       int // samples per frame, power of two
	WindowFrames  int // frames per spectrogram window
	ModelIndex    int // row of the trained model table
	FirstAcc      int // windows averaged into the baseline
	WarmupWindows int // windows ignored before calibration starts
	SubBandWidth  int // low bins summarised per window
}

func (o Options) withDefaults() Options {
	if o.FFTSize == 0 {
		o.FFTSize = DefaultFFTSize
	}
	if o.WindowFrames == 0 {
		o.WindowFrames = DefaultWindowFrames
	}
	if o.FirstAcc == 0 {
		o.FirstAcc = classifier.DefaultFirstAcc
	}
	if o.SubBandWidth == 0 {
		o.SubBandWidth = spectrogram.DefaultSubBandWidth
	}
	return o
}

// Engine owns every buffer the detection pipeline needs. All of them are
// allocated by Initialize; the per-frame path does not allocate.
type Engine struct {
	opts Options

	fft   *fft.Context
	acc   *spectrogram.Accumulator
	class *classifier.Classifier

	scratch1 []float64 // per-channel FFT work buffers
	scratch2 []float64

	ready  bool // a window completed and has not been decided yet
	closed bool
}

// Initialize validates opts and allocates an engine.
func Initialize(opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	if opts.WindowFrames < 1 || opts.FirstAcc < 1 || opts.WarmupWindows < 0 || opts.SubBandWidth < 1 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidOptions, opts)
	}

	model, err := classifier.ModelByIndex(opts.ModelIndex)
	if err != nil {
		return nil, err
	}

	ctx, err := fft.New(opts.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	acc, err := spectrogram.New(opts.WindowFrames, ctx.Bins(), opts.SubBandWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	class, err := classifier.New(model, opts.FirstAcc, opts.WarmupWindows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return &Engine{
		opts:     opts,
		fft:      ctx,
		acc:      acc,
		class:    class,
		scratch1: make([]float64, opts.FFTSize),
		scratch2: make([]float64, opts.FFTSize),
	}, nil
}

// Close releases the engine. A second Close returns ErrClosed.
func (e *Engine) Close() error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true
	e.fft, e.acc, e.class = nil, nil, nil
	e.scratch1, e.scratch2 = nil, nil
	return nil
}

// AppendFramePair transforms one frame per microphone and adds both spectra
// to the current window. It reports whether this pair completed the window.
// The caller's slices are not modified.
func (e *Engine) AppendFramePair(ch1, ch2 []float64) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	n := e.opts.FFTSize
	if len(ch1) != n || len(ch2) != n {
		return false, fmt.Errorf("%w: got %d and %d samples, want %d", fft.ErrFrameLength, len(ch1), len(ch2), n)
	}

	copy(e.scratch1, ch1)
	copy(e.scratch2, ch2)
	if err := e.fft.Transform(e.scratch1, 0, n); err != nil {
		return false, err
	}
	if err := e.fft.Transform(e.scratch2, 0, n); err != nil {
		return false, err
	}

	bins := e.fft.Bins()
	done, err := e.acc.AppendPair(e.scratch1[:bins], e.scratch2[:bins])
	if err != nil {
		return false, err
	}
	if done {
		e.ready = true
	}
	return done, nil
}

// Decide classifies the window completed by the last AppendFramePair using
// the mean absolute levels of both microphones. It advances the classifier
// phase and is false until calibration has finished.
func (e *Engine) Decide(amp1, amp2 float64) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	if !e.ready {
		return false, ErrNoWindow
	}
	e.ready = false

	f := classifier.FeaturesFrom(
		e.acc.Stats(spectrogram.Channel1),
		e.acc.Stats(spectrogram.Channel2),
		amp1, amp2,
	)
	return e.class.Decide(f), nil
}

// Phase returns the classifier phase the next decision will run in.
func (e *Engine) Phase() classifier.Phase {
	if e.closed {
		return classifier.Inactive
	}
	return e.class.Phase()
}

// Features returns the feature vector of the last completed window.
func (e *Engine) Features(amp1, amp2 float64) classifier.Features {
	if e.closed {
		return classifier.Features{}
	}
	return classifier.FeaturesFrom(
		e.acc.Stats(spectrogram.Channel1),
		e.acc.Stats(spectrogram.Channel2),
		amp1, amp2,
	)
}

// Baseline exposes the calibration baseline; ok is false until calibrated.
func (e *Engine) Baseline() (classifier.Features, bool) {
	if e.closed {
		return classifier.Features{}, false
	}
	return e.class.Baseline()
}

// Options returns the effective options after defaults.
func (e *Engine) Options() Options { return e.opts }

// Model returns the discriminant in use.
func (e *Engine) Model() classifier.Model {
	if e.closed {
		return classifier.Model{}
	}
	return e.class.Model()
}

// Windows returns the number of completed windows.
func (e *Engine) Windows() int {
	if e.closed {
		return 0
	}
	return e.acc.Windows()
}
