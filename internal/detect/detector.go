// SPDX-License-Identifier: MIT
package detect

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"waterdetect/internal/classifier"
	applog "waterdetect/internal/log"
	"waterdetect/internal/observe"
	"waterdetect/internal/transport"
)

// DefaultSampleScale converts 16-bit PCM into the range the trained models
// expect.
const DefaultSampleScale = 1000.0

// Event describes one classified window.
type Event struct {
	Window    int              `json:"window"`
	Phase     classifier.Phase `json:"phase"`     // phase the window was decided in
	Decision  bool             `json:"decision"`  // raw water verdict for this window
	Submerged bool             `json:"submerged"` // debounced state
	Confirmed bool             `json:"confirmed"` // a run reached its threshold
	Changed   bool             `json:"changed"`   // this window flipped the state
	Amp1      float64          `json:"amp1"`
	Amp2      float64          `json:"amp2"`
	Time      time.Time        `json:"time"`
}

// Config configures a Detector.
type Config struct {
	Engine      Options
	WaterCount  int     // consecutive water windows to report submerged
	AirCount    int     // consecutive air windows to report dry
	SampleScale float64 // multiplier applied to each PCM sample
}

// Detector turns an interleaved stereo PCM stream into Events. Channel 0 of
// each sample pair feeds microphone 1, channel 1 feeds microphone 2.
type Detector struct {
	mu sync.Mutex

	engine *Engine
	scale  float64

	// Frame assembly.
	frame1, frame2 []float64
	fill           int
	sum1, sum2     float64

	amp  AmplitudeTracker
	hyst Hysteresis

	transport transport.Transport
	metrics   *observe.Metrics
	onEvent   func(Event)
	now       func() time.Time

	last   Event
	closed bool
}

// NewDetector builds a detector and its engine. t and m may be nil.
func NewDetector(cfg Config, t transport.Transport, m *observe.Metrics) (*Detector, error) {
	engine, err := Initialize(cfg.Engine)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = observe.Nop()
	}
	scale := cfg.SampleScale
	if scale == 0 {
		scale = DefaultSampleScale
	}

	n := engine.Options().FFTSize
	applog.Infof("Detector: model %q, %d-point FFT, %d frames per window",
		engine.Model().Name, n, engine.Options().WindowFrames)

	return &Detector{
		engine:    engine,
		scale:     scale,
		frame1:    make([]float64, n),
		frame2:    make([]float64, n),
		hyst:      NewHysteresis(cfg.WaterCount, cfg.AirCount),
		transport: t,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// OnEvent registers fn to be called synchronously for every Event.
func (d *Detector) OnEvent(fn func(Event)) {
	d.mu.Lock()
	d.onEvent = fn
	d.mu.Unlock()
}

// ProcessInterleaved consumes L/R interleaved samples. A trailing odd
// sample is ignored. Partial frames carry over to the next call.
func (d *Detector) ProcessInterleaved(samples []int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	n := len(d.frame1)
	for i := 0; i+1 < len(samples); i += 2 {
		l, r := float64(samples[i]), float64(samples[i+1])
		d.frame1[d.fill] = d.scale * l
		d.frame2[d.fill] = d.scale * r
		d.sum1 += math.Abs(l)
		d.sum2 += math.Abs(r)
		d.fill++

		if d.fill == n {
			if err := d.processFrame(); err != nil {
				return err
			}
		}
	}
	return nil
}

// processFrame runs one assembled frame pair through the engine. Must be
// called with d.mu held.
func (d *Detector) processFrame() error {
	n := len(d.frame1)
	d.amp.Update(d.sum1, d.sum2, 2*n)
	d.fill, d.sum1, d.sum2 = 0, 0, 0

	start := d.now()
	done, err := d.engine.AppendFramePair(d.frame1, d.frame2)
	if err != nil || !done {
		return err
	}

	phase := d.engine.Phase()
	amp1, amp2 := d.amp.Levels()
	water, err := d.engine.Decide(amp1, amp2)
	if err != nil {
		return err
	}
	d.amp.Reset()

	submerged, confirmed, changed := d.hyst.Update(water)
	ev := Event{
		Window:    d.engine.Windows(),
		Phase:     phase,
		Decision:  water,
		Submerged: submerged,
		Confirmed: confirmed,
		Changed:   changed,
		Amp1:      amp1,
		Amp2:      amp2,
		Time:      d.now(),
	}
	d.last = ev
	d.publish(ev, ev.Time.Sub(start))
	return nil
}

func (d *Detector) publish(ev Event, took time.Duration) {
	ctx := context.Background()
	d.metrics.RecordWindow(ctx, ev.Phase.String(), took.Seconds())
	if ev.Phase == classifier.Classifying {
		d.metrics.RecordDecision(ctx, ev.Decision)
	}
	if ev.Changed {
		d.metrics.RecordStateChange(ctx, ev.Submerged)
		applog.Infof("Detector: window %d, submerged=%t", ev.Window, ev.Submerged)
	} else {
		applog.Debugf("Detector: window %d (%s) water=%t", ev.Window, ev.Phase, ev.Decision)
	}

	if d.transport != nil {
		if err := d.transport.Send(ev); err != nil {
			applog.Warnf("Detector: transport send failed: %v", err)
		}
	}
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}

// Last returns the most recent Event.
func (d *Detector) Last() Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Engine returns the underlying engine. Callers must not use it while the
// detector is being fed.
func (d *Detector) Engine() *Engine { return d.engine }

// Close releases the engine. The transport is owned by the caller.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	if err := d.engine.Close(); err != nil {
		return fmt.Errorf("closing engine: %w", err)
	}
	return nil
}
