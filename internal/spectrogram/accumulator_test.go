// SPDX-License-Identifier: MIT
package spectrogram

import (
	"errors"
	"math"
	"testing"
)

const (
	testFrames = 4
	testBins   = 257
)

func constantSpectrum(bins int, v float64) []float64 {
	s := make([]float64, bins)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestNewRejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name                string
		frames, bins, width int
	}{
		{"zero frames", 0, 10, 3},
		{"zero bins", 2, 0, 3},
		{"zero width", 2, 10, 0},
		{"width beyond bins", 2, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.frames, tt.bins, tt.width); !errors.Is(err, ErrGeometry) {
				t.Errorf("New() error = %v, want ErrGeometry", err)
			}
		})
	}
}

func TestAppendCompletesEveryWindow(t *testing.T) {
	acc, err := New(testFrames, testBins, DefaultSubBandWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spectrum := constantSpectrum(testBins, 1)

	for call := 1; call <= 3*testFrames; call++ {
		done, err := acc.AppendPair(spectrum, spectrum)
		if err != nil {
			t.Fatalf("call %d: %v", call, err)
		}
		if want := call%testFrames == 0; done != want {
			t.Fatalf("call %d: done = %v, want %v", call, done, want)
		}
		if done {
			if acc.Cursor(Channel1) != 0 || acc.Cursor(Channel2) != 0 {
				t.Fatalf("call %d: cursors = %d/%d after window, want 0",
					call, acc.Cursor(Channel1), acc.Cursor(Channel2))
			}
		}
	}
	if acc.Windows() != 3 {
		t.Errorf("Windows() = %d, want 3", acc.Windows())
	}
}

func TestWindowNeedsBothChannels(t *testing.T) {
	acc, err := New(1, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := constantSpectrum(4, 0)

	done, err := acc.AppendSpectrum(Channel2, s)
	if err != nil || done {
		t.Fatalf("first channel: done=%v err=%v, want false/nil", done, err)
	}

	if _, err := acc.AppendSpectrum(Channel2, s); !errors.Is(err, ErrWindowOverrun) {
		t.Fatalf("second append on full channel: err = %v, want ErrWindowOverrun", err)
	}

	done, err = acc.AppendSpectrum(Channel1, s)
	if err != nil || !done {
		t.Fatalf("partner channel: done=%v err=%v, want true/nil", done, err)
	}
}

func TestAppendErrors(t *testing.T) {
	acc, err := New(2, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := acc.AppendSpectrum(Channel1, make([]float64, 3)); !errors.Is(err, ErrSpectrumLength) {
		t.Errorf("short spectrum: err = %v, want ErrSpectrumLength", err)
	}
	if _, err := acc.AppendSpectrum(Channel(7), make([]float64, 4)); !errors.Is(err, ErrChannel) {
		t.Errorf("bad channel: err = %v, want ErrChannel", err)
	}
	if acc.Cursor(Channel1) != 0 {
		t.Errorf("failed append advanced the cursor to %d", acc.Cursor(Channel1))
	}
}

func TestSilentWindowStats(t *testing.T) {
	acc, err := New(2, 5, DefaultSubBandWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	silent := constantSpectrum(5, 0)

	for range 2 {
		if _, err := acc.AppendPair(silent, silent); err != nil {
			t.Fatalf("AppendPair: %v", err)
		}
	}

	floor := math.Log(LogFloor) * LogScale // ≈ -46.05
	for _, ch := range []Channel{Channel1, Channel2} {
		s := acc.Stats(ch)
		if math.Abs(s.Mean-floor) > 1e-9 {
			t.Errorf("%s mean = %g, want %g", ch, s.Mean, floor)
		}
		if s.Max != 0 {
			t.Errorf("%s max = %g, want 0 (floored)", ch, s.Max)
		}
		if math.Abs(s.Variance) > 1e-9 {
			t.Errorf("%s variance = %g, want 0", ch, s.Variance)
		}
	}
}

func TestStatsOverSubBand(t *testing.T) {
	acc, err := New(2, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows := [][]float64{
		{100, 1000, 5, 5},
		{10, 10000, 7, 7},
	}
	for _, r := range rows {
		if _, err := acc.AppendPair(r, r); err != nil {
			t.Fatalf("AppendPair: %v", err)
		}
	}

	var vals []float64
	for _, r := range rows {
		for _, v := range r[:2] {
			vals = append(vals, math.Log(v+LogFloor)*LogScale)
		}
	}
	var mean, peak float64
	for _, v := range vals {
		mean += v
		peak = math.Max(peak, v)
	}
	mean /= float64(len(vals))
	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))

	got := acc.Stats(Channel1)
	if math.Abs(got.Mean-mean) > 1e-9 || math.Abs(got.Max-peak) > 1e-9 || math.Abs(got.Variance-variance) > 1e-9 {
		t.Errorf("Stats = %+v, want mean=%g max=%g variance=%g", got, mean, peak, variance)
	}

	// Normalisation covers the whole grid, not only the sub-band.
	buf := acc.Buffer(Channel1)
	if want := math.Log(7+LogFloor) * LogScale; math.Abs(buf.At(1, 3)-want) > 1e-9 {
		t.Errorf("At(1, 3) = %g, want %g", buf.At(1, 3), want)
	}
}

func TestStatsPerChannel(t *testing.T) {
	acc, err := New(1, 3, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := acc.AppendPair([]float64{99.99, 0, 0}, []float64{0, 0, 0}); err != nil {
		t.Fatalf("AppendPair: %v", err)
	}
	if got := acc.Stats(Channel1).Mean; math.Abs(got-math.Log(100)*LogScale) > 1e-9 {
		t.Errorf("ch1 mean = %g", got)
	}
	if got := acc.Stats(Channel2).Mean; math.Abs(got-math.Log(LogFloor)*LogScale) > 1e-9 {
		t.Errorf("ch2 mean = %g", got)
	}
	if (acc.Stats(Channel(5)) != Stats{}) {
		t.Error("unknown channel should report zero Stats")
	}
}

func TestAppendHotPath(t *testing.T) {
	acc, err := New(testFrames, testBins, DefaultSubBandWidth)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spectrum := constantSpectrum(testBins, 3)

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = acc.AppendPair(spectrum, spectrum)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in AppendPair hot path, got %.1f", allocs)
	}
}

func BenchmarkWindow(b *testing.B) {
	acc, err := New(80, testBins, DefaultSubBandWidth)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	spectrum := constantSpectrum(testBins, 3)

	b.ReportAllocs()

	for b.Loop() {
		for range 80 {
			_, _ = acc.AppendPair(spectrum, spectrum)
		}
	}
}
