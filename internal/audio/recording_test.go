// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEngine() *Engine {
	return newEngine(testAudioConfig(), &countingSink{})
}

func TestRecordingStartStopHotPath(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	engine := newTestEngine()

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}

	if atomic.LoadInt32(&engine.isRecording) != 1 {
		t.Error("Engine should be in recording state")
	}
	if engine.outputFile == nil || engine.wavEncoder == nil || engine.sampleBuf == nil {
		t.Fatal("recording resources should be initialized")
	}
	if engine.sampleBuf.Format.NumChannels != Channels {
		t.Errorf("Buffer channels mismatch: got %d, want %d", engine.sampleBuf.Format.NumChannels, Channels)
	}
	if engine.sampleBuf.Format.SampleRate != testSampleRate {
		t.Errorf("Buffer sample rate mismatch: got %d, want %d", engine.sampleBuf.Format.SampleRate, testSampleRate)
	}
	if len(engine.sampleBuf.Data) != testFrameSize*Channels {
		t.Errorf("Buffer size mismatch: got %d, want %d", len(engine.sampleBuf.Data), testFrameSize*Channels)
	}

	// Store reference to check file closure.
	outputFile := engine.outputFile

	if err := engine.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if atomic.LoadInt32(&engine.isRecording) != 0 {
		t.Error("Engine should not be in recording state after stopping")
	}
	if engine.outputFile != nil || engine.wavEncoder != nil {
		t.Error("recording resources should be released after stopping")
	}
	if err := outputFile.Close(); err == nil {
		t.Error("File should already be closed")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Error("Recording file was not created")
	}
}

func TestRecordingCapturesCallbackAudio(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "capture.wav")
	engine := newTestEngine()

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	engine.processInputStream(testBuffer)
	engine.processInputStream(testBuffer)
	if err := engine.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	buf, err := ReadWAV(filename)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if len(buf.Data) != 2*len(testBuffer) {
		t.Fatalf("recorded %d samples, want %d", len(buf.Data), 2*len(testBuffer))
	}
	for i, want := range testBuffer {
		if buf.Data[i] != int(want) {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], want)
		}
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		desc          string
		filename      string
		isRecording   int32
		expectError   bool
		errorContains string
	}{
		{"Already recording", "valid.wav", 1, true, "already recording"},
		{"Parent is a file", filepath.Join(blocker, "x.wav"), 0, true, ""},
		{"Valid path", filepath.Join(dir, "test.wav"), 0, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			engine := newTestEngine()
			atomic.StoreInt32(&engine.isRecording, tt.isRecording)

			err := engine.StartRecording(tt.filename)
			if err == nil {
				_ = engine.StopRecording()
			}

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tt.errorContains != "" && err != nil && !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Error %q does not contain %q", err.Error(), tt.errorContains)
			}
		})
	}
}

func TestStopWhenNotRecording(t *testing.T) {
	if err := newTestEngine().StopRecording(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestCloseEngineWithRecording(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_close_engine.wav")
	engine := newTestEngine()

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}

	if atomic.LoadInt32(&engine.isRecording) != 0 {
		t.Error("Engine should not be in recording state after Close()")
	}
	if engine.outputFile != nil || engine.wavEncoder != nil {
		t.Error("recording resources should be nil after Close()")
	}
}

func TestRecordingName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := RecordingName("out", ts)
	if want := filepath.Join("out", "capture-20260304-050607.wav"); got != want {
		t.Errorf("RecordingName = %q, want %q", got, want)
	}
}

func BenchmarkRecordingStartStopHotPath(b *testing.B) {
	engine := newTestEngine()
	filename := filepath.Join(b.TempDir(), "bench.wav")

	b.ReportAllocs()
	for b.Loop() {
		_ = engine.StartRecording(filename)
		_ = engine.StopRecording()
	}
}
