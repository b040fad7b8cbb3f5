// SPDX-License-Identifier: MIT
/*
Package audio captures two microphones with PortAudio and feeds the
detector. It also records the capture to WAV and replays WAV files through
the detector offline.

Thread Safety:
- Uses atomic operations for recording state
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
*/
package audio

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"waterdetect/internal/config"
	"waterdetect/internal/detect"
	applog "waterdetect/internal/log"
)

// Channels is the number of captured channels, one per microphone.
const Channels = 2

// Sink consumes interleaved stereo PCM. *detect.Detector satisfies it.
type Sink interface {
	ProcessInterleaved(samples []int16) error
}

var _ Sink = (*detect.Detector)(nil)

type Engine struct {
	// Core configuration and state.
	config config.AudioConfig
	sink   Sink

	// Audio input handling.
	inputBuffer  []int16
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Consecutive sink failures, logged once per run.
	sinkErrors atomic.Int64

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer // Reusable buffer for format conversion
}

// NewEngine resolves the configured input device. PortAudio must be
// initialized.
func NewEngine(cfg config.AudioConfig, sink Sink) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}

	engine := newEngine(cfg, sink)
	engine.inputDevice = inputDevice
	if cfg.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	applog.Infof("Audio: using %q at %.0f Hz, %d frames per buffer",
		inputDevice.Name, cfg.SampleRate, cfg.FramesPerBuffer)
	return engine, nil
}

func newEngine(cfg config.AudioConfig, sink Sink) *Engine {
	return &Engine{
		config:      cfg,
		sink:        sink,
		inputBuffer: make([]int16, cfg.FramesPerBuffer*Channels),
	}
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: Channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		return err
	}

	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
func (e *Engine) processInputStream(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	buf := e.inputBuffer[:n]

	if err := e.sink.ProcessInterleaved(buf); err != nil {
		if e.sinkErrors.Add(1) == 1 {
			applog.Errorf("Audio: detector rejected input: %v", err)
		}
	} else {
		e.sinkErrors.Store(0)
	}

	if atomic.LoadInt32(&e.isRecording) == 1 && e.wavEncoder != nil {
		e.writeRecording(buf)
	}
}
