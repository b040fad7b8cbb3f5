package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "waterdetect/internal/log"
)

// RecordingBitDepth is the only bit depth the capture is recorded at.
const RecordingBitDepth = 16

// RecordingName returns a timestamped file name inside dir.
func RecordingName(dir string, t time.Time) string {
	return filepath.Join(dir, "capture-"+t.Format("20060102-150405")+".wav")
}

// StartRecording writes every captured buffer to filename as 16-bit stereo
// WAV until StopRecording.
func (e *Engine) StartRecording(filename string) error {
	if atomic.LoadInt32(&e.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	e.outputFile = file

	e.wavEncoder = wav.NewEncoder(file, int(e.config.SampleRate),
		RecordingBitDepth, Channels, 1)

	e.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: Channels,
			SampleRate:  int(e.config.SampleRate),
		},
		Data:           make([]int, e.config.FramesPerBuffer*Channels),
		SourceBitDepth: RecordingBitDepth,
	}

	atomic.StoreInt32(&e.isRecording, 1)
	applog.Infof("Audio: recording to %s", filename)

	return nil
}

// writeRecording converts buf into the reusable sample buffer and encodes it.
func (e *Engine) writeRecording(buf []int16) {
	data := e.sampleBuf.Data[:cap(e.sampleBuf.Data)]
	if len(buf) > len(data) {
		buf = buf[:len(data)]
	}
	for i, sample := range buf {
		data[i] = int(sample)
	}
	e.sampleBuf.Data = data[:len(buf)]

	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("Audio: error writing to WAV file: %v", err)
	}
}

func (e *Engine) StopRecording() error {
	if atomic.LoadInt32(&e.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&e.isRecording, 0)

	if e.wavEncoder != nil {
		if err := e.wavEncoder.Close(); err != nil {
			return err
		}
		e.wavEncoder = nil
	}

	if e.outputFile != nil {
		if err := e.outputFile.Close(); err != nil {
			return err
		}
		e.outputFile = nil
	}

	return nil
}

func (e *Engine) Close() error {
	if atomic.LoadInt32(&e.isRecording) == 1 {
		if err := e.StopRecording(); err != nil {
			return err
		}
	}

	if err := e.StopInputStream(); err != nil {
		return err
	}

	return nil
}
