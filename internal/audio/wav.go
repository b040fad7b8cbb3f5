package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrNotWAV is returned for input that is not a PCM WAV file.
	ErrNotWAV = errors.New("not a valid WAV file")
	// ErrWAVFormat is returned for WAV files that are not 16-bit stereo.
	ErrWAVFormat = errors.New("WAV must be 16-bit stereo")
)

// decodeChunk is the number of interleaved samples decoded per read.
const decodeChunk = 4096

// WAVInfo summarises a processed file.
type WAVInfo struct {
	SampleRate int
	Frames     int // stereo frames
}

// ReadWAV decodes a whole 16-bit stereo WAV file.
func ReadWAV(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := openDecoder(f)
	if err != nil {
		return nil, err
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return buf, nil
}

// ProcessWAV streams a 16-bit stereo WAV through sink in fixed chunks.
func ProcessWAV(r io.ReadSeeker, sink Sink) (WAVInfo, error) {
	dec, err := openDecoder(r)
	if err != nil {
		return WAVInfo{}, err
	}

	info := WAVInfo{SampleRate: int(dec.SampleRate)}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: Channels, SampleRate: info.SampleRate},
		Data:   make([]int, decodeChunk),
	}
	pcm := make([]int16, decodeChunk)

	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return info, fmt.Errorf("decoding PCM: %w", err)
		}
		if n == 0 {
			break
		}
		for i, v := range buf.Data[:n] {
			pcm[i] = int16(v)
		}
		if err := sink.ProcessInterleaved(pcm[:n]); err != nil {
			return info, err
		}
		info.Frames += n / Channels
	}
	return info, nil
}

// ProcessWAVFile opens path and runs ProcessWAV over it.
func ProcessWAVFile(path string, sink Sink) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()
	return ProcessWAV(f, sink)
}

// WriteWAV encodes interleaved stereo samples as a 16-bit WAV.
func WriteWAV(w io.WriteSeeker, sampleRate int, samples []int16) error {
	enc := wav.NewEncoder(w, sampleRate, RecordingBitDepth, Channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: RecordingBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

func openDecoder(r io.ReadSeeker) (*wav.Decoder, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	if dec.NumChans != Channels || dec.BitDepth != RecordingBitDepth {
		return nil, fmt.Errorf("%w: got %d channel(s) at %d bits", ErrWAVFormat, dec.NumChans, dec.BitDepth)
	}
	return dec, nil
}
