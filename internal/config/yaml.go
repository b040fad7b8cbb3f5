// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"waterdetect/internal/classifier"
	applog "waterdetect/internal/log"
	"waterdetect/pkg/bitint"
)

// Hardware and processing limits.
const (
	MinDeviceID   = -1 // -1 represents the system default input device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxFFTSize    = 8192
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error
	Audio     AudioConfig     `yaml:"audio"`
	Detector  DetectorConfig  `yaml:"detector"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AudioConfig holds capture settings. Capture is always stereo.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Stereo frames per PortAudio callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// DetectorConfig holds the detection pipeline settings.
type DetectorConfig struct {
	FFTSize       int     `yaml:"fft_size"`       // Samples per frame (power of two).
	WindowFrames  int     `yaml:"window_frames"`  // Frames per spectrogram window.
	Model         string  `yaml:"model"`          // Model name; empty selects by device or index.
	ModelIndex    int     `yaml:"model_index"`    // Used when Model and Device are empty.
	Device        string  `yaml:"device"`         // Handset code (e.g. C6902) selecting a model.
	FirstAcc      int     `yaml:"first_acc"`      // Windows averaged into the baseline.
	WarmupWindows int     `yaml:"warmup_windows"` // Windows ignored before calibration.
	SubBandWidth  int     `yaml:"subband_width"`  // Low bins summarised per window.
	WaterCount    int     `yaml:"water_count"`    // Consecutive water windows to report submerged.
	AirCount      int     `yaml:"air_count"`      // Consecutive air windows to report dry.
	SampleScale   float64 `yaml:"sample_scale"`   // Multiplier applied to PCM samples.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the captured stream to WAV.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // 16 only.
}

// TransportConfig holds settings related to publishing detector events.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast events on /events.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send status packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between status packets.
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Listen address for /metrics.
}

// Default returns the built-in configuration: 44.1 kHz stereo capture,
// 512-point frames and 80-frame windows.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      44100,
			FramesPerBuffer: 512,
		},
		Detector: DetectorConfig{
			FFTSize:       512,
			WindowFrames:  80,
			FirstAcc:      2,
			WarmupWindows: 1,
			SubBandWidth:  3,
			WaterCount:    3,
			AirCount:      2,
			SampleScale:   1000,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketAddress: ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("config.yaml"). If no file is
// found, it uses built-in defaults. Environment overrides are applied last,
// then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "waterdetect.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	if c.Audio.InputDevice < MinDeviceID {
		return invalid("audio.input_device %d is below %d", c.Audio.InputDevice, MinDeviceID)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return invalid("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer < 1 {
		return invalid("audio.frames_per_buffer must be positive")
	}

	d := c.Detector
	if d.FFTSize < 2 || d.FFTSize > MaxFFTSize || !bitint.IsPowerOfTwo(d.FFTSize) {
		return invalid("detector.fft_size %d must be a power of two in [2, %d]", d.FFTSize, MaxFFTSize)
	}
	if d.WindowFrames < 1 {
		return invalid("detector.window_frames must be positive")
	}
	if d.FirstAcc < 1 {
		return invalid("detector.first_acc must be positive")
	}
	if d.WarmupWindows < 0 {
		return invalid("detector.warmup_windows must not be negative")
	}
	if d.SubBandWidth < 1 || d.SubBandWidth > d.FFTSize/2+1 {
		return invalid("detector.subband_width %d outside [1, %d]", d.SubBandWidth, d.FFTSize/2+1)
	}
	if d.WaterCount < 1 || d.AirCount < 1 {
		return invalid("detector.water_count and detector.air_count must be positive")
	}
	if _, _, err := c.ResolveModel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 {
		return invalid("recording.bit_depth %d unsupported (16 only)", c.Recording.BitDepth)
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return invalid("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return invalid("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		return invalid("transport.websocket_address must be set when websocket is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return invalid("metrics.address must be set when metrics are enabled")
	}

	if c.LogLevel != "" {
		if _, ok := applog.ParseLevel(c.LogLevel); !ok {
			return invalid("log_level %q unknown", c.LogLevel)
		}
	}
	return nil
}

// ResolveModel picks the classifier model: by name first, then by device
// code, then by index.
func (c *Config) ResolveModel() (classifier.Model, int, error) {
	switch {
	case c.Detector.Model != "":
		return classifier.ModelByName(c.Detector.Model)
	case c.Detector.Device != "":
		m, i := classifier.ModelForDevice(c.Detector.Device)
		return m, i, nil
	default:
		m, err := classifier.ModelByIndex(c.Detector.ModelIndex)
		return m, c.Detector.ModelIndex, err
	}
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}

	// ENV_DETECTOR_{...}
	if val, ok := os.LookupEnv("ENV_DETECTOR_MODEL"); ok {
		c.Detector.Model = val
	}
	if val, ok := os.LookupEnv("ENV_DETECTOR_DEVICE"); ok {
		c.Detector.Device = val
	}
	if val, ok := os.LookupEnv("ENV_DETECTOR_WINDOW_FRAMES"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Detector.WindowFrames = n
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}

	// ENV_WEBSOCKET_{...}
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
		}
	}
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
	}

	if val, ok := os.LookupEnv("ENV_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Metrics.Enabled = b
		}
	}
}
