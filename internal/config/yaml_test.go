// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"waterdetect/internal/classifier"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := Default()
	if cfg.Detector != want.Detector || cfg.Audio != want.Audio {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
detector:
  window_frames: 100
  model: xperia-z1
  warmup_windows: 0
transport:
  udp_enabled: true
  udp_send_interval: 250ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Detector.WindowFrames != 100 || cfg.Detector.WarmupWindows != 0 {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	if cfg.Detector.FFTSize != 512 {
		t.Errorf("unset fields must keep defaults, FFTSize = %d", cfg.Detector.FFTSize)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 250*time.Millisecond {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	_, idx, err := cfg.ResolveModel()
	if err != nil || idx != 1 {
		t.Errorf("ResolveModel = %d, %v; want 1", idx, err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DETECTOR_DEVICE", "C6916")
	t.Setenv("ENV_DETECTOR_WINDOW_FRAMES", "40")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:7000")
	t.Setenv("ENV_WEBSOCKET_ENABLED", "notabool")
	t.Setenv("ENV_LOG_LEVEL", "warn")

	path := writeTempConfig(t, "detector:\n  window_frames: 10\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Detector.WindowFrames != 40 {
		t.Errorf("WindowFrames = %d, want env value 40", cfg.Detector.WindowFrames)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:7000" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.Transport.WebSocketEnabled {
		t.Error("unparseable bool must be ignored")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	m, idx, _ := cfg.ResolveModel()
	if idx != 2 || m.Device != "C6916" {
		t.Errorf("ResolveModel = %d (%s), want 2", idx, m.Device)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"device", func(c *Config) { c.Audio.InputDevice = -2 }, "input_device"},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 1000 }, "sample_rate"},
		{"frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 0 }, "frames_per_buffer"},
		{"fft size", func(c *Config) { c.Detector.FFTSize = 500 }, "fft_size"},
		{"fft too big", func(c *Config) { c.Detector.FFTSize = 16384 }, "fft_size"},
		{"window frames", func(c *Config) { c.Detector.WindowFrames = 0 }, "window_frames"},
		{"first acc", func(c *Config) { c.Detector.FirstAcc = 0 }, "first_acc"},
		{"warmup", func(c *Config) { c.Detector.WarmupWindows = -1 }, "warmup_windows"},
		{"subband", func(c *Config) { c.Detector.SubBandWidth = 300 }, "subband_width"},
		{"hysteresis", func(c *Config) { c.Detector.AirCount = 0 }, "air_count"},
		{"model name", func(c *Config) { c.Detector.Model = "nokia" }, "unknown model"},
		{"model index", func(c *Config) { c.Detector.ModelIndex = 5 }, "unknown model"},
		{"bit depth", func(c *Config) { c.Recording.Enabled = true; c.Recording.BitDepth = 24 }, "bit_depth"},
		{"udp address", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "localhost" }, "udp_target_address"},
		{"udp interval", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPSendInterval = 0 }, "udp_send_interval"},
		{"websocket", func(c *Config) { c.Transport.WebSocketEnabled = true; c.Transport.WebSocketAddress = "" }, "websocket_address"},
		{"metrics", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, "metrics.address"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error %v does not wrap ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestResolveModelPrecedence(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Detector.ModelIndex = 2
	cfg.Detector.Device = "C6902"
	cfg.Detector.Model = "XPERIA-Z"

	_, idx, err := cfg.ResolveModel()
	if err != nil || idx != 0 {
		t.Errorf("name must win: got %d, %v", idx, err)
	}

	cfg.Detector.Model = ""
	if _, idx, _ = cfg.ResolveModel(); idx != 1 {
		t.Errorf("device must win over index: got %d", idx)
	}

	cfg.Detector.Device = ""
	if _, idx, _ = cfg.ResolveModel(); idx != 2 {
		t.Errorf("index fallback: got %d", idx)
	}

	cfg.Detector.ModelIndex = 9
	if _, _, err = cfg.ResolveModel(); !errors.Is(err, classifier.ErrModelIndex) {
		t.Errorf("expected ErrModelIndex, got %v", err)
	}
}
