package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"waterdetect/internal/audio"
	"waterdetect/internal/config"
	"waterdetect/internal/detect"
	applog "waterdetect/internal/log"
	"waterdetect/internal/observe"
	"waterdetect/internal/transport"
	"waterdetect/internal/transport/udp"
	"waterdetect/internal/tui"
	"waterdetect/pkg/build"
)

// tuiQueue bounds the events waiting for the status view; older events are
// dropped rather than stalling the audio callback.
const tuiQueue = 64

func newRunCommand(v *viper.Viper) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Detect submersion from the live stereo input",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLive(ctx, cfg, v.GetBool("tui"))
		},
	}

	// Audio Device Configuration
	flags := runCmd.Flags()
	flags.IntP("input-device", "d", config.MinDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.Float64P("sample-rate", "s", 44100, "Sample rate, measured in Hertz (Hz)")
	flags.IntP("frames-per-buffer", "b", 512, "The number of frames per buffer (affects latency)")
	flags.BoolP("low-latency", "l", false, "Use low latency mode for real-time processing")

	// Recording Configuration
	flags.BoolP("record", "r", false, "Record audio from the specified input device")
	flags.StringP("output-dir", "o", "", "Directory for recordings")

	// Outputs
	flags.String("websocket", "", "Serve events over WebSocket on this address (e.g. :8080)")
	flags.String("udp", "", "Send status packets to this UDP address (e.g. 127.0.0.1:9090)")
	flags.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	flags.Bool("tui", false, "Show the live status view")

	cobra.CheckErr(bindFlags(v, flags))
	return runCmd
}

// runLive captures from the input device until ctx is cancelled or the
// status view quits.
func runLive(ctx context.Context, cfg *config.Config, withTUI bool) error {
	dcfg, model, err := detectorConfig(cfg)
	if err != nil {
		return err
	}

	// Metrics
	metrics := observe.Nop()
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    build.GetBuildFlags().Name,
			ServiceVersion: build.GetBuildFlags().Version,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				applog.Warnf("Metrics: shutdown: %v", err)
			}
		}()
		if metrics, err = observe.NewMetrics(otel.GetMeterProvider()); err != nil {
			return err
		}

		srv := serveMetrics(cfg.Metrics.Address)
		defer srv.Close()
	}

	// Transports
	transports := transport.Multi{transport.NewLoggingTransport()}
	defer func() {
		if err := transports.Close(); err != nil {
			applog.Warnf("Transport: close: %v", err)
		}
	}()
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, nil)
		if err != nil {
			return err
		}
		applog.Infof("WebSocket: serving events on ws://%s%s", ws.Addr(), transport.EventsPath)
		transports = append(transports, ws)
	}

	det, err := detect.NewDetector(dcfg, transports, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := det.Close(); err != nil {
			applog.Warnf("Detector: close: %v", err)
		}
	}()

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()

		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, func() udp.Status {
			return statusOf(det.Last())
		})
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()
	}

	var events chan detect.Event
	if withTUI {
		events = make(chan detect.Event, tuiQueue)
		det.OnEvent(func(ev detect.Event) {
			select {
			case events <- ev:
			default:
			}
		})
	} else {
		det.OnEvent(func(ev detect.Event) {
			if ev.Changed {
				applog.Infof("Window %d: submerged=%t", ev.Window, ev.Submerged)
			}
		})
	}

	// Audio
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	engine, err := audio.NewEngine(cfg.Audio, det)
	if err != nil {
		return err
	}
	if err := engine.StartInputStream(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			applog.Errorf("Audio: close: %v", err)
		}
	}()

	if cfg.Recording.Enabled {
		name := audio.RecordingName(cfg.Recording.OutputDir, time.Now())
		if err := engine.StartRecording(name); err != nil {
			return err
		}
		applog.Infof("Recording to %s", name)
	}

	if withTUI {
		// Keep log lines from tearing the view.
		applog.SetLevel(applog.LevelError)
		p := tea.NewProgram(tui.New(model.Name, events), tea.WithContext(ctx), tea.WithAltScreen())
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	}

	applog.Infof("Listening with model %q. Press Ctrl+C to stop.", model.Name)
	<-ctx.Done()
	return nil
}

// serveMetrics starts the Prometheus endpoint in the background.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		applog.Infof("Metrics: serving http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("Metrics: %v", err)
		}
	}()
	return srv
}

// statusOf converts the latest event into a UDP status record.
func statusOf(ev detect.Event) udp.Status {
	return udp.Status{
		Window:    uint32(ev.Window),
		Phase:     uint8(ev.Phase),
		Submerged: ev.Submerged,
		Decision:  ev.Decision,
		Changed:   ev.Changed,
		Amp1:      float32(ev.Amp1),
		Amp2:      float32(ev.Amp2),
	}
}
