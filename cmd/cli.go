// Package cmd implements the waterdetect command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"waterdetect/internal/audio"
	"waterdetect/internal/classifier"
	"waterdetect/internal/config"
	"waterdetect/internal/detect"
	applog "waterdetect/internal/log"
	"waterdetect/pkg/build"
)

// EnvPrefix prefixes the environment variables bound to flags, e.g.
// WATERDETECT_MODEL or WATERDETECT_LOG_LEVEL.
const EnvPrefix = "WATERDETECT"

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree around a fresh viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(viper.New())
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Configuration
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file (default: ./config.yaml or ./waterdetect.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	// Detector
	flags.StringP("model", "m", "", "Classifier model name. Use 'models' to see the registry.")
	flags.String("handset", "", "Handset code (e.g. C6902) used to pick a model")
	flags.IntP("frames", "f", 0, "Frames per spectrogram window")

	rootCmd.AddCommand(
		newRunCommand(v),
		newFileCommand(v),
		newListCommand(),
		newModelsCommand(),
	)

	cobra.CheckErr(bindFlags(v, flags))
	return rootCmd
}

// bindFlags binds every flag to viper and to its WATERDETECT_* variable.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var lastErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			lastErr = err
		}
	})
	return lastErr
}

// loadConfig reads the YAML file then lays flag and environment values that
// were actually set over it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("model") {
		cfg.Detector.Model = v.GetString("model")
	}
	if v.IsSet("handset") {
		cfg.Detector.Device = v.GetString("handset")
	}
	if v.IsSet("frames") {
		cfg.Detector.WindowFrames = v.GetInt("frames")
	}

	// Live capture flags, only registered on run.
	if v.IsSet("input-device") {
		cfg.Audio.InputDevice = v.GetInt("input-device")
	}
	if v.IsSet("sample-rate") {
		cfg.Audio.SampleRate = v.GetFloat64("sample-rate")
	}
	if v.IsSet("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = v.GetInt("frames-per-buffer")
	}
	if v.IsSet("low-latency") {
		cfg.Audio.LowLatency = v.GetBool("low-latency")
	}
	if v.IsSet("record") {
		cfg.Recording.Enabled = v.GetBool("record")
	}
	if v.IsSet("output-dir") {
		cfg.Recording.OutputDir = v.GetString("output-dir")
	}
	if addr := v.GetString("websocket"); v.IsSet("websocket") && addr != "" {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = addr
	}
	if addr := v.GetString("udp"); v.IsSet("udp") && addr != "" {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = addr
	}
	if addr := v.GetString("metrics"); v.IsSet("metrics") && addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	return cfg, nil
}

// detectorConfig maps the file configuration onto the detector.
func detectorConfig(cfg *config.Config) (detect.Config, classifier.Model, error) {
	model, index, err := cfg.ResolveModel()
	if err != nil {
		return detect.Config{}, classifier.Model{}, err
	}
	d := cfg.Detector
	return detect.Config{
		Engine: detect.Options{
			FFTSize:       d.FFTSize,
			WindowFrames:  d.WindowFrames,
			ModelIndex:    index,
			FirstAcc:      d.FirstAcc,
			WarmupWindows: d.WarmupWindows,
			SubBandWidth:  d.SubBandWidth,
		},
		WaterCount:  d.WaterCount,
		AirCount:    d.AirCount,
		SampleScale: d.SampleScale,
	}, model, nil
}

func newFileCommand(v *viper.Viper) *cobra.Command {
	var asJSON bool

	fileCmd := &cobra.Command{
		Use:   "file <path.wav>",
		Short: "Run detection over a stereo 16-bit WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			dcfg, model, err := detectorConfig(cfg)
			if err != nil {
				return err
			}

			det, err := detect.NewDetector(dcfg, nil, nil)
			if err != nil {
				return err
			}
			defer det.Close()

			out := cmd.OutOrStdout()
			var printErr error
			if asJSON {
				enc := json.NewEncoder(out)
				det.OnEvent(func(ev detect.Event) {
					if err := enc.Encode(ev); err != nil && printErr == nil {
						printErr = err
					}
				})
			} else {
				fmt.Fprintf(out, "%s (model %s)\n", args[0], model.Name)
				det.OnEvent(func(ev detect.Event) { printEvent(out, ev) })
			}

			info, err := audio.ProcessWAVFile(args[0], det)
			if err != nil {
				return err
			}
			if printErr != nil {
				return printErr
			}

			last := det.Last()
			applog.Infof("Processed %d frames at %d Hz: %d windows, submerged=%t",
				info.Frames, info.SampleRate, last.Window, last.Submerged)
			return nil
		},
	}
	fileCmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON event per line")
	return fileCmd
}

func printEvent(w io.Writer, ev detect.Event) {
	state := "dry"
	if ev.Submerged {
		state = "SUBMERGED"
	}
	verdict := "-"
	if ev.Phase == classifier.Classifying {
		verdict = "air"
		if ev.Decision {
			verdict = "water"
		}
	}
	mark := ""
	if ev.Changed {
		mark = " *"
	}
	fmt.Fprintf(w, "window %4d  %-11s  %-5s  %-9s  %8.2f %8.2f%s\n",
		ev.Window, ev.Phase, verdict, state, ev.Amp1, ev.Amp2, mark)
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the trained classifier models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeModels(cmd.OutOrStdout())
		},
	}
}

func writeModels(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tHANDSET\tBIAS SCALE")
	for i, m := range classifier.Models() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\n", i, m.Name, m.Device, m.BiasScale)
	}
	return tw.Flush()
}
