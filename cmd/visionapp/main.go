// visionapp - point the camera at something, tap, and hear what it is.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	envcfg "github.com/teslashibe/go-visionapp/internal/config"
	"github.com/teslashibe/go-visionapp/internal/log"
	"github.com/teslashibe/go-visionapp/pkg/visionapp"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred shutdown always runs.
func run() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Error("configuration error", "error", err)
		return 1
	}
	log.Init(cfg.LogLevel)
	log.Info("visionapp starting",
		"camera", cfg.Camera.Backend,
		"classifiers", cfg.Classifier.Backends,
		"tts", cfg.Speech.Backends,
	)

	app, err := visionapp.New(cfg, log.L())
	if err != nil {
		log.Error("configuration error", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		return 1
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		return 1
	}
	return 0
}

// loadConfig layers defaults, the YAML file, the environment and flags.
func loadConfig() (visionapp.Config, error) {
	cfg := visionapp.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	addr := flag.String("addr", cfg.Addr, "Dashboard listen address, empty to disable")
	static := flag.String("static", "", "Directory with dashboard assets")
	useConsole := flag.Bool("console", false, "Enable the terminal UI")
	cam := flag.String("camera", cfg.Camera.Backend, "Camera backend: webcam, snapshot, mock")
	device := flag.String("device", cfg.Camera.Device, "Webcam index or device path")
	snapshotURL := flag.String("snapshot-url", "", "Snapshot camera URL")
	preset := flag.String("preset", cfg.Camera.Preset, "Camera preset")
	classifiers := flag.String("classifiers", strings.Join(cfg.Classifier.Backends, ","), "Classifier fallback order: onnx, gemini, openai, mock")
	model := flag.String("model", cfg.Classifier.ModelPath, "ONNX model file")
	labels := flag.String("labels", cfg.Classifier.LabelsPath, "ONNX labels file")
	ttsProviders := flag.String("tts", strings.Join(cfg.Speech.Backends, ","), "TTS fallback order: google, openai, mock")
	voice := flag.String("voice", "", "TTS voice name")
	player := flag.String("player", cfg.Speech.Player, "Audio player: command, silent")
	threshold := flag.Float64("threshold", cfg.Pipeline.Threshold, "Confidence needed to name the object")
	sortResults := flag.Bool("sort-results", false, "Sort classifier results before taking the first")
	releaseOnError := flag.Bool("release-on-error", false, "Unlock the screen after a failed cycle")
	stageTimeout := flag.Duration("stage-timeout", 0, "Per-stage timeout, 0 for none")
	flag.Parse()

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return cfg, err
		}
	}
	if err := envcfg.LoadDotEnv(*envFile); err != nil {
		return cfg, err
	}
	cfg.LoadEnvConfig()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	apply := func(name string, fn func()) {
		if set[name] {
			fn()
		}
	}
	apply("log-level", func() { cfg.LogLevel = *logLevel })
	apply("addr", func() { cfg.Addr = *addr })
	apply("static", func() { cfg.StaticDir = *static })
	apply("console", func() { cfg.Console = *useConsole })
	apply("camera", func() { cfg.Camera.Backend = *cam })
	apply("device", func() { cfg.Camera.Device = *device })
	apply("snapshot-url", func() { cfg.Camera.SnapshotURL = *snapshotURL })
	apply("preset", func() { cfg.Camera.Preset = *preset })
	apply("classifiers", func() { cfg.Classifier.Backends = splitList(*classifiers) })
	apply("model", func() { cfg.Classifier.ModelPath = *model })
	apply("labels", func() { cfg.Classifier.LabelsPath = *labels })
	apply("tts", func() { cfg.Speech.Backends = splitList(*ttsProviders) })
	apply("voice", func() { cfg.Speech.Voice = *voice })
	apply("player", func() { cfg.Speech.Player = *player })
	apply("threshold", func() { cfg.Pipeline.Threshold = *threshold })
	apply("sort-results", func() { cfg.Pipeline.SortResults = *sortResults })
	apply("release-on-error", func() { cfg.Pipeline.ReleaseOnError = *releaseOnError })
	apply("stage-timeout", func() { cfg.Pipeline.StageTimeout = *stageTimeout })

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
