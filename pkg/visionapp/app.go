// Package visionapp assembles the capture, classify and speak app from its
// configuration: camera backend, classifier chain, voice chain, pipeline
// controller and the optional web and console front ends.
package visionapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-visionapp/internal/httpc"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/classify"
	"github.com/teslashibe/go-visionapp/pkg/console"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
	"github.com/teslashibe/go-visionapp/pkg/speech"
	"github.com/teslashibe/go-visionapp/pkg/tts"
	"github.com/teslashibe/go-visionapp/pkg/web"
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	cam        camera.Camera
	cameras    *camera.Manager
	classifier classify.Classifier
	speaker    *speech.Speaker
	ctrl       *pipeline.Controller

	// Front ends, nil when disabled.
	web     *web.Server
	console *console.Console
}

// New creates the application. The config is validated but nothing is
// opened until Init.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		logger: logger.With("component", "visionapp"),
	}, nil
}

// Init builds all components. Call this after New and before Run.
func (a *App) Init(ctx context.Context) error {
	if err := a.initCamera(); err != nil {
		return fmt.Errorf("camera init: %w", err)
	}
	if err := a.initClassifier(); err != nil {
		return fmt.Errorf("classifier init: %w", err)
	}
	if err := a.initSpeech(ctx); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}
	a.initPipeline()
	a.initFrontends()

	a.logger.Info("initialized",
		"camera", a.config.Camera.Backend,
		"classifier", a.classifier.Name(),
		"tts", a.config.Speech.Backends,
		"web", a.config.Addr,
		"console", a.config.Console,
	)
	return nil
}

func (a *App) initCamera() error {
	settings := a.config.CameraSettings()
	a.cameras = camera.NewManager(settings)

	switch a.config.Camera.Backend {
	case BackendWebcam:
		cam := camera.NewWebcam(a.config.Camera.Device, settings, a.logger)
		a.cameras.OnConfigChange = cam.Apply
		a.cam = cam
	case BackendSnapshot:
		cam, err := camera.NewSnapshot(a.config.Camera.SnapshotURL, httpc.Client, a.logger)
		if err != nil {
			return err
		}
		a.cam = cam
	case BackendMock:
		mock := camera.NewMock()
		mock.Frame = camera.TestJPEG()
		a.cam = mock
	}
	return nil
}

func (a *App) initClassifier() error {
	cc := a.config.Classifier
	common := []classify.Option{
		classify.WithTopK(cc.TopK),
		classify.WithLogger(a.logger),
	}
	if cc.Timeout > 0 {
		common = append(common, classify.WithTimeout(cc.Timeout))
	}
	hosted := func(key string) []classify.Option {
		opts := append([]classify.Option{classify.WithAPIKey(key)}, common...)
		if cc.Model != "" {
			opts = append(opts, classify.WithModel(cc.Model))
		}
		if cc.BaseURL != "" {
			opts = append(opts, classify.WithBaseURL(cc.BaseURL))
		}
		return opts
	}

	var members []classify.Classifier
	for _, name := range cc.Backends {
		var (
			clf classify.Classifier
			err error
		)
		switch name {
		case BackendONNX:
			clf, err = classify.NewONNX(append([]classify.Option{
				classify.WithModelPath(cc.ModelPath),
				classify.WithLabelsPath(cc.LabelsPath),
			}, common...)...)
		case BackendGemini:
			clf, err = classify.NewGemini(hosted(a.config.GoogleAPIKey)...)
		case BackendOpenAI:
			clf, err = classify.NewOpenAI(hosted(a.config.OpenAIKey)...)
		case BackendMock:
			clf = classify.NewMock()
		}
		if err != nil {
			closeAll(members)
			return fmt.Errorf("%s: %w", name, err)
		}
		members = append(members, clf)
	}

	if len(members) == 1 {
		a.classifier = members[0]
		return nil
	}
	chain, err := classify.NewChainWithLogger(a.logger, members...)
	if err != nil {
		closeAll(members)
		return err
	}
	a.classifier = chain
	return nil
}

func (a *App) initSpeech(ctx context.Context) error {
	sc := a.config.Speech
	common := []tts.Option{tts.WithLogger(a.logger)}
	if sc.Voice != "" {
		common = append(common, tts.WithVoice(sc.Voice))
	}
	if sc.Language != "" {
		common = append(common, tts.WithLanguage(sc.Language))
	}

	var providers []tts.Provider
	for _, name := range sc.Backends {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case BackendGoogle:
			opts := append([]tts.Option{}, common...)
			if sc.CredentialsFile != "" {
				opts = append(opts, tts.WithCredentialsFile(sc.CredentialsFile))
			}
			p, err = tts.NewGoogle(ctx, opts...)
		case BackendOpenAI:
			p, err = tts.NewOpenAI(append([]tts.Option{tts.WithAPIKey(a.config.OpenAIKey)}, common...)...)
		case BackendMock:
			p = tts.NewMock()
		}
		if err != nil {
			for _, open := range providers {
				_ = open.Close()
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		providers = append(providers, p)
	}

	provider := providers[0]
	if len(providers) > 1 {
		chain, err := tts.NewChainWithLogger(a.logger, providers...)
		if err != nil {
			return err
		}
		provider = chain
	}

	var player speech.Player
	switch sc.Player {
	case PlayerSilent:
		player = speech.SilentPlayer{}
	default:
		cp := speech.NewCommandPlayer()
		cp.Command = sc.PlayerCommand
		player = cp
	}

	a.speaker = speech.New(provider, player, speech.WithLogger(a.logger))
	return nil
}

func (a *App) initPipeline() {
	pc := a.config.Pipeline
	a.ctrl = pipeline.New(a.cam, a.classifier, a.speaker,
		pipeline.WithThreshold(pc.Threshold),
		pipeline.WithSortResults(pc.SortResults),
		pipeline.WithReleaseOnError(pc.ReleaseOnError),
		pipeline.WithStageTimeout(pc.StageTimeout),
		pipeline.WithOnChange(a.onStateChange),
		pipeline.WithOnImage(a.onImage),
		pipeline.WithLogger(a.logger),
	)
}

func (a *App) initFrontends() {
	if a.config.Addr != "" {
		a.web = web.NewServer(a.ctrl, a.cameras, web.Config{
			Addr:      a.config.Addr,
			StaticDir: a.config.StaticDir,
			Logger:    a.logger,
		})
		a.web.AddHealthCheck("classifier", a.classifier.Health)
		a.web.AddHealthCheck("tts", a.speaker.Health)
		a.web.AddHealthCheck("camera", func(ctx context.Context) error {
			_, err := a.cam.Latest()
			return err
		})
	}
	if a.config.Console {
		a.console = console.New(a.ctrl, console.WithLogger(a.logger))
	}
}

// onStateChange runs on the controller loop; sinks must not block.
func (a *App) onStateChange(st pipeline.UIState) {
	if a.web != nil {
		a.web.PublishState(st)
	}
	if a.console != nil {
		a.console.Notify(st)
	}
}

func (a *App) onImage(jpeg []byte) {
	if a.web != nil {
		a.web.PublishImage(jpeg)
	}
}

// Run starts the controller and front ends and blocks until ctx is done,
// the console quits, or the capture session fails to start.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.ctrl.Run(ctx); err != nil {
			errCh <- err
			cancel()
		}
	}()

	if a.web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.web.Run(ctx); err != nil {
				errCh <- fmt.Errorf("web: %w", err)
				cancel()
			}
		}()

		if fps := a.config.Camera.PreviewFPS; fps > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				camera.Preview(ctx, a.cam, fps, func(frame []byte) {
					if a.web.PreviewClients() > 0 {
						a.web.PublishFrame(frame)
					}
				})
			}()
		}
	}

	if a.console != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			if err := a.console.Run(ctx); err != nil {
				errCh <- fmt.Errorf("console: %w", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Shutdown releases the camera, classifier and voice.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down")
	var errs []error
	if a.classifier != nil {
		errs = append(errs, a.classifier.Close())
	}
	if a.speaker != nil {
		errs = append(errs, a.speaker.Close())
	}
	if a.cam != nil {
		errs = append(errs, a.cam.Close())
	}
	return errors.Join(errs...)
}

// Controller returns the pipeline controller.
func (a *App) Controller() *pipeline.Controller {
	return a.ctrl
}

// Web returns the dashboard server, or nil when disabled.
func (a *App) Web() *web.Server {
	return a.web
}

func closeAll(cs []classify.Classifier) {
	for _, c := range cs {
		_ = c.Close()
	}
}
