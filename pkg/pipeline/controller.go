// Package pipeline sequences one capture, classify and speak cycle per
// user trigger.
//
// The Controller owns all UI state on a single event loop goroutine. Camera,
// classifier and speaker calls run in the background and post their
// completions back to the loop tagged with the cycle they belong to, so each
// cycle completes at most once and late completions from an abandoned cycle
// are dropped.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/classify"
)

// Camera is the capture session the controller drives.
type Camera interface {
	Start(ctx context.Context) error
	Capture(ctx context.Context, req camera.Request) ([]byte, error)
}

// Classifier labels a captured image.
type Classifier interface {
	Classify(ctx context.Context, jpeg []byte) (classify.Classifications, error)
}

// Speaker says text and returns when playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Controller is the capture-classify-speak coordinator.
type Controller struct {
	cam     Camera
	clf     Classifier
	speaker Speaker
	config  *Config
	logger  *slog.Logger

	events  chan func()
	done    chan struct{}
	running atomic.Bool
	session atomic.Bool
	runCtx  context.Context

	// Owned by the loop.
	ui    UIState
	cycle string

	// Published copies for concurrent readers.
	mu       sync.RWMutex
	snapshot UIState
	image    []byte
}

// New creates a controller. Call Run to start the session and the loop.
func New(cam Camera, clf Classifier, speaker Speaker, opts ...Option) *Controller {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ui := initialUIState()
	return &Controller{
		cam:      cam,
		clf:      clf,
		speaker:  speaker,
		config:   cfg,
		logger:   cfg.Logger.With("component", "pipeline.controller"),
		events:   make(chan func(), 16),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
		ui:       ui,
		snapshot: ui,
	}
}

// Run starts the capture session and processes events until ctx is done.
// It returns an error only if the session could not be started.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline: already running")
	}
	defer close(c.done)
	c.runCtx = ctx

	if err := c.cam.Start(ctx); err != nil {
		return fmt.Errorf("%w: start session: %w", ErrCapture, err)
	}
	c.session.Store(true)
	c.logger.Info("capture session started")

	for {
		select {
		case <-ctx.Done():
			c.session.Store(false)
			c.logger.Info("controller stopped")
			return nil
		case ev := <-c.events:
			ev()
		}
	}
}

// Trigger asks for a new capture cycle. It returns once the loop has
// accepted or rejected the trigger, without waiting for the capture.
func (c *Controller) Trigger(ctx context.Context) error {
	if !c.session.Load() {
		return ErrNoSession
	}
	reply := make(chan error, 1)
	if err := c.post(ctx, func() { reply <- c.onUserTrigger() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToggleFlash flips the flash mode for the next capture and returns it.
// It is allowed in every state.
func (c *Controller) ToggleFlash(ctx context.Context) (camera.FlashMode, error) {
	reply := make(chan camera.FlashMode, 1)
	if err := c.post(ctx, func() { reply <- c.toggleFlash() }); err != nil {
		return camera.FlashOff, err
	}
	select {
	case mode := <-reply:
		return mode, nil
	case <-ctx.Done():
		return camera.FlashOff, ctx.Err()
	}
}

// State returns a copy of the current UI state.
func (c *Controller) State() UIState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Image returns the last captured image, or nil.
func (c *Controller) Image() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.image
}

// SessionActive reports whether the capture session is running.
func (c *Controller) SessionActive() bool {
	return c.session.Load()
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) post(ctx context.Context, ev func()) error {
	if !c.running.Load() {
		return ErrStopped
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete posts a background completion. It is dropped if the loop has
// already stopped.
func (c *Controller) complete(ev func()) {
	select {
	case c.events <- ev:
	case <-c.done:
	case <-c.runCtx.Done():
	}
}

func (c *Controller) stageContext() (context.Context, context.CancelFunc) {
	if c.config.StageTimeout > 0 {
		return context.WithTimeout(c.runCtx, c.config.StageTimeout)
	}
	return context.WithCancel(c.runCtx)
}

// --- loop handlers: only called on the loop goroutine ---

func (c *Controller) onUserTrigger() error {
	if c.ui.State.InFlight() {
		c.logger.Debug("trigger ignored", "state", c.ui.State.String(), "cycle", c.cycle)
		return ErrBusy
	}
	if c.ui.State == StateLocked {
		c.logger.Info("resetting locked cycle", "cycle", c.cycle)
	}

	id := uuid.NewString()
	c.cycle = id
	req := camera.Request{ID: id, Flash: c.ui.Flash}

	c.ui.Cycle = id
	c.ui.State = StateCapturing
	c.setLocked(true)
	c.publish()

	c.logger.Info("capture requested", "cycle", id, "flash", req.Flash.String())
	go c.capture(id, req)
	return nil
}

func (c *Controller) toggleFlash() camera.FlashMode {
	c.ui.Flash = c.ui.Flash.Toggle()
	c.ui.FlashLabel = FlashLabel(c.ui.Flash)
	c.publish()
	c.logger.Debug("flash toggled", "flash", c.ui.Flash.String())
	return c.ui.Flash
}

func (c *Controller) onCaptureComplete(id string, img []byte, err error) {
	if !c.current(id, StateCapturing) {
		return
	}
	if err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrCapture, err))
		return
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		c.fail(fmt.Errorf("%w: decode image: %w", ErrCapture, err))
		return
	}
	c.logger.Info("photo captured",
		"cycle", id,
		"format", format,
		"width", cfg.Width,
		"height", cfg.Height,
		"bytes", len(img),
	)

	c.ui.State = StateClassifying
	c.ui.HasImage = true
	c.storeImage(img)
	c.publish()

	go c.classify(id, img)
}

func (c *Controller) onClassificationComplete(id string, results classify.Classifications, err error) {
	if !c.current(id, StateClassifying) {
		return
	}
	if err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrClassification, err))
		return
	}
	if c.config.SortResults {
		results = results.Sorted()
	}
	top, ok := results.First()
	if !ok {
		c.fail(fmt.Errorf("%w: %w", ErrClassification, classify.ErrNoResults))
		return
	}

	v := Describe(top, c.config.Threshold)
	c.logger.Info("classified",
		"cycle", id,
		"label", top.Label,
		"confidence", top.Confidence,
		"confident", v.Confident,
		"results", len(results),
	)

	c.ui.State = StateSpeaking
	c.ui.ItemName = v.ItemName
	c.ui.ConfidenceText = v.ConfidenceText
	c.ui.Spoken = v.Speech
	c.publish()

	go c.speak(id, v.Speech)
}

func (c *Controller) onSpeechFinished(id string, err error) {
	if !c.current(id, StateSpeaking) {
		return
	}
	if err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrSpeech, err))
		return
	}
	c.logger.Info("cycle complete", "cycle", id)
	c.release()
}

// current reports whether a completion belongs to the live cycle and stage.
func (c *Controller) current(id string, want State) bool {
	if id == c.cycle && c.ui.State == want {
		return true
	}
	c.logger.Debug("dropping stale completion",
		"cycle", id,
		"current", c.cycle,
		"state", c.ui.State.String(),
	)
	return false
}

// fail logs and swallows a cycle error.
func (c *Controller) fail(err error) {
	c.logger.Error("cycle failed", "cycle", c.cycle, "state", c.ui.State.String(), "error", err)
	if c.config.ReleaseOnError {
		c.release()
		return
	}
	c.ui.State = StateLocked
	c.publish()
}

func (c *Controller) release() {
	c.ui.State = StateIdle
	c.setLocked(false)
	c.publish()
}

func (c *Controller) setLocked(locked bool) {
	c.ui.InteractionEnabled = !locked
	c.ui.Busy = locked
}

func (c *Controller) publish() {
	c.ui.UpdatedAt = time.Now()
	c.mu.Lock()
	c.snapshot = c.ui
	c.mu.Unlock()
	if c.config.OnChange != nil {
		c.config.OnChange(c.ui)
	}
}

func (c *Controller) storeImage(img []byte) {
	c.mu.Lock()
	c.image = img
	c.mu.Unlock()
	if c.config.OnImage != nil {
		c.config.OnImage(img)
	}
}

// --- background stages ---

func (c *Controller) capture(id string, req camera.Request) {
	ctx, cancel := c.stageContext()
	defer cancel()
	img, err := bounded(ctx, func(ctx context.Context) ([]byte, error) {
		return c.cam.Capture(ctx, req)
	})
	c.complete(func() { c.onCaptureComplete(id, img, err) })
}

func (c *Controller) classify(id string, img []byte) {
	ctx, cancel := c.stageContext()
	defer cancel()
	results, err := bounded(ctx, func(ctx context.Context) (classify.Classifications, error) {
		return c.clf.Classify(ctx, img)
	})
	c.complete(func() { c.onClassificationComplete(id, results, err) })
}

func (c *Controller) speak(id, text string) {
	ctx, cancel := c.stageContext()
	defer cancel()
	_, err := bounded(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.speaker.Speak(ctx, text)
	})
	c.complete(func() { c.onSpeechFinished(id, err) })
}

// bounded returns fn's result, or ctx's error as soon as ctx ends. A backend
// that ignores ctx is left running; whatever it returns later is discarded.
func bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
