package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Webcam is a Camera backed by a local video device through OpenCV.
//
// After Start a session goroutine keeps reading frames at the configured
// framerate and retains the newest one for the preview. Capture takes the
// device lock, so preview reads pause while a still is being taken.
type Webcam struct {
	device string
	logger *slog.Logger

	mu     sync.Mutex // guards cap, config and the device properties
	cap    *gocv.VideoCapture
	config Config

	frameMu sync.RWMutex
	latest  []byte

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewWebcam creates a webcam camera. device is either a numeric index
// ("0") or a path/URL understood by OpenCV ("/dev/video2").
func NewWebcam(device string, cfg Config, logger *slog.Logger) *Webcam {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webcam{
		device: device,
		config: cfg,
		logger: logger.With("component", "camera.webcam", "device", device),
	}
}

// Start opens the device and starts the preview session.
func (w *Webcam) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.cap != nil {
		return nil
	}

	var target interface{} = w.device
	if idx, err := strconv.Atoi(w.device); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return fmt.Errorf("open device %s: %w", w.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open device %s: not opened", w.device)
	}

	w.cap = vc
	w.applyLocked(w.config)

	sessionCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.session(sessionCtx)

	w.logger.Info("capture session started",
		"width", w.config.Width,
		"height", w.config.Height,
		"fps", w.config.Framerate,
	)
	return nil
}

// session refreshes the preview frame until the context ends.
func (w *Webcam) session(ctx context.Context) {
	defer close(w.done)

	w.mu.Lock()
	fps := w.config.Framerate
	w.mu.Unlock()
	if fps <= 0 {
		fps = 1
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		w.mu.Lock()
		if w.cap == nil {
			w.mu.Unlock()
			return
		}
		ok := w.cap.Read(&img)
		quality := w.config.Quality
		w.mu.Unlock()

		if !ok || img.Empty() {
			continue
		}

		frame, err := encodeJPEG(img, quality)
		if err != nil {
			w.logger.Debug("preview encode failed", "error", err)
			continue
		}

		w.frameMu.Lock()
		w.latest = frame
		w.frameMu.Unlock()
	}
}

// Capture takes a still photo. With FlashOn the brightness and exposure are
// raised for this capture and restored afterwards.
func (w *Webcam) Capture(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.cap == nil {
		return nil, ErrNotStarted
	}

	if req.Flash == FlashOn {
		restore := w.fireFlashLocked()
		defer restore()
	}

	img := gocv.NewMat()
	defer img.Close()

	if !w.cap.Read(&img) || img.Empty() {
		return nil, ErrNoFrame
	}

	frame, err := encodeJPEG(img, w.config.Quality)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("captured still",
		"capture_id", req.ID,
		"flash", req.Flash.String(),
		"bytes", len(frame),
	)
	return frame, nil
}

// fireFlashLocked emulates a flash and returns a func that undoes it.
func (w *Webcam) fireFlashLocked() func() {
	brightness := w.cap.Get(gocv.VideoCaptureBrightness)
	exposure := w.cap.Get(gocv.VideoCaptureExposure)

	w.cap.Set(gocv.VideoCaptureBrightness, brightness+w.config.FlashBrightness)
	w.cap.Set(gocv.VideoCaptureExposure, exposure+w.config.FlashExposure)

	// Let auto-exposure settle on the new values.
	scratch := gocv.NewMat()
	for i := 0; i < w.config.WarmupFrames; i++ {
		w.cap.Read(&scratch)
	}
	scratch.Close()

	return func() {
		w.cap.Set(gocv.VideoCaptureBrightness, brightness)
		w.cap.Set(gocv.VideoCaptureExposure, exposure)
	}
}

// Latest returns the newest preview frame.
func (w *Webcam) Latest() ([]byte, error) {
	w.frameMu.RLock()
	defer w.frameMu.RUnlock()
	if w.latest == nil {
		return nil, ErrNoFrame
	}
	return w.latest, nil
}

// Apply pushes a new config to the device. Framerate changes take effect
// on the next Start.
func (w *Webcam) Apply(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	if w.cap != nil {
		w.applyLocked(cfg)
	}
	return nil
}

func (w *Webcam) applyLocked(cfg Config) {
	w.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	w.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	w.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
}

// Close stops the session and releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cap != nil {
		err := w.cap.Close()
		w.cap = nil
		return err
	}
	return nil
}

// encodeJPEG encodes img and copies the bytes out of OpenCV's buffer.
func encodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Verify Webcam implements Camera at compile time.
var _ Camera = (*Webcam)(nil)
