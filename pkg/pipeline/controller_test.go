package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-visionapp/internal/log"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/classify"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

const waitTimeout = 2 * time.Second

type fakeSpeaker struct {
	mu    sync.Mutex
	texts []string
	err   error
	gate  chan struct{}
	stuck <-chan struct{} // blocks Speak regardless of ctx
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	gate, stuck, err := f.gate, f.stuck, f.err
	f.mu.Unlock()

	if stuck != nil {
		<-stuck
		return err
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSpeaker) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type harness struct {
	ctrl    *pipeline.Controller
	cam     *camera.Mock
	clf     *classify.Mock
	speaker *fakeSpeaker
	states  chan pipeline.UIState
	images  chan []byte
}

func newHarness(t *testing.T, setup func(h *harness), opts ...pipeline.Option) *harness {
	t.Helper()
	h := &harness{
		cam:     camera.NewMock(),
		clf:     classify.NewMock(),
		speaker: &fakeSpeaker{},
		states:  make(chan pipeline.UIState, 256),
		images:  make(chan []byte, 16),
	}
	if setup != nil {
		setup(h)
	}

	opts = append(opts,
		pipeline.WithLogger(log.Discard()),
		pipeline.WithOnChange(func(s pipeline.UIState) { h.states <- s }),
		pipeline.WithOnImage(func(img []byte) { h.images <- img }),
	)
	h.ctrl = pipeline.New(h.cam, h.clf, h.speaker, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.ctrl.Done()
	})

	deadline := time.Now().Add(waitTimeout)
	for !h.ctrl.SessionActive() {
		if time.Now().After(deadline) {
			t.Fatal("session never started")
		}
		time.Sleep(time.Millisecond)
	}
	return h
}

// waitFor drains state updates until one is in the wanted state.
func (h *harness) waitFor(t *testing.T, want pipeline.State) pipeline.UIState {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case s := <-h.states:
			if s.State == want {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s (current %s)", want, h.ctrl.State().State)
		}
	}
}

func (h *harness) trigger(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Trigger(context.Background()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
}

func results(rs ...classify.Classification) func(context.Context, []byte) (classify.Classifications, error) {
	return func(context.Context, []byte) (classify.Classifications, error) {
		return classify.Classifications(rs), nil
	}
}

func TestInitialState(t *testing.T) {
	h := newHarness(t, nil)
	s := h.ctrl.State()

	if s.State != pipeline.StateIdle {
		t.Errorf("expected idle, got %s", s.State)
	}
	if !s.InteractionEnabled || s.Busy {
		t.Error("expected interaction enabled and no busy indicator")
	}
	if s.Flash != camera.FlashOff || s.FlashLabel != "FLASH OFF" {
		t.Errorf("expected flash off, got %s %q", s.Flash, s.FlashLabel)
	}
	if h.cam.Starts() != 1 {
		t.Errorf("expected session started once, got %d", h.cam.Starts())
	}
}

func TestSuccessfulCycle(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t)

	capturing := h.waitFor(t, pipeline.StateCapturing)
	if capturing.InteractionEnabled || !capturing.Busy {
		t.Error("expected interaction disabled and busy while capturing")
	}

	s := h.waitFor(t, pipeline.StateIdle)
	if !s.InteractionEnabled || s.Busy {
		t.Error("expected interaction re-enabled after speech")
	}
	if s.ItemName != "cup" {
		t.Errorf("expected item name cup, got %q", s.ItemName)
	}
	if s.ConfidenceText != "Confidence: 87%" {
		t.Errorf("unexpected confidence text %q", s.ConfidenceText)
	}

	texts := h.speaker.Texts()
	if len(texts) != 1 || texts[0] != "This looks like a cup and I'm 87 percent sure." {
		t.Errorf("unexpected speech %v", texts)
	}

	if !bytes.Equal(h.ctrl.Image(), camera.TestJPEG()) {
		t.Error("expected captured image to be stored")
	}
	select {
	case img := <-h.images:
		if len(img) == 0 {
			t.Error("expected image observer to receive bytes")
		}
	default:
		t.Error("expected image observer to be called")
	}
	if h.clf.CallCount() != 1 {
		t.Errorf("expected one classification, got %d", h.clf.CallCount())
	}
}

func TestFirstResultOnly(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.clf.ClassifyFunc = results(
			classify.Classification{Label: "bowl", Confidence: 0.42},
			classify.Classification{Label: "cup", Confidence: 0.99},
		)
	})
	h.trigger(t)

	s := h.waitFor(t, pipeline.StateIdle)
	if s.ItemName != pipeline.FallbackMessage || s.ConfidenceText != "" {
		t.Errorf("expected fallback display, got %q / %q", s.ItemName, s.ConfidenceText)
	}
	texts := h.speaker.Texts()
	if len(texts) != 1 || texts[0] != "I'm not sure what this is. Please try again!" {
		t.Errorf("expected exactly one fallback utterance, got %v", texts)
	}
}

func TestSortResults(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.clf.ClassifyFunc = results(
			classify.Classification{Label: "bowl", Confidence: 0.42},
			classify.Classification{Label: "cup", Confidence: 0.99},
		)
	}, pipeline.WithSortResults(true))
	h.trigger(t)

	h.waitFor(t, pipeline.StateIdle)
	texts := h.speaker.Texts()
	if len(texts) != 1 || texts[0] != "This looks like a cup and I'm 99 percent sure." {
		t.Errorf("expected sorted result, got %v", texts)
	}
}

func TestToggleFlash(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	mode, err := h.ctrl.ToggleFlash(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != camera.FlashOn || h.ctrl.State().FlashLabel != "FLASH ON" {
		t.Errorf("expected flash on, got %s %q", mode, h.ctrl.State().FlashLabel)
	}

	h.trigger(t)
	h.waitFor(t, pipeline.StateIdle)
	reqs := h.cam.Requests()
	if len(reqs) != 1 || reqs[0].Flash != camera.FlashOn {
		t.Errorf("expected capture with flash on, got %+v", reqs)
	}
	if reqs[0].ID == "" {
		t.Error("expected capture request to carry the cycle ID")
	}

	mode, _ = h.ctrl.ToggleFlash(ctx)
	s := h.ctrl.State()
	if mode != camera.FlashOff || s.Flash != camera.FlashOff || s.FlashLabel != "FLASH OFF" {
		t.Errorf("expected toggling twice to restore flash off, got %s %q", s.Flash, s.FlashLabel)
	}
}

func TestSecondTriggerRejected(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
			<-gate
			return camera.TestJPEG(), nil
		}
	})

	h.trigger(t)
	if err := h.ctrl.Trigger(context.Background()); !errors.Is(err, pipeline.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	// Flash stays available while busy.
	if _, err := h.ctrl.ToggleFlash(context.Background()); err != nil {
		t.Errorf("unexpected toggle error: %v", err)
	}

	close(gate)
	h.waitFor(t, pipeline.StateIdle)
	if h.cam.CaptureCount() != 1 {
		t.Errorf("expected a single capture, got %d", h.cam.CaptureCount())
	}
}

func TestTriggerRejectedWhileSpeaking(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, func(h *harness) { h.speaker.gate = gate })

	h.trigger(t)
	s := h.waitFor(t, pipeline.StateSpeaking)
	if s.InteractionEnabled || !s.Busy {
		t.Error("expected the lock to stay engaged until speech finishes")
	}
	if err := h.ctrl.Trigger(context.Background()); !errors.Is(err, pipeline.ErrBusy) {
		t.Errorf("expected ErrBusy while speaking, got %v", err)
	}

	close(gate)
	s = h.waitFor(t, pipeline.StateIdle)
	if !s.InteractionEnabled {
		t.Error("expected speech completion to release the lock")
	}
}

func TestCaptureErrorLeavesLock(t *testing.T) {
	fail := true
	var mu sync.Mutex
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return nil, errors.New("sensor unplugged")
			}
			return camera.TestJPEG(), nil
		}
	})

	h.trigger(t)
	s := h.waitFor(t, pipeline.StateLocked)
	if s.InteractionEnabled || !s.Busy {
		t.Error("expected the lock to stay engaged after a capture error")
	}
	if h.clf.CallCount() != 0 || len(h.speaker.Texts()) != 0 {
		t.Error("expected the cycle to stop after the capture error")
	}

	// The next trigger forcibly resets the locked cycle.
	mu.Lock()
	fail = false
	mu.Unlock()
	h.trigger(t)
	s = h.waitFor(t, pipeline.StateIdle)
	if !s.InteractionEnabled {
		t.Error("expected the new cycle to complete")
	}
	if h.cam.CaptureCount() != 2 {
		t.Errorf("expected 2 captures, got %d", h.cam.CaptureCount())
	}
}

func TestReleaseOnError(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
			return nil, errors.New("sensor unplugged")
		}
	}, pipeline.WithReleaseOnError(true))

	h.trigger(t)
	h.waitFor(t, pipeline.StateCapturing)
	s := h.waitFor(t, pipeline.StateIdle)
	if !s.InteractionEnabled || s.Busy {
		t.Error("expected the lock to be released after an error")
	}
}

func TestFailurePathsLock(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{
			name: "classifier error",
			setup: func(h *harness) {
				h.clf.ClassifyFunc = func(context.Context, []byte) (classify.Classifications, error) {
					return nil, errors.New("model crashed")
				}
			},
		},
		{
			name: "zero results",
			setup: func(h *harness) {
				h.clf.ClassifyFunc = results()
			},
		},
		{
			name: "speech error",
			setup: func(h *harness) {
				h.speaker.err = errors.New("no audio device")
			},
		},
		{
			name: "undecodable image",
			setup: func(h *harness) {
				h.cam.CaptureFunc = func(context.Context, camera.Request) ([]byte, error) {
					return []byte("not an image"), nil
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.setup)
			h.trigger(t)
			s := h.waitFor(t, pipeline.StateLocked)
			if s.InteractionEnabled || !s.Busy {
				t.Error("expected the lock to stay engaged")
			}
		})
	}
}

func TestUndecodableImageSkipsClassifier(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(context.Context, camera.Request) ([]byte, error) {
			return []byte{0x00, 0x01}, nil
		}
	})
	h.trigger(t)
	h.waitFor(t, pipeline.StateLocked)
	if h.clf.CallCount() != 0 {
		t.Error("classifier should not see undecodable data")
	}
	if h.ctrl.Image() != nil {
		t.Error("undecodable data should not be stored as the image")
	}
}

func TestStageTimeout(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}, pipeline.WithStageTimeout(20*time.Millisecond))

	h.trigger(t)
	h.waitFor(t, pipeline.StateLocked)
}

func TestStageTimeoutWithBlockingBackends(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, release <-chan struct{})
	}{
		{"camera", func(h *harness, release <-chan struct{}) {
			h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
				<-release
				return camera.TestJPEG(), nil
			}
		}},
		{"classifier", func(h *harness, release <-chan struct{}) {
			h.clf.ClassifyFunc = func(ctx context.Context, jpeg []byte) (classify.Classifications, error) {
				<-release
				return classify.Classifications{{Label: "cup", Confidence: 0.9}}, nil
			}
		}},
		{"speaker", func(h *harness, release <-chan struct{}) {
			h.speaker.stuck = release
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			defer close(release)

			h := newHarness(t, func(h *harness) { tt.setup(h, release) },
				pipeline.WithStageTimeout(30*time.Millisecond))

			h.trigger(t)
			st := h.waitFor(t, pipeline.StateLocked)
			if st.InteractionEnabled || !st.Busy {
				t.Error("expected the lock to stay engaged after a timeout")
			}

			// The screen recovers on the next trigger even though the
			// first backend call is still stuck.
			h.trigger(t)
			h.waitFor(t, pipeline.StateCapturing)
		})
	}
}

func TestLateResultAfterTimeoutIsDropped(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	h := newHarness(t, func(h *harness) {
		h.cam.CaptureFunc = func(ctx context.Context, req camera.Request) ([]byte, error) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				<-release
			}
			return camera.TestJPEG(), nil
		}
	}, pipeline.WithStageTimeout(30*time.Millisecond))

	h.trigger(t)
	h.waitFor(t, pipeline.StateLocked)

	close(release)
	time.Sleep(50 * time.Millisecond)

	if got := h.ctrl.State().State; got != pipeline.StateLocked {
		t.Errorf("late capture should be ignored, state is %s", got)
	}
	if h.clf.CallCount() != 0 {
		t.Error("late capture must not reach the classifier")
	}
}

func TestTriggerWithoutSession(t *testing.T) {
	ctrl := pipeline.New(camera.NewMock(), classify.NewMock(), &fakeSpeaker{}, pipeline.WithLogger(log.Discard()))
	if err := ctrl.Trigger(context.Background()); !errors.Is(err, pipeline.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	if _, err := ctrl.ToggleFlash(context.Background()); !errors.Is(err, pipeline.ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestRunStartFailure(t *testing.T) {
	cam := camera.NewMock()
	cam.StartFunc = func(context.Context) error { return errors.New("no device") }
	ctrl := pipeline.New(cam, classify.NewMock(), &fakeSpeaker{}, pipeline.WithLogger(log.Discard()))

	err := ctrl.Run(context.Background())
	if !errors.Is(err, pipeline.ErrCapture) {
		t.Fatalf("expected ErrCapture, got %v", err)
	}
	if ctrl.SessionActive() {
		t.Error("session should not be active")
	}
	if err := ctrl.Trigger(context.Background()); !errors.Is(err, pipeline.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestStateNames(t *testing.T) {
	tests := map[pipeline.State]string{
		pipeline.StateIdle:        "idle",
		pipeline.StateCapturing:   "capturing",
		pipeline.StateClassifying: "classifying",
		pipeline.StateSpeaking:    "speaking",
		pipeline.StateLocked:      "locked",
	}
	for state, want := range tests {
		if state.String() != want {
			t.Errorf("expected %q, got %q", want, state.String())
		}
	}
	if pipeline.StateLocked.InFlight() || !pipeline.StateSpeaking.InFlight() {
		t.Error("unexpected InFlight result")
	}
}
