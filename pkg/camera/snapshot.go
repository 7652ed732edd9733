package camera

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/teslashibe/go-visionapp/internal/httpc"
)

// Snapshot is a Camera backed by an HTTP endpoint returning a JPEG per GET,
// such as an IP camera or a robot's camera daemon.
//
// The flash setting is forwarded as a query parameter: ?flash=on|off.
type Snapshot struct {
	endpoint *url.URL
	client   *http.Client
	logger   *slog.Logger

	started atomic.Bool
	closed  atomic.Bool
}

// NewSnapshot creates a snapshot camera for the given URL.
func NewSnapshot(endpoint string, client *http.Client, logger *slog.Logger) (*Snapshot, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("snapshot url must be http(s): %s", endpoint)
	}
	if client == nil {
		client = httpc.Client
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshot{
		endpoint: u,
		client:   client,
		logger:   logger.With("component", "camera.snapshot", "host", u.Host),
	}, nil
}

// Start verifies the endpoint answers with a frame.
func (s *Snapshot) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.fetch(ctx, FlashOff); err != nil {
		return fmt.Errorf("snapshot probe: %w", err)
	}
	s.started.Store(true)
	s.logger.Info("capture session started")
	return nil
}

// Capture fetches one frame with the requested flash setting.
func (s *Snapshot) Capture(ctx context.Context, req Request) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	frame, err := s.fetch(ctx, req.Flash)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("captured still",
		"capture_id", req.ID,
		"flash", req.Flash.String(),
		"bytes", len(frame),
	)
	return frame, nil
}

// Latest fetches a preview frame without flash.
func (s *Snapshot) Latest() ([]byte, error) {
	if !s.started.Load() {
		return nil, ErrNoFrame
	}
	return s.fetch(context.Background(), FlashOff)
}

// Close marks the camera closed.
func (s *Snapshot) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Snapshot) fetch(ctx context.Context, flash FlashMode) ([]byte, error) {
	u := *s.endpoint
	q := u.Query()
	q.Set("flash", flash.String())
	u.RawQuery = q.Encode()

	frame, err := httpc.GetBytes(ctx, s.client, u.String())
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, ErrNoFrame
	}
	return frame, nil
}

// Verify Snapshot implements Camera at compile time.
var _ Camera = (*Snapshot)(nil)
