// Package web serves the vision app's screen over HTTP: REST endpoints for
// the trigger and flash buttons, and websockets streaming the UI state,
// preview frames and captured images.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/hub"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

// Controller is the part of the pipeline the screen drives.
type Controller interface {
	Trigger(ctx context.Context) error
	ToggleFlash(ctx context.Context) (camera.FlashMode, error)
	State() pipeline.UIState
	Image() []byte
	SessionActive() bool
}

// HealthFunc reports a dependency's readiness.
type HealthFunc func(ctx context.Context) error

// Config holds server options.
type Config struct {
	Addr      string // listen address, e.g. ":8080"
	StaticDir string // optional dashboard assets served at /
	Logger    *slog.Logger
}

// Server is the web dashboard server.
type Server struct {
	app     *fiber.App
	config  Config
	ctrl    Controller
	cameras *camera.Manager
	logger  *slog.Logger

	healthMu sync.RWMutex
	health   map[string]HealthFunc

	stateHub   *hub.Hub
	previewHub *hub.Hub
	imageHub   *hub.Hub
}

// NewServer creates the server and registers its routes. cameras may be
// nil when the backend has no runtime-adjustable settings.
func NewServer(ctrl Controller, cameras *camera.Manager, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		config:     cfg,
		ctrl:       ctrl,
		cameras:    cameras,
		logger:     logger,
		health:     make(map[string]HealthFunc),
		stateHub:   hub.New("state", hub.WithRetain(), hub.WithLogger(cfg.Logger)),
		previewHub: hub.New("preview", hub.WithLogger(cfg.Logger)),
		imageHub:   hub.New("image", hub.WithRetain(), hub.WithLogger(cfg.Logger)),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Vision App",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Post("/trigger", s.handleTrigger)
	api.Post("/flash", s.handleFlash)
	api.Get("/state", s.handleState)
	api.Get("/image", s.handleImage)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handlePresets)
	api.Get("/health", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.stateHub.Serve))
	app.Get("/ws/preview", websocket.New(s.previewHub.Serve))
	app.Get("/ws/image", websocket.New(s.imageHub.Serve))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// AddHealthCheck registers a named readiness check for /api/health.
func (s *Server) AddHealthCheck(name string, fn HealthFunc) {
	s.healthMu.Lock()
	s.health[name] = fn
	s.healthMu.Unlock()
}

// Run starts the hubs and serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.stateHub.Run(ctx)
	go s.previewHub.Run(ctx)
	go s.imageHub.Run(ctx)

	// Seed the retained state unless the controller already published one.
	if err := s.stateHub.SeedJSON(s.ctrl.State()); err != nil {
		s.logger.Warn("encode state", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web dashboard listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
		return nil
	}
}

// PublishState broadcasts a UI state snapshot to /ws/state clients.
func (s *Server) PublishState(st pipeline.UIState) {
	if err := s.stateHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("encode state", "error", err)
	}
}

// PublishImage broadcasts a captured image to /ws/image clients.
func (s *Server) PublishImage(jpeg []byte) {
	s.imageHub.BroadcastBinary(jpeg)
}

// PublishFrame broadcasts a preview frame to /ws/preview clients.
func (s *Server) PublishFrame(jpeg []byte) {
	s.previewHub.BroadcastBinary(jpeg)
}

// PreviewClients returns the number of connected preview viewers.
func (s *Server) PreviewClients() int {
	return s.previewHub.ClientCount()
}
