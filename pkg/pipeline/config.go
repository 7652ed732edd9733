package pipeline

import (
	"log/slog"
	"time"
)

// Config holds controller configuration.
type Config struct {
	// Threshold is the minimum confidence for naming the object.
	Threshold float64

	// SortResults orders results by confidence before taking the first.
	// Off by default: the first element as returned is used.
	SortResults bool

	// ReleaseOnError returns to Idle after a failed cycle instead of
	// staying Locked until the next trigger.
	ReleaseOnError bool

	// StageTimeout bounds each service call. Zero means no timeout.
	StageTimeout time.Duration

	// OnChange is called from the loop after every UIState mutation.
	OnChange func(UIState)

	// OnImage is called from the loop when a captured image is stored.
	OnImage func(jpeg []byte)

	Logger *slog.Logger
}

// Option is a functional option for configuring the controller.
type Option func(*Config)

// WithThreshold sets the confidence threshold.
func WithThreshold(t float64) Option {
	return func(c *Config) { c.Threshold = t }
}

// WithSortResults enables sorting results by confidence.
func WithSortResults(enabled bool) Option {
	return func(c *Config) { c.SortResults = enabled }
}

// WithReleaseOnError releases the UI lock when a cycle fails.
func WithReleaseOnError(enabled bool) Option {
	return func(c *Config) { c.ReleaseOnError = enabled }
}

// WithStageTimeout bounds each camera, classifier and speech call.
func WithStageTimeout(d time.Duration) Option {
	return func(c *Config) { c.StageTimeout = d }
}

// WithOnChange registers a UIState observer.
func WithOnChange(fn func(UIState)) Option {
	return func(c *Config) { c.OnChange = fn }
}

// WithOnImage registers a captured-image observer.
func WithOnImage(fn func(jpeg []byte)) Option {
	return func(c *Config) { c.OnImage = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() *Config {
	return &Config{
		Threshold: DefaultThreshold,
		Logger:    slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
