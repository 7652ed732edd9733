package classify

import (
	"log/slog"
	"time"
)

// Config holds classifier configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Local model
	ModelPath  string     // ONNX model file
	LabelsPath string     // One label per line, optionally prefixed by a synset id
	InputSize  int        // Square network input (224 for SqueezeNet)
	Scale      float64    // Pixel multiplier applied after mean subtraction
	Mean       [3]float64 // Per-channel mean in RGB order, pixel units
	SwapRB     bool       // Convert OpenCV BGR to RGB before inference
	Softmax    bool       // Model emits logits that need normalizing

	// Hosted models
	APIKey      string
	BaseURL     string
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64

	// Results
	TopK int // Number of results returned, 0 = all

	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring classifiers.
type Option func(*Config)

// WithModelPath sets the ONNX model file.
func WithModelPath(path string) Option {
	return func(c *Config) { c.ModelPath = path }
}

// WithLabelsPath sets the labels file.
func WithLabelsPath(path string) Option {
	return func(c *Config) { c.LabelsPath = path }
}

// WithInputSize sets the square network input size.
func WithInputSize(n int) Option {
	return func(c *Config) { c.InputSize = n }
}

// WithNormalization sets the blob scale and RGB mean.
func WithNormalization(scale float64, mean [3]float64) Option {
	return func(c *Config) {
		c.Scale = scale
		c.Mean = mean
	}
}

// WithSoftmax controls whether raw outputs are softmax-normalized.
func WithSoftmax(enabled bool) Option {
	return func(c *Config) { c.Softmax = enabled }
}

// WithAPIKey sets the API key for hosted models.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the hosted API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the hosted model name.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithPrompt overrides the instruction sent with the image.
func WithPrompt(prompt string) Option {
	return func(c *Config) { c.Prompt = prompt }
}

// WithTopK limits the number of returned classifications.
func WithTopK(k int) Option {
	return func(c *Config) { c.TopK = k }
}

// WithTimeout sets the request timeout for hosted models.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultPrompt asks a hosted model for ImageNet-style labels as JSON.
const DefaultPrompt = `Identify the main object in this photo. ` +
	`Respond only with JSON of the form {"classifications":[{"label":"coffee mug","confidence":0.87}]} ` +
	`listing up to 5 short common-noun labels ordered from most to least likely, ` +
	`with confidence between 0 and 1.`

// DefaultConfig returns defaults matching SqueezeNet 1.1 from the ONNX model zoo.
func DefaultConfig() *Config {
	return &Config{
		InputSize: 224,
		Scale:     1.0 / (255.0 * 0.226),
		Mean:      [3]float64{123.675, 116.28, 103.53},
		SwapRB:    true,
		Softmax:   true,

		Prompt:      DefaultPrompt,
		MaxTokens:   300,
		Temperature: 0.0,

		TopK:    5,
		Timeout: 20 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
