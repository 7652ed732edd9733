package classify

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const providerONNX = "onnx"

// ONNX classifies images on-device with an ImageNet-style ONNX model
// (SqueezeNet by default) through OpenCV's DNN module.
type ONNX struct {
	net    gocv.Net
	labels []string
	config *Config
	logger *slog.Logger

	mu     sync.Mutex // gocv.Net is not safe for concurrent Forward calls
	closed bool
}

// NewONNX loads the model and labels.
func NewONNX(opts ...Option) (*ONNX, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.ModelPath == "" {
		return nil, ErrNoModel
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger := cfg.Logger.With("component", "classify.onnx")
	logger.Info("model loaded",
		"model", cfg.ModelPath,
		"labels", len(labels),
		"input", cfg.InputSize,
	)

	return &ONNX{
		net:    net,
		labels: labels,
		config: cfg,
		logger: logger,
	}, nil
}

// Classify runs a single forward pass and returns the top results, most
// confident first.
func (o *ONNX) Classify(ctx context.Context, jpeg []byte) (Classifications, error) {
	if len(jpeg) == 0 {
		return nil, WrapError(providerONNX, ErrEmptyImage)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, WrapError(providerONNX, ErrProviderUnavailable)
	}

	start := time.Now()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, WrapError(providerONNX, fmt.Errorf("decode image: %w", err))
	}
	defer img.Close()
	if img.Empty() {
		return nil, WrapError(providerONNX, ErrEmptyImage)
	}

	size := image.Pt(o.config.InputSize, o.config.InputSize)
	mean := gocv.NewScalar(o.config.Mean[0], o.config.Mean[1], o.config.Mean[2], 0)
	blob := gocv.BlobFromImage(img, o.config.Scale, size, mean, o.config.SwapRB, false)
	defer blob.Close()

	o.net.SetInput(blob, "")
	output := o.net.Forward("")
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return nil, WrapError(providerONNX, fmt.Errorf("read output: %w", err))
	}

	results := rank(scores, o.labels, o.config.TopK, o.config.Softmax)

	if top, ok := results.First(); ok {
		o.logger.Debug("classified",
			"label", top.Label,
			"confidence", top.Confidence,
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
	return results, nil
}

// Name returns "onnx".
func (o *ONNX) Name() string {
	return providerONNX
}

// Health reports whether the network is loaded.
func (o *ONNX) Health(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.net.Empty() {
		return WrapError(providerONNX, ErrProviderUnavailable)
	}
	return nil
}

// Close releases the network.
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.net.Close()
}

// Verify ONNX implements Classifier at compile time.
var _ Classifier = (*ONNX)(nil)
