package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Chain implements Classifier by trying multiple classifiers in order.
// The first classifier that returns results wins.
type Chain struct {
	classifiers []Classifier
	logger      *slog.Logger
}

// NewChain creates a classifier chain. At least one classifier is required.
func NewChain(classifiers ...Classifier) (*Chain, error) {
	if len(classifiers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		classifiers: classifiers,
		logger:      slog.Default().With("component", "classify.chain"),
	}, nil
}

// NewChainWithLogger creates a classifier chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, classifiers ...Classifier) (*Chain, error) {
	chain, err := NewChain(classifiers...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "classify.chain")
	return chain, nil
}

// Classify tries each classifier until one succeeds. An empty image is
// rejected up front since no backend can do better with it.
func (c *Chain) Classify(ctx context.Context, jpeg []byte) (Classifications, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyImage
	}

	var errs []error
	for i, clf := range c.classifiers {
		results, err := clf.Classify(ctx, jpeg)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback classifier succeeded",
					"classifier", clf.Name(),
					"index", i,
				)
			}
			return results, nil
		}

		errs = append(errs, err)
		c.logger.Warn("classifier failed, trying next",
			"classifier", clf.Name(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Name joins the member names, e.g. "onnx>gemini".
func (c *Chain) Name() string {
	names := make([]string, len(c.classifiers))
	for i, clf := range c.classifiers {
		names[i] = clf.Name()
	}
	return strings.Join(names, ">")
}

// Health returns an error only if every classifier is unhealthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error

	for _, clf := range c.classifiers {
		if err := clf.Health(ctx); err != nil {
			lastErr = err
			c.logger.Debug("classifier unhealthy", "classifier", clf.Name(), "error", err)
		} else {
			healthy++
		}
	}

	if healthy == 0 {
		return fmt.Errorf("all %d classifiers unhealthy: %w", len(c.classifiers), lastErr)
	}
	return nil
}

// Close closes all classifiers.
func (c *Chain) Close() error {
	var errs []error
	for _, clf := range c.classifiers {
		if err := clf.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Classifiers returns the list of classifiers in the chain.
func (c *Chain) Classifiers() []Classifier {
	return c.classifiers
}

// Verify Chain implements Classifier at compile time.
var _ Classifier = (*Chain)(nil)
