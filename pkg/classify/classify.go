// Package classify turns a captured photo into a ranked list of labels.
//
// All backends implement Classifier: a local ONNX model run through OpenCV's
// DNN module, and hosted vision models (Gemini, OpenAI-compatible) asked to
// answer with JSON. Results come back in the order the backend ranked them.
//
// Example usage:
//
//	clf, _ := classify.NewONNX(
//	    classify.WithModelPath("models/squeezenet1.1.onnx"),
//	    classify.WithLabelsPath("models/imagenet_labels.txt"),
//	)
//	defer clf.Close()
//
//	results, _ := clf.Classify(ctx, jpeg)
//	top, _ := results.First()
package classify

import (
	"context"
	"math"
	"sort"
)

// Classifier labels a JPEG image.
type Classifier interface {
	// Classify runs one inference pass over the image.
	Classify(ctx context.Context, jpeg []byte) (Classifications, error)

	// Name identifies the backend in logs and health output.
	Name() string

	// Health reports whether the backend can take requests.
	Health(ctx context.Context) error

	// Close releases any resources held by the classifier.
	Close() error
}

// Classification is one (label, confidence) pair.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
}

// Classifications is an ordered result sequence as returned by a backend.
type Classifications []Classification

// First returns the first element as returned, not necessarily the most
// confident one.
func (c Classifications) First() (Classification, bool) {
	if len(c) == 0 {
		return Classification{}, false
	}
	return c[0], true
}

// Sorted returns a copy ordered by descending confidence. Ties keep their
// original order.
func (c Classifications) Sorted() Classifications {
	out := make(Classifications, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Top returns at most k leading elements. k <= 0 returns everything.
func (c Classifications) Top(k int) Classifications {
	if k <= 0 || k >= len(c) {
		return c
	}
	return c[:k]
}

// clamp01 keeps confidences reported by models in range. NaN becomes 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
