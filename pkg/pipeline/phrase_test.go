package pipeline_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/teslashibe/go-visionapp/pkg/classify"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name       string
		in         classify.Classification
		speech     string
		item       string
		confidence string
	}{
		{
			name:       "confident cup",
			in:         classify.Classification{Label: "cup", Confidence: 0.87},
			speech:     "This looks like a cup and I'm 87 percent sure.",
			item:       "cup",
			confidence: "Confidence: 87%",
		},
		{
			name:       "below threshold",
			in:         classify.Classification{Label: "cup", Confidence: 0.42},
			speech:     "I'm not sure what this is. Please try again!",
			item:       "I'm not sure what this is. Please try again!",
			confidence: "",
		},
		{
			name:       "exactly threshold",
			in:         classify.Classification{Label: "banana", Confidence: 0.5},
			speech:     "This looks like a banana and I'm 50 percent sure.",
			item:       "banana",
			confidence: "Confidence: 50%",
		},
		{
			name:       "just below threshold",
			in:         classify.Classification{Label: "banana", Confidence: 0.4999},
			speech:     pipeline.FallbackMessage,
			item:       pipeline.FallbackMessage,
			confidence: "",
		},
		{
			name:       "rounds up",
			in:         classify.Classification{Label: "coffee mug", Confidence: 0.876},
			speech:     "This looks like a coffee mug and I'm 88 percent sure.",
			item:       "coffee mug",
			confidence: "Confidence: 88%",
		},
		{
			name:       "certain",
			in:         classify.Classification{Label: "pug", Confidence: 1},
			speech:     "This looks like a pug and I'm 100 percent sure.",
			item:       "pug",
			confidence: "Confidence: 100%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := pipeline.Describe(tt.in, pipeline.DefaultThreshold)
			if v.Speech != tt.speech {
				t.Errorf("speech: expected %q, got %q", tt.speech, v.Speech)
			}
			if v.ItemName != tt.item {
				t.Errorf("item: expected %q, got %q", tt.item, v.ItemName)
			}
			if v.ConfidenceText != tt.confidence {
				t.Errorf("confidence: expected %q, got %q", tt.confidence, v.ConfidenceText)
			}
		})
	}
}

func TestDescribeAllConfidences(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		c := float64(i) / 1000
		v := pipeline.Describe(classify.Classification{Label: "thing", Confidence: c}, pipeline.DefaultThreshold)
		if c < 0.5 {
			if v.Speech != pipeline.FallbackMessage || v.ConfidenceText != "" {
				t.Fatalf("c=%.3f: expected fallback with empty confidence, got %q / %q", c, v.Speech, v.ConfidenceText)
			}
			continue
		}
		want := fmt.Sprintf("Confidence: %d%%", pipeline.Percent(c))
		if v.ConfidenceText != want {
			t.Fatalf("c=%.3f: expected %q, got %q", c, want, v.ConfidenceText)
		}
	}
}

func TestDescribeCustomThreshold(t *testing.T) {
	v := pipeline.Describe(classify.Classification{Label: "cup", Confidence: 0.42}, 0.3)
	if !v.Confident || v.Percent != 42 {
		t.Errorf("expected confident 42%%, got %+v", v)
	}
}

func TestDescribeNaNConfidence(t *testing.T) {
	for _, threshold := range []float64{0, pipeline.DefaultThreshold} {
		v := pipeline.Describe(classify.Classification{Label: "mug", Confidence: math.NaN()}, threshold)
		if v.Confident || v.Speech != pipeline.FallbackMessage || v.ConfidenceText != "" {
			t.Errorf("threshold %v: NaN confidence should fall back, got %+v", threshold, v)
		}
	}
}
