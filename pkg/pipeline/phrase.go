package pipeline

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-visionapp/pkg/classify"
)

// FallbackMessage is spoken when the first result is below the threshold.
const FallbackMessage = "I'm not sure what this is. Please try again!"

// DefaultThreshold is the minimum confidence for naming the object.
const DefaultThreshold = 0.5

// Verdict is what the screen shows and says for one classification.
type Verdict struct {
	Speech         string
	ItemName       string
	ConfidenceText string
	Confident      bool
	Percent        int
}

// Describe turns a single classification into speech and display text.
// A NaN confidence counts as below the threshold.
func Describe(c classify.Classification, threshold float64) Verdict {
	if math.IsNaN(c.Confidence) || c.Confidence < threshold {
		return Verdict{
			Speech:   FallbackMessage,
			ItemName: FallbackMessage,
		}
	}
	p := Percent(c.Confidence)
	return Verdict{
		Speech:         fmt.Sprintf("This looks like a %s and I'm %d percent sure.", c.Label, p),
		ItemName:       c.Label,
		ConfidenceText: fmt.Sprintf("Confidence: %d%%", p),
		Confident:      true,
		Percent:        p,
	}
}

// Percent rounds a confidence in [0,1] to a whole percentage.
func Percent(confidence float64) int {
	return int(math.Round(confidence * 100))
}
