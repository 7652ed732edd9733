package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// labelResponse is the JSON shape hosted models are asked to produce.
type labelResponse struct {
	Classifications []Classification `json:"classifications"`
}

// parseLabelJSON extracts classifications from a model reply, tolerating
// markdown code fences and a bare top-level array.
func parseLabelJSON(text string) (Classifications, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var results []Classification
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &results); err != nil {
			return nil, fmt.Errorf("decode labels: %w", err)
		}
	} else {
		var resp labelResponse
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return nil, fmt.Errorf("decode labels: %w (body: %s)", err, truncate(text, 200))
		}
		results = resp.Classifications
	}

	out := make(Classifications, 0, len(results))
	for _, r := range results {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			continue
		}
		out = append(out, Classification{Label: label, Confidence: clamp01(r.Confidence)})
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}

// truncate shortens a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
