package classify

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

var synsetPrefix = regexp.MustCompile(`^n\d{8}\s+`)

// LoadLabels reads a labels file, one class per line in model output order.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels parses ImageNet-style label lines. Both plain names
// ("coffee mug") and synset lines ("n03063599 coffee mug, mug") are
// accepted; only the first comma-separated name is kept.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = synsetPrefix.ReplaceAllString(line, "")
		if i := strings.Index(line, ","); i >= 0 {
			line = line[:i]
		}
		labels = append(labels, strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file is empty")
	}
	return labels, nil
}

// rank converts raw network scores into classifications sorted by
// descending confidence, keeping at most k.
func rank(scores []float32, labels []string, k int, softmax bool) Classifications {
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = float64(s)
	}
	if softmax {
		probs = softmaxOf(probs)
	}
	// Infinite logits turn into NaN, which would also break the sort.
	for i, p := range probs {
		if math.IsNaN(p) {
			probs[i] = 0
		}
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	if k > 0 && k < len(idx) {
		idx = idx[:k]
	}

	out := make(Classifications, 0, len(idx))
	for _, i := range idx {
		label := fmt.Sprintf("class %d", i)
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, Classification{Label: label, Confidence: clamp01(probs[i])})
	}
	return out
}

func softmaxOf(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
