package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"time"
)

// Preview pushes the latest frame from src to sink at fps until ctx ends.
// Frames identical to the previous one are not resent.
func Preview(ctx context.Context, src FrameSource, fps int, sink func(jpeg []byte)) {
	if fps <= 0 {
		fps = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := src.Latest()
		if err != nil || len(frame) == 0 {
			continue
		}
		if len(last) > 0 && &last[0] == &frame[0] && len(last) == len(frame) {
			continue
		}
		last = frame
		sink(frame)
	}
}

// TestJPEG returns a small valid JPEG image, used by mocks and tests.
func TestJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}
