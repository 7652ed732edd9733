package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/teslashibe/go-visionapp/pkg/tts"
)

// CommandPlayer pipes audio into a local player process on stdin.
//
// By default raw PCM and WAV go to aplay and compressed formats to ffplay.
// Set Command to force a specific player; the audio is still written to
// its stdin.
type CommandPlayer struct {
	Command []string

	// Timeout bounds a single playback on top of the audio duration.
	Timeout time.Duration
}

// NewCommandPlayer creates a player that picks aplay or ffplay per format.
func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{Timeout: 10 * time.Second}
}

// Play runs the player and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, audio *tts.AudioResult) error {
	if audio == nil || len(audio.Audio) == 0 {
		return nil
	}

	argv := p.Command
	if len(argv) == 0 {
		argv = PlayerArgs(audio.Format)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, audio.Duration+p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(audio.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// PlayerArgs returns the default player command line for a format.
func PlayerArgs(format tts.AudioFormat) []string {
	switch format.Encoding {
	case tts.EncodingPCM16, tts.EncodingPCM24:
		rate := format.SampleRate
		if rate == 0 {
			rate = tts.SampleRateFromEncoding(format.Encoding)
		}
		channels := format.Channels
		if channels == 0 {
			channels = 1
		}
		return []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE",
			"-r", strconv.Itoa(rate), "-c", strconv.Itoa(channels), "-"}
	case tts.EncodingWAV16, tts.EncodingWAV24:
		return []string{"aplay", "-q", "-"}
	default:
		return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"}
	}
}

// SilentPlayer plays nothing and waits for the estimated audio duration,
// for headless runs and tests.
type SilentPlayer struct {
	// MaxWait caps the wait. Zero means no cap.
	MaxWait time.Duration
}

// Play sleeps for the audio duration or until ctx is done.
func (p SilentPlayer) Play(ctx context.Context, audio *tts.AudioResult) error {
	if audio == nil {
		return nil
	}
	d := audio.Duration
	if p.MaxWait > 0 && d > p.MaxWait {
		d = p.MaxWait
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verify players implement Player at compile time.
var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = SilentPlayer{}
)
