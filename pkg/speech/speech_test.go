package speech_test

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"github.com/teslashibe/go-visionapp/pkg/speech"
	"github.com/teslashibe/go-visionapp/pkg/tts"
)

type recordingPlayer struct {
	played []*tts.AudioResult
	err    error
}

func (p *recordingPlayer) Play(ctx context.Context, audio *tts.AudioResult) error {
	p.played = append(p.played, audio)
	return p.err
}

func TestSpeak(t *testing.T) {
	ctx := context.Background()

	t.Run("synthesizes then plays", func(t *testing.T) {
		provider := tts.NewMock()
		player := &recordingPlayer{}
		s := speech.New(provider, player)

		var started, ended string
		s.OnStart = func(text string) { started = text }
		s.OnEnd = func(text string) { ended = text }

		if err := s.Speak(ctx, "This looks like a cup"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if provider.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 synthesize call")
		}
		if len(player.played) != 1 {
			t.Fatalf("expected 1 playback, got %d", len(player.played))
		}
		if started != "This looks like a cup" || ended != started {
			t.Errorf("callbacks not invoked: %q %q", started, ended)
		}
		if s.Speaking() {
			t.Error("should not be speaking after Speak returns")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		s := speech.New(tts.NewMock(), &recordingPlayer{})
		if err := s.Speak(ctx, "  "); !errors.Is(err, speech.ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})

	t.Run("synthesis failure skips playback", func(t *testing.T) {
		boom := errors.New("boom")
		player := &recordingPlayer{}
		s := speech.New(tts.WithError(boom), player)

		err := s.Speak(ctx, "hello")
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped provider error, got %v", err)
		}
		if len(player.played) != 0 {
			t.Error("expected no playback")
		}
	})

	t.Run("playback failure", func(t *testing.T) {
		boom := errors.New("no device")
		s := speech.New(tts.NewMock(), &recordingPlayer{err: boom})
		if err := s.Speak(ctx, "hello"); !errors.Is(err, boom) {
			t.Errorf("expected wrapped player error, got %v", err)
		}
	})
}

func TestSilentPlayer(t *testing.T) {
	audio := &tts.AudioResult{Duration: 30 * time.Millisecond}

	start := time.Now()
	if err := (speech.SilentPlayer{}).Play(context.Background(), audio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected to wait the audio duration, waited %v", elapsed)
	}

	start = time.Now()
	capped := speech.SilentPlayer{MaxWait: time.Millisecond}
	_ = capped.Play(context.Background(), &tts.AudioResult{Duration: time.Hour})
	if time.Since(start) > time.Second {
		t.Error("expected MaxWait to cap the wait")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (speech.SilentPlayer{}).Play(ctx, &tts.AudioResult{Duration: time.Hour}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPlayerArgs(t *testing.T) {
	tests := []struct {
		name   string
		format tts.AudioFormat
		want   []string
	}{
		{
			name:   "raw pcm",
			format: tts.AudioFormat{Encoding: tts.EncodingPCM24, SampleRate: 24000, Channels: 1},
			want:   []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", "24000", "-c", "1", "-"},
		},
		{
			name:   "wav",
			format: tts.AudioFormat{Encoding: tts.EncodingWAV16},
			want:   []string{"aplay", "-q", "-"},
		},
		{
			name:   "mp3",
			format: tts.AudioFormat{Encoding: tts.EncodingMP3},
			want:   []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := speech.PlayerArgs(tt.format); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCommandPlayer(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	audio := &tts.AudioResult{Audio: []byte("pcm"), Format: tts.AudioFormat{Encoding: tts.EncodingPCM24}}

	p := speech.NewCommandPlayer()
	p.Command = []string{"cat"}
	if err := p.Play(context.Background(), audio); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := exec.LookPath("false"); err == nil {
		p.Command = []string{"false"}
		if err := p.Play(context.Background(), audio); err == nil {
			t.Error("expected error from failing player")
		}
	}
}
