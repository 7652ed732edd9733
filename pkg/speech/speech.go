// Package speech speaks text aloud: a tts.Provider renders the audio and a
// Player plays it. Speak returns once playback has finished.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-visionapp/pkg/tts"
)

// ErrEmptyText is returned when there is nothing to say.
var ErrEmptyText = errors.New("speech: empty text")

// Player plays a complete audio buffer and returns when it has finished.
type Player interface {
	Play(ctx context.Context, audio *tts.AudioResult) error
}

// Speaker combines a TTS provider with a player. Utterances are serialized.
type Speaker struct {
	provider tts.Provider
	player   Player
	logger   *slog.Logger

	mu       sync.Mutex
	speaking atomic.Bool

	// OnStart and OnEnd are called around playback when set.
	OnStart func(text string)
	OnEnd   func(text string)
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// New creates a speaker.
func New(provider tts.Provider, player Player, opts ...Option) *Speaker {
	s := &Speaker{
		provider: provider,
		player:   player,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speech.speaker")
	return s
}

// Speak synthesizes text and blocks until it has been played.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	audio, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	s.speaking.Store(true)
	if s.OnStart != nil {
		s.OnStart(text)
	}
	err = s.player.Play(ctx, audio)
	s.speaking.Store(false)
	if s.OnEnd != nil {
		s.OnEnd(text)
	}
	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	s.logger.Debug("spoke",
		"chars", len(text),
		"audio_ms", audio.Duration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Speaking reports whether audio is currently playing.
func (s *Speaker) Speaking() bool {
	return s.speaking.Load()
}

// Health checks the TTS provider.
func (s *Speaker) Health(ctx context.Context) error {
	return s.provider.Health(ctx)
}

// Close closes the TTS provider.
func (s *Speaker) Close() error {
	return s.provider.Close()
}
