// Package tts provides a unified interface for text-to-speech providers.
//
// Providers include OpenAI (built-in voices over REST) and Google Cloud
// Text-to-Speech. All implement Provider, so a Chain can fall back from one
// to the other without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewGoogle(ctx,
//	    tts.WithLanguage("en-US"),
//	    tts.WithOutputFormat(tts.EncodingWAV24),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "This looks like a cup")
//	// result.Audio holds a complete WAV or MP3 file
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated audio playback duration.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int // 1 mono, 2 stereo
	BitDepth   int // PCM only
}

// Encoding represents audio container/codec types understood by players.
type Encoding string

const (
	// Raw little-endian PCM16, no header
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000"

	// PCM16 with a RIFF/WAV header
	EncodingWAV16 Encoding = "wav_16000"
	EncodingWAV24 Encoding = "wav_24000"

	// Compressed
	EncodingMP3 Encoding = "mp3_44100_128"
	EncodingOGG Encoding = "ogg_opus"
)

// IsPCM reports whether audio in this encoding has no container header.
func (e Encoding) IsPCM() bool {
	return e == EncodingPCM16 || e == EncodingPCM24
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16, EncodingWAV16:
		return 16000
	case EncodingPCM24, EncodingWAV24:
		return 24000
	case EncodingMP3:
		return 44100
	case EncodingOGG:
		return 48000
	default:
		return 24000
	}
}

// EstimateDuration guesses playback time for audio. PCM/WAV durations are
// exact; compressed formats fall back to a speaking-rate estimate from text.
func EstimateDuration(format AudioFormat, audioBytes, chars int) time.Duration {
	switch format.Encoding {
	case EncodingPCM16, EncodingPCM24, EncodingWAV16, EncodingWAV24:
		rate := format.SampleRate
		if rate == 0 {
			rate = SampleRateFromEncoding(format.Encoding)
		}
		channels := format.Channels
		if channels == 0 {
			channels = 1
		}
		payload := audioBytes
		if !format.Encoding.IsPCM() && payload > wavHeaderSize {
			payload -= wavHeaderSize
		}
		bytesPerSecond := rate * channels * 2
		return time.Duration(payload) * time.Second / time.Duration(bytesPerSecond)
	default:
		// ~15 characters per second of natural speech
		return time.Duration(chars) * time.Second / 15
	}
}

const wavHeaderSize = 44
