package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Text-to-Speech.
//
// Credentials are resolved in order: API key, service account file,
// application default credentials.
type Google struct {
	config *Config
	client *texttospeech.Client
	logger *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider. The gRPC connection is
// established lazily on the first call.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = "en-US-Neural2-F"
	cfg.Apply(opts...)

	if _, _, err := googleEncoding(cfg.OutputFormat); err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	clientOpts, err := googleClientOptions(ctx, cfg)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create client: %w", err))
	}

	return &Google{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

func googleClientOptions(ctx context.Context, cfg *Config) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, texttospeech.DefaultAuthScopes()...)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	default:
		creds, err := google.FindDefaultCredentials(ctx, texttospeech.DefaultAuthScopes()...)
		if err != nil {
			return nil, fmt.Errorf("%w: no API key, credentials file or default credentials: %v", ErrNoAPIKey, err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	}
	return opts, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	req, err := g.buildRequest(text)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("synthesize: %w", err))
	}

	audio := resp.GetAudioContent()
	if g.config.OutputFormat.IsPCM() && len(audio) > wavHeaderSize {
		// LINEAR16 responses carry a WAV header
		audio = audio[wavHeaderSize:]
	}
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrNoAudio)
	}

	latency := time.Since(start).Milliseconds()
	af := g.outputFormat()

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", g.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    af,
		Duration:  EstimateDuration(af, len(audio), len(text)),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (g *Google) buildRequest(text string) (*texttospeechpb.SynthesizeSpeechRequest, error) {
	enc, rate, err := googleEncoding(g.config.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   enc,
			SampleRateHertz: rate,
			SpeakingRate:    g.config.SpeakingRate,
		},
	}, nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{
		LanguageCode: g.config.LanguageCode,
	})
	if err != nil {
		return WrapError(providerGoogle, fmt.Errorf("health check: %w", err))
	}
	if len(resp.GetVoices()) == 0 {
		return WrapError(providerGoogle, fmt.Errorf("no voices for %s", g.config.LanguageCode))
	}
	return nil
}

// Close closes the gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

func (g *Google) outputFormat() AudioFormat {
	enc := g.config.OutputFormat
	af := AudioFormat{Encoding: enc, Channels: 1, SampleRate: SampleRateFromEncoding(enc)}
	if enc != EncodingMP3 && enc != EncodingOGG {
		af.BitDepth = 16
	}
	return af
}

// googleEncoding maps an Encoding to the API's encoding and sample rate.
func googleEncoding(enc Encoding) (texttospeechpb.AudioEncoding, int32, error) {
	switch enc {
	case EncodingPCM16, EncodingWAV16:
		return texttospeechpb.AudioEncoding_LINEAR16, 16000, nil
	case EncodingPCM24, EncodingWAV24:
		return texttospeechpb.AudioEncoding_LINEAR16, 24000, nil
	case EncodingMP3:
		return texttospeechpb.AudioEncoding_MP3, 0, nil
	case EncodingOGG:
		return texttospeechpb.AudioEncoding_OGG_OPUS, 0, nil
	}
	return texttospeechpb.AudioEncoding_AUDIO_ENCODING_UNSPECIFIED, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, enc)
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
