package visionapp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	envcfg "github.com/teslashibe/go-visionapp/internal/config"
	"github.com/teslashibe/go-visionapp/pkg/camera"
	"github.com/teslashibe/go-visionapp/pkg/pipeline"
)

// Backend names accepted in the config.
const (
	BackendMock     = "mock"
	BackendWebcam   = "webcam"
	BackendSnapshot = "snapshot"

	BackendONNX   = "onnx"
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	BackendGoogle = "google"

	PlayerCommand = "command"
	PlayerSilent  = "silent"
)

// Config holds all configuration for the vision app.
// Flag parsing is done in cmd/visionapp/main.go; this struct is data only.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Addr is the dashboard listen address. Empty disables the web UI.
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`

	// Console enables the terminal front end.
	Console bool `yaml:"console"`

	Camera     CameraConfig     `yaml:"camera"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Speech     SpeechConfig     `yaml:"speech"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`

	// API keys come from the environment only.
	OpenAIKey    string `yaml:"-"`
	GoogleAPIKey string `yaml:"-"`
}

// CameraConfig selects the capture backend.
type CameraConfig struct {
	Backend     string `yaml:"backend"`      // webcam, snapshot, mock
	Device      string `yaml:"device"`       // webcam index or path
	SnapshotURL string `yaml:"snapshot_url"` // snapshot endpoint
	Preset      string `yaml:"preset"`       // camera.Presets name
	PreviewFPS  int    `yaml:"preview_fps"`  // 0 disables the preview stream
}

// ClassifierConfig lists classifier backends in fallback order.
type ClassifierConfig struct {
	Backends   []string      `yaml:"backends"`
	ModelPath  string        `yaml:"model_path"`
	LabelsPath string        `yaml:"labels_path"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	TopK       int           `yaml:"top_k"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SpeechConfig lists TTS backends in fallback order and picks the player.
type SpeechConfig struct {
	Backends        []string `yaml:"backends"`
	Voice           string   `yaml:"voice"`
	Language        string   `yaml:"language"`
	CredentialsFile string   `yaml:"credentials_file"`
	Player          string   `yaml:"player"`         // command, silent
	PlayerCommand   []string `yaml:"player_command"` // overrides aplay/ffplay
}

// PipelineConfig mirrors pipeline.Config's product switches.
type PipelineConfig struct {
	Threshold      float64       `yaml:"threshold"`
	SortResults    bool          `yaml:"sort_results"`
	ReleaseOnError bool          `yaml:"release_on_error"`
	StageTimeout   time.Duration `yaml:"stage_timeout"`
}

// DefaultConfig returns a config that runs on a local webcam with the
// on-device model and Google voices.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Addr:     ":8080",
		Camera: CameraConfig{
			Backend:    BackendWebcam,
			Device:     "0",
			Preset:     camera.PresetDefault,
			PreviewFPS: 5,
		},
		Classifier: ClassifierConfig{
			Backends:   []string{BackendONNX},
			ModelPath:  "models/squeezenet1.1.onnx",
			LabelsPath: "models/imagenet_labels.txt",
			TopK:       5,
			Timeout:    30 * time.Second,
		},
		Speech: SpeechConfig{
			Backends: []string{BackendGoogle},
			Language: "en-US",
			Player:   PlayerCommand,
		},
		Pipeline: PipelineConfig{
			Threshold: pipeline.DefaultThreshold,
		},
	}
}

// LoadFile overlays a YAML file onto c. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadEnvConfig applies environment overrides. Call it after LoadFile and
// before flags.
func (c *Config) LoadEnvConfig() {
	c.LogLevel = envcfg.String("LOG_LEVEL", c.LogLevel)
	c.Addr = envcfg.String("VISION_ADDR", c.Addr)
	c.StaticDir = envcfg.String("VISION_STATIC_DIR", c.StaticDir)
	c.Console = envcfg.Bool("VISION_CONSOLE", c.Console)

	c.Camera.Backend = envcfg.String("CAMERA_BACKEND", c.Camera.Backend)
	c.Camera.Device = envcfg.String("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.SnapshotURL = envcfg.String("CAMERA_SNAPSHOT_URL", c.Camera.SnapshotURL)
	c.Camera.Preset = envcfg.String("CAMERA_PRESET", c.Camera.Preset)
	c.Camera.PreviewFPS = envcfg.Int("CAMERA_PREVIEW_FPS", c.Camera.PreviewFPS)

	c.Classifier.Backends = envcfg.List("CLASSIFIERS", c.Classifier.Backends)
	c.Classifier.ModelPath = envcfg.String("ONNX_MODEL", c.Classifier.ModelPath)
	c.Classifier.LabelsPath = envcfg.String("ONNX_LABELS", c.Classifier.LabelsPath)
	c.Classifier.Model = envcfg.String("CLASSIFIER_MODEL", c.Classifier.Model)
	c.Classifier.BaseURL = envcfg.String("CLASSIFIER_BASE_URL", c.Classifier.BaseURL)
	c.Classifier.TopK = envcfg.Int("CLASSIFIER_TOP_K", c.Classifier.TopK)
	c.Classifier.Timeout = envcfg.Duration("CLASSIFIER_TIMEOUT", c.Classifier.Timeout)

	c.Speech.Backends = envcfg.List("TTS_PROVIDERS", c.Speech.Backends)
	c.Speech.Voice = envcfg.String("TTS_VOICE", c.Speech.Voice)
	c.Speech.Language = envcfg.String("TTS_LANGUAGE", c.Speech.Language)
	c.Speech.CredentialsFile = envcfg.String("GOOGLE_APPLICATION_CREDENTIALS", c.Speech.CredentialsFile)
	c.Speech.Player = envcfg.String("AUDIO_PLAYER", c.Speech.Player)

	c.Pipeline.Threshold = envcfg.Float("CONFIDENCE_THRESHOLD", c.Pipeline.Threshold)
	c.Pipeline.SortResults = envcfg.Bool("SORT_RESULTS", c.Pipeline.SortResults)
	c.Pipeline.ReleaseOnError = envcfg.Bool("RELEASE_ON_ERROR", c.Pipeline.ReleaseOnError)
	c.Pipeline.StageTimeout = envcfg.Duration("STAGE_TIMEOUT", c.Pipeline.StageTimeout)

	c.OpenAIKey = envcfg.String("OPENAI_API_KEY", c.OpenAIKey)
	c.GoogleAPIKey = envcfg.String("GOOGLE_API_KEY", c.GoogleAPIKey)
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Camera.Backend {
	case BackendWebcam, BackendMock:
	case BackendSnapshot:
		if c.Camera.SnapshotURL == "" {
			return &ConfigError{Field: "Camera.SnapshotURL", Message: "CAMERA_SNAPSHOT_URL is required for the snapshot camera"}
		}
	default:
		return &ConfigError{Field: "Camera.Backend", Message: fmt.Sprintf("unknown camera backend %q", c.Camera.Backend)}
	}
	if c.Camera.Preset != "" && camera.GetPreset(c.Camera.Preset) == nil {
		return &ConfigError{Field: "Camera.Preset", Message: fmt.Sprintf("unknown camera preset %q", c.Camera.Preset)}
	}
	if c.Camera.PreviewFPS < 0 || c.Camera.PreviewFPS > camera.MaxFramerate {
		return &ConfigError{Field: "Camera.PreviewFPS", Message: "preview fps must be between 0 and 60"}
	}

	if len(c.Classifier.Backends) == 0 {
		return &ConfigError{Field: "Classifier.Backends", Message: "at least one classifier is required"}
	}
	for _, b := range c.Classifier.Backends {
		switch b {
		case BackendMock:
		case BackendONNX:
			if c.Classifier.ModelPath == "" {
				return &ConfigError{Field: "Classifier.ModelPath", Message: "ONNX_MODEL is required for the onnx classifier"}
			}
		case BackendGemini:
			if c.GoogleAPIKey == "" {
				return &ConfigError{Field: "GoogleAPIKey", Message: "GOOGLE_API_KEY environment variable is required for the gemini classifier"}
			}
		case BackendOpenAI:
			if c.OpenAIKey == "" && c.Classifier.BaseURL == "" {
				return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for the openai classifier"}
			}
		default:
			return &ConfigError{Field: "Classifier.Backends", Message: fmt.Sprintf("unknown classifier %q", b)}
		}
	}

	if len(c.Speech.Backends) == 0 {
		return &ConfigError{Field: "Speech.Backends", Message: "at least one TTS provider is required"}
	}
	for _, b := range c.Speech.Backends {
		switch b {
		case BackendMock, BackendGoogle:
		case BackendOpenAI:
			if c.OpenAIKey == "" {
				return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required for OpenAI TTS"}
			}
		default:
			return &ConfigError{Field: "Speech.Backends", Message: fmt.Sprintf("unknown TTS provider %q", b)}
		}
	}
	switch c.Speech.Player {
	case PlayerCommand, PlayerSilent:
	default:
		return &ConfigError{Field: "Speech.Player", Message: fmt.Sprintf("unknown audio player %q", c.Speech.Player)}
	}

	if c.Pipeline.Threshold < 0 || c.Pipeline.Threshold > 1 {
		return &ConfigError{Field: "Pipeline.Threshold", Message: "threshold must be between 0.0 and 1.0"}
	}
	if c.Pipeline.StageTimeout < 0 {
		return &ConfigError{Field: "Pipeline.StageTimeout", Message: "stage timeout must not be negative"}
	}
	return nil
}

// CameraSettings resolves the preset into a camera config.
func (c *Config) CameraSettings() camera.Config {
	if p := camera.GetPreset(c.Camera.Preset); p != nil {
		return *p
	}
	return camera.DefaultConfig()
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
