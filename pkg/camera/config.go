package camera

// Config holds the capture session parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Preview FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// === Flash ===
	// Webcams have no strobe, so a flash capture raises brightness and
	// exposure for the duration of one grab and restores them afterwards.

	// FlashBrightness is added to the device brightness (0.0 to 1.0).
	FlashBrightness float64 `json:"flash_brightness"`

	// FlashExposure is EV compensation applied for flash captures (0 to +2.0).
	FlashExposure float64 `json:"flash_exposure"`

	// WarmupFrames are discarded after changing settings so the sensor
	// settles before the still is taken.
	WarmupFrames int `json:"warmup_frames"`
}

// Limits for validation.
const (
	MaxWidth        = 4096
	MaxHeight       = 2160
	MaxFramerate    = 60
	MaxFlashEV      = 2.0
	MaxWarmupFrames = 30
)

// DefaultConfig returns the 1080p capture configuration.
func DefaultConfig() Config {
	return Config{
		Width:     1920,
		Height:    1080,
		Framerate: 15,
		Quality:   85,

		FlashBrightness: 0.3,
		FlashExposure:   1.0,
		WarmupFrames:    3,
	}
}

// LegacyConfig returns a 640x480 configuration for older webcams.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.FlashBrightness < 0 || c.FlashBrightness > 1.0 {
		errors = append(errors, "flash_brightness must be between 0.0 and 1.0")
	}
	if c.FlashExposure < 0 || c.FlashExposure > MaxFlashEV {
		errors = append(errors, "flash_exposure must be between 0.0 and 2.0")
	}
	if c.WarmupFrames < 0 || c.WarmupFrames > MaxWarmupFrames {
		errors = append(errors, "warmup_frames must be between 0 and 30")
	}

	return errors
}

// Capabilities describes the accepted ranges for the camera API.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"max_flash_ev":  MaxFlashEV,
		"max_warmup":    MaxWarmupFrames,
		"flash_modes":   []string{"off", "on"},
		"presets":       PresetNames(),
	}
}
