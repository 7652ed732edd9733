package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetNight   = "night"
	PresetBright  = "bright"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   DefaultConfig(),
		PresetNight:   NightConfig(),
		PresetBright:  BrightConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
		Preset1080p,
		PresetNight,
		PresetBright,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p, cheaper to classify on small machines.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// NightConfig pushes the flash emulation harder and gives the sensor more
// frames to settle.
func NightConfig() Config {
	cfg := HD720Config()
	cfg.Framerate = 10
	cfg.FlashBrightness = 0.6
	cfg.FlashExposure = 2.0
	cfg.WarmupFrames = 6
	return cfg
}

// BrightConfig keeps flash captures from blowing out highlights.
func BrightConfig() Config {
	cfg := DefaultConfig()
	cfg.FlashBrightness = 0.1
	cfg.FlashExposure = 0.5
	return cfg
}
