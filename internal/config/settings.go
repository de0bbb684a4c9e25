package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/resolver"
)

// Settings are the parts of the config file applied again on reload.
type Settings struct {
	Logging logging.Config
	Capture CaptureSettings
}

// CaptureSettings is the [capture] table.
type CaptureSettings struct {
	Codec         string `toml:"codec"`
	Framerate     int    `toml:"framerate"`
	CaptureCursor bool   `toml:"capture_cursor"`
	AllowAdvanced bool   `toml:"allow_advanced"`
	DestDir       string `toml:"dest_dir"`
	SaveDir       string `toml:"save_dir"`
	Prefix        string `toml:"prefix"`
}

// Defaults converts the table into recorder defaults.
func (c CaptureSettings) Defaults() (recorder.Defaults, error) {
	d := recorder.Defaults{
		Codec:         capture.CodecVP8,
		Framerate:     c.Framerate,
		CaptureCursor: c.CaptureCursor,
		AllowAdvanced: c.AllowAdvanced,
		DestDir:       c.DestDir,
		SaveDir:       c.SaveDir,
		Prefix:        c.Prefix,
	}
	if c.Codec != "" {
		id, err := capture.ParseCodec(c.Codec)
		if err != nil {
			return recorder.Defaults{}, err
		}
		d.Codec = id
	}
	if d.Framerate <= 0 {
		d.Framerate = resolver.DefaultFramerate
	}
	return d, nil
}

// LoadSettings reads the reloadable settings from path.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var raw struct {
		Logging map[string]any  `toml:"logging"`
		Capture CaptureSettings `toml:"capture"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return Settings{
		Logging: loggingFromTable(raw.Logging),
		Capture: raw.Capture,
	}, nil
}

// LoadLoggingConfig loads logging configuration from a TOML config file.
// Returns default config if file doesn't exist or can't be parsed.
func LoadLoggingConfig(path string) logging.Config {
	if path == "" {
		return loggingFromTable(nil)
	}
	s, err := LoadSettings(path)
	if err != nil {
		return loggingFromTable(nil)
	}
	return s.Logging
}

// loggingFromTable splits [logging] into the global level and format and
// per-module levels. Non-string values are ignored.
func loggingFromTable(table map[string]any) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	for key, value := range table {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
