// Package configuration loads the runtime settings from env-style files,
// overlaid with the process environment.
package configuration

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

const (
	KeyFDInitial    = "POSIXRT_FD_INITIAL"
	KeyFDChunk      = "POSIXRT_FD_CHUNK"
	KeyFDMax        = "POSIXRT_FD_MAX"
	KeyStreamBuffer = "POSIXRT_STREAM_BUFFER"
	KeyNameMax      = "POSIXRT_NAME_MAX"
	KeyLogLevel     = "POSIXRT_LOG_LEVEL"
)

var keys = []string{KeyFDInitial, KeyFDChunk, KeyFDMax, KeyStreamBuffer, KeyNameMax, KeyLogLevel}

// Config holds the runtime settings.
type Config struct {
	FDInitial    int        `yaml:"fd_initial"`
	FDChunk      int        `yaml:"fd_chunk"`
	FDMax        int        `yaml:"fd_max"`
	StreamBuffer int        `yaml:"stream_buffer"`
	NameMax      int        `yaml:"name_max"`
	LogLevel     slog.Level `yaml:"log_level"`
}

// Defaults returns a pointer to a new [Config] with the default settings.
func Defaults() *Config {
	return &Config{
		FDInitial:    20,
		FDChunk:      20,
		FDMax:        1 << 16,
		StreamBuffer: 8 * 1024,
		NameMax:      255,
		LogLevel:     slog.LevelInfo,
	}
}

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// ConfigProviderImpl reads configuration files and converts their values.
type ConfigProviderImpl struct {
	GenericConfigReader genericConfigProvider
	LookupEnv           func(key string) (string, bool)
}

// NewConfigProvider returns a pointer to a new [ConfigProviderImpl] reading
// files from fsys and overlaying the process environment.
func NewConfigProvider(fsys afero.Fs) *ConfigProviderImpl {
	return &ConfigProviderImpl{
		GenericConfigReader: &GodotenvProvider{FS: fsys},
		LookupEnv:           os.LookupEnv,
	}
}

func (c *ConfigProviderImpl) ReadGeneric(filenames ...string) (envMap map[string]string, err error) {
	return c.GenericConfigReader.Read(filenames...)
}

func (c *ConfigProviderImpl) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return strings.TrimSpace(value)
	}

	return ""
}

// MapKeyToInt converts the value of key, keeping def when it is unset.
func (c *ConfigProviderImpl) MapKeyToInt(envMap map[string]string, key string, def int) (int, error) {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return def, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, value)
	}

	return intValue, nil
}

// MapKeyToBytes converts a human readable size ("8 KiB", "64k", "4096"),
// keeping def when it is unset.
func (c *ConfigProviderImpl) MapKeyToBytes(envMap map[string]string, key string, def int) (int, error) {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return def, nil
	}

	size, err := humanize.ParseBytes(value)
	if err != nil || size > 1<<30 {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, value)
	}

	return int(size), nil
}

// Load reads the given files, overlays the environment and returns the
// resulting settings. Without files only the environment is consulted.
func (c *ConfigProviderImpl) Load(filenames ...string) (*Config, error) {
	envMap, err := c.ReadGeneric(filenames...)
	if err != nil {
		return nil, fmt.Errorf("(config-load) %w", err)
	}

	if c.LookupEnv != nil {
		for _, key := range keys {
			if value, ok := c.LookupEnv(key); ok {
				envMap[key] = value
			}
		}
	}

	cfg := Defaults()

	for _, field := range []struct {
		key string
		dst *int
	}{
		{KeyFDInitial, &cfg.FDInitial},
		{KeyFDChunk, &cfg.FDChunk},
		{KeyFDMax, &cfg.FDMax},
		{KeyNameMax, &cfg.NameMax},
	} {
		if *field.dst, err = c.MapKeyToInt(envMap, field.key, *field.dst); err != nil {
			return nil, fmt.Errorf("(config-load) %w", err)
		}
	}

	if cfg.StreamBuffer, err = c.MapKeyToBytes(envMap, KeyStreamBuffer, cfg.StreamBuffer); err != nil {
		return nil, fmt.Errorf("(config-load) %w", err)
	}

	if level := c.MapKeyToString(envMap, KeyLogLevel); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("(config-load) %w: %s=%q", ErrInvalidConfig, KeyLogLevel, level)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("(config-load) %w", err)
	}

	return cfg, nil
}

// Validate checks that the settings are usable.
func (cfg *Config) Validate() error {
	switch {
	case cfg.FDInitial < 3:
		return fmt.Errorf("%w: %s must hold the standard descriptors", ErrInvalidConfig, KeyFDInitial)
	case cfg.FDChunk <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyFDChunk)
	case cfg.FDMax < cfg.FDInitial:
		return fmt.Errorf("%w: %s is below %s", ErrInvalidConfig, KeyFDMax, KeyFDInitial)
	case cfg.NameMax <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyNameMax)
	}

	return nil
}
