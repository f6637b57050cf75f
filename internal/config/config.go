// Package config loads the per-environment kiosk configuration.
//
// Files live at configs/config.<env>.json, where env comes from APP_ENV and
// defaults to "target". JSON files may carry comments and trailing commas;
// a .yaml or .yml file with the same keys is accepted as well.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// EnvVar selects which configuration file is loaded.
	EnvVar = "APP_ENV"
	// DefaultEnv is used when EnvVar is unset.
	DefaultEnv = "target"
	// DefaultDir is the directory searched by PathForEnv.
	DefaultDir = "configs"

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// ErrInvalidConfig is wrapped by every load or validation failure caused by
// the file's contents rather than by I/O.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment names the deployment flavour.
type Environment string

const (
	EnvLocal  Environment = "local"
	EnvTarget Environment = "target"
)

// SerialConfig selects and parameterises the serial backend.
type SerialConfig struct {
	UseMock       bool   `json:"useMock" yaml:"useMock"`
	MockInputFile string `json:"mockInputFile" yaml:"mockInputFile"`
	// MockInterval is the playback period in milliseconds.
	MockInterval int    `json:"mockInterval" yaml:"mockInterval"`
	WorkerPath   string `json:"workerPath" yaml:"workerPath"`
	// PortPath and BaudRate fall back to the settings store when empty.
	PortPath string `json:"portPath" yaml:"portPath"`
	BaudRate int    `json:"baudRate" yaml:"baudRate"`
}

// MockPeriod returns MockInterval as a duration.
func (s SerialConfig) MockPeriod() time.Duration {
	return time.Duration(s.MockInterval) * time.Millisecond
}

// WifiConfig toggles the Wi-Fi page in the selector UI.
type WifiConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Config is the root configuration document.
type Config struct {
	Environment         Environment  `json:"environment" yaml:"environment"`
	Serial              SerialConfig `json:"serial" yaml:"serial"`
	Wifi                WifiConfig   `json:"wifi" yaml:"wifi"`
	UseOnScreenKeyboard bool         `json:"useOnScreenKeyboard" yaml:"useOnScreenKeyboard"`
}

// PathForEnv returns dir/config.<env>.json, reading env from APP_ENV when
// env is empty.
func PathForEnv(dir, env string) string {
	if env == "" {
		env = os.Getenv(EnvVar)
	}
	if env == "" {
		env = DefaultEnv
	}
	return filepath.Join(dir, "config."+env+".json")
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".jsonc", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: config file must be .json or .yaml, got %q", ErrInvalidConfig, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("configuration file not found: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalidConfig, fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. ext selects the format.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = EnvTarget
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no backend could use.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal, EnvTarget:
	default:
		return fmt.Errorf("%w: environment must be %q or %q, got %q", ErrInvalidConfig, EnvLocal, EnvTarget, c.Environment)
	}

	s := c.Serial
	if s.BaudRate < 0 {
		return fmt.Errorf("%w: serial.baudRate must be positive, got %d", ErrInvalidConfig, s.BaudRate)
	}
	if s.UseMock {
		if s.MockInputFile == "" {
			return fmt.Errorf("%w: serial.mockInputFile is required when serial.useMock is set", ErrInvalidConfig)
		}
		if s.MockInterval <= 0 {
			return fmt.Errorf("%w: serial.mockInterval must be positive, got %d", ErrInvalidConfig, s.MockInterval)
		}
	} else if s.WorkerPath == "" {
		return fmt.Errorf("%w: serial.workerPath is required unless serial.useMock is set", ErrInvalidConfig)
	}
	return nil
}
