package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General  GeneralSettings  `json:"general" yaml:"general"`
	Network  NetworkSettings  `json:"network" yaml:"network"`
	Transfer TransferSettings `json:"transfer" yaml:"transfer"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir" yaml:"default_download_dir"`
	OverwriteExisting  bool   `json:"overwrite_existing" yaml:"overwrite_existing"`
	DebugLogPath       string `json:"debug_log_path" yaml:"debug_log_path"`
}

// NetworkSettings contains network connection parameters.
type NetworkSettings struct {
	UserAgent           string `json:"user_agent" yaml:"user_agent"`
	ProxyURL            string `json:"proxy_url" yaml:"proxy_url" validate:"omitempty,url"`
	SkipTLSVerification bool   `json:"skip_tls_verification" yaml:"skip_tls_verification"`
}

// TransferSettings contains streaming and progress parameters.
type TransferSettings struct {
	ReadBufferSize      int           `json:"read_buffer_size" yaml:"read_buffer_size" validate:"gte=0,lte=67108864"`
	SpeedSampleInterval time.Duration `json:"speed_sample_interval" yaml:"speed_sample_interval" validate:"gte=0"`
	SpeedWindowSize     int           `json:"speed_window_size" yaml:"speed_window_size" validate:"gte=0,lte=1000"`
	CheckDiskSpace      bool          `json:"check_disk_space" yaml:"check_disk_space"`
}

const (
	KB = 1024
	MB = 1024 * KB
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
		},
		Network: NetworkSettings{
			UserAgent: "", // Empty means use default UA
		},
		Transfer: TransferSettings{
			ReadBufferSize:      32 * KB,
			SpeedSampleInterval: time.Second,
			SpeedWindowSize:     10,
			CheckDiskSpace:      true,
		},
	}
}

// Validate checks field constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// GetConfigDir returns the directory holding trickle's configuration.
func GetConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".trickle"
	}
	return filepath.Join(dir, "trickle")
}

// GetSettingsPath returns the path to the default settings file.
func GetSettingsPath() string {
	return filepath.Join(GetConfigDir(), "settings.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadSettings loads settings from path, JSON or YAML by extension.
// Returns defaults if the file doesn't exist.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if isYAML(path) {
		err = yaml.Unmarshal(data, settings)
	} else {
		err = json.Unmarshal(data, settings)
	}
	if err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(path string, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// RuntimeConfig is the subset of Settings the download engine consumes.
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	ReadBufferSize      int
	SpeedSampleInterval time.Duration
	SpeedWindowSize     int
	CheckDiskSpace      bool
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		UserAgent:           s.Network.UserAgent,
		ProxyURL:            s.Network.ProxyURL,
		SkipTLSVerification: s.Network.SkipTLSVerification,
		ReadBufferSize:      s.Transfer.ReadBufferSize,
		SpeedSampleInterval: s.Transfer.SpeedSampleInterval,
		SpeedWindowSize:     s.Transfer.SpeedWindowSize,
		CheckDiskSpace:      s.Transfer.CheckDiskSpace,
	}
}
