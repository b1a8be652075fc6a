package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// StorageConfig locates the managed media directory and the metadata index.
// The index lives outside the media directory so reconciliation can treat
// every file under MediaDirectory as a recording.
type StorageConfig struct {
	MediaDirectory string `mapstructure:"media_directory" yaml:"media_directory"`
	IndexFile      string `mapstructure:"index_file" yaml:"index_file"`
	TempDirectory  string `mapstructure:"temp_directory" yaml:"temp_directory"`
}

type CaptureConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	Backend    string `mapstructure:"backend" yaml:"backend"` // "malgo", "auto"
	DeviceID   string `mapstructure:"device_id" yaml:"device_id"`
}

type RecordingConfig struct {
	// MinDurationSeconds is the shortest recording Finish will accept.
	// Zero disables the check.
	MinDurationSeconds float64 `mapstructure:"min_duration_seconds" yaml:"min_duration_seconds"`
	DefaultKind        string  `mapstructure:"default_kind" yaml:"default_kind"`
}

type AnalysisConfig struct {
	FFTSize int `mapstructure:"fft_size" yaml:"fft_size"`
	HopSize int `mapstructure:"hop_size" yaml:"hop_size"`
	// ProcessingDelayMS simulates the round-trip of the remote analysis
	// service the UI expects to wait on.
	ProcessingDelayMS int `mapstructure:"processing_delay_ms" yaml:"processing_delay_ms"`
}

type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
}

var defaultConfig = Config{
	Storage: StorageConfig{
		MediaDirectory: filepath.Join(userDataDir(), "respicapture", "recordings"),
		IndexFile:      filepath.Join(userDataDir(), "respicapture", "index.json"),
		TempDirectory:  "",
	},
	Capture: CaptureConfig{
		SampleRate: 44100,
		Channels:   1,
		Backend:    "auto",
	},
	Recording: RecordingConfig{
		MinDurationSeconds: 3,
		DefaultKind:        "breath",
	},
	Analysis: AnalysisConfig{
		FFTSize:           1024,
		HopSize:           512,
		ProcessingDelayMS: 1500,
	},
	Server: ServerConfig{
		ListenAddress: "127.0.0.1:8090",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the config file (if present), applies RESPICAPTURE_* environment
// overrides on top of the defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESPICAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.MediaDirectory = expandPath(cfg.Storage.MediaDirectory)
	cfg.Storage.IndexFile = expandPath(cfg.Storage.IndexFile)
	cfg.Storage.TempDirectory = expandPath(cfg.Storage.TempDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.media_directory", defaultConfig.Storage.MediaDirectory)
	v.SetDefault("storage.index_file", defaultConfig.Storage.IndexFile)
	v.SetDefault("storage.temp_directory", defaultConfig.Storage.TempDirectory)
	v.SetDefault("capture.sample_rate", defaultConfig.Capture.SampleRate)
	v.SetDefault("capture.channels", defaultConfig.Capture.Channels)
	v.SetDefault("capture.backend", defaultConfig.Capture.Backend)
	v.SetDefault("capture.device_id", defaultConfig.Capture.DeviceID)
	v.SetDefault("recording.min_duration_seconds", defaultConfig.Recording.MinDurationSeconds)
	v.SetDefault("recording.default_kind", defaultConfig.Recording.DefaultKind)
	v.SetDefault("analysis.fft_size", defaultConfig.Analysis.FFTSize)
	v.SetDefault("analysis.hop_size", defaultConfig.Analysis.HopSize)
	v.SetDefault("analysis.processing_delay_ms", defaultConfig.Analysis.ProcessingDelayMS)
	v.SetDefault("server.listen_address", defaultConfig.Server.ListenAddress)
}

// Validate checks the configuration for values the core packages would
// reject at runtime.
func (c *Config) Validate() error {
	if c.Storage.MediaDirectory == "" {
		return fmt.Errorf("storage.media_directory is required")
	}
	if c.Storage.IndexFile == "" {
		return fmt.Errorf("storage.index_file is required")
	}
	if filepath.Dir(c.Storage.IndexFile) == filepath.Clean(c.Storage.MediaDirectory) {
		return fmt.Errorf("storage.index_file must not live inside storage.media_directory")
	}

	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be > 0, got: %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels != 1 && c.Capture.Channels != 2 {
		return fmt.Errorf("capture.channels must be 1 or 2, got: %d", c.Capture.Channels)
	}
	switch strings.ToLower(c.Capture.Backend) {
	case "", "auto", "malgo", "sim":
	default:
		return fmt.Errorf("capture.backend must be 'malgo', 'sim' or 'auto', got: %s", c.Capture.Backend)
	}

	if c.Recording.MinDurationSeconds < 0 {
		return fmt.Errorf("recording.min_duration_seconds must be >= 0, got: %.2f", c.Recording.MinDurationSeconds)
	}
	if !isValidKind(c.Recording.DefaultKind) {
		return fmt.Errorf("recording.default_kind must be 'cough', 'breath' or 'stethoscope', got: %s", c.Recording.DefaultKind)
	}

	if !isPowerOfTwo(c.Analysis.FFTSize) {
		return fmt.Errorf("analysis.fft_size must be a power of two, got: %d", c.Analysis.FFTSize)
	}
	if c.Analysis.HopSize <= 0 {
		return fmt.Errorf("analysis.hop_size must be > 0, got: %d", c.Analysis.HopSize)
	}
	if c.Analysis.ProcessingDelayMS < 0 {
		return fmt.Errorf("analysis.processing_delay_ms must be >= 0, got: %d", c.Analysis.ProcessingDelayMS)
	}

	return nil
}

func isValidKind(kind string) bool {
	switch kind {
	case "cough", "breath", "stethoscope":
		return true
	}
	return false
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func userDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}
