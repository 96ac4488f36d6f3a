// Package config provides configuration loading and structs for the fmrank server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/validation"
	"gopkg.in/yaml.v3"
)

// DefaultTopK is the K used when neither the request nor the config sets one.
const DefaultTopK = 10

// ErrPathOutsideDir is returned when a client-supplied file name resolves outside its configured directory.
var ErrPathOutsideDir = errors.New("path outside allowed directory")

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Predict PredictConfig `yaml:"predict"`
	Storage StorageConfig `yaml:"storage"`
	Trainer TrainerConfig `yaml:"trainer"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// RateLimit is the number of API requests allowed per client IP per minute. 0 disables it.
	RateLimit int `yaml:"rate_limit" validate:"min=0"`
}

// EngineConfig describes the default engine handle created at startup.
type EngineConfig struct {
	Type       string `yaml:"type" validate:"oneof=onnx mock"`
	ModelPath  string `yaml:"model_path"`
	OutputPath string `yaml:"output_path"`
	// ModelDir and OutputDir bound the file names API clients may pass when creating engines.
	// An empty OutputDir disables client-chosen output files.
	ModelDir     string   `yaml:"model_dir"`
	OutputDir    string   `yaml:"output_dir"`
	Quiet        bool     `yaml:"quiet"`
	FeatureCount uint32   `yaml:"feature_count"`
	LibraryPath  string   `yaml:"library_path"`
	InputNames   []string `yaml:"input_names" validate:"omitempty,len=2"`
	OutputName   string   `yaml:"output_name"`
}

// PredictConfig holds request defaults.
type PredictConfig struct {
	// DefaultK is nil when unset; an explicit 0 is kept and yields empty results.
	DefaultK *int `yaml:"default_k,omitempty" validate:"omitempty,min=0"`
	// MaxK rejects requests asking for more results. 0 means no cap.
	MaxK int `yaml:"max_k" validate:"min=0"`
}

// K returns the K applied to requests that do not set one.
func (p PredictConfig) K() int {
	if p.DefaultK == nil {
		return DefaultTopK
	}
	return *p.DefaultK
}

// StorageConfig holds the prediction log settings.
type StorageConfig struct {
	DatabasePath      string `yaml:"database_path"`
	RecordPredictions bool   `yaml:"record_predictions"`
}

// TrainerConfig points at the external training and prediction binaries.
type TrainerConfig struct {
	TrainBinary   string `yaml:"train_binary"`
	PredictBinary string `yaml:"predict_binary"`
	Quiet         bool   `yaml:"quiet"`
}

// WatchConfig controls model hot reload.
type WatchConfig struct {
	Model      bool `yaml:"model"`
	DebounceMs int  `yaml:"debounce_ms" validate:"min=0"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Engine.ModelPath = expandPath(cfg.Engine.ModelPath, configDir)
	cfg.Engine.OutputPath = expandPath(cfg.Engine.OutputPath, configDir)
	cfg.Engine.LibraryPath = expandPath(cfg.Engine.LibraryPath, configDir)
	cfg.Engine.ModelDir = expandPath(cfg.Engine.ModelDir, configDir)
	cfg.Engine.OutputDir = expandPath(cfg.Engine.OutputDir, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Validate checks field ranges after defaults are applied.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// InitOptions converts the engine section into options for the default handle.
func (e EngineConfig) InitOptions() lifecycle.InitOptions {
	return lifecycle.InitOptions{
		Type:         engine.Type(e.Type),
		ModelPath:    e.ModelPath,
		OutputPath:   e.OutputPath,
		Quiet:        e.Quiet,
		FeatureCount: e.FeatureCount,
		LibraryPath:  e.LibraryPath,
		InputNames:   e.InputNames,
		OutputName:   e.OutputName,
	}
}

// ResolveModel maps a client-supplied model file name to a path inside ModelDir.
func (e EngineConfig) ResolveModel(name string) (string, error) {
	return resolveWithin(e.ModelDir, name)
}

// ResolveOutput maps a client-supplied output file name to a path inside OutputDir.
func (e EngineConfig) ResolveOutput(name string) (string, error) {
	return resolveWithin(e.OutputDir, name)
}

// resolveWithin joins a relative name onto dir and rejects anything that escapes it.
func resolveWithin(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: no directory configured for %q", ErrPathOutsideDir, name)
	}
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q must be a relative file name", ErrPathOutsideDir, name)
	}
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideDir, name)
	}
	return path, nil
}
