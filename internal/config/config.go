// Package config loads rmsctl configuration from JSON-with-comments files
// and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"
)

// Errors returned while loading configuration.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrStoreDirEmpty      = errors.New("store_dir cannot be empty")
	ErrAppIncomplete      = errors.New("vendor and suite must both be set")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	StoreDir        string `json:"store_dir"`
	Vendor          string `json:"vendor"`
	Suite           string `json:"suite"`
	HeaderCacheSize int    `json:"header_cache_size,omitempty"`
	QuotaBytes      int64  `json:"quota_bytes,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string        `json:"-"`
	StoreDirAbs  string        `json:"-"`
	Level        zerolog.Level `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// FileName is the project config file name.
const FileName = ".rms.json"

// Default returns the default configuration.
func Default() Config {
	return Config{
		StoreDir: ".rms",
		Vendor:   "local",
		Suite:    "default",
		LogLevel: "warn",
	}
}

// Overrides are values taken from command-line flags. Empty fields do
// not override.
type Overrides struct {
	StoreDir string
	Vendor   string
	Suite    string
	LogLevel string
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath string            // -c/--config flag value
	Overrides  Overrides         // flag overrides
	Env        map[string]string // environment variables
}

// globalPath returns $XDG_CONFIG_HOME/rms/config.json if set, otherwise
// ~/.config/rms/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "rms", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "rms", "config.json")
	}

	return ""
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.rms.json in the working directory, if present)
// 4. Explicit config file via ConfigPath (replaces 3, must exist)
// 5. Flag overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		fileCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, fileCfg)
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	fileCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, fileCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, Config{
		StoreDir: input.Overrides.StoreDir,
		Vendor:   input.Overrides.Vendor,
		Suite:    input.Overrides.Suite,
		LogLevel: input.Overrides.LogLevel,
	})

	err = validate(&cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.StoreDirAbs = cfg.StoreDir
	if !filepath.IsAbs(cfg.StoreDirAbs) {
		cfg.StoreDirAbs = filepath.Join(workDir, cfg.StoreDir)
	}

	return cfg, nil
}

// loadFile reads one config file. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist && errors.Is(err, os.ErrNotExist) {
			return Config{}, false, nil
		}

		if errors.Is(err, os.ErrNotExist) {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC config document. A store_dir explicitly set to ""
// is rejected rather than silently falling back to the default.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if v, ok := raw["store_dir"].(string); ok && v == "" {
		return Config{}, ErrStoreDirEmpty
	}

	return cfg, nil
}

// Format renders cfg as the JSON document Parse accepts.
func Format(cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return append(data, '\n'), nil
}

func merge(base, overlay Config) Config {
	if overlay.StoreDir != "" {
		base.StoreDir = overlay.StoreDir
	}

	if overlay.Vendor != "" {
		base.Vendor = overlay.Vendor
	}

	if overlay.Suite != "" {
		base.Suite = overlay.Suite
	}

	if overlay.HeaderCacheSize != 0 {
		base.HeaderCacheSize = overlay.HeaderCacheSize
	}

	if overlay.QuotaBytes != 0 {
		base.QuotaBytes = overlay.QuotaBytes
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

func validate(cfg *Config) error {
	if cfg.StoreDir == "" {
		return ErrStoreDirEmpty
	}

	if cfg.Vendor == "" || cfg.Suite == "" {
		return ErrAppIncomplete
	}

	if cfg.HeaderCacheSize < 0 {
		return fmt.Errorf("%w: header_cache_size %d is negative", ErrConfigInvalid, cfg.HeaderCacheSize)
	}

	if cfg.QuotaBytes < 0 {
		return fmt.Errorf("%w: quota_bytes %d is negative", ErrConfigInvalid, cfg.QuotaBytes)
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrConfigInvalid, err)
	}

	cfg.Level = lvl

	return nil
}
