// Package config resolves the run-time knobs via a priority cascade:
// defaults < global config file < project config file < environment
// variables < CLI flags. The on-disk format is YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-valued run-time knob.
type Config struct {
	ImageUploadTimeoutMs int  `yaml:"image_upload_timeout_ms"`
	DraftSaveTimeoutMs   int  `yaml:"draft_save_timeout_ms"`
	DraftClickTimeoutMs  int  `yaml:"draft_click_timeout_ms"`
	DraftVerifyTimeoutMs int  `yaml:"draft_verify_timeout_ms"`
	StageHardTimeoutMs   int  `yaml:"stage_hard_timeout_ms"`
	StrictQuoteEscape    bool `yaml:"strict_quote_escape"`
	MaxImageAttempts     int  `yaml:"max_image_attempts"`
	ReloadEditorReady    bool `yaml:"reload_editor_ready"`
	// StrictImages fails the whole run when the image phase comes back
	// partial or none, instead of saving a text-only draft.
	StrictImages bool `yaml:"strict_images"`
	// SimulateImageUploadFailure, when non-empty, forces the Image Uploader
	// to fail every attempt with the named reason. Test-only escape hatch.
	SimulateImageUploadFailure string `yaml:"simulate_image_upload_failure"`
	// MaxIdempotencyLockAgeMs is the TTL after which a stale lock file is
	// reclaimed.
	MaxIdempotencyLockAgeMs int `yaml:"max_idempotency_lock_age_ms"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		ImageUploadTimeoutMs:    20_000,
		DraftSaveTimeoutMs:      30_000,
		DraftClickTimeoutMs:     45_000,
		DraftVerifyTimeoutMs:    45_000,
		StageHardTimeoutMs:      30_000,
		StrictQuoteEscape:       true,
		MaxImageAttempts:        3,
		ReloadEditorReady:       false,
		MaxIdempotencyLockAgeMs: int(30 * time.Minute / time.Millisecond),
	}
}

// InsertBlocksBudget computes clamp(30, 20 + 12*textBlocks +
// max(35, imageTimeoutSec+20)*imageBlocks, 600) seconds: the hard
// budget for the whole block-insertion stage.
func (c Config) InsertBlocksBudget(textBlocks, imageBlocks int) time.Duration {
	imageTimeoutSec := c.ImageUploadTimeoutMs / 1000
	perImage := imageTimeoutSec + 20
	if perImage < 35 {
		perImage = 35
	}
	seconds := 20 + 12*textBlocks + perImage*imageBlocks
	if seconds < 30 {
		seconds = 30
	}
	if seconds > 600 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}

// FlagOverrides holds values explicitly set via CLI flags. A nil pointer
// means the flag was not set, so lower-priority values are kept.
type FlagOverrides struct {
	ImageUploadTimeoutMs *int
	DraftSaveTimeoutMs   *int
	StrictQuoteEscape    *bool
	MaxImageAttempts     *int
	ReloadEditorReady    *bool
	StrictImages         *bool
}

// fileConfig mirrors Config but with pointer fields, so "absent from file"
// is distinguishable from "explicitly zero".
type fileConfig struct {
	ImageUploadTimeoutMs       *int    `yaml:"image_upload_timeout_ms"`
	DraftSaveTimeoutMs         *int    `yaml:"draft_save_timeout_ms"`
	DraftClickTimeoutMs        *int    `yaml:"draft_click_timeout_ms"`
	DraftVerifyTimeoutMs       *int    `yaml:"draft_verify_timeout_ms"`
	StageHardTimeoutMs         *int    `yaml:"stage_hard_timeout_ms"`
	StrictQuoteEscape          *bool   `yaml:"strict_quote_escape"`
	MaxImageAttempts           *int    `yaml:"max_image_attempts"`
	ReloadEditorReady          *bool   `yaml:"reload_editor_ready"`
	StrictImages               *bool   `yaml:"strict_images"`
	SimulateImageUploadFailure *string `yaml:"simulate_image_upload_failure"`
	MaxIdempotencyLockAgeMs    *int    `yaml:"max_idempotency_lock_age_ms"`
}

// Load builds the final configuration: defaults < global
// (~/.naverpost-agent/config.yaml) < project (.naverpost-agent.yaml in
// projectDir) < environment variables < flags.
func Load(projectDir string, flags *FlagOverrides) (Config, error) {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		_ = loadYAMLFile(&cfg, filepath.Join(home, ".naverpost-agent", "config.yaml"))
	}

	if err := loadYAMLFile(&cfg, filepath.Join(projectDir, ".naverpost-agent.yaml")); err != nil {
		return cfg, fmt.Errorf("project config: %w", err)
	}

	loadEnvVars(&cfg)

	if flags != nil {
		applyFlags(&cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.ImageUploadTimeoutMs != nil {
		cfg.ImageUploadTimeoutMs = *fc.ImageUploadTimeoutMs
	}
	if fc.DraftSaveTimeoutMs != nil {
		cfg.DraftSaveTimeoutMs = *fc.DraftSaveTimeoutMs
	}
	if fc.DraftClickTimeoutMs != nil {
		cfg.DraftClickTimeoutMs = *fc.DraftClickTimeoutMs
	}
	if fc.DraftVerifyTimeoutMs != nil {
		cfg.DraftVerifyTimeoutMs = *fc.DraftVerifyTimeoutMs
	}
	if fc.StageHardTimeoutMs != nil {
		cfg.StageHardTimeoutMs = *fc.StageHardTimeoutMs
	}
	if fc.StrictQuoteEscape != nil {
		cfg.StrictQuoteEscape = *fc.StrictQuoteEscape
	}
	if fc.MaxImageAttempts != nil {
		cfg.MaxImageAttempts = *fc.MaxImageAttempts
	}
	if fc.ReloadEditorReady != nil {
		cfg.ReloadEditorReady = *fc.ReloadEditorReady
	}
	if fc.StrictImages != nil {
		cfg.StrictImages = *fc.StrictImages
	}
	if fc.SimulateImageUploadFailure != nil {
		cfg.SimulateImageUploadFailure = *fc.SimulateImageUploadFailure
	}
	if fc.MaxIdempotencyLockAgeMs != nil {
		cfg.MaxIdempotencyLockAgeMs = *fc.MaxIdempotencyLockAgeMs
	}
	return nil
}

func loadEnvVars(cfg *Config) {
	if v := os.Getenv("NAVERPOST_IMAGE_UPLOAD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ImageUploadTimeoutMs = n
		}
	}
	if v := os.Getenv("NAVERPOST_DRAFT_SAVE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DraftSaveTimeoutMs = n
		}
	}
	if v := os.Getenv("NAVERPOST_DRAFT_CLICK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DraftClickTimeoutMs = n
		}
	}
	if v := os.Getenv("NAVERPOST_DRAFT_VERIFY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DraftVerifyTimeoutMs = n
		}
	}
	if v := os.Getenv("NAVERPOST_STAGE_HARD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StageHardTimeoutMs = n
		}
	}
	if v := os.Getenv("NAVERPOST_QUOTE_ESCAPE_MODE"); v != "" {
		cfg.StrictQuoteEscape = v != "non-strict"
	}
	if v := os.Getenv("NAVERPOST_MAX_IMAGE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxImageAttempts = n
		}
	}
	if os.Getenv("NAVERPOST_RELOAD_EDITOR_READY") == "1" {
		cfg.ReloadEditorReady = true
	}
	if os.Getenv("NAVERPOST_STRICT_IMAGES") == "1" {
		cfg.StrictImages = true
	}
	if v := os.Getenv("NAVERPOST_SIMULATE_IMAGE_UPLOAD_FAILURE"); v != "" {
		cfg.SimulateImageUploadFailure = v
	}
}

func applyFlags(cfg *Config, flags *FlagOverrides) {
	if flags.ImageUploadTimeoutMs != nil {
		cfg.ImageUploadTimeoutMs = *flags.ImageUploadTimeoutMs
	}
	if flags.DraftSaveTimeoutMs != nil {
		cfg.DraftSaveTimeoutMs = *flags.DraftSaveTimeoutMs
	}
	if flags.StrictQuoteEscape != nil {
		cfg.StrictQuoteEscape = *flags.StrictQuoteEscape
	}
	if flags.MaxImageAttempts != nil {
		cfg.MaxImageAttempts = *flags.MaxImageAttempts
	}
	if flags.ReloadEditorReady != nil {
		cfg.ReloadEditorReady = *flags.ReloadEditorReady
	}
	if flags.StrictImages != nil {
		cfg.StrictImages = *flags.StrictImages
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	if c.ImageUploadTimeoutMs <= 0 {
		return fmt.Errorf("image_upload_timeout_ms must be positive, got %d", c.ImageUploadTimeoutMs)
	}
	if c.MaxImageAttempts <= 0 {
		return fmt.Errorf("max_image_attempts must be positive, got %d", c.MaxImageAttempts)
	}
	if c.DraftSaveTimeoutMs <= 0 || c.DraftClickTimeoutMs <= 0 || c.DraftVerifyTimeoutMs <= 0 || c.StageHardTimeoutMs <= 0 {
		return fmt.Errorf("all timeout knobs must be positive")
	}
	return nil
}
