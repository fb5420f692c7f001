package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 20_000, cfg.ImageUploadTimeoutMs)
	assert.Equal(t, 30_000, cfg.DraftSaveTimeoutMs)
	assert.Equal(t, 45_000, cfg.DraftClickTimeoutMs)
	assert.Equal(t, 45_000, cfg.DraftVerifyTimeoutMs)
	assert.Equal(t, 30_000, cfg.StageHardTimeoutMs)
	assert.True(t, cfg.StrictQuoteEscape)
	assert.Equal(t, 3, cfg.MaxImageAttempts)
	assert.False(t, cfg.ReloadEditorReady)
}

func TestInsertBlocksBudget_ClampsLowAndHigh(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 30*1_000_000_000, int(cfg.InsertBlocksBudget(0, 0)))
	// Many blocks should clamp to 600s.
	assert.Equal(t, 600*1_000_000_000, int(cfg.InsertBlocksBudget(100, 100)))
}

func TestInsertBlocksBudget_Formula(t *testing.T) {
	cfg := Defaults()
	// 20 + 12*2 + max(35, 20+20)*1 = 20+24+40 = 84s
	got := cfg.InsertBlocksBudget(2, 1)
	assert.Equal(t, 84, int(got.Seconds()))
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".naverpost-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("draft_save_timeout_ms: 5000\nstrict_quote_escape: false\n"), 0o644))

	cfg := Defaults()
	require.NoError(t, loadYAMLFile(&cfg, path))
	assert.Equal(t, 5000, cfg.DraftSaveTimeoutMs)
	assert.False(t, cfg.StrictQuoteEscape)
}

func TestLoadEnvVars(t *testing.T) {
	t.Setenv("NAVERPOST_QUOTE_ESCAPE_MODE", "non-strict")
	t.Setenv("NAVERPOST_MAX_IMAGE_ATTEMPTS", "5")

	cfg := Defaults()
	loadEnvVars(&cfg)
	assert.False(t, cfg.StrictQuoteEscape)
	assert.Equal(t, 5, cfg.MaxImageAttempts)
}

func TestApplyFlagsOverridesEnv(t *testing.T) {
	t.Setenv("NAVERPOST_MAX_IMAGE_ATTEMPTS", "5")
	cfg := Defaults()
	loadEnvVars(&cfg)

	n := 7
	applyFlags(&cfg, &FlagOverrides{MaxImageAttempts: &n})
	assert.Equal(t, 7, cfg.MaxImageAttempts)
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := Defaults()
	cfg.DraftSaveTimeoutMs = 0
	require.Error(t, cfg.Validate())
}
