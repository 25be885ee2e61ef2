package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"port": 7000,
		"maxmemory": 104857600,
		"maxmemory-policy": "allkeys-lru",
		"save": "900 1 300 10"
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
	require.Equal(t, int64(104857600), cfg.MaxMemory)
	require.Equal(t, "allkeys-lru", cfg.MaxMemoryPolicy)

	rules, err := ParseSaveRules(cfg.Save)
	require.NoError(t, err)
	require.Equal(t, []SaveRule{{900, 1}, {300, 10}}, rules)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not-a-real-key": true}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxmemory-policy": "bogus"}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestParseSaveRulesRejectsOddFields(t *testing.T) {
	_, err := ParseSaveRules("900 1 300")
	require.Error(t, err)
}
