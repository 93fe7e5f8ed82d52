package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roostersync.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://jouwloon.nl", cfg.ProviderURL)
	assert.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roostersync.yaml")

	want := DefaultConfig()
	want.Listen = "0.0.0.0:9999"
	want.OutputDir = "/tmp/out"
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "./config", cfg.UsersDir)
	assert.Equal(t, "./ics", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ROOSTERSYNC_LISTEN", "127.0.0.1:7000")
	t.Setenv("ROOSTERSYNC_PROVIDER_URL", "http://localhost:1234")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, "http://localhost:1234", cfg.ProviderURL)
	assert.Equal(t, "./ics", cfg.OutputDir, "unset vars leave the value alone")
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("x"), 0o600))
	assert.FileExists(t, path)
}
