package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReturnsDefaults(t *testing.T) {
	c := New()
	require.Equal(t, 12, c.OnCacheQubits())
	require.Equal(t, 0, c.Workers())
	require.Equal(t, 1024, c.Shots())
	require.Equal(t, int64(0), c.Seed())
	require.Equal(t, 1, c.Processes())
	require.False(t, c.GetBool("debug"))
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 12, c.OnCacheQubits())
}

func TestLoadReadsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ketqsim.yaml")
	contents := "debug: true\non_cache_qubits: 20\nworkers: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.True(t, c.GetBool("debug"))
	require.Equal(t, 20, c.OnCacheQubits())
	require.Equal(t, 8, c.Workers())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ketqsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("on_cache_qubits: 20\n"), 0o644))

	t.Setenv("KETQSIM_ON_CACHE_QUBITS", "24")
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 24, c.OnCacheQubits())
}
