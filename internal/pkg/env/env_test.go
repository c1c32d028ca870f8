package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"CLIENTHUB_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CLIENTHUB_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("CLIENTHUB_TEST_KEY", "def"))
}

func TestGetEnvFallsBackToOSAndDefault(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CLIENTHUB_TEST_OS", "os")

	assert.Equal(t, "os", GetEnv("CLIENTHUB_TEST_OS", "def"))
	assert.Equal(t, "def", GetEnv("CLIENTHUB_TEST_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"N":      "42",
		"BAD_N":  "x",
		"B":      "true",
		"D":      "2m",
		"D_SECS": "30",
		"D_BAD":  "soon",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 42, GetEnvInt("N", 1))
	assert.Equal(t, 1, GetEnvInt("BAD_N", 1))
	assert.True(t, GetEnvBool("B", false))
	assert.False(t, GetEnvBool("MISSING_B", false))
	assert.Equal(t, 2*time.Minute, GetEnvDuration("D", time.Second))
	assert.Equal(t, 30*time.Second, GetEnvDuration("D_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("D_BAD", time.Second))
}

func TestSetupEnvFileReadsCurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_ENV=dev\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		Env = nil
	})

	assert.True(t, SetupEnvFile())
	assert.True(t, IsDev())
}
