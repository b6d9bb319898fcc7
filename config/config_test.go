package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KINDER_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("KINDER_AUTH_SECRET", "s3cret")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, "kindergarten.db", c.SQLitePath)
	assert.True(t, c.AuthEnabled)
	assert.True(t, c.SerializeChain)
	assert.Equal(t, 8*time.Hour, c.LateAfter)
	assert.Equal(t, time.Local, c.Location)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KINDER_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("KINDER_STORE_DRIVER", "memory")
	t.Setenv("KINDER_AUTH_ENABLED", "false")
	t.Setenv("KINDER_ATTENDANCE_LATE_AFTER", "08:30")
	t.Setenv("KINDER_ATTENDANCE_TIMEZONE", "UTC")
	t.Setenv("KINDER_HTTP_PORT", "3000")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", c.StoreDriver)
	assert.False(t, c.AuthEnabled)
	assert.Equal(t, 8*time.Hour+30*time.Minute, c.LateAfter)
	assert.Equal(t, time.UTC, c.Location)
	assert.Equal(t, 3000, c.Port)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KINDER_STORE_DRIVER=memory\nKINDER_AUTH_SECRET=fromfile\n"), 0o600))
	t.Setenv("KINDER_ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("KINDER_STORE_DRIVER")
		os.Unsetenv("KINDER_AUTH_SECRET")
	})

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, "fromfile", c.AuthSecret)
}

func TestLoad_AuthWithoutSecretFails(t *testing.T) {
	t.Setenv("KINDER_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("KINDER_AUTH_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_UnknownDriver(t *testing.T) {
	c := &Config{Port: 8080, StoreDriver: "postgres"}
	assert.Error(t, c.Validate())
}
