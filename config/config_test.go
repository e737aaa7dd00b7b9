package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("LUMI_SIGNING_SECRET", secret)
	t.Setenv("LUMI_PORT", "9090")
	t.Setenv("LUMI_TOKEN_LIFETIME", "90m")
	t.Setenv("LUMI_MIGRATE", "false")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Addr)
	assert.Equal(t, 90*time.Minute, c.TokenLifetime)
	assert.False(t, c.Migrate)
	assert.Equal(t, "json", c.LogFormat)
	assert.Equal(t, uint32(64*1024), c.Argon2.Memory)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":7000"
database_url: postgres://lumi@localhost/lumi
signing_secret: `+secret+`
token_lifetime: 2h
log_format: pretty
argon2:
  memory: 1024
`), 0o600))
	t.Setenv("LUMI_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Addr)
	assert.Equal(t, "postgres://lumi@localhost/lumi", c.DatabaseURL)
	assert.Equal(t, 2*time.Hour, c.TokenLifetime)
	assert.Equal(t, "pretty", c.LogFormat)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, uint32(1024), c.Argon2.Memory)
	assert.Equal(t, uint32(3), c.Argon2.Iterations)
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.Error(t, c.Validate(), "missing secret")

	c.SigningSecret = secret
	require.NoError(t, c.Validate())

	c.TokenLifetime = 0
	assert.Error(t, c.Validate())

	c.TokenLifetime = 500 * time.Millisecond
	assert.Error(t, c.Validate())

	c.TokenLifetime = time.Second
	assert.NoError(t, c.Validate())

	c = Default()
	c.SigningSecret = secret
	c.LogFormat = "xml"
	assert.Error(t, c.Validate())
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("LUMI_SIGNING_SECRET", secret)
	t.Setenv("LUMI_TOKEN_LIFETIME", "forever")
	_, err := Load("")
	assert.Error(t, err)
}
