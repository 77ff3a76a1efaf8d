package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/config"
)

type sampleConfig struct {
	Name    string        `yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Debug   bool          `env:"SAMPLE_DEBUG"   yaml:"debug"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Nested  struct {
		Hosts []string `env:"SAMPLE_HOSTS" yaml:"hosts"`
		Ratio float64  `env:"SAMPLE_RATIO" yaml:"ratio"`
	} `yaml:"nested"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "name: scouts\nport: 8080\nnested:\n  ratio: 0.5\n")

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_PORT", "9090")
	t.Setenv("SAMPLE_DEBUG", "yes")
	t.Setenv("SAMPLE_TIMEOUT", "90s")
	t.Setenv("SAMPLE_HOSTS", "a, b")

	cfg, err := config.Load[sampleConfig](path)
	require.NoError(t, err)

	assert.Equal(t, "scouts", cfg.Name)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"a", "b"}, cfg.Nested.Hosts)
	assert.InDelta(t, 0.5, cfg.Nested.Ratio, 1e-9)
}

func TestLoad_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_PORT", "7000")

	cfg, err := config.Load[sampleConfig](filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestLoadWithDefaults_EnvWinsOverDefaults(t *testing.T) {
	path := writeConfig(t, "name: scouts\n")

	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_PORT", "8181")

	cfg, err := config.LoadWithDefaults(path, func(c *sampleConfig) {
		if c.Port == 0 {
			c.Port = 1234
		}
		c.Timeout = time.Minute
	})
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, time.Minute, cfg.Timeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "name: [unterminated\n")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	_, err := config.Load[sampleConfig](path)
	require.Error(t, err)
}

func TestValidatePort(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.ValidatePort("service.port", 8080))

	err := config.ValidatePort("service.port", 0)
	var vErr *config.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "service.port", vErr.Field)
}
