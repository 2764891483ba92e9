package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/version"
)

func TestVersionCmd(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { cfgFile = "" })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--config", writeTestConfig(t, `{}`)})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "wwbridge "+version.FullVersion+"\n", out.String())
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { cfgFile = "" })

	path := writeTestConfig(t, `{"receiver": {"port": 7790}, "logLevel": "warn"}`)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--config", path, "--port", "7800", "--aircraft", "F-16C_50", "--debug"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 7800, config.GetReceiverConfig().Port)
	assert.Equal(t, "F-16C_50", config.GetAircraftConfig().Override)
	assert.True(t, viper.GetBool("debug"))
	assert.Equal(t, "warn", viper.GetString("logLevel"))
}

func TestEnvOverridesConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { cfgFile = "" })
	t.Setenv("WWBRIDGE_LOG_LEVEL", "debug")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--config", writeTestConfig(t, `{"logLevel": "warn"}`)})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "debug", viper.GetString("logLevel"))
}

func TestExplicitConfigMustExist(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { cfgFile = "" })

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, cmd.Execute())
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
