package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Empty(t, cfg.Server.APIToken)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "static", cfg.Resolver.Mode)
	assert.Equal(t, 4, cfg.Resolver.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Resolver.Timeout)
	assert.False(t, cfg.Network.Verify)
	assert.Equal(t, "json", cfg.Compile.Format)
	assert.Equal(t, "fail", cfg.Compile.Collision)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s
  api_token: "s3cret"

log:
  level: "debug"
  format: "text"

aws:
  region: "eu-west-1"

resolver:
  mode: "ecr"
  concurrency: 8
  timeout: 5s

network:
  verify: true

compile:
  stage: "prod"
  format: "yaml"
  collision: "overwrite"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "ecr", cfg.Resolver.Mode)
	assert.Equal(t, 8, cfg.Resolver.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Resolver.Timeout)
	assert.True(t, cfg.Network.Verify)
	assert.Equal(t, "prod", cfg.Compile.Stage)
	assert.Equal(t, "yaml", cfg.Compile.Format)
	assert.Equal(t, "overwrite", cfg.Compile.Collision)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("RUNNERFORM_SERVER_PORT", "3000")
	t.Setenv("RUNNERFORM_LOG_LEVEL", "warn")
	t.Setenv("RUNNERFORM_AWS_REGION", "us-east-2")
	t.Setenv("RUNNERFORM_RESOLVER_MODE", "docker")
	t.Setenv("RUNNERFORM_NETWORK_VERIFY", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "us-east-2", cfg.AWS.Region)
	assert.Equal(t, "docker", cfg.Resolver.Mode)
	assert.True(t, cfg.Network.Verify)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "static", cfg.Resolver.Mode)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"invalid", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: "json"}}, &buf)

			assert.Equal(t, tt.wantDebug, logger.Handler().Enabled(t.Context(), -4))
			assert.Equal(t, tt.wantInfo, logger.Handler().Enabled(t.Context(), 0))
			assert.Equal(t, tt.wantWarn, logger.Handler().Enabled(t.Context(), 4))
		})
	}
}

func TestSetupLogger_Formats(t *testing.T) {
	var jsonBuf, textBuf bytes.Buffer

	SetupLogger(&Config{Log: LogConfig{Format: "json"}}, &jsonBuf).Info("hello", "k", "v")
	SetupLogger(&Config{Log: LogConfig{Format: "text"}}, &textBuf).Info("hello", "k", "v")

	assert.Contains(t, jsonBuf.String(), `"msg":"hello"`)
	assert.Contains(t, textBuf.String(), "msg=hello")
	assert.Contains(t, textBuf.String(), "k=v")
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"RUNNERFORM_CONFIG",
		"RUNNERFORM_SERVER_HOST",
		"RUNNERFORM_SERVER_PORT",
		"RUNNERFORM_SERVER_API_TOKEN",
		"RUNNERFORM_LOG_LEVEL",
		"RUNNERFORM_LOG_FORMAT",
		"RUNNERFORM_AWS_REGION",
		"RUNNERFORM_RESOLVER_MODE",
		"RUNNERFORM_NETWORK_VERIFY",
		"RUNNERFORM_COMPILE_STAGE",
		"RUNNERFORM_COMPILE_FORMAT",
		"RUNNERFORM_COMPILE_COLLISION",
	}
	for _, v := range envVars {
		// Empty values are treated as unset by viper.
		t.Setenv(v, "")
	}
}
