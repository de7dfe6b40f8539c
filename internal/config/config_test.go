package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CORE_DATA_DIR", "CORE_EARLY_LOAD_TIME", "CORE_COOL_DOWN_TIME",
		"CORE_MAX_ISSUES_CREATION", "CORE_CONTROLLER_CONCURRENCY",
		"CORE_EXECUTOR_CONCURRENCY", "CORE_PORT",
	} {
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()

	cfg, err := Load(dataDir)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 5*time.Second, cfg.ExecutorSleep)
	assert.Equal(t, 10, cfg.ExecutorConcurrency)
	assert.Equal(t, 5, cfg.ControllerConcurrency)
	assert.Equal(t, 100, cfg.MaxIssuesCreation)
	assert.Equal(t, "UTC", cfg.TimeZone)
	assert.Contains(t, cfg.ControllerProcedures, "monitors_stuck")
	assert.Contains(t, cfg.ControllerProcedures, "notifications_alert_solved")
	assert.Contains(t, cfg.ControllerProcedures, "clean_events")
}

func TestLoadCreatesDataDir(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	nested := filepath.Join(base, "nested", "data")

	cfg, err := Load(nested)
	require.NoError(t, err)

	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("CORE_MAX_ISSUES_CREATION", "7"))
	defer os.Unsetenv("CORE_MAX_ISSUES_CREATION")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIssuesCreation)
}

func TestValidateRejectsNonPositiveEarlyLoadTime(t *testing.T) {
	cfg := &Config{
		EarlyLoadTime:         0,
		CoolDownTime:          2 * time.Second,
		MaxIssuesCreation:     10,
		ControllerConcurrency: 1,
		ExecutorConcurrency:   1,
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsEarlyLoadTimeTooLarge(t *testing.T) {
	cfg := &Config{
		EarlyLoadTime:         2 * time.Minute,
		CoolDownTime:          2 * time.Second,
		MaxIssuesCreation:     10,
		ControllerConcurrency: 1,
		ExecutorConcurrency:   1,
	}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidatePasses(t *testing.T) {
	cfg := &Config{
		EarlyLoadTime:         5 * time.Second,
		CoolDownTime:          2 * time.Second,
		MaxIssuesCreation:     10,
		ControllerConcurrency: 1,
		ExecutorConcurrency:   1,
	}
	assert.NoError(t, cfg.Validate())
}

func TestBackupEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.BackupEnabled())

	cfg.R2AccountID = "acc"
	cfg.R2AccessKeyID = "key"
	cfg.R2SecretAccessKey = "secret"
	cfg.R2Bucket = "bucket"
	assert.True(t, cfg.BackupEnabled())
}
