package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "52", cfg.WhatsApp.DefaultCountryCode)
	assert.Equal(t, "@c.us", cfg.WhatsApp.ChatSuffix)
	assert.Equal(t, 15*time.Second, cfg.WhatsApp.RequestTimeout)
	assert.Equal(t, 3, cfg.Scheduler.ReminderLeadDays)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	content := "PORT=9090\nREMINDER_LEAD_DAYS=5\nWAHA_TIMEOUT=3s\nSCHEDULER_ENABLED=false\nTIMEZONE=UTC\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	for _, key := range []string{"PORT", "REMINDER_LEAD_DAYS", "WAHA_TIMEOUT", "SCHEDULER_ENABLED", "TIMEZONE"} {
		key := key
		prev, had := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}

	cfg, err := Load(envPath)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Scheduler.ReminderLeadDays)
	assert.Equal(t, 3*time.Second, cfg.WhatsApp.RequestTimeout)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080"},
			Database:  DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			WhatsApp:  WhatsAppConfig{DefaultCountryCode: "52", ChatSuffix: "@c.us"},
			Scheduler: SchedulerConfig{Timezone: "UTC"},
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing port":       func(c *Config) { c.Server.Port = "" },
		"unknown driver":     func(c *Config) { c.Database.Driver = "mysql" },
		"postgres no host":   func(c *Config) { c.Database.Driver = "postgres" },
		"empty country code": func(c *Config) { c.WhatsApp.DefaultCountryCode = "" },
		"negative lead days": func(c *Config) { c.Scheduler.ReminderLeadDays = -1 },
		"negative retention": func(c *Config) { c.Scheduler.MessageRetentionDays = -2 },
		"bad timezone":       func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"empty chat suffix":  func(c *Config) { c.WhatsApp.ChatSuffix = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
