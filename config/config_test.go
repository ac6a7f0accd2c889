package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("BASE_URL", "")
	t.Setenv("POLL_INTERVAL_SEC", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:4000", cfg.Server.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Polling.Interval())
	assert.Equal(t, 30*time.Second, cfg.Polling.RefreshSkew())
	assert.Equal(t, "brocker_token", cfg.JWT.CookieName)
	assert.Equal(t, 800, cfg.Twitch.RatePerMin)
	assert.Equal(t, "9091", cfg.Worker.MetricsPort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://brocker.tv/")
	t.Setenv("POLL_INTERVAL_SEC", "5")
	t.Setenv("TOKEN_REFRESH_SKEW_SEC", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://brocker.tv", cfg.Server.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval())
	assert.Equal(t, time.Minute, cfg.Polling.RefreshSkew())
}

func TestLoad_RejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SEC", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5432", DBName: "brocker", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/brocker?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}
