package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:     "db.internal",
		Port:     5433,
		User:     "skyvault",
		Password: "secret",
		Database: "exports",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=skyvault password=secret dbname=exports sslmode=require",
		cfg.DSN())
}

func TestConfigValidatorView(t *testing.T) {
	cfg := Config{Host: "localhost", Port: 5432, User: "u", Database: "d"}
	host, port := cfg.Address()
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 5432, port)
	assert.Equal(t, "d", cfg.DatabaseName())
	assert.Equal(t, "u", cfg.Username())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, "skyvault", cfg.User)
		assert.Equal(t, "skyvault", cfg.Database)
		assert.Equal(t, "disable", cfg.SSLMode)
		assert.Equal(t, int32(2), cfg.MinConns)
		assert.Equal(t, int32(10), cfg.MaxConns)
		assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("DB_USER", "etl")
		t.Setenv("DB_NAME", "exports")
		t.Setenv("DB_ACQUIRE_TIMEOUT", "3s")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "db.internal", cfg.Host)
		assert.Equal(t, 5433, cfg.Port)
		assert.Equal(t, "etl", cfg.User)
		assert.Equal(t, "exports", cfg.Database)
		assert.Equal(t, 3*time.Second, cfg.AcquireTimeout)
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("DB_PORT", "not-a-port")
		_, err := LoadConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("bad acquire timeout", func(t *testing.T) {
		t.Setenv("DB_ACQUIRE_TIMEOUT", "whenever")
		_, err := LoadConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestPoolAcquireTimeoutDefault(t *testing.T) {
	p := &Pool{cfg: Config{}}
	assert.Equal(t, 10*time.Second, p.AcquireTimeout())

	p = &Pool{cfg: Config{AcquireTimeout: time.Second}}
	assert.Equal(t, time.Second, p.AcquireTimeout())
}
