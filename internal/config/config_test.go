package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("applies defaults and env overrides", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_URL", "postgres://localhost/backoffice")
		t.Setenv("BACKOFFICE_TOKEN_SECRET", testSecret)
		t.Setenv("BACKOFFICE_APP_PORT", "9090")
		t.Setenv("BACKOFFICE_WORKER_BATCH_SIZE", "10")

		cfg, err := load(viper.New())
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, "postgres://localhost/backoffice", cfg.Database.URL)
		assert.Equal(t, int32(25), cfg.Database.MaxConns)
		assert.Equal(t, 10, cfg.Worker.BatchSize)
		assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
		assert.Equal(t, 7, cfg.Token.SupplierLinkTTLDays)
		assert.Equal(t, "quantity <= min_stock_level", cfg.Stock.LowStockRule)
		assert.True(t, cfg.App.IsDevelopment())
	})

	t.Run("requires database url", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_URL", "")
		t.Setenv("BACKOFFICE_TOKEN_SECRET", testSecret)

		_, err := load(viper.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.url")
	})

	t.Run("rejects short token secret", func(t *testing.T) {
		t.Setenv("BACKOFFICE_DATABASE_URL", "postgres://localhost/backoffice")
		t.Setenv("BACKOFFICE_TOKEN_SECRET", "short")

		_, err := load(viper.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "token.secret")
	})
}

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("BACKOFFICE_DATABASE_DRIVER", "memory")
	t.Setenv("BACKOFFICE_DATABASE_URL", "")
	t.Setenv("BACKOFFICE_TOKEN_SECRET", testSecret)

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.True(t, cfg.UsesMemory())

	t.Setenv("BACKOFFICE_DATABASE_DRIVER", "sqlite")
	_, err = load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("BACKOFFICE_DATABASE_URL", "postgres://localhost/backoffice")
	t.Setenv("BACKOFFICE_TOKEN_SECRET", "")

	cfg, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/backoffice", cfg.Database.URL)

	t.Setenv("BACKOFFICE_DATABASE_URL", "")
	_, err = LoadDatabase()
	require.Error(t, err)
}
