package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/agro")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("PAYMENT_KEY_SECRET", "rzp-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 10000, cfg.HTTP.Port)
	assert.Equal(t, "chattu-token", cfg.Auth.CookieName)
	assert.Equal(t, "INR", cfg.Payment.Currency)
	assert.Equal(t, "AGR", cfg.Contracts.NumberPrefix)
	assert.Equal(t, 5, cfg.Contracts.NumberAttempts)
	assert.Equal(t, 7*24*time.Hour, cfg.Contracts.PaymentWindow)
	assert.Equal(t, "@midnight", cfg.Sweeper.Schedule)
	assert.True(t, cfg.Sweeper.Enabled)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/agro")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("PAYMENT_KEY_SECRET", "rzp-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET")
}

func TestParseList(t *testing.T) {
	assert.Nil(t, parseList("  "))
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b "))
}
