package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, OverridePolicyRoleBypass, cfg.PriceOverridePolicy)
	require.InDelta(t, 0.16, cfg.DefaultTaxRate, 1e-9)
	require.Equal(t, "KES", cfg.DefaultCurrency)
	require.False(t, cfg.OverrideRequiresSecondCredential())
	require.Empty(t, cfg.KafkaBrokerList())
	require.Equal(t, "Africa/Nairobi", cfg.Location().String())
}

func TestLoadConfigRejectsUnknownTimeZone(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("PRICE_OVERRIDE_POLICY", "anyone")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigAlwaysVerifyAndBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("PRICE_OVERRIDE_POLICY", OverridePolicyAlwaysVerify)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.OverrideRequiresSecondCredential())
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokerList())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}
