package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPERATOR_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.DBAutoMigrate)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, time.Second, cfg.EventFlushInterval)
	assert.Equal(t, uint64(3480), cfg.Rent().LamportsPerByteYear)

	policy, err := cfg.RepayPolicy()
	require.NoError(t, err)
	assert.Equal(t, flashloan.PolicyDeferred, policy)

	f, err := cfg.Facilities()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFacilities(), f)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPERATOR_JWT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FLASHLOAN_REPAY_POLICY", "last")
	override := domain.LabelAddress("custom-vault")
	t.Setenv("VAULT_FACILITY_ID", override.String())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)

	f, err := cfg.Facilities()
	require.NoError(t, err)
	assert.Equal(t, override, f.Vault)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "unknown policy", env: map[string]string{"OPERATOR_JWT_SECRET": "s", "FLASHLOAN_REPAY_POLICY": "eventually"}},
		{name: "bad facility id", env: map[string]string{"OPERATOR_JWT_SECRET": "s", "ESCROW_FACILITY_ID": "not-base58-0OIl"}},
		{name: "colliding facility ids", env: map[string]string{
			"OPERATOR_JWT_SECRET": "s",
			"ESCROW_FACILITY_ID":  domain.LabelAddress("vault").String(),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPERATOR_JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
