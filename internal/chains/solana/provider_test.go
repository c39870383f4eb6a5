package solana

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/forged/internal/core/domain"
)

func validConfig() Config {
	return Config{
		InstanceID:     "dev-1",
		Binary:         "solana-test-validator",
		RPCPort:        8899,
		Accounts:       10,
		InitialBalance: 100,
		InstanceDir:    "/tmp/chainforge-test/solana/dev-1",
		ReadyAttempts:  60,
		ReadyInterval:  500 * time.Millisecond,
		FundingRate:    10,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad instance name", func(c *Config) { c.InstanceID = "Bad_Name" }},
		{"rpc port out of range", func(c *Config) { c.RPCPort = 0 }},
		{"no room for port block", func(c *Config) { c.RPCPort = 65000 }},
		{"no accounts", func(c *Config) { c.Accounts = 0 }},
		{"negative balance", func(c *Config) { c.InitialBalance = -1 }},
		{"no instance dir", func(c *Config) { c.InstanceDir = "" }},
		{"no ready attempts", func(c *Config) { c.ReadyAttempts = 0 }},
		{"no funding rate", func(c *Config) { c.FundingRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.validate(), domain.ErrConfig)
		})
	}
}

func TestDerivedPorts(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPCURL())
	assert.Equal(t, 9901, cfg.FaucetPort())
	assert.Equal(t, 9902, cfg.GossipPort())
	assert.Equal(t, 9903, cfg.DynamicPortStart())
	assert.Equal(t, 10403, cfg.DynamicPortEnd())

	cfg.RPCPort = 9000
	assert.Equal(t, 10002, cfg.FaucetPort())
	assert.Equal(t, 10003, cfg.GossipPort())
}

func TestLamportsConversions(t *testing.T) {
	assert.Equal(t, uint64(1000000000), solToLamports(1))
	assert.Equal(t, uint64(2500000000), solToLamports(2.5))
	assert.Equal(t, uint64(100000000000), solToLamports(100))
	assert.Equal(t, uint64(1), solToLamports(0.000000001))

	assert.Equal(t, 1.0, lamportsToSol(1000000000))
	assert.Equal(t, 2.5, lamportsToSol(2500000000))
	assert.Equal(t, 0.0, lamportsToSol(0))
}

func TestMineNotSupported(t *testing.T) {
	provider, err := NewProvider(validConfig(), nil, nil, nil)
	require.NoError(t, err)

	_, err = provider.Mine(context.Background(), 5)
	assert.ErrorIs(t, err, domain.ErrNotSupported)
}

func TestOperationsRequireRunningNode(t *testing.T) {
	provider, err := NewProvider(validConfig(), nil, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = provider.Fund(ctx, "someaddress", 1)
	assert.ErrorIs(t, err, domain.ErrNotRunning)
	_, err = provider.Transaction(ctx, "somesignature")
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestStopIsIdempotent(t *testing.T) {
	provider, err := NewProvider(validConfig(), nil, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, provider.Stop(ctx))
	assert.NoError(t, provider.Stop(ctx))
}
